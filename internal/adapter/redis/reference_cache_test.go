package redis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codegouvfr/sill-web/internal/domain"
)

type mockReferenceSource struct {
	softwareCalls atomic.Int32
	agencyCalls   atomic.Int32
	softwares     []domain.Software
	agencyNames   []string
	err           error
	gate          chan struct{}
}

func (m *mockReferenceSource) Softwares(context.Context) ([]domain.Software, error) {
	m.softwareCalls.Add(1)
	if m.gate != nil {
		<-m.gate
	}
	return m.softwares, m.err
}

func (m *mockReferenceSource) AgencyNames(context.Context) ([]string, error) {
	m.agencyCalls.Add(1)
	return m.agencyNames, m.err
}

type countingRecorder struct {
	mu     sync.Mutex
	hits   map[string]int
	misses map[string]int
	loads  int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{hits: map[string]int{}, misses: map[string]int{}}
}

func (r *countingRecorder) RecordHit(layer string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits[layer]++
}

func (r *countingRecorder) RecordMiss(layer string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.misses[layer]++
}

func (r *countingRecorder) RecordLoad(error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads++
}

func testSoftwares() []domain.Software {
	return []domain.Software{{ID: 1, Name: "GIMP"}, {ID: 2, Name: "Krita"}}
}

// --- memory-only tests (no Redis needed) ---

func TestReferenceCache_MemoryHit(t *testing.T) {
	source := &mockReferenceSource{softwares: testSoftwares()}
	recorder := newCountingRecorder()
	cache := NewReferenceCache(nil, source, time.Minute, clockwork.NewFakeClock(), recorder)
	ctx := context.Background()

	first, err := cache.Softwares(ctx)
	require.NoError(t, err)
	second, err := cache.Softwares(ctx)
	require.NoError(t, err)

	assert.Equal(t, testSoftwares(), first)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), source.softwareCalls.Load())
	assert.Equal(t, 1, recorder.hits["memory"])
	assert.Equal(t, 1, recorder.misses["memory"])
	assert.Equal(t, 1, recorder.loads)
}

func TestReferenceCache_ReturnsIndependentCopies(t *testing.T) {
	cache := NewReferenceCache(nil, &mockReferenceSource{softwares: testSoftwares()}, time.Minute, clockwork.NewFakeClock(), nil)
	ctx := context.Background()

	first, err := cache.Softwares(ctx)
	require.NoError(t, err)
	first[0].Name = "changed"

	second, err := cache.Softwares(ctx)
	require.NoError(t, err)
	assert.Equal(t, "GIMP", second[0].Name)
}

func TestReferenceCache_TTLExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	source := &mockReferenceSource{agencyNames: []string{"DINUM"}}
	cache := NewReferenceCache(nil, source, time.Minute, clock, nil)
	ctx := context.Background()

	_, err := cache.AgencyNames(ctx)
	require.NoError(t, err)

	clock.Advance(59 * time.Second)
	_, err = cache.AgencyNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), source.agencyCalls.Load())

	clock.Advance(2 * time.Second)
	_, err = cache.AgencyNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), source.agencyCalls.Load())
}

func TestReferenceCache_Invalidate(t *testing.T) {
	source := &mockReferenceSource{agencyNames: []string{"DINUM"}}
	cache := NewReferenceCache(nil, source, time.Minute, clockwork.NewFakeClock(), nil)
	ctx := context.Background()

	_, err := cache.AgencyNames(ctx)
	require.NoError(t, err)
	require.NoError(t, cache.InvalidateAgencyNames(ctx))
	_, err = cache.AgencyNames(ctx)
	require.NoError(t, err)

	assert.Equal(t, int32(2), source.agencyCalls.Load())
}

func TestReferenceCache_ErrorsAreNotCached(t *testing.T) {
	source := &mockReferenceSource{err: errors.New("backend down")}
	cache := NewReferenceCache(nil, source, time.Minute, clockwork.NewFakeClock(), nil)
	ctx := context.Background()

	_, err := cache.Softwares(ctx)
	require.Error(t, err)
	_, err = cache.Softwares(ctx)
	require.Error(t, err)

	assert.Equal(t, int32(2), source.softwareCalls.Load())
}

func TestReferenceCache_ConcurrentMissesShareOneLoad(t *testing.T) {
	source := &mockReferenceSource{softwares: testSoftwares(), gate: make(chan struct{})}
	cache := NewReferenceCache(nil, source, time.Minute, clockwork.NewFakeClock(), nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			softwares, err := cache.Softwares(ctx)
			assert.NoError(t, err)
			assert.Len(t, softwares, 2)
		})
	}

	require.Eventually(t, func() bool { return source.softwareCalls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(source.gate)
	wg.Wait()

	assert.Equal(t, int32(1), source.softwareCalls.Load())
}

func TestReferenceCache_EvictionTimer(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cache := NewReferenceCache(nil, &mockReferenceSource{agencyNames: []string{"DINUM"}}, time.Minute, clock, nil)
	_, err := cache.AgencyNames(context.Background())
	require.NoError(t, err)

	stop := cache.StartEvictionTimer(30 * time.Second)
	defer stop()

	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	clock.Advance(2 * time.Minute)

	require.Eventually(t, func() bool {
		cache.mem.mu.RLock()
		defer cache.mem.mu.RUnlock()
		return len(cache.mem.entries) == 0
	}, time.Second, time.Millisecond)
}

// --- integration tests (require Redis via testcontainers) ---

func TestReferenceCache_RedisLayerSharedAcrossInstances(t *testing.T) {
	client := setupTestClient(t)
	ctx := context.Background()
	source := &mockReferenceSource{softwares: testSoftwares()}

	first := NewReferenceCache(client, source, time.Minute, clockwork.NewRealClock(), nil)
	_, err := first.Softwares(ctx)
	require.NoError(t, err)

	recorder := newCountingRecorder()
	second := NewReferenceCache(client, source, time.Minute, clockwork.NewRealClock(), recorder)
	softwares, err := second.Softwares(ctx)
	require.NoError(t, err)

	assert.Equal(t, testSoftwares(), softwares)
	assert.Equal(t, int32(1), source.softwareCalls.Load())
	assert.Equal(t, 1, recorder.hits["redis"])

	ttl, err := client.TTL(ctx, referenceKey(softwaresKey)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestReferenceCache_InvalidateClearsRedis(t *testing.T) {
	client := setupTestClient(t)
	ctx := context.Background()
	cache := NewReferenceCache(client, &mockReferenceSource{agencyNames: []string{"DINUM"}}, time.Minute, clockwork.NewRealClock(), nil)

	_, err := cache.AgencyNames(ctx)
	require.NoError(t, err)
	require.NoError(t, cache.InvalidateAgencyNames(ctx))

	exists, err := client.Exists(ctx, referenceKey(agencyNamesKey)).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}
