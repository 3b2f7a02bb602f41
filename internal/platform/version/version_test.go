package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfoString(t *testing.T) {
	assert.Equal(t, "dev", Info{Version: "dev", Commit: "unknown"}.String())
	assert.Equal(t, "v1.4.0 (3f2c9ab)", Info{Version: "v1.4.0", Commit: "3f2c9ab41d0e"}.String())
}

func TestGet(t *testing.T) {
	info := Get()
	assert.Equal(t, Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}
