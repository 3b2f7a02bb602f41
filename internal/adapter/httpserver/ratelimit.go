package httpserver

import (
	"math"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/codegouvfr/sill-web/internal/adapter/metrics"
	apperrors "github.com/codegouvfr/sill-web/internal/platform/errors"
)

// rateLimiterExpiry forgets clients idle for that long.
const rateLimiterExpiry = 5 * time.Minute

// routeLimit throttles a group of routes per client address.
type routeLimit struct {
	name          string
	ratePerSecond float64
	burst         int
}

var (
	// authLimit covers the login round trips through the identity provider.
	authLimit = routeLimit{name: "auth", ratePerSecond: 1, burst: 10}
	// profileLimit covers the profile updates, each one a backend write.
	profileLimit = routeLimit{name: "profile", ratePerSecond: 0.5, burst: 5}
)

// retryAfter is the wait, in whole seconds, until the client gets a new token.
func (l routeLimit) retryAfter() string {
	return strconv.Itoa(int(math.Ceil(1 / l.ratePerSecond)))
}

// middleware rejects requests over the limit with a rate_limited error, shown
// as a page to browsers and as JSON to API clients. m may be nil.
func (l routeLimit) middleware(m *metrics.HTTPMetrics) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(l.ratePerSecond),
		Burst:     l.burst,
		ExpiresIn: rateLimiterExpiry,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, _ error) error {
			m.RecordRateLimited(l.name)
			c.Response().Header().Set("Retry-After", l.retryAfter())
			return apperrors.RateLimitedError("too many requests, please retry later").
				WithField("limit", l.name).
				WithField("client", identifier)
		},
	})
}
