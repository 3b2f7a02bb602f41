package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/codegouvfr/sill-web/internal/platform/version"
)

const (
	startupCheckTimeout   = 2 * time.Second
	readinessCheckTimeout = 5 * time.Second
)

// HealthCheck is a named dependency check: Redis, the SILL API breaker.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type checkResult struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type readinessResponse struct {
	Status string `json:"status"`
	// FailedCheck is the first failing check, in registration order.
	FailedCheck string        `json:"failed_check,omitempty"`
	Checks      []checkResult `json:"checks"`
}

type livenessResponse struct {
	Status   string  `json:"status"`
	Uptime   float64 `json:"uptime"`
	Sessions int     `json:"sessions"`
}

type versionResponse struct {
	version.Info
	APIVersion string `json:"api_version"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/startup", s.handleStartup)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

func (s *Server) handleStartup(c echo.Context) error {
	return s.respondChecks(c, startupCheckTimeout)
}

func (s *Server) handleReadiness(c echo.Context) error {
	return s.respondChecks(c, readinessCheckTimeout)
}

// handleLiveness ignores the dependencies; readiness covers them.
func (s *Server) handleLiveness(c echo.Context) error {
	resp := livenessResponse{
		Status:   "ok",
		Uptime:   s.clock.Since(s.startTime).Seconds(),
		Sessions: s.app.SessionCount(),
	}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}
	return nil
}

func (s *Server) respondChecks(c echo.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
	defer cancel()

	resp := readinessResponse{Status: "ready", Checks: s.runHealthChecks(ctx)}
	status := http.StatusOK
	for _, result := range resp.Checks {
		if !result.OK {
			resp.Status = "unhealthy"
			resp.FailedCheck = result.Name
			status = http.StatusServiceUnavailable
			break
		}
	}

	if err := c.JSON(status, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

// runHealthChecks runs every check concurrently under ctx.
func (s *Server) runHealthChecks(ctx context.Context) []checkResult {
	results := make([]checkResult, len(s.healthChecks))
	var wg sync.WaitGroup
	for i, hc := range s.healthChecks {
		wg.Go(func() {
			results[i] = checkResult{Name: hc.Name, OK: true}
			if err := hc.Check(ctx); err != nil {
				results[i] = checkResult{Name: hc.Name, Error: err.Error()}
			}
		})
	}
	wg.Wait()
	return results
}

// handleVersion reports both the web build and the backend version.
func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, versionResponse{Info: version.Get(), APIVersion: s.app.APIVersion()}); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
