// Package app provides the application service layer.
//
// It owns the per-browser-session state (identity, session-bound backend
// view and profile workflow), the page registry and the use cases the HTTP
// handlers call. It depends on domain interfaces, not concrete adapters.
package app
