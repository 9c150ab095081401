//go:build !otelotlp

package otelobs

import (
	"context"
	"net/http"
)

// WrapHTTPHandler is a no-op by default. Build with -tags otelotlp to enable tracing.
func WrapHTTPHandler(serviceName string, h http.Handler) http.Handler { return h }

// InitTracer is a no-op by default; the returned shutdown does nothing.
func InitTracer(serviceName string) func(context.Context) error {
	return func(context.Context) error { return nil }
}
