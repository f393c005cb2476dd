// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	cycleKey         contextKey = "cycle"
	requestIDKey     contextKey = "request_id"
)

// GenerateCorrelationID returns a short random id suitable for log correlation.
func GenerateCorrelationID() string {
	return uuid.New().String()[:8]
}

// ContextWithCorrelationID stores id in ctx.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// ContextWithNewCorrelationID stores a freshly generated correlation id in ctx.
func ContextWithNewCorrelationID(ctx context.Context) context.Context {
	return ContextWithCorrelationID(ctx, GenerateCorrelationID())
}

// CorrelationIDFromContext returns the correlation id, or "".
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithCycle tags ctx with the name of the automation cycle being run.
// A new correlation id is attached when none is present.
func ContextWithCycle(ctx context.Context, cycle string) context.Context {
	if CorrelationIDFromContext(ctx) == "" {
		ctx = ContextWithNewCorrelationID(ctx)
	}
	return context.WithValue(ctx, cycleKey, cycle)
}

// CycleFromContext returns the cycle name, or "".
func CycleFromContext(ctx context.Context) string {
	if c, ok := ctx.Value(cycleKey).(string); ok {
		return c
	}
	return ""
}

// GenerateRequestID returns a unique id for an HTTP request.
func GenerateRequestID() string {
	return uuid.New().String()
}

// ContextWithRequestID stores an HTTP request id in ctx.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request id, or "".
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// Ctx returns a logger enriched with the correlation id, cycle and request id from ctx.
//
//	logging.Ctx(ctx).Info().Int64("server_id", id).Msg("Server quarantined")
func Ctx(ctx context.Context) *zerolog.Logger {
	logCtx := With()
	if id := CorrelationIDFromContext(ctx); id != "" {
		logCtx = logCtx.Str("correlation_id", id)
	}
	if c := CycleFromContext(ctx); c != "" {
		logCtx = logCtx.Str("cycle", c)
	}
	if id := RequestIDFromContext(ctx); id != "" {
		logCtx = logCtx.Str("request_id", id)
	}
	l := logCtx.Logger()
	return &l
}
