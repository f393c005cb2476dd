// Sentinel - Adaptive Security Automation for Game Server Hosting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package eventbus

import (
	"context"
	"fmt"

	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/metrics"
)

// BestEffort runs a non-critical side effect. Errors and panics are logged
// and dropped; the return value reports whether fn succeeded.
func BestEffort(ctx context.Context, name string, fn func(context.Context) error) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
			metrics.BusPublishFailuresTotal.Inc()
			logging.Ctx(ctx).Warn().
				Str("effect", name).
				Str("panic", fmt.Sprint(rec)).
				Msg("Best-effort side effect panicked")
		}
	}()

	if err := fn(ctx); err != nil {
		metrics.BusPublishFailuresTotal.Inc()
		logging.Ctx(ctx).Warn().Err(err).Str("effect", name).Msg("Best-effort side effect failed")
		return false
	}
	return true
}

// Notify sends note through n as a best-effort effect. A nil notifier is
// a no-op.
func Notify(ctx context.Context, n Notifier, note Notification) bool {
	if n == nil {
		return true
	}
	return BestEffort(ctx, "notify:"+note.Kind, func(ctx context.Context) error {
		return n.Notify(ctx, note)
	})
}
