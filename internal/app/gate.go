package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/pscheid92/pixelwall/internal/adapter/metrics"
	"github.com/pscheid92/pixelwall/internal/domain"
)

// FallbackGate consults a shared primary gate and answers from a local gate
// when the primary fails, so a cooldown store outage never blocks edits.
// Primary admissions are mirrored locally to keep the fallback warm.
type FallbackGate struct {
	primary  domain.CooldownGate
	fallback domain.CooldownGate
	metrics  *metrics.StoreMetrics
}

var _ domain.CooldownGate = (*FallbackGate)(nil)

func NewFallbackGate(primary, fallback domain.CooldownGate, m *metrics.StoreMetrics) *FallbackGate {
	return &FallbackGate{primary: primary, fallback: fallback, metrics: m}
}

func (g *FallbackGate) TryAdmit(ctx context.Context, identity string, now time.Time) (domain.Admission, error) {
	admission, err := g.primary.TryAdmit(ctx, identity, now)
	if err == nil {
		if admission.Admitted {
			_, _ = g.fallback.TryAdmit(ctx, identity, now)
		}
		return admission, nil
	}

	if ctx.Err() != nil {
		return domain.Admission{}, ctx.Err()
	}

	slog.WarnContext(ctx, "Shared cooldown check failed, using local gate", "error", err)
	if g.metrics != nil {
		g.metrics.CooldownFallbacks.Inc()
	}
	return g.fallback.TryAdmit(ctx, identity, now)
}
