package engine

import (
	"context"
	"time"

	"github.com/SWAI-Ltd/btbmesh/internal/metrics"
	"github.com/SWAI-Ltd/btbmesh/internal/proto"
	"github.com/SWAI-Ltd/btbmesh/internal/store"
	"github.com/SWAI-Ltd/btbmesh/internal/transport"
)

func (e *Engine) runScheduler(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		delay := e.tick(ctx)
		timer.Reset(delay + e.jitterDelay())
	}
}

// tick performs one scheduling step and returns how long to wait before the
// next one.
func (e *Engine) tick(ctx context.Context) (delay time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			metrics.LoopFailuresTotal.WithLabelValues("scheduler").Inc()
			e.log().Error().Interface("panic", r).Msg("scheduler step failed, backing off")
			e.setState(StateBackoff)
			delay = e.cfg.BackoffDelay
		}
	}()

	e.setState(StateSelecting)
	now := e.clock.Minute()
	if e.seen.Tick(now) {
		e.log().Debug().Uint8("minute", now).Msg("dedup window advanced")
	}

	out, ok := e.store.Select(now)
	if !ok {
		e.setState(StateIdle)
		e.stopAdvertising(ctx)
		return e.cfg.TickInterval
	}

	if err := e.cfg.Transport.Send(ctx, e.settings.ManufacturerCode(), proto.ManufacturerData(out.Packet)); err != nil {
		metrics.TransmitTotal.WithLabelValues(out.Origin.String(), "error").Inc()
		if ctx.Err() != nil {
			return 0
		}
		e.log().Warn().Err(err).Str("queue", out.Origin.String()).Msg("advertise failed, backing off")
		e.setState(StateBackoff)
		return e.cfg.BackoffDelay
	}
	metrics.TransmitTotal.WithLabelValues(out.Origin.String(), "success").Inc()
	e.advertising = true
	e.setState(StateTransmitting)

	ev := e.log().Debug().Str("queue", out.Origin.String()).Uint8("minute", out.Packet.Minute())
	if out.Origin == store.OriginRelay {
		ev = ev.Uint32("priority", out.Priority)
	}
	ev.Str("text", out.Packet.Text()).Msg("advertising")
	return out.Delay
}

// stopAdvertising takes the current advertisement off the air once, on the
// transition to idle.
func (e *Engine) stopAdvertising(ctx context.Context) {
	if !e.advertising {
		return
	}
	e.advertising = false
	s, ok := e.cfg.Transport.(transport.Stopper)
	if !ok {
		return
	}
	if err := s.Stop(ctx); err != nil {
		e.log().Debug().Err(err).Msg("stop advertising failed")
	}
}

func (e *Engine) jitterDelay() time.Duration {
	if e.cfg.Jitter <= 0 {
		return 0
	}
	return time.Duration(e.jitter.Int63n(int64(e.cfg.Jitter)))
}
