package engine

import (
	"context"

	"github.com/SWAI-Ltd/btbmesh/internal/metrics"
	"github.com/SWAI-Ltd/btbmesh/internal/proto"
)

func (e *Engine) runInput(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line := <-e.text:
			e.safely("input", func() { e.input(line) })
		}
	}
}

// input handles one line of host input: a command, or text to send.
func (e *Engine) input(line string) {
	if e.command(line) {
		return
	}
	if line == "" {
		return
	}
	now := e.clock.Minute()
	p := proto.NewPacket(e.settings.PrivacyCode(), now, line)
	// Our own packet relayed back by a neighbour is not news.
	e.seen.Tick(now)
	e.seen.Mark(now, p.Checksum())
	e.store.PushLocal(p, e.cfg.LocalDelay)
	metrics.MessagesDisplayedTotal.WithLabelValues("local").Inc()
	e.log().Info().Str("text", p.Text()).Msg("message queued")
	e.show(p.Text(), ColorLocal)
}
