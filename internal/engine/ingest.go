package engine

import (
	"context"

	"github.com/SWAI-Ltd/btbmesh/internal/clock"
	"github.com/SWAI-Ltd/btbmesh/internal/metrics"
	"github.com/SWAI-Ltd/btbmesh/internal/proto"
)

// runIngest drains both Deliver and the transport's receive channel.
func (e *Engine) runIngest(ctx context.Context) error {
	heard := e.cfg.Transport.Receive()
	for {
		var raw []byte
		select {
		case <-ctx.Done():
			return nil
		case raw = <-e.raw:
		case r, ok := <-heard:
			if !ok {
				heard = nil
				continue
			}
			raw = r
		}
		e.safely("ingest", func() { e.ingest(raw) })
	}
}

func (e *Engine) ingest(raw []byte) {
	metrics.IngestReceivedTotal.Inc()

	rx, err := proto.ParseAdvertisement(raw, e.settings.ManufacturerCode())
	if err != nil {
		metrics.IngestDroppedTotal.WithLabelValues(metrics.ReasonForeign).Inc()
		e.log().Debug().Err(err).Int("len", len(raw)).Msg("ignoring advertisement")
		return
	}

	now := e.clock.Minute()
	if !clock.Fresh(rx.Packet.Minute(), now) {
		metrics.IngestDroppedTotal.WithLabelValues(metrics.ReasonExpired).Inc()
		e.log().Debug().Uint8("minute", rx.Packet.Minute()).Uint8("now", now).Msg("ignoring stale packet")
		return
	}

	// Roll the window here too so a mark is never made against a parity the
	// scheduler is about to clear.
	e.seen.Tick(now)
	if e.seen.TestAndMark(now, rx.Checksum) {
		metrics.IngestDroppedTotal.WithLabelValues(metrics.ReasonDuplicate).Inc()
		e.log().Debug().Hex("checksum", []byte{rx.Checksum}).Msg("ignoring duplicate packet")
		return
	}

	if e.settings.MeshMode() {
		e.store.AddCandidate(rx, e.cfg.RelayDelay)
	}

	if rx.Packet.Privacy() != e.settings.PrivacyCode() {
		metrics.MessagesSquelchedTotal.Inc()
		e.log().Debug().Hex("privcode", []byte{rx.Packet.Privacy()}).Msg("packet for another group")
		return
	}

	metrics.MessagesDisplayedTotal.WithLabelValues("remote").Inc()
	e.log().Info().Int8("rssi", rx.RSSI).Str("text", rx.Packet.Text()).Msg("message received")
	e.show(rx.Packet.Text(), colorHint(rx.RSSI))
}

// colorHint maps signal strength onto a display shade: the stronger the
// signal, the brighter.
func colorHint(rssi int8) uint8 {
	v := 255 + int(rssi)
	if v > 255 {
		v = 255
	}
	return uint8(v)
}
