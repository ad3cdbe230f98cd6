// scan is a diagnostic sniffer: it attaches to a hub without advertising and
// reports every advertisement it hears, decoded or with the reason it would be
// dropped by a node.
// Usage: go run ./cmd/scan -hub localhost:6121
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SWAI-Ltd/btbmesh/internal/checksum"
	"github.com/SWAI-Ltd/btbmesh/internal/clock"
	"github.com/SWAI-Ltd/btbmesh/internal/logging"
	"github.com/SWAI-Ltd/btbmesh/internal/proto"
	"github.com/SWAI-Ltd/btbmesh/internal/transport"
)

func main() {
	hub := flag.String("hub", "localhost:6121", "hub address")
	mfg := flag.String("mfg", "1122", "manufacturer code to accept (hex)")
	pass := flag.String("pass", "", "show only packets for this passphrase")
	flag.Parse()

	logger, err := logging.New(logging.Config{Format: "console", Level: "warn", Output: os.Stderr, Component: "scan"})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	code, err := proto.ParseManufacturerCode(*mfg)
	if err != nil {
		logger.Fatal().Err(err).Str("mfg", *mfg).Msg("bad manufacturer code")
	}
	var privacy *uint8
	if *pass != "" {
		p := checksum.PrivacyCode(*pass)
		privacy = &p
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() { <-sigCh; cancel() }()

	dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
	link, err := transport.DialLink(dialCtx, *hub, "scan", 256, logger)
	dialCancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("connect failed")
	}
	defer link.Close()
	fmt.Printf("Listening on %s for manufacturer code %04X.\n", *hub, code)

	counts := make(map[string]int)
	for {
		select {
		case <-ctx.Done():
			fmt.Printf("\nDone. %v\n", counts)
			return
		case raw, ok := <-link.Receive():
			if !ok {
				fmt.Printf("\nHub closed. %v\n", counts)
				return
			}
			line, verdict := classify(raw, code, privacy, clock.System{}.Minute())
			counts[verdict]++
			fmt.Printf("[%s] %s\n", time.Now().Format("15:04:05"), line)
		}
	}
}

// classify describes one advertisement and names the bucket it falls into.
func classify(raw []byte, code uint16, privacy *uint8, now uint8) (line, verdict string) {
	rx, err := proto.ParseAdvertisement(raw, code)
	switch {
	case errors.Is(err, proto.ErrShort):
		return fmt.Sprintf("SHORT   %d bytes", len(raw)), "short"
	case errors.Is(err, proto.ErrNotAdvertisement):
		return fmt.Sprintf("FOREIGN not a manufacturer advertisement: % x", raw), "foreign"
	case errors.Is(err, proto.ErrForeignManufacturer):
		return fmt.Sprintf("FOREIGN manufacturer code % x", raw[5:7]), "foreign"
	case errors.Is(err, proto.ErrNotBeacon):
		return "FOREIGN missing beacon marker", "foreign"
	case err != nil:
		return "INVALID " + err.Error(), "invalid"
	}

	p := rx.Packet
	desc := fmt.Sprintf("priv %02X min %02d rssi %4d sum %02X %q", p.Privacy(), p.Minute(), rx.RSSI, rx.Checksum, p.Text())
	if !clock.Fresh(p.Minute(), now) {
		return "STALE   " + desc, "stale"
	}
	if privacy != nil && p.Privacy() != *privacy {
		return "OTHER   " + desc, "other"
	}
	return "OK      " + desc, "ok"
}
