// node is an interactive mesh chat node. Lines typed on stdin are sent, lines
// starting with / are commands (/? lists them), and everything the mesh
// delivers is printed to stdout.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/SWAI-Ltd/btbmesh/client"
	"github.com/SWAI-Ltd/btbmesh/internal/config"
	"github.com/SWAI-Ltd/btbmesh/internal/engine"
	"github.com/SWAI-Ltd/btbmesh/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.NodeID, "id", cfg.NodeID, "node id")
	flag.StringVar(&cfg.HubAddr, "hub", cfg.HubAddr, "hub address (empty to discover over mDNS)")
	flag.BoolVar(&cfg.DisableDiscovery, "no-discovery", cfg.DisableDiscovery, "disable mDNS hub discovery")
	flag.StringVar(&cfg.Passphrase, "pass", cfg.Passphrase, "privacy passphrase")
	flag.StringVar(&cfg.MfgCode, "mfg", cfg.MfgCode, "manufacturer code (hex)")
	flag.BoolVar(&cfg.MeshMode, "mesh", cfg.MeshMode, "relay packets for other nodes")
	flag.IntVar(&cfg.DebugMode, "debug", cfg.DebugMode, "debug mode 0, 1 or 2")
	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics listen address (empty to disable)")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "json or console")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	flag.Parse()

	if err := config.Validate(&cfg); err != nil {
		fmt.Fprintln(os.Stderr, "invalid config:", err)
		os.Exit(1)
	}
	logger, err := logging.New(logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel, Output: os.Stderr, Component: "node"})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		cancel()
	}()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, logger)
	}

	c, err := client.New(ctx, client.Config{Node: cfg, Logger: logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start node")
	}
	defer c.Close()

	go readInput(c, logger)

	for {
		select {
		case <-c.Done():
			return
		case m, ok := <-c.Messages():
			if !ok {
				return
			}
			printMessage(m)
		}
	}
}

func serveMetrics(addr string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info().Str("addr", addr).Msg("metrics server listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("metrics server failed")
	}
}

func readInput(c *client.Client, logger zerolog.Logger) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if err := c.Send(sc.Text()); err != nil {
			logger.Warn().Err(err).Msg("input dropped")
		}
	}
}

func printMessage(m client.Message) {
	switch m.Color {
	case engine.ColorLocal:
		fmt.Printf("> %s\n", m.Text)
	case engine.ColorSystem:
		fmt.Println(m.Text)
	default:
		// color is 255+rssi for packets off the air
		fmt.Printf("(%d) %s\n", int(m.Color)-255, m.Text)
	}
}
