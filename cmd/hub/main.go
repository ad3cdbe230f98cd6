// hub runs the simulated broadcast medium that nodes attach to over QUIC.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SWAI-Ltd/btbmesh/internal/discovery"
	"github.com/SWAI-Ltd/btbmesh/internal/logging"
	"github.com/SWAI-Ltd/btbmesh/internal/medium"
	"github.com/SWAI-Ltd/btbmesh/internal/transport"
)

func main() {
	addr := flag.String("addr", ":6121", "listen address")
	name := flag.String("name", "btbmesh-hub", "mDNS instance name")
	noAnnounce := flag.Bool("no-announce", false, "do not publish the hub over mDNS")
	repeat := flag.Duration("repeat", 500*time.Millisecond, "re-broadcast interval for standing advertisements (0 to disable)")
	rssi := flag.Int("rssi", int(transport.DefaultRSSI), "signal strength reported for every link")
	metricsAddr := flag.String("metrics", "", "Prometheus metrics listen address (empty to disable)")
	logFormat := flag.String("log-format", "console", "json or console")
	logLevel := flag.String("log-level", "info", "debug, info, warn or error")
	flag.Parse()

	logger, err := logging.New(logging.Config{Format: *logFormat, Level: *logLevel, Output: os.Stderr, Component: "hub"})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *rssi < -128 || *rssi > 0 {
		logger.Fatal().Int("rssi", *rssi).Msg("rssi must be between -128 and 0")
	}
	level := int8(*rssi)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		cancel()
	}()

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	hub, err := medium.RunHub(ctx, medium.HubConfig{
		Addr:           *addr,
		RSSI:           func(from, to string) int8 { return level },
		RepeatInterval: *repeat,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start hub")
	}

	if !*noAnnounce {
		_, port, err := discovery.ParseAddr(hub.Addr())
		if err != nil {
			port = discovery.DefaultPort
		}
		ann, err := discovery.Announce(*name, port)
		if err != nil {
			logger.Warn().Err(err).Msg("mDNS announce failed, nodes need -hub")
		} else {
			defer ann.Close()
			logger.Info().Str("service", discovery.ServiceType).Int("port", port).Msg("hub announced")
		}
	}

	logger.Info().Str("addr", hub.Addr()).Dur("repeat", *repeat).Msg("hub ready")
	<-ctx.Done()
	logger.Info().Msg("hub shutting down")
}
