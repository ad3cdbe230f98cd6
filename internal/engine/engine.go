// Package engine runs a relay node: it ingests advertisements heard on the
// medium, shows the ones meant for this node, and keeps re-advertising its own
// and its neighbours' packets so they travel further than one hop.
//
// An Engine runs three loops under one errgroup. The scheduler picks the next
// packet to advertise and holds it on air for its delay. The ingest loop
// decodes, deduplicates and pools inbound packets. The input loop turns text
// from the host into packets or commands.
package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/SWAI-Ltd/btbmesh/internal/clock"
	"github.com/SWAI-Ltd/btbmesh/internal/dedup"
	"github.com/SWAI-Ltd/btbmesh/internal/logging"
	"github.com/SWAI-Ltd/btbmesh/internal/metrics"
	"github.com/SWAI-Ltd/btbmesh/internal/proto"
	"github.com/SWAI-Ltd/btbmesh/internal/store"
	"github.com/SWAI-Ltd/btbmesh/internal/transport"
)

// Defaults for zero Config fields
const (
	DefaultTickInterval = 200 * time.Millisecond
	DefaultLocalDelay   = 3 * time.Second
	DefaultRelayDelay   = time.Second
	DefaultBackoffDelay = 3 * time.Second
	DefaultQueueDepth   = 256
)

// Display receives every message shown to the user. color is a hint derived
// from signal strength; locally authored messages use ColorLocal.
type Display interface {
	Show(text string, color uint8)
}

// DisplayFunc adapts a function to Display.
type DisplayFunc func(text string, color uint8)

func (f DisplayFunc) Show(text string, color uint8) { f(text, color) }

// Display colors for messages that did not come off the air.
const (
	ColorLocal  uint8 = 0xFF
	ColorSystem uint8 = 0x00
)

// State is what the scheduler is doing right now.
type State int32

const (
	StateIdle State = iota
	StateSelecting
	StateTransmitting
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSelecting:
		return "selecting"
	case StateTransmitting:
		return "transmitting"
	case StateBackoff:
		return "backoff"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Config configures an Engine. Transport is required.
type Config struct {
	Transport transport.Transport
	Display   Display
	Clock     clock.Clock
	Settings  *Settings

	TickInterval time.Duration
	LocalDelay   time.Duration
	RelayDelay   time.Duration
	BackoffDelay time.Duration
	Jitter       time.Duration

	QueueDepth    int
	MaxCandidates int
	MaxDraws      int
	Rand          *rand.Rand

	Logger zerolog.Logger
}

// Engine is a single relay node.
type Engine struct {
	cfg      Config
	settings *Settings
	clock    clock.Clock
	display  Display
	store    *store.Store
	seen     *dedup.Table
	logger   zerolog.Logger

	text chan string
	raw  chan []byte

	state       atomic.Int32
	advertising bool // scheduler goroutine only
	jitter      *rand.Rand

	quit     chan struct{}
	quitOnce sync.Once
}

// New creates an Engine. Zero Config fields take their defaults.
func New(cfg Config) (*Engine, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("engine: transport is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.Settings == nil {
		cfg.Settings = NewSettings(0, proto.DefaultManufacturerCode, true, logging.DebugSilent)
	}
	if cfg.Display == nil {
		cfg.Display = DisplayFunc(func(string, uint8) {})
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.LocalDelay <= 0 {
		cfg.LocalDelay = DefaultLocalDelay
	}
	if cfg.RelayDelay <= 0 {
		cfg.RelayDelay = DefaultRelayDelay
	}
	if cfg.BackoffDelay <= 0 {
		cfg.BackoffDelay = DefaultBackoffDelay
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultQueueDepth
	}

	e := &Engine{
		cfg:      cfg,
		settings: cfg.Settings,
		clock:    cfg.Clock,
		display:  cfg.Display,
		seen:     dedup.New(),
		logger:   cfg.Logger,
		text:     make(chan string, cfg.QueueDepth),
		raw:      make(chan []byte, cfg.QueueDepth),
		jitter:   rand.New(rand.NewSource(time.Now().UnixNano())),
		quit:     make(chan struct{}),
	}
	e.store = store.New(store.Config{
		MaxCandidates: cfg.MaxCandidates,
		MaxDraws:      cfg.MaxDraws,
		Rand:          cfg.Rand,
		Logger:        cfg.Logger,
	})
	return e, nil
}

// Run starts the loops and blocks until ctx is cancelled or /quit is entered.
func (e *Engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-e.quit:
			cancel()
		case <-ctx.Done():
		}
		return nil
	})
	g.Go(func() error { return e.runScheduler(ctx) })
	g.Go(func() error { return e.runIngest(ctx) })
	g.Go(func() error { return e.runInput(ctx) })

	e.status(e.settings.String())
	err := g.Wait()

	stopCtx, stop := context.WithTimeout(context.Background(), time.Second)
	defer stop()
	e.stopAdvertising(stopCtx)
	e.setState(StateIdle)
	e.log().Info().Msg("engine stopped")
	return err
}

// Submit queues a line of host input. It never blocks; false means the input
// queue was full and the line was dropped.
func (e *Engine) Submit(text string) bool {
	select {
	case e.text <- text:
		return true
	default:
		metrics.IngestDroppedTotal.WithLabelValues(metrics.ReasonOverflow).Inc()
		e.log().Warn().Str("text", text).Msg("input queue full, dropping line")
		return false
	}
}

// Deliver queues a raw advertisement heard on the medium. It never blocks;
// false means the ingest queue was full and the advertisement was dropped.
func (e *Engine) Deliver(raw []byte) bool {
	select {
	case e.raw <- raw:
		return true
	default:
		metrics.IngestDroppedTotal.WithLabelValues(metrics.ReasonOverflow).Inc()
		e.log().Debug().Msg("ingest queue full, dropping advertisement")
		return false
	}
}

// Settings returns the live settings handle.
func (e *Engine) Settings() *Settings { return e.settings }

// State reports what the scheduler is doing.
func (e *Engine) State() State { return State(e.state.Load()) }

// Done is closed once /quit has been entered.
func (e *Engine) Done() <-chan struct{} { return e.quit }

// Stats is a snapshot of the outbound queues.
type Stats struct {
	State       State
	LocalQueued int
	Candidates  int
	Weight      uint64
}

// Stats returns a snapshot of the outbound queues.
func (e *Engine) Stats() Stats {
	return Stats{
		State:       e.State(),
		LocalQueued: e.store.LocalLen(),
		Candidates:  e.store.PoolLen(),
		Weight:      e.store.Total(),
	}
}

func (e *Engine) setState(s State) { e.state.Store(int32(s)) }

// log returns the engine logger at the level selected by the current debug
// mode.
func (e *Engine) log() *zerolog.Logger {
	l := e.logger.Level(logging.LevelForDebugMode(e.settings.DebugMode()))
	return &l
}

func (e *Engine) show(text string, color uint8) {
	e.display.Show(text, color)
}

func (e *Engine) requestQuit() {
	e.quitOnce.Do(func() { close(e.quit) })
}

// safely runs one loop iteration and turns a panic into a counted failure.
func (e *Engine) safely(worker string, fn func()) (failed bool) {
	defer func() {
		if r := recover(); r != nil {
			metrics.LoopFailuresTotal.WithLabelValues(worker).Inc()
			e.log().Error().Str("worker", worker).Interface("panic", r).Msg("loop iteration failed")
			failed = true
		}
	}()
	fn()
	return false
}
