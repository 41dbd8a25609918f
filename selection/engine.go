// Package selection runs the animated random pick over a candidate list.
//
// An Engine is a state machine owned by a single event queue. It never
// mutates itself from its own goroutines: the spin task only sleeps and
// hands work back through the owner's dispatch function, and every run
// carries a token so work scheduled for an earlier run is dropped.
package selection

import (
	"context"
	"math/rand"
	"time"
)

// Phase of a selection run
type Phase int

const (
	Idle Phase = iota
	Running
	Settled
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Settled:
		return "settled"
	default:
		return "unknown"
	}
}

// MarshalText lets phases appear by name in JSON
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Config tunes the spin animation
type Config struct {
	TickInterval time.Duration // time between highlights
	TickCount    int           // highlights before the final draw
	WinnerDelay  time.Duration // pause between settling and WinnerReady
}

// DefaultConfig is 20 ticks of 200ms followed by a 300ms reveal delay
func DefaultConfig() Config {
	return Config{
		TickInterval: 200 * time.Millisecond,
		TickCount:    20,
		WinnerDelay:  300 * time.Millisecond,
	}
}

// Run is the transient state of one pick
type Run struct {
	Token      uint64   `json:"token"`
	Candidates []string `json:"candidates"`
	Highlight  string   `json:"highlight,omitempty"`
	Winner     string   `json:"winner,omitempty"`
	Phase      Phase    `json:"phase"`
	Ticks      int      `json:"ticks"`
}

// Listener observes a run. Calls arrive on the owner's queue.
type Listener interface {
	Highlight(token uint64, id string)
	Settled(token uint64, winner string)
	WinnerReady(token uint64, winner string)
}

// Dispatch queues f on the owner's event queue. It reports false once the
// queue no longer accepts work.
type Dispatch func(f func()) bool

// Option configures an Engine
type Option func(*Engine)

// WithRand replaces the uniform index source. intn must return a value in [0, n).
func WithRand(intn func(n int) int) Option {
	return func(e *Engine) {
		e.intn = intn
	}
}

// Engine drives selection runs. Start, Reset, Snapshot and Phase must be
// called from the owner's queue.
type Engine struct {
	cfg      Config
	dispatch Dispatch
	listener Listener
	intn     func(n int) int

	run    Run
	token  uint64
	cancel context.CancelFunc
}

// New creates an idle Engine
func New(cfg Config, dispatch Dispatch, listener Listener, opts ...Option) *Engine {
	if listener == nil {
		listener = nopListener{}
	}
	if cfg.TickCount < 1 {
		cfg.TickCount = 1
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}
	e := &Engine{
		cfg:      cfg,
		dispatch: dispatch,
		listener: listener,
		intn:     rand.Intn,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start begins a run over candidates. It is a no-op returning false when
// candidates is empty or a run is already spinning.
func (e *Engine) Start(candidates []string) bool {
	if len(candidates) == 0 || e.run.Phase == Running {
		return false
	}
	e.disarm()
	e.token++
	e.run = Run{
		Token:      e.token,
		Candidates: append([]string(nil), candidates...),
		Phase:      Running,
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	go e.spin(ctx, e.token)
	return true
}

// Reset cancels any pending tick or reveal and returns to Idle
func (e *Engine) Reset() {
	e.disarm()
	e.token++
	e.run = Run{Token: e.token, Phase: Idle}
}

// Phase returns the current phase
func (e *Engine) Phase() Phase {
	return e.run.Phase
}

// Snapshot returns a copy of the current run
func (e *Engine) Snapshot() Run {
	r := e.run
	r.Candidates = append([]string(nil), e.run.Candidates...)
	return r
}

func (e *Engine) disarm() {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

func (e *Engine) draw() string {
	return e.run.Candidates[e.intn(len(e.run.Candidates))]
}

// spin is the timer side of a run. It owns no state.
func (e *Engine) spin(ctx context.Context, token uint64) {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for i := 0; i < e.cfg.TickCount; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !e.dispatch(func() { e.tick(token) }) {
			return
		}
	}

	if e.cfg.WinnerDelay > 0 {
		timer := time.NewTimer(e.cfg.WinnerDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
	e.dispatch(func() { e.reveal(token) })
}

func (e *Engine) tick(token uint64) {
	if token != e.token || e.run.Phase != Running {
		return
	}
	e.run.Ticks++
	e.run.Highlight = e.draw()
	e.listener.Highlight(token, e.run.Highlight)

	if e.run.Ticks < e.cfg.TickCount {
		return
	}
	winner := e.draw()
	e.run.Highlight = winner
	e.run.Winner = winner
	e.run.Phase = Settled
	e.listener.Settled(token, winner)
}

func (e *Engine) reveal(token uint64) {
	if token != e.token || e.run.Phase != Settled || e.run.Winner == "" {
		return
	}
	e.disarm()
	e.listener.WinnerReady(token, e.run.Winner)
}

type nopListener struct{}

func (nopListener) Highlight(uint64, string)   {}
func (nopListener) Settled(uint64, string)     {}
func (nopListener) WinnerReady(uint64, string) {}
