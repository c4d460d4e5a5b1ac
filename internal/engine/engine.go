package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/visorlabs/headsetd/internal/sim"
	"github.com/visorlabs/headsetd/internal/telemetry"
)

// minVoltage is the rail level below which a low-voltage fault is
// recorded each tick.
const minVoltage = 3.0

// ErrPowerSaveDisabled is returned by Sleep when power saving is not
// enabled in the configuration.
var ErrPowerSaveDisabled = errors.New("power save is disabled")

// Config holds the engine's immutable scheduling parameters. Rates are
// in Hz against the nominal 1 ms tick; a zero rate disables the duty.
// Derived tick intervals are computed once at construction, never
// recomputed mid-run — a rate change means building a new engine.
type Config struct {
	SensorHz        int
	TelemetryHz     int
	WatchdogEnabled bool
	WatchdogTimeout uint64 // ticks (≈ ms)
	PowerSave       bool
	SleepLevel      int // 0-3, deeper levels lengthen loop wakeups while asleep

	// EscalationThreshold is the error count above which the engine
	// enters the Error state.
	EscalationThreshold int

	// TickPeriod is the wall-clock pacing of Run's loop. Defaults to
	// 1 ms. Tests stepping Tick directly ignore it.
	TickPeriod time.Duration

	// MaxTicks stops Run after this many ticks. 0 means unbounded.
	MaxTicks uint64

	// PublishTimeout bounds each publish call.
	PublishTimeout time.Duration

	// QueueDepth sizes the dispatch queue between the tick loop and the
	// publish worker. 0 publishes inline from the tick loop, coupling
	// publish latency to the tick; use a queue whenever the transport
	// can block.
	QueueDepth int
}

// intervals are the per-duty firing periods in ticks, derived once from
// Config. The watchdog fires at half its timeout so at least one feed
// lands in every timeout window.
type intervals struct {
	sample    uint64
	telemetry uint64
	watchdog  uint64
}

func (c Config) intervals() intervals {
	iv := intervals{}
	if c.SensorHz > 0 {
		iv.sample = max(1, uint64(1000/c.SensorHz))
	}
	if c.TelemetryHz > 0 {
		iv.telemetry = max(1, uint64(1000/c.TelemetryHz))
	}
	if c.WatchdogEnabled {
		iv.watchdog = max(1, c.WatchdogTimeout/2)
	}
	return iv
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithInstanceID sets the persistent agent identity reported by Status.
func WithInstanceID(id string) Option {
	return func(e *Engine) { e.instanceID = id }
}

// WithObserver registers a local snapshot observer called inline for
// every telemetry emission (journal append, live stream fan-out).
// Observers must be fast and must not block; slow consumers belong
// behind the Publisher boundary instead.
func WithObserver(fn func(*telemetry.Snapshot)) Option {
	return func(e *Engine) { e.observers = append(e.observers, fn) }
}

// WithVoltageSource overrides the rail voltage probe. Tests use this to
// exercise the low-voltage fault path.
func WithVoltageSource(fn func(tick uint64) float64) Option {
	return func(e *Engine) { e.voltage = fn }
}

// WithResetHook registers a callback invoked with the new reset count
// after every system reset, for persisting it.
func WithResetHook(fn func(resets uint32)) Option {
	return func(e *Engine) { e.onReset = fn }
}

// WithRestoredResets seeds the reset counter from persisted state.
func WithRestoredResets(n uint32) Option {
	return func(e *Engine) { e.faults.RestoreResets(n) }
}

// Engine drives the tick loop. All mutable scheduling state — clock,
// state machine, counters, last-fired ticks — lives behind one mutex:
// the single writer is the tick path, readers are status queries, and
// no lock-free access is assumed safe.
type Engine struct {
	cfg        Config
	iv         intervals
	logger     *slog.Logger
	instanceID string

	pub       Publisher
	synth     *sim.Synthesizer
	observers []func(*telemetry.Snapshot)
	voltage   func(tick uint64) float64
	onReset   func(resets uint32)

	mu       sync.Mutex
	clock    Clock
	machine  *Machine
	faults   *Tracker
	watchdog *Supervisor

	// Last-fired ticks, one per periodic duty. On fire the duty records
	// the current tick (not lastFired+interval): catch-up drift is
	// identical across duties, trading phase-locking for determinism.
	lastSample    uint64
	lastTelemetry uint64
	lastFeed      uint64

	latest      *telemetry.Snapshot
	frame       uint32
	initialized bool
	starveSeen  bool // latches starvation so each episode is counted once

	samples         uint64
	telemetryEvents uint64
	feeds           uint64
	published       uint64
	publishFailures uint64

	dispatch chan *telemetry.Snapshot
	workerWG sync.WaitGroup
}

// New creates an engine around a publisher and a sensor synthesizer.
func New(cfg Config, pub Publisher, synth *sim.Synthesizer, opts ...Option) *Engine {
	if cfg.TickPeriod <= 0 {
		cfg.TickPeriod = time.Millisecond
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Second
	}
	if cfg.EscalationThreshold <= 0 {
		cfg.EscalationThreshold = 5
	}

	e := &Engine{
		cfg:      cfg,
		iv:       cfg.intervals(),
		logger:   slog.Default(),
		pub:      pub,
		synth:    synth,
		machine:  NewMachine(),
		faults:   NewTracker(cfg.EscalationThreshold),
		watchdog: NewSupervisor(cfg.WatchdogTimeout),
		voltage:  func(uint64) float64 { return 3.3 },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run drives the tick loop until ctx is cancelled, MaxTicks elapse, or
// the engine reaches Shutdown. The current tick's duties always finish
// before the loop exits; nothing is interrupted mid-duty. Returns nil
// on clean shutdown.
func (e *Engine) Run(ctx context.Context) error {
	e.initialize()
	e.startWorker()
	defer e.stopWorker()

	ticker := time.NewTicker(e.cfg.TickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return nil
		case <-ticker.C:
			e.Tick()

			e.mu.Lock()
			tick := e.clock.Now()
			state := e.machine.Current()
			e.mu.Unlock()

			if state == StateShutdown {
				return nil
			}
			if e.cfg.MaxTicks > 0 && tick >= e.cfg.MaxTicks {
				e.logger.Info("run duration reached", "ticks", tick)
				e.shutdown()
				return nil
			}

			// Deeper sleep levels stretch the interval between loop
			// wakeups while the system is asleep. Logical ticks still
			// advance one per iteration.
			if state == StateSleep && e.cfg.SleepLevel > 0 {
				time.Sleep(time.Duration(e.cfg.SleepLevel) * e.cfg.TickPeriod)
			}
		}
	}
}

// initialize runs the sensor self-test and calibration. On success the
// engine is eligible for the Init → Ready promotion, which happens on
// the first tick where the publisher also reports ready.
func (e *Engine) initialize() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.synth.SelfTest(); err != nil {
		e.logger.Error("sensor self-test failed", "error", err)
		e.recordFaultLocked(FaultSensor)
		return
	}
	e.synth.Calibrate()
	e.initialized = true
	e.logger.Info("sensors initialized",
		"sensor_hz", e.cfg.SensorHz,
		"telemetry_hz", e.cfg.TelemetryHz,
		"watchdog_timeout_ticks", e.cfg.WatchdogTimeout,
	)
}

// Tick processes one tick: advance the clock, run the due-checks, fire
// duties. Each duty fires at most once per tick; the due-checks are
// independent and idempotent for a given tick value.
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	tick := e.clock.Advance()
	state := e.machine.Current()

	if state == StateShutdown {
		return
	}

	// Startup promotion: sensors tested, publisher ready.
	if state == StateInit && e.initialized && e.pub.Ready() {
		if err := e.machine.Transition(StateReady); err == nil {
			state = StateReady
			e.logger.Info("system ready", "tick", tick)
		}
	}

	// Escalation is checked at the top of every tick, covering faults
	// recorded off the tick path (async publish failures).
	if e.faults.ShouldEscalate() && state != StateError {
		e.escalateLocked(tick)
		state = e.machine.Current()
	}

	if v := e.voltage(tick); v < minVoltage {
		e.recordFaultLocked(FaultLowVoltage)
	}

	asleep := state == StateSleep

	// Sampling duty.
	if !asleep && e.iv.sample > 0 && tick-e.lastSample >= e.iv.sample {
		snap := e.synth.Synthesize(float64(tick)/1000, e.frame)
		e.frame++
		e.latest = &snap
		e.lastSample = tick
		e.samples++

		// Tracking begins implicitly with the first successful sample.
		if e.machine.Current() == StateReady {
			if err := e.machine.Transition(StateTracking); err == nil {
				e.logger.Info("tracking started", "tick", tick, "frame", snap.FrameID)
			}
		}
	}

	// Telemetry duty: reuses the latest snapshot, never synthesizes its
	// own, so telemetry events cannot outnumber sampling events.
	if !asleep && e.iv.telemetry > 0 && e.latest != nil && tick-e.lastTelemetry >= e.iv.telemetry {
		e.lastTelemetry = tick
		e.telemetryEvents++
		snap := e.latest
		for _, obs := range e.observers {
			obs(snap)
		}
		e.dispatchLocked(snap)
	}

	// Watchdog duty: fed at half the timeout, and regardless of publish
	// success, so a struggling broker can never starve the watchdog.
	if e.iv.watchdog > 0 && tick-e.lastFeed >= e.iv.watchdog {
		e.watchdog.Feed(tick)
		e.lastFeed = tick
		e.feeds++
		e.starveSeen = false
	}

	// Starvation check. Latched so one episode records one fault.
	if e.iv.watchdog > 0 && !e.starveSeen && e.watchdog.Starved(tick) {
		e.starveSeen = true
		e.logger.Warn("watchdog starved",
			"tick", tick,
			"last_fed", e.watchdog.LastFed(),
			"timeout_ticks", e.cfg.WatchdogTimeout,
		)
		e.recordFaultLocked(FaultWatchdogStarved)
	}
}

// dispatchLocked hands a snapshot to the publish path. With a queue the
// tick never blocks: a full queue is recorded as a publish failure and
// the snapshot is dropped. Without a queue the publish happens inline.
func (e *Engine) dispatchLocked(s *telemetry.Snapshot) {
	if e.dispatch != nil {
		select {
		case e.dispatch <- s:
		default:
			e.logger.Warn("publish queue full, snapshot dropped", "frame", s.FrameID)
			e.publishFailures++
			e.recordFaultLocked(FaultPublish)
		}
		return
	}

	if err := e.doPublish(s); err != nil {
		e.logger.Warn("publish failed", "frame", s.FrameID, "error", err)
		e.publishFailures++
		e.recordFaultLocked(FaultPublish)
	} else {
		e.published++
	}
}

// doPublish performs one publish with the configured timeout. It takes
// no engine lock; callers account for the outcome.
func (e *Engine) doPublish(s *telemetry.Snapshot) error {
	if !e.pub.Ready() {
		return errors.New("publisher not ready")
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.PublishTimeout)
	defer cancel()
	return e.pub.Publish(ctx, s)
}

// startWorker launches the single publish worker when a queue is
// configured. One worker means snapshot N+1 is never sent before
// snapshot N.
func (e *Engine) startWorker() {
	if e.cfg.QueueDepth <= 0 {
		return
	}
	e.dispatch = make(chan *telemetry.Snapshot, e.cfg.QueueDepth)
	e.workerWG.Add(1)
	go func() {
		defer e.workerWG.Done()
		for snap := range e.dispatch {
			err := e.doPublish(snap)

			e.mu.Lock()
			if err != nil {
				e.logger.Warn("publish failed", "frame", snap.FrameID, "error", err)
				e.publishFailures++
				e.recordFaultLocked(FaultPublish)
			} else {
				e.published++
			}
			e.mu.Unlock()
		}
	}()
}

// stopWorker drains the dispatch queue and waits for the worker, so an
// in-flight publish finishes before Run returns.
func (e *Engine) stopWorker() {
	e.mu.Lock()
	ch := e.dispatch
	e.dispatch = nil
	e.mu.Unlock()

	if ch != nil {
		close(ch)
		e.workerWG.Wait()
	}
}

// recordFaultLocked counts a fault and escalates when the threshold is
// exceeded. Callers hold e.mu.
func (e *Engine) recordFaultLocked(f Fault) {
	count := e.faults.Record(f)
	e.logger.Debug("fault recorded", "fault", f.String(), "error_count", count)

	if e.faults.ShouldEscalate() && e.machine.Current() != StateError {
		e.escalateLocked(e.clock.Now())
	}
}

func (e *Engine) escalateLocked(tick uint64) {
	if err := e.machine.Transition(StateError); err != nil {
		e.logger.Warn("escalation transition rejected", "error", err)
		return
	}
	e.logger.Error("error threshold exceeded, entering error state",
		"tick", tick,
		"error_count", e.faults.Errors(),
		"threshold", e.cfg.EscalationThreshold,
	)
}

// Reset performs the full system reset: zero the error count, increment
// the reset counter, rewind the state machine to Init. It is the only
// path out of the Error state. The clock keeps running; uptime is
// process-scoped, not reset-scoped.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.faults.Reset()
	e.machine.Reset()
	e.starveSeen = false
	e.logger.Info("system reset", "reset_count", e.faults.Resets())

	if e.onReset != nil {
		e.onReset(e.faults.Resets())
	}
}

// Sleep enters the power-save state. Sampling and telemetry pause;
// the watchdog keeps being fed so liveness is preserved.
func (e *Engine) Sleep() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.cfg.PowerSave {
		return ErrPowerSaveDisabled
	}
	if err := e.machine.Transition(StateSleep); err != nil {
		e.logger.Warn("sleep rejected", "state", e.machine.Current().String(), "error", err)
		return err
	}
	e.logger.Info("entering sleep", "level", e.cfg.SleepLevel)
	return nil
}

// Wake leaves the power-save state, returning to the state that was
// active when sleep began.
func (e *Engine) Wake() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.machine.Wake(); err != nil {
		e.logger.Warn("wake rejected", "state", e.machine.Current().String(), "error", err)
		return err
	}
	e.logger.Info("woke from sleep", "state", e.machine.Current().String())
	return nil
}

// shutdown moves to the terminal Shutdown state.
func (e *Engine) shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.machine.Transition(StateShutdown); err != nil {
		return
	}
	e.logger.Info("shutdown",
		"ticks", e.clock.Now(),
		"samples", e.samples,
		"telemetry_events", e.telemetryEvents,
		"errors", e.faults.Errors(),
	)
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.machine.Current()
}

// Status returns a point-in-time view of the engine. Safe to call
// concurrently with tick processing.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Status{
		InstanceID:       e.instanceID,
		State:            e.machine.Current().String(),
		UptimeTicks:      e.clock.Now(),
		FrameCount:       e.frame,
		ErrorCount:       e.faults.Errors(),
		ResetCount:       e.faults.Resets(),
		SampleEvents:     e.samples,
		TelemetryEvents:  e.telemetryEvents,
		WatchdogFeeds:    e.feeds,
		LastWatchdogFeed: e.watchdog.LastFed(),
		Published:        e.published,
		PublishFailures:  e.publishFailures,
		PublisherReady:   e.pub.Ready(),
	}
}
