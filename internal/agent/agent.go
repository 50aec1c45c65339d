package agent

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/vpsmonitor/vps-agent/internal/config"
	"github.com/vpsmonitor/vps-agent/internal/errors"
	"github.com/vpsmonitor/vps-agent/internal/logger"
	"github.com/vpsmonitor/vps-agent/internal/metrics"
	"github.com/vpsmonitor/vps-agent/internal/telemetry"
)

// UnexpectedBackoff is the pause after a cycle that failed in an unforeseen
// way, regardless of the configured interval.
const UnexpectedBackoff = 30 * time.Second

type Collector interface {
	Collect(ctx context.Context) (*metrics.Snapshot, error)
}

type Sender interface {
	Send(ctx context.Context, snap *metrics.Snapshot) error
}

type Registrar interface {
	Register(ctx context.Context) error
}

// Sleeper blocks for d or until ctx is done, whichever comes first.
type Sleeper func(ctx context.Context, d time.Duration)

// Agent registers once and then runs collect/send cycles until its context
// is cancelled.
type Agent struct {
	serverName string
	interval   time.Duration
	backoff    time.Duration

	collector Collector
	sender    Sender
	registrar Registrar

	recorder telemetry.Recorder
	log      logger.Logger
	sleep    Sleeper
	now      func() time.Time

	state atomic.Int32
}

type Option func(*Agent)

func WithSleeper(sleep Sleeper) Option {
	return func(a *Agent) {
		a.sleep = sleep
	}
}

func WithRecorder(recorder telemetry.Recorder) Option {
	return func(a *Agent) {
		a.recorder = recorder
	}
}

// WithBackoff overrides UnexpectedBackoff.
func WithBackoff(d time.Duration) Option {
	return func(a *Agent) {
		if d > 0 {
			a.backoff = d
		}
	}
}

func WithLogger(log logger.Logger) Option {
	return func(a *Agent) {
		a.log = log
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Agent) {
		a.now = now
	}
}

func New(cfg config.Config, collector Collector, sender Sender, registrar Registrar, opts ...Option) *Agent {
	a := &Agent{
		serverName: cfg.ServerName,
		interval:   max(cfg.MonitorInterval, config.MinMonitorInterval),
		backoff:    UnexpectedBackoff,
		collector:  collector,
		sender:     sender,
		registrar:  registrar,
		recorder:   telemetry.Noop(),
		log:        logger.Default(),
		sleep:      sleepWithContext,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}

	return a
}

func (a *Agent) State() State {
	return State(a.state.Load())
}

func (a *Agent) setState(s State) {
	a.state.Store(int32(s))
}

// Run blocks until ctx is cancelled and then returns nil. Cycle failures are
// logged and never end the run.
func (a *Agent) Run(ctx context.Context) error {
	a.setState(StateStarting)
	a.log.Info().
		Str("server", a.serverName).
		Dur("interval", a.interval).
		Msg("Starting monitoring agent")

	a.register(ctx)

	a.setState(StateMonitoring)
	for ctx.Err() == nil {
		outcome := a.RunCycle(ctx)
		a.sleep(ctx, a.delayAfter(outcome))
	}

	a.setState(StateStopped)
	a.log.Info().Str("server", a.serverName).Msg("Monitoring agent stopped")

	return nil
}

func (a *Agent) register(ctx context.Context) {
	err := a.registrar.Register(ctx)
	a.recorder.ObserveRegistration(err == nil)
	if err != nil {
		a.logWarn(err, "Registration failed, continuing with monitoring")
		return
	}

	a.log.Info().Str("server", a.serverName).Msg("Server registered")
}

// RunCycle performs one collect/send attempt. Cancelling ctx does not abort a
// cycle in progress.
func (a *Agent) RunCycle(ctx context.Context) (outcome Outcome) {
	ctx = context.WithoutCancel(ctx)
	start := a.now()

	defer func() {
		if r := recover(); r != nil {
			err := errors.New().WithData(errors.ErrUnexpected, fmt.Sprintf("panic: %v", r))
			a.log.ErrorWithCode(err).Msg("Monitoring cycle panicked")
			outcome = OutcomeUnexpected
		}
		a.recorder.ObserveCycle(outcome.String(), a.now().Sub(start))
	}()

	snap, err := a.collector.Collect(ctx)
	if err != nil {
		a.logError(err, "Failed to collect metrics")
		return OutcomeCollectionFailed
	}
	if snap == nil {
		a.logError(errors.New().WithData(errors.ErrUnexpected, "collector returned no snapshot"), "Failed to collect metrics")
		return OutcomeUnexpected
	}

	err = a.sender.Send(ctx, snap)
	switch {
	case err == nil:
		a.recorder.MarkDelivered(a.now())
		a.log.Info().
			Float64("cpu_percent", snap.CPU.UtilizationPercent).
			Float64("memory_percent", snap.Memory.UtilizationPercent).
			Float64("disk_percent", snap.Disk.UtilizationPercent).
			Msg("Metrics sent")
		return OutcomeDelivered
	case errors.HasCode(err, errors.ErrDeliveryFailed):
		a.logWarn(err, "Collector did not accept metrics")
		return OutcomeDeliveryFailed
	default:
		a.logError(err, "Unexpected error in monitoring cycle")
		return OutcomeUnexpected
	}
}

func (a *Agent) delayAfter(outcome Outcome) time.Duration {
	if outcome == OutcomeUnexpected {
		return a.backoff
	}

	return a.interval
}

func (a *Agent) logError(err error, msg string) {
	var appErr errors.Error
	if errors.As(err, &appErr) {
		a.log.ErrorWithCode(appErr).Msg(msg)
		return
	}
	a.log.Error().Err(err).Msg(msg)
}

func (a *Agent) logWarn(err error, msg string) {
	var appErr errors.Error
	if errors.As(err, &appErr) {
		a.log.WarnWithCode(appErr).Msg(msg)
		return
	}
	a.log.Warn().Err(err).Msg(msg)
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
