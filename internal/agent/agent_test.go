package agent_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vpsmonitor/vps-agent/internal/agent"
	"github.com/vpsmonitor/vps-agent/internal/config"
	"github.com/vpsmonitor/vps-agent/internal/errors"
	"github.com/vpsmonitor/vps-agent/internal/logger"
	"github.com/vpsmonitor/vps-agent/internal/metrics"
	"github.com/vpsmonitor/vps-agent/internal/metrics/metricstest"
	"github.com/vpsmonitor/vps-agent/internal/registration"
	"github.com/vpsmonitor/vps-agent/internal/transport"
)

const testInterval = 60 * time.Second

func testConfig() config.Config {
	return config.Config{ServerName: "vps-1", MonitorInterval: testInterval}
}

type fakeCollector struct {
	calls int
	err   error
	panic any
	hook  func()
}

func (c *fakeCollector) Collect(context.Context) (*metrics.Snapshot, error) {
	c.calls++
	if c.hook != nil {
		c.hook()
	}
	if c.panic != nil {
		panic(c.panic)
	}
	if c.err != nil {
		return nil, c.err
	}

	return &metrics.Snapshot{ServerName: "vps-1", Status: metrics.StatusOnline}, nil
}

type fakeSender struct {
	calls   int
	err     error
	ctxErrs []error
}

func (s *fakeSender) Send(ctx context.Context, _ *metrics.Snapshot) error {
	s.calls++
	s.ctxErrs = append(s.ctxErrs, ctx.Err())

	return s.err
}

type fakeRegistrar struct {
	calls int
	err   error
}

func (r *fakeRegistrar) Register(context.Context) error {
	r.calls++
	return r.err
}

type fakeRecorder struct {
	mu            sync.Mutex
	outcomes      []string
	durations     []time.Duration
	registrations []bool
	delivered     int
	deliveredAt   time.Time
}

func (r *fakeRecorder) ObserveCycle(outcome string, took time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
	r.durations = append(r.durations, took)
}

func (r *fakeRecorder) ObserveRegistration(ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registrations = append(r.registrations, ok)
}

func (r *fakeRecorder) MarkDelivered(at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delivered++
	r.deliveredAt = at
}

// stopAfter returns a sleeper that records requested delays and cancels the
// run after n of them.
func stopAfter(n int, cancel context.CancelFunc) (agent.Sleeper, *[]time.Duration) {
	var delays []time.Duration

	return func(_ context.Context, d time.Duration) {
		delays = append(delays, d)
		if len(delays) >= n {
			cancel()
		}
	}, &delays
}

func TestRunRegistersOnceThenMonitors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collector := &fakeCollector{}
	sender := &fakeSender{}
	registrar := &fakeRegistrar{}
	recorder := &fakeRecorder{}
	sleep, delays := stopAfter(3, cancel)

	a := agent.New(testConfig(), collector, sender, registrar,
		agent.WithSleeper(sleep), agent.WithRecorder(recorder))
	assert.Equal(t, agent.StateStarting, a.State())

	require.NoError(t, a.Run(ctx))

	assert.Equal(t, agent.StateStopped, a.State())
	assert.Equal(t, 1, registrar.calls)
	assert.Equal(t, 3, collector.calls)
	assert.Equal(t, 3, sender.calls)
	assert.Equal(t, []time.Duration{testInterval, testInterval, testInterval}, *delays)
	assert.Equal(t, []string{"delivered", "delivered", "delivered"}, recorder.outcomes)
	assert.Equal(t, []bool{true}, recorder.registrations)
	assert.Equal(t, 3, recorder.delivered)
}

func TestRunContinuesAfterRegistrationFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registrar := &fakeRegistrar{err: errors.New().WithData(errors.ErrRegistrationFailed, "status 500")}
	sender := &fakeSender{}
	recorder := &fakeRecorder{}
	sleep, _ := stopAfter(1, cancel)

	var stateDuringCycle agent.State
	collector := &fakeCollector{}

	a := agent.New(testConfig(), collector, sender, registrar,
		agent.WithSleeper(sleep), agent.WithRecorder(recorder))
	collector.hook = func() { stateDuringCycle = a.State() }

	require.NoError(t, a.Run(ctx))

	assert.Equal(t, agent.StateMonitoring, stateDuringCycle)
	assert.Equal(t, 1, registrar.calls)
	assert.Equal(t, 1, sender.calls)
	assert.Equal(t, []bool{false}, recorder.registrations)
}

func TestCollectionFailureSkipsSend(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collector := &fakeCollector{err: errors.New().Wrap(errors.ErrCollectMetrics, stderrors.New("disk gone"))}
	sender := &fakeSender{}
	sleep, delays := stopAfter(2, cancel)

	a := agent.New(testConfig(), collector, sender, &fakeRegistrar{}, agent.WithSleeper(sleep))
	require.NoError(t, a.Run(ctx))

	assert.Equal(t, 2, collector.calls)
	assert.Zero(t, sender.calls)
	assert.Equal(t, []time.Duration{testInterval, testInterval}, *delays)
}

func TestRunCycleOutcomes(t *testing.T) {
	tests := []struct {
		name      string
		collector *fakeCollector
		sendErr   error
		want      agent.Outcome
	}{
		{
			name:      "delivered",
			collector: &fakeCollector{},
			want:      agent.OutcomeDelivered,
		},
		{
			name:      "collector rejected",
			collector: &fakeCollector{},
			sendErr:   errors.New().WithData(errors.ErrDeliveryFailed, transport.DeliveryFailure{StatusCode: 503}),
			want:      agent.OutcomeDeliveryFailed,
		},
		{
			name:      "collection failed",
			collector: &fakeCollector{err: errors.New().New(errors.ErrCollectMetrics)},
			want:      agent.OutcomeCollectionFailed,
		},
		{
			name:      "encode failure",
			collector: &fakeCollector{},
			sendErr:   errors.New().WithData(errors.ErrEncodeSnapshot, "nil snapshot"),
			want:      agent.OutcomeUnexpected,
		},
		{
			name:      "uncoded error",
			collector: &fakeCollector{},
			sendErr:   stderrors.New("boom"),
			want:      agent.OutcomeUnexpected,
		},
		{
			name:      "panic",
			collector: &fakeCollector{panic: "index out of range"},
			want:      agent.OutcomeUnexpected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := &fakeRecorder{}
			a := agent.New(testConfig(), tt.collector, &fakeSender{err: tt.sendErr}, &fakeRegistrar{},
				agent.WithRecorder(recorder))

			assert.Equal(t, tt.want, a.RunCycle(context.Background()))
			assert.Equal(t, []string{tt.want.String()}, recorder.outcomes)
		})
	}
}

func TestUnexpectedOutcomeBacksOff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sender := &fakeSender{err: stderrors.New("boom")}
	sleep, delays := stopAfter(2, cancel)

	a := agent.New(testConfig(), &fakeCollector{}, sender, &fakeRegistrar{}, agent.WithSleeper(sleep))
	require.NoError(t, a.Run(ctx))

	assert.Equal(t, []time.Duration{agent.UnexpectedBackoff, agent.UnexpectedBackoff}, *delays)
}

func TestPanicIsRecoveredAndLoopContinues(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collector := &fakeCollector{panic: "nil map"}
	sender := &fakeSender{}
	sleep, delays := stopAfter(2, cancel)

	a := agent.New(testConfig(), collector, sender, &fakeRegistrar{},
		agent.WithSleeper(sleep), agent.WithBackoff(5*time.Second))
	require.NoError(t, a.Run(ctx))

	assert.Equal(t, 2, collector.calls)
	assert.Zero(t, sender.calls)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, *delays)
}

func TestMixedOutcomeDelays(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errs := []error{
		nil,
		stderrors.New("boom"),
		errors.New().WithData(errors.ErrDeliveryFailed, transport.DeliveryFailure{StatusCode: 500}),
	}
	sender := &sequenceSender{errs: errs}
	sleep, delays := stopAfter(len(errs), cancel)

	a := agent.New(testConfig(), &fakeCollector{}, sender, &fakeRegistrar{}, agent.WithSleeper(sleep))
	require.NoError(t, a.Run(ctx))

	assert.Equal(t, []time.Duration{testInterval, agent.UnexpectedBackoff, testInterval}, *delays)
}

type sequenceSender struct {
	errs []error
	i    int
}

func (s *sequenceSender) Send(context.Context, *metrics.Snapshot) error {
	err := s.errs[s.i%len(s.errs)]
	s.i++

	return err
}

func TestCancelDuringCycleLetsItFinish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collector := &fakeCollector{hook: cancel}
	sender := &fakeSender{}
	slept := 0

	a := agent.New(testConfig(), collector, sender, &fakeRegistrar{},
		agent.WithSleeper(func(ctx context.Context, _ time.Duration) {
			slept++
			assert.Error(t, ctx.Err())
		}))
	require.NoError(t, a.Run(ctx))

	assert.Equal(t, 1, collector.calls)
	require.Equal(t, 1, sender.calls)
	assert.NoError(t, sender.ctxErrs[0], "the cycle context is detached from cancellation")
	assert.Equal(t, 1, slept)
	assert.Equal(t, agent.StateStopped, a.State())
}

func TestRunWithCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	collector := &fakeCollector{}
	registrar := &fakeRegistrar{}

	a := agent.New(testConfig(), collector, &fakeSender{}, registrar)
	require.NoError(t, a.Run(ctx))

	assert.Equal(t, 1, registrar.calls)
	assert.Zero(t, collector.calls)
	assert.Equal(t, agent.StateStopped, a.State())
}

func TestIntervalIsAtLeastOneSecond(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sleep, delays := stopAfter(1, cancel)
	cfg := testConfig()
	cfg.MonitorInterval = 0

	a := agent.New(cfg, &fakeCollector{}, &fakeSender{}, &fakeRegistrar{}, agent.WithSleeper(sleep))
	require.NoError(t, a.Run(ctx))

	assert.Equal(t, []time.Duration{time.Second}, *delays)
}

func TestDefaultSleeperReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	collector := &fakeCollector{}
	a := agent.New(testConfig(), collector, &fakeSender{}, &fakeRegistrar{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Run(ctx)
	}()

	require.Eventually(t, func() bool { return a.State() == agent.StateMonitoring }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.Equal(t, agent.StateStopped, a.State())
}

func TestEndToEnd(t *testing.T) {
	const gib = 1 << 30

	type request struct {
		path    string
		payload map[string]any
	}
	requests := make(chan request, 8)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var payload map[string]any
		_ = json.Unmarshal(raw, &payload)
		requests <- request{path: r.URL.Path, payload: payload}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	source := metricstest.Healthy()
	source.CPU = 42
	source.Cores = 2
	source.Mem = metrics.MemoryReading{Total: 8 * gib, Used: 48 * gib / 10, Available: 32 * gib / 10, UsedPercent: 60}
	source.Disk = metrics.DiskReading{Total: 100 * gib, Used: 30 * gib, Free: 70 * gib}

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	collector := metrics.NewCollector("vps-1", metrics.WithSource(source), metrics.WithClock(func() time.Time { return now }))

	client := transport.NewClient(srv.URL, "test")
	sender := transport.NewTransmitter(client, "vps-1")
	registrar := registration.NewClient(client,
		registration.Identity{Name: "vps-1", Location: config.DefaultLocation, Description: config.DefaultDescription},
		registration.WithResolvers())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sleep, delays := stopAfter(1, cancel)

	a := agent.New(testConfig(), collector, sender, registrar, agent.WithSleeper(sleep))
	require.NoError(t, a.Run(ctx))

	reg := <-requests
	assert.Equal(t, registration.RegisterPath, reg.path)
	assert.Equal(t, "vps-1", reg.payload["name"])
	assert.Equal(t, registration.FallbackAddress, reg.payload["ip_address"])

	data := <-requests
	assert.Equal(t, "/api/servers/vps-1/data", data.path)
	assert.Equal(t, "vps-1", data.payload["server_name"])
	assert.Equal(t, "online", data.payload["status"])
	assert.Equal(t, "2024-05-01T12:00:00Z", data.payload["timestamp"])
	assert.InDelta(t, 3600, data.payload["uptime_seconds"], 0.001)

	cpu := data.payload["cpu"].(map[string]any)
	assert.InDelta(t, 42, cpu["utilization_percent"], 0.001)
	assert.InDelta(t, 2, cpu["logical_core_count"], 0)

	mem := data.payload["memory"].(map[string]any)
	assert.InDelta(t, 60, mem["utilization_percent"], 0.001)
	assert.InDelta(t, 8*gib, mem["total_bytes"], 0)

	disk := data.payload["disk"].(map[string]any)
	assert.InDelta(t, 30, disk["utilization_percent"], 0.001)

	network := data.payload["network"].(map[string]any)
	assert.InDelta(t, 1000, network["bytes_sent"], 0)
	assert.InDelta(t, 2000, network["bytes_received"], 0)
	assert.InDelta(t, 10, network["packets_sent"], 0)
	assert.InDelta(t, 20, network["packets_received"], 0)

	assert.Equal(t, []time.Duration{testInterval}, *delays)
	assert.Len(t, requests, 0)
}

type logLine struct {
	Level     string `json:"level"`
	Message   string `json:"message"`
	ErrorCode string `json:"error_code"`
}

func logLines(t *testing.T, buf *bytes.Buffer) []logLine {
	t.Helper()

	var lines []logLine
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		var line logLine
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}

	return lines
}

func TestRunCycleLogLevels(t *testing.T) {
	tests := []struct {
		name      string
		collector *fakeCollector
		sendErr   error
		want      logLine
	}{
		{
			name:      "delivered",
			collector: &fakeCollector{},
			want:      logLine{Level: "info", Message: "Metrics sent"},
		},
		{
			name:      "delivery failed",
			collector: &fakeCollector{},
			sendErr:   errors.New().WithData(errors.ErrDeliveryFailed, transport.DeliveryFailure{StatusCode: 500}),
			want:      logLine{Level: "warn", Message: "Collector did not accept metrics", ErrorCode: "delivery_failed"},
		},
		{
			name:      "collection failed",
			collector: &fakeCollector{err: errors.New().New(errors.ErrCollectMetrics)},
			want:      logLine{Level: "error", Message: "Failed to collect metrics", ErrorCode: "collect_metrics_failed"},
		},
		{
			name:      "unexpected error",
			collector: &fakeCollector{},
			sendErr:   stderrors.New("boom"),
			want:      logLine{Level: "error", Message: "Unexpected error in monitoring cycle"},
		},
		{
			name:      "panic",
			collector: &fakeCollector{panic: "nil map"},
			want:      logLine{Level: "error", Message: "Monitoring cycle panicked", ErrorCode: "unexpected_error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			a := agent.New(testConfig(), tt.collector, &fakeSender{err: tt.sendErr}, &fakeRegistrar{},
				agent.WithLogger(logger.New(&buf)))

			a.RunCycle(context.Background())

			assert.Equal(t, []logLine{tt.want}, logLines(t, &buf))
		})
	}
}

func TestRegistrationFailureLogsWarning(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	registrar := &fakeRegistrar{err: errors.New().WithData(errors.ErrRegistrationFailed, "status 500")}
	a := agent.New(testConfig(), &fakeCollector{}, &fakeSender{}, registrar, agent.WithLogger(logger.New(&buf)))
	require.NoError(t, a.Run(ctx))

	lines := logLines(t, &buf)
	assert.Contains(t, lines, logLine{
		Level:     "warn",
		Message:   "Registration failed, continuing with monitoring",
		ErrorCode: "registration_failed",
	})
}

func TestRunCycleReportsTimings(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	recorder := &fakeRecorder{}
	a := agent.New(testConfig(), &fakeCollector{}, &fakeSender{}, &fakeRegistrar{},
		agent.WithRecorder(recorder), agent.WithClock(clock))

	require.Equal(t, agent.OutcomeDelivered, a.RunCycle(context.Background()))

	// start, delivery, end
	assert.Equal(t, base.Add(2*time.Second), recorder.deliveredAt)
	assert.Equal(t, []time.Duration{2 * time.Second}, recorder.durations)
}
