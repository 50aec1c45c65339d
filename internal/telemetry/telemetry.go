package telemetry

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vpsmonitor/vps-agent/internal/errors"
	"github.com/vpsmonitor/vps-agent/internal/logger"
)

const namespace = "vps_agent"

type recorder struct {
	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	registrations *prometheus.CounterVec
	lastDelivery  prometheus.Gauge
}

func newRecorder(reg prometheus.Registerer) *recorder {
	factory := promauto.With(reg)

	return &recorder{
		cycles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_total",
				Help:      "Monitoring cycles by outcome",
			},
			[]string{"outcome"},
		),
		cycleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cycle_duration_seconds",
				Help:      "Time spent collecting and delivering one snapshot",
				Buckets:   prometheus.DefBuckets,
			},
		),
		registrations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "registrations_total",
				Help:      "Registration attempts by status",
			},
			[]string{"status"},
		),
		lastDelivery: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_delivery_timestamp_seconds",
				Help:      "Unix time of the last snapshot the collector accepted",
			},
		),
	}
}

func (r *recorder) ObserveCycle(outcome string, took time.Duration) {
	r.cycles.WithLabelValues(outcome).Inc()
	r.cycleDuration.Observe(took.Seconds())
}

func (r *recorder) ObserveRegistration(ok bool) {
	status := "failed"
	if ok {
		status = "ok"
	}
	r.registrations.WithLabelValues(status).Inc()
}

func (r *recorder) MarkDelivered(at time.Time) {
	r.lastDelivery.Set(float64(at.Unix()) + float64(at.Nanosecond())/float64(time.Second))
}

type service struct {
	*recorder
	cfg      Config
	server   *http.Server
	listener net.Listener
	done     chan struct{}
}

// NewService returns a no-op Service when cfg is disabled. Otherwise it binds
// cfg.Addr and serves /metrics and /healthz in the background.
func NewService(cfg Config) (Service, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}
	if !cfg.Enabled() {
		return Noop(), nil
	}

	registry := prometheus.NewRegistry()
	rec := newRecorder(registry)

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, errFactory.Wrap(ErrListen, err).WithData(cfg.Addr)
	}

	s := &service{
		recorder: rec,
		cfg:      cfg,
		listener: listener,
		done:     make(chan struct{}),
	}
	s.server = &http.Server{
		Handler:           s.routes(registry),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	go s.serve()

	logger.Info().Str("addr", s.Addr()).Msg("Telemetry endpoint listening")

	return s, nil
}

func (s *service) routes(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", handleHealth)

	return mux
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *service) serve() {
	defer close(s.done)

	if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("Telemetry endpoint stopped")
	}
}

func (s *service) Addr() string {
	return s.listener.Addr().String()
}

func (s *service) Close(ctx context.Context) error {
	errFactory := errors.New()

	ctx, cancel := context.WithTimeout(ctx, defaultShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return errFactory.Wrap(ErrServiceShutdown, err)
	}
	<-s.done

	return nil
}

type noop struct{}

// Noop returns a Service that discards everything.
func Noop() Service {
	return noop{}
}

func (noop) ObserveCycle(string, time.Duration) {}
func (noop) ObserveRegistration(bool)           {}
func (noop) MarkDelivered(time.Time)            {}
func (noop) Addr() string                       { return "" }
func (noop) Close(context.Context) error        { return nil }
