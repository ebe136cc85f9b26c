package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	Deliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediabot",
		Name:      "deliveries_total",
		Help:      "Share link redemptions by outcome.",
	}, []string{"outcome"})

	Ingested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediabot",
		Name:      "ingested_total",
		Help:      "Media turned into share links, by kind.",
	}, []string{"kind"})

	IngestFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mediabot",
		Name:      "ingest_failures_total",
		Help:      "Uploads that could not be stored or published.",
	})

	MembershipChecks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediabot",
		Name:      "membership_checks_total",
		Help:      "Channel membership checks by result.",
	}, []string{"result"})

	BroadcastSends = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediabot",
		Name:      "broadcast_sends_total",
		Help:      "Broadcast deliveries by outcome.",
	}, []string{"outcome"})

	BroadcastDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mediabot",
		Name:      "broadcast_duration_seconds",
		Help:      "Wall-clock duration of finished broadcasts.",
		Buckets:   []float64{1, 10, 60, 300, 900, 3600},
	})
)

// Register adds the collectors to reg. Registering twice is not an error.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{Deliveries, Ingested, IngestFailures, MembershipChecks, BroadcastSends, BroadcastDuration} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}

// Router serves /health and /metrics.
func Router(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

// Server runs Router on addr until Shutdown.
type Server struct {
	srv *http.Server
	log *zap.Logger
}

func NewServer(addr string, gatherer prometheus.Gatherer, log *zap.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           Router(gatherer),
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

func (s *Server) Start() {
	go func() {
		s.log.Info("starting metrics server", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("metrics server failed", zap.Error(err))
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
