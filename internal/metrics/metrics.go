package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the runtime's Prometheus instruments.
type Metrics struct {
	EngineStarts    prometheus.Counter
	EngineRestarts  prometheus.Counter
	EngineErrors    prometheus.Counter
	NoSpeechEvents  prometheus.Counter
	FinalSegments   prometheus.Counter
	InterimSegments prometheus.Counter
	AudioLevel      prometheus.Gauge
	ClockSeconds    prometheus.Gauge
}

// New registers all instruments against reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EngineStarts: factory.NewCounter(prometheus.CounterOpts{
			Name: "pitchsync_engine_starts_total",
			Help: "Total recognition engine instances launched",
		}),
		EngineRestarts: factory.NewCounter(prometheus.CounterOpts{
			Name: "pitchsync_engine_restarts_total",
			Help: "Engine instances relaunched after a silent termination",
		}),
		EngineErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "pitchsync_engine_errors_total",
			Help: "Transient recognition errors",
		}),
		NoSpeechEvents: factory.NewCounter(prometheus.CounterOpts{
			Name: "pitchsync_no_speech_total",
			Help: "No-speech timeouts reported by the engine",
		}),
		FinalSegments: factory.NewCounter(prometheus.CounterOpts{
			Name: "pitchsync_final_segments_total",
			Help: "Finalized transcript segments delivered",
		}),
		InterimSegments: factory.NewCounter(prometheus.CounterOpts{
			Name: "pitchsync_interim_segments_total",
			Help: "Interim transcript updates delivered",
		}),
		AudioLevel: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pitchsync_audio_level",
			Help: "Smoothed microphone level in [0,1]",
		}),
		ClockSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pitchsync_clock_elapsed_seconds",
			Help: "Displayed session clock value",
		}),
	}
}

// Serve exposes the registry on a local debug endpoint. Best-effort: a bind
// failure is logged, never fatal.
func Serve(addr string, reg *prometheus.Registry, log *slog.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics endpoint unavailable", slog.String("addr", addr), slog.String("error", err.Error()))
		}
	}()
}
