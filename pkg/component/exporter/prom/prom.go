package promexporter

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/lin-stream/streamspy/pkg/core/model"
	"github.com/lin-stream/streamspy/pkg/log"
)

type Config struct {
	Addr   string
	Labels []attribute.KeyValue
}

func NewConfig() *Config {
	return &Config{
		Addr: ":9464",
	}
}

// PromExporter publishes live run metrics on /metrics while the
// benchmark is running: outcome counters, latency histogram, queue and
// fps gauges, host gauges from the sampler.
type PromExporter struct {
	cfg      *Config
	registry *prometheus.Registry
	server   *http.Server

	frames   *prometheus.CounterVec
	bytes    prometheus.Counter
	latency  prometheus.Histogram
	queueOcc prometheus.Gauge
	fps      prometheus.Gauge
	cpu      prometheus.Gauge
	ram      prometheus.Gauge
}

func NewPromExporter(cfg *Config) *PromExporter {
	constLabels := prometheus.Labels{}
	for _, kv := range cfg.Labels {
		constLabels[string(kv.Key)] = kv.Value.Emit()
	}

	e := &PromExporter{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "streamspy_frames_total",
			Help:        "Upload outcomes by status.",
			ConstLabels: constLabels,
		}, []string{"status"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "streamspy_bytes_uploaded_total",
			Help:        "Bytes successfully uploaded.",
			ConstLabels: constLabels,
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "streamspy_upload_duration_seconds",
			Help:        "Cumulative per-frame upload latency including retries.",
			Buckets:     prometheus.ExponentialBuckets(0.01, 2, 12),
			ConstLabels: constLabels,
		}),
		queueOcc: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "streamspy_queue_occupancy",
			Help:        "Frames waiting in the bounded queue.",
			ConstLabels: constLabels,
		}),
		fps: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "streamspy_target_fps",
			Help:        "Current production rate chosen by the controller.",
			ConstLabels: constLabels,
		}),
		cpu: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "streamspy_cpu_percent",
			Help:        "Host CPU usage from the resource sampler.",
			ConstLabels: constLabels,
		}),
		ram: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "streamspy_ram_percent",
			Help:        "Host memory usage from the resource sampler.",
			ConstLabels: constLabels,
		}),
	}

	e.registry.MustRegister(e.frames, e.bytes, e.latency, e.queueOcc, e.fps, e.cpu, e.ram)
	return e
}

// Start serves /metrics on the configured address. Failure to bind is
// logged, not fatal: live metrics are best effort.
func (e *PromExporter) Start() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))
	e.server = &http.Server{Addr: e.cfg.Addr, Handler: mux}
	go func() {
		if err := e.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Loger.Error("prometheus exporter listen failed:%v", err)
		}
	}()
	log.Loger.Info("prometheus exporter on %s", e.cfg.Addr)
}

func (e *PromExporter) ConsumeOutcome(o *model.UploadOutcome) error {
	e.frames.WithLabelValues(o.Status()).Inc()
	if o.Success {
		e.bytes.Add(float64(o.Bytes))
	}
	e.latency.Observe(o.Duration.Seconds())
	return nil
}

func (e *PromExporter) ConsumeSample(s *model.ResourceSample) error {
	e.cpu.Set(s.CpuPercent)
	e.ram.Set(s.RamPercent)
	return nil
}

func (e *PromExporter) SetQueueState(q model.QueueState) {
	e.queueOcc.Set(float64(q.Occupancy))
}

func (e *PromExporter) SetRate(r model.RateState) {
	e.fps.Set(r.Fps())
}

func (e *PromExporter) Registry() *prometheus.Registry {
	return e.registry
}

func (e *PromExporter) Shutdown() error {
	if e.server == nil {
		return nil
	}
	if err := e.server.Close(); err != nil {
		return fmt.Errorf("prometheus exporter close failed:%v", err)
	}
	return nil
}
