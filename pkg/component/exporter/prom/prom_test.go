package promexporter

import (
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/attribute"

	"github.com/lin-stream/streamspy/pkg/core/model"
	"github.com/lin-stream/streamspy/pkg/log"
	"github.com/sirupsen/logrus"
)

func init() {
	log.LogInit(os.TempDir()+"/streamspy_test", logrus.InfoLevel)
}

func TestPromExporterCounts(t *testing.T) {
	cfg := NewConfig()
	cfg.Labels = []attribute.KeyValue{attribute.String("bucket", "bench")}
	e := NewPromExporter(cfg)

	e.ConsumeOutcome(&model.UploadOutcome{Success: true, Bytes: 100, Duration: 50 * time.Millisecond})
	e.ConsumeOutcome(&model.UploadOutcome{Success: false, Duration: time.Second, ErrKind: model.ErrKindTransient})
	e.ConsumeSample(&model.ResourceSample{CpuPercent: 42, RamPercent: 21})
	e.SetQueueState(model.QueueState{Occupancy: 3, Capacity: 20})
	e.SetRate(model.RateState{Interval: 200 * time.Millisecond})

	if got := testutil.ToFloat64(e.bytes); got != 100 {
		t.Errorf("bytes counter want 100, got:%f", got)
	}
	if got := testutil.ToFloat64(e.queueOcc); got != 3 {
		t.Errorf("queue gauge want 3, got:%f", got)
	}
	if got := testutil.ToFloat64(e.fps); got != 5 {
		t.Errorf("fps gauge want 5, got:%f", got)
	}
	if got := testutil.ToFloat64(e.cpu); got != 42 {
		t.Errorf("cpu gauge want 42, got:%f", got)
	}
}
