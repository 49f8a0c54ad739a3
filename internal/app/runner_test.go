package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lin-stream/streamspy/pkg/component/exporter"
	"github.com/lin-stream/streamspy/pkg/component/sampler"
	"github.com/lin-stream/streamspy/pkg/component/source"
	"github.com/lin-stream/streamspy/pkg/component/uploader"
	"github.com/lin-stream/streamspy/pkg/core/model"
	"github.com/lin-stream/streamspy/pkg/log"
	"github.com/sirupsen/logrus"
)

func init() {
	log.LogInit(os.TempDir()+"/streamspy_test", logrus.InfoLevel)
}

type fakeStore struct {
	puts    int64
	failMod int64
	delay   time.Duration
}

func (s *fakeStore) Put(ctx context.Context, bucket, key string, data []byte) error {
	n := atomic.AddInt64(&s.puts, 1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.failMod > 0 && n%s.failMod == 0 {
		return uploader.NewTransientError(errors.New("injected"))
	}
	return nil
}

type fakeMetrics struct{}

func (fakeMetrics) Sample(nic string) (*model.ResourceSample, error) {
	return &model.ResourceSample{Ts: time.Now(), CpuPercent: 1, Nic: model.AggregateNic}, nil
}

func fastOptions(store uploader.ObjectStore) *Options {
	opts := NewOptions()
	opts.Source = source.NewSyntheticSource(256)
	opts.Store = store
	opts.QueueSize = 5
	opts.GraceTimeout = 3 * time.Second
	opts.PoolCfg = &uploader.PoolConfig{Workers: 2}
	opts.RetrierCfg.Bucket = "bench"
	opts.RetrierCfg.MaxAttempts = 2
	opts.RetrierCfg.PerAttemptTimeout = time.Second
	opts.RetrierCfg.BackoffMin = time.Millisecond
	opts.RetrierCfg.BackoffMax = 2 * time.Millisecond
	opts.ProducerCfg.MaxRunTime = time.Second
	opts.ProducerCfg.MaxBytes = 0
	opts.ControllerCfg.InitFps = 50
	opts.ControllerCfg.MinFps = 10
	opts.ControllerCfg.MaxFps = 100
	opts.SamplerCfg.Interval = 50 * time.Millisecond
	opts.Provider = fakeMetrics{}
	return opts
}

// end to end: queueSize=5, concurrency=2, fast source, maxSeconds=1.
// The run must end inside maxSeconds+grace and account every frame.
func TestPipelineAccountsEveryFrame(t *testing.T) {
	store := &fakeStore{failMod: 7, delay: 5 * time.Millisecond}
	opts := fastOptions(store)

	p, err := NewPipeline(opts)
	if err != nil {
		t.Fatalf("new pipeline failed:%v", err)
	}

	start := time.Now()
	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed:%v", err)
	}
	if elapsed := time.Since(start); elapsed > opts.ProducerCfg.MaxRunTime+opts.GraceTimeout+time.Second {
		t.Errorf("run overstayed:%v", elapsed)
	}

	if report.StopReason != model.StopTimeLimit {
		t.Errorf("want time_limit, got:%s", report.StopReason)
	}
	if report.Produced == 0 {
		t.Fatalf("nothing produced")
	}
	if got := report.Accounted(); got != report.Produced {
		t.Errorf("accounting broken: produced=%d accounted=%d (s=%d f=%d d=%d a=%d)",
			report.Produced, got, report.Success, report.Failed, report.Dropped, report.Abandoned)
	}
	if uint64(len(report.Outcomes)) != report.Success+report.Failed {
		t.Errorf("outcome list does not match counters")
	}
	if len(report.Samples) == 0 {
		t.Errorf("no resource samples collected")
	}
	if report.EndTime.Before(report.StartTime) {
		t.Errorf("report timestamps wrong")
	}
}

// a store that never answers inside the run budget: whatever is still
// queued or in flight when the grace timeout fires must come out as
// abandoned, not as failures.
func TestPipelineGraceTimeoutAbandonsLeftoverFrames(t *testing.T) {
	store := &fakeStore{delay: 30 * time.Second}
	opts := fastOptions(store)
	opts.ProducerCfg.MaxRunTime = 300 * time.Millisecond
	opts.GraceTimeout = 300 * time.Millisecond
	opts.RetrierCfg.PerAttemptTimeout = 10 * time.Second

	p, err := NewPipeline(opts)
	if err != nil {
		t.Fatalf("new pipeline failed:%v", err)
	}

	start := time.Now()
	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed:%v", err)
	}
	if elapsed := time.Since(start); elapsed > opts.ProducerCfg.MaxRunTime+opts.GraceTimeout+2*time.Second {
		t.Errorf("run overstayed grace:%v", elapsed)
	}

	if report.Produced == 0 {
		t.Fatalf("nothing produced")
	}
	if report.Abandoned == 0 {
		t.Errorf("stalled uploads should be abandoned, got 0 (produced=%d failed=%d dropped=%d)",
			report.Produced, report.Failed, report.Dropped)
	}
	if report.Success != 0 || report.Failed != 0 {
		t.Errorf("no upload could finish, got success=%d failed=%d", report.Success, report.Failed)
	}
	if got := report.Accounted(); got != report.Produced {
		t.Errorf("accounting broken: produced=%d accounted=%d", report.Produced, got)
	}
}

func TestPipelineCancelStopsEverything(t *testing.T) {
	store := &fakeStore{}
	opts := fastOptions(store)
	opts.ProducerCfg.MaxRunTime = time.Minute

	p, err := NewPipeline(opts)
	if err != nil {
		t.Fatalf("new pipeline failed:%v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	done := make(chan *model.RunReport, 1)
	go func() {
		r, _ := p.Run(ctx)
		done <- r
	}()

	select {
	case report := <-done:
		if report.StopReason != model.StopCancelled {
			t.Errorf("want cancelled, got:%s", report.StopReason)
		}
		if report.Accounted() != report.Produced {
			t.Errorf("accounting broken after cancel")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("pipeline did not stop on cancel")
	}
}

func TestPipelineExportersSeeOutcomes(t *testing.T) {
	dir := t.TempDir()
	csvExp, err := exporter.NewCsvExporter(dir)
	if err != nil {
		t.Fatalf("csv exporter failed:%v", err)
	}

	store := &fakeStore{}
	opts := fastOptions(store)
	opts.ProducerCfg.MaxRunTime = 300 * time.Millisecond
	opts.Exporters = []exporter.Exporter{csvExp}

	p, _ := NewPipeline(opts)
	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed:%v", err)
	}
	csvExp.Shutdown()

	data, err := os.ReadFile(filepath.Join(dir, exporter.UploadsLogName))
	if err != nil {
		t.Fatalf("uploads log missing:%v", err)
	}
	if len(data) == 0 || report.Success == 0 {
		t.Errorf("no upload rows written")
	}
}

func TestRunFolderUploadsEachFileOnce(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"f1.jpg", "f2.jpg", "f3.jpg"} {
		os.WriteFile(filepath.Join(dir, name), []byte(name), 0644)
	}
	src, err := source.NewFolderSource(dir, 8)
	if err != nil {
		t.Fatalf("folder source failed:%v", err)
	}

	store := &fakeStore{}
	opts := fastOptions(store)
	opts.Source = src

	p, _ := NewPipeline(opts)
	report, err := p.RunFolder(context.Background(), src, "tests")
	if err != nil {
		t.Fatalf("run folder failed:%v", err)
	}
	if report.Produced != 3 || report.Success != 3 {
		t.Errorf("want 3 uploads, got produced=%d success=%d", report.Produced, report.Success)
	}
	if report.StopReason != model.StopDrained {
		t.Errorf("want drained, got:%s", report.StopReason)
	}
	if atomic.LoadInt64(&store.puts) != 3 {
		t.Errorf("store saw %d puts", store.puts)
	}
}

var _ sampler.MetricsProvider = fakeMetrics{}
