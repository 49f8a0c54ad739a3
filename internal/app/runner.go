package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lin-stream/streamspy/pkg/component/exporter"
	promexporter "github.com/lin-stream/streamspy/pkg/component/exporter/prom"
	"github.com/lin-stream/streamspy/pkg/component/producer"
	"github.com/lin-stream/streamspy/pkg/component/queue"
	"github.com/lin-stream/streamspy/pkg/component/ratecontrol"
	"github.com/lin-stream/streamspy/pkg/component/sampler"
	"github.com/lin-stream/streamspy/pkg/component/source"
	"github.com/lin-stream/streamspy/pkg/component/uploader"
	"github.com/lin-stream/streamspy/pkg/core/model"
	"github.com/lin-stream/streamspy/pkg/log"
)

const gaugeTick = 500 * time.Millisecond

// Options wires the pipeline together. Source and Store are the two
// external collaborators; tests inject fakes here.
type Options struct {
	Source source.FrameSource
	Store  uploader.ObjectStore

	QueueSize    int
	GraceTimeout time.Duration

	ProducerCfg   *producer.Config
	RetrierCfg    *uploader.RetrierConfig
	PoolCfg       *uploader.PoolConfig
	ControllerCfg *ratecontrol.Config
	SamplerCfg    *sampler.Config
	Provider      sampler.MetricsProvider

	Exporters []exporter.Exporter
	Prom      *promexporter.PromExporter
}

func NewOptions() *Options {
	return &Options{
		QueueSize:     20,
		GraceTimeout:  10 * time.Second,
		ProducerCfg:   producer.NewConfig(),
		RetrierCfg:    uploader.NewRetrierConfig(),
		PoolCfg:       uploader.NewPoolConfig(),
		ControllerCfg: ratecontrol.NewConfig(),
		SamplerCfg:    sampler.NewConfig(),
	}
}

// Pipeline is the run coordinator. It owns the lifecycle of producer,
// queue, worker pool and sampler, the single cancellation signal, and
// the final report assembly.
type Pipeline struct {
	opts *Options

	queue    *queue.FrameQueue
	stats    *uploader.Stats
	pool     *uploader.Pool
	ctrl     *ratecontrol.Controller
	producer *producer.Producer
	sampler  *sampler.Sampler
}

func NewPipeline(opts *Options) (*Pipeline, error) {
	if opts.Source == nil || opts.Store == nil {
		return nil, fmt.Errorf("pipeline needs a frame source and an object store")
	}
	q, err := queue.New(opts.QueueSize)
	if err != nil {
		return nil, fmt.Errorf("new queue failed:%v", err)
	}

	stats := uploader.NewStats()
	retrier := uploader.NewRetrier(opts.RetrierCfg, opts.Store)
	pool := uploader.NewPool(opts.PoolCfg, q, retrier, stats)
	ctrl := ratecontrol.NewController(opts.ControllerCfg)
	prod := producer.New(opts.ProducerCfg, opts.Source, q, ctrl, stats)

	smp := sampler.New(opts.SamplerCfg, opts.Provider)
	smp.OnSample = func(s *model.ResourceSample) {
		for _, e := range opts.Exporters {
			if err := e.ConsumeSample(s); err != nil {
				log.Loger.Warn("exporter sample consume failed:%v", err)
			}
		}
	}

	return &Pipeline{
		opts:     opts,
		queue:    q,
		stats:    stats,
		pool:     pool,
		ctrl:     ctrl,
		producer: prod,
		sampler:  smp,
	}, nil
}

// Run drives a full measurement: start sampler and workers, let the
// producer pace frames until a stop condition, then drain within the
// grace timeout and assemble the report. Exactly one of
// success/failed/dropped/abandoned accounts for every produced frame.
func (p *Pipeline) Run(ctx context.Context) (*model.RunReport, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	report := &model.RunReport{StartTime: time.Now()}

	p.sampler.Start(ctx)
	p.pool.Start(ctx)
	if p.opts.Prom != nil {
		go p.gaugeLoop(ctx)
	}

	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for o := range p.pool.Outcomes() {
			report.Outcomes = append(report.Outcomes, o)
			for _, e := range p.opts.Exporters {
				if err := e.ConsumeOutcome(o); err != nil {
					log.Loger.Warn("exporter outcome consume failed:%v", err)
				}
			}
		}
	}()

	// producer blocks until a stop condition and closes the queue
	reason := p.producer.Run(ctx)
	log.Loger.Info("producer stopped:%s, waiting for drain", reason)

	drained := make(chan struct{})
	go func() {
		p.pool.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(p.opts.GraceTimeout):
		log.Loger.Warn("grace timeout elapsed, abandoning %d queued and %d in-flight frames",
			p.queue.Len(), p.pool.Inflight())
		cancel()
		<-drained
	}
	<-collected

	// stop the sampler and take the closing sample
	cancel()
	p.sampler.Stop()

	report.EndTime = time.Now()
	report.StopReason = reason
	report.Produced = p.producer.Produced()
	report.Dropped = p.producer.Dropped()
	report.Success = uint64(p.stats.Success())
	report.Failed = uint64(p.stats.Failed())
	report.Transient = uint64(p.stats.Transient())
	report.Permanent = uint64(p.stats.Permanent())
	report.BytesUploaded = p.stats.Bytes()
	report.Samples = p.sampler.Samples()

	if accounted := report.Success + report.Failed + report.Dropped; report.Produced > accounted {
		report.Abandoned = report.Produced - accounted
	}

	log.Loger.Info("run done: produced=%d success=%d failed=%d dropped=%d abandoned=%d bytes=%d mean_latency=%v",
		report.Produced, report.Success, report.Failed, report.Dropped, report.Abandoned,
		report.BytesUploaded, p.stats.MeanLatency())
	return report, nil
}

func (p *Pipeline) gaugeLoop(ctx context.Context) {
	ticker := time.NewTicker(gaugeTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.opts.Prom.SetQueueState(p.queue.State())
			p.opts.Prom.SetRate(p.ctrl.State())
		}
	}
}

// RunFolder uploads every file of the folder source exactly once
// through the same queue and worker pool, without pacing or rate
// control. This is the classic fixed-corpus benchmark mode.
func (p *Pipeline) RunFolder(ctx context.Context, src *source.FolderSource, prefix string) (*model.RunReport, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	report := &model.RunReport{StartTime: time.Now()}

	p.sampler.Start(ctx)
	p.pool.Start(ctx)

	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for o := range p.pool.Outcomes() {
			report.Outcomes = append(report.Outcomes, o)
			for _, e := range p.opts.Exporters {
				e.ConsumeOutcome(o)
			}
		}
	}()

	var produced uint64
	reason := model.StopDrained
	for i, path := range src.Files() {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Loger.Error("read %s failed:%v", path, err)
			reason = model.StopSourceLost
			break
		}
		produced++
		f := model.NewFrame(uint64(i+1), data, time.Now(), folderKey(prefix, path))
		if err := p.queue.Enqueue(ctx, f, queue.Block); err != nil {
			log.Loger.Error("enqueue %s failed:%v", path, err)
			reason = model.StopCancelled
			break
		}
	}
	p.queue.Close()

	drained := make(chan struct{})
	go func() {
		p.pool.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(p.opts.GraceTimeout):
		log.Loger.Warn("grace timeout elapsed with %d frames left", p.queue.Len())
		cancel()
		<-drained
	}
	<-collected

	cancel()
	p.sampler.Stop()

	report.EndTime = time.Now()
	report.StopReason = reason
	report.Produced = produced
	report.Success = uint64(p.stats.Success())
	report.Failed = uint64(p.stats.Failed())
	report.Transient = uint64(p.stats.Transient())
	report.Permanent = uint64(p.stats.Permanent())
	report.BytesUploaded = p.stats.Bytes()
	report.Samples = p.sampler.Samples()
	if accounted := report.Success + report.Failed; report.Produced > accounted {
		report.Abandoned = report.Produced - accounted
	}
	return report, nil
}

func folderKey(prefix, path string) string {
	name := filepath.Base(path)
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
