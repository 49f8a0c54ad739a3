package producer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/lin-stream/streamspy/pkg/component/queue"
	"github.com/lin-stream/streamspy/pkg/component/ratecontrol"
	"github.com/lin-stream/streamspy/pkg/component/source"
	"github.com/lin-stream/streamspy/pkg/component/uploader"
	"github.com/lin-stream/streamspy/pkg/core/model"
	"github.com/lin-stream/streamspy/pkg/log"
)

type Config struct {
	Prefix     string
	Policy     queue.Policy
	MaxRunTime time.Duration
	MaxBytes   int64
}

func NewConfig() *Config {
	return &Config{
		Prefix:     "stream",
		Policy:     queue.Drop,
		MaxRunTime: 300 * time.Second,
		MaxBytes:   500 * 1024 * 1024,
	}
}

// Producer paces frame capture at the controller's interval and feeds
// the bounded queue. It is the only goroutine that enqueues and the one
// that closes the queue on stop.
type Producer struct {
	cfg    *Config
	source source.FrameSource
	queue  *queue.FrameQueue
	ctrl   *ratecontrol.Controller
	stats  *uploader.Stats

	produced int64
	dropped  int64
}

func New(cfg *Config, src source.FrameSource, q *queue.FrameQueue, ctrl *ratecontrol.Controller, stats *uploader.Stats) *Producer {
	return &Producer{
		cfg:    cfg,
		source: src,
		queue:  q,
		ctrl:   ctrl,
		stats:  stats,
	}
}

func (p *Producer) Produced() uint64 {
	return uint64(atomic.LoadInt64(&p.produced))
}

func (p *Producer) Dropped() uint64 {
	return uint64(atomic.LoadInt64(&p.dropped))
}

// Run captures until a stop condition hits, then closes the queue so
// the workers drain and exit. The pacing wait goes through a
// rate.Limiter whose limit is rewritten by the controller every cycle,
// so a shutdown never sits out a full sleep interval.
func (p *Producer) Run(ctx context.Context) model.StopReason {
	defer p.queue.Close()

	start := time.Now()
	limiter := rate.NewLimiter(intervalLimit(p.ctrl.State().Interval), 1)

	var seq uint64
	for {
		if ctx.Err() != nil {
			return model.StopCancelled
		}
		if time.Since(start) >= p.cfg.MaxRunTime {
			log.Loger.Info("producer: time limit reached after %v", time.Since(start))
			return model.StopTimeLimit
		}
		if p.cfg.MaxBytes > 0 && p.stats.Bytes() >= p.cfg.MaxBytes {
			log.Loger.Info("producer: byte limit reached, sent %d bytes", p.stats.Bytes())
			return model.StopByteLimit
		}

		if err := limiter.Wait(ctx); err != nil {
			return model.StopCancelled
		}

		data, captured, err := p.source.NextFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return model.StopCancelled
			}
			log.Loger.Error("producer: frame source failed:%v", err)
			return model.StopSourceLost
		}

		seq++
		atomic.AddInt64(&p.produced, 1)
		f := model.NewFrame(seq, data, captured, FrameKey(p.cfg.Prefix, seq))

		switch err := p.queue.Enqueue(ctx, f, p.cfg.Policy); err {
		case nil:
		case queue.ErrFull:
			atomic.AddInt64(&p.dropped, 1)
			log.Loger.Debug("producer: queue full, dropped frame %d", seq)
		case queue.ErrClosed:
			return model.StopCancelled
		default:
			return model.StopCancelled
		}

		state := p.ctrl.Update(ratecontrol.Observation{
			Queue:     p.queue.State(),
			ErrorRate: p.stats.RecentErrorRate(),
		})
		limiter.SetLimit(intervalLimit(state.Interval))
	}
}

func intervalLimit(interval time.Duration) rate.Limit {
	if interval <= 0 {
		return rate.Inf
	}
	return rate.Every(interval)
}

// FrameKey derives the destination object key from prefix and sequence
// number.
func FrameKey(prefix string, seq uint64) string {
	if prefix == "" {
		return fmt.Sprintf("%08d.jpg", seq)
	}
	return fmt.Sprintf("%s/%08d.jpg", prefix, seq)
}
