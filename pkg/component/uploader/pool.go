package uploader

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lin-stream/streamspy/pkg/component/queue"
	"github.com/lin-stream/streamspy/pkg/core/model"
	"github.com/lin-stream/streamspy/pkg/log"
)

const recentWindow = 20

// Stats is the shared outcome aggregator. All counters are atomics so N
// workers can write without a lock; the recent ring keeps the last few
// outcomes for the rate controller and takes a small mutex.
type Stats struct {
	success   int64
	failed    int64
	transient int64
	permanent int64
	bytes     int64
	latencyNs int64

	mu     sync.Mutex
	recent []bool // true = success
	next   int
}

func NewStats() *Stats {
	return &Stats{
		recent: make([]bool, 0, recentWindow),
	}
}

func (s *Stats) Add(o *model.UploadOutcome) {
	if o.Success {
		atomic.AddInt64(&s.success, 1)
		atomic.AddInt64(&s.bytes, o.Bytes)
	} else {
		atomic.AddInt64(&s.failed, 1)
		switch o.ErrKind {
		case model.ErrKindPermanent:
			atomic.AddInt64(&s.permanent, 1)
		default:
			atomic.AddInt64(&s.transient, 1)
		}
	}
	atomic.AddInt64(&s.latencyNs, int64(o.Duration))

	s.mu.Lock()
	if len(s.recent) < recentWindow {
		s.recent = append(s.recent, o.Success)
	} else {
		s.recent[s.next] = o.Success
		s.next = (s.next + 1) % recentWindow
	}
	s.mu.Unlock()
}

func (s *Stats) Success() int64   { return atomic.LoadInt64(&s.success) }
func (s *Stats) Failed() int64    { return atomic.LoadInt64(&s.failed) }
func (s *Stats) Transient() int64 { return atomic.LoadInt64(&s.transient) }
func (s *Stats) Permanent() int64 { return atomic.LoadInt64(&s.permanent) }
func (s *Stats) Bytes() int64     { return atomic.LoadInt64(&s.bytes) }

// MeanLatency averages the cumulative per-frame durations over all
// recorded outcomes, successes and failures alike.
func (s *Stats) MeanLatency() time.Duration {
	n := s.Success() + s.Failed()
	if n == 0 {
		return 0
	}
	return time.Duration(atomic.LoadInt64(&s.latencyNs) / n)
}

// RecentErrorRate is the failure fraction over the last outcomes,
// 0 when nothing completed yet.
func (s *Stats) RecentErrorRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.recent) == 0 {
		return 0
	}
	failed := 0
	for _, ok := range s.recent {
		if !ok {
			failed++
		}
	}
	return float64(failed) / float64(len(s.recent))
}

type PoolConfig struct {
	Workers int
}

func NewPoolConfig() *PoolConfig {
	return &PoolConfig{Workers: 4}
}

// Pool runs N workers draining the frame queue through the retrier.
// Every dequeued frame yields exactly one outcome, emitted on Outcomes
// and folded into Stats. Workers exit on queue close (after drain) or
// ctx cancel.
type Pool struct {
	cfg      *PoolConfig
	queue    *queue.FrameQueue
	retrier  *Retrier
	stats    *Stats
	outcomes chan *model.UploadOutcome
	wg       sync.WaitGroup
	inflight int64
}

func NewPool(cfg *PoolConfig, q *queue.FrameQueue, r *Retrier, stats *Stats) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Pool{
		cfg:      cfg,
		queue:    q,
		retrier:  r,
		stats:    stats,
		outcomes: make(chan *model.UploadOutcome, 1024),
	}
}

func (p *Pool) Outcomes() <-chan *model.UploadOutcome {
	return p.outcomes
}

func (p *Pool) Stats() *Stats {
	return p.stats
}

func (p *Pool) Inflight() int64 {
	return atomic.LoadInt64(&p.inflight)
}

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		// once the run is cancelled the leftover queued frames count
		// abandoned, not failed, so stop pulling work
		if ctx.Err() != nil {
			log.Loger.Debug("worker %d: run cancelled, exit", id)
			return
		}
		f, err := p.queue.Dequeue(ctx)
		if err != nil {
			if err == queue.ErrClosed {
				log.Loger.Debug("worker %d: queue closed, exit", id)
			} else {
				log.Loger.Debug("worker %d: dequeue aborted:%v", id, err)
			}
			return
		}

		atomic.AddInt64(&p.inflight, 1)
		o := p.retrier.Upload(ctx, f)
		atomic.AddInt64(&p.inflight, -1)

		// a frame cut off mid-upload by cancellation is abandoned too
		if ctx.Err() != nil && !o.Success {
			log.Loger.Debug("worker %d: upload of seq %d cut off by cancel", id, f.Seq)
			continue
		}
		p.stats.Add(o)
		p.outcomes <- o
	}
}

// Wait blocks until all workers returned, then closes the outcome
// channel so the collector can finish.
func (p *Pool) Wait() {
	p.wg.Wait()
	close(p.outcomes)
}
