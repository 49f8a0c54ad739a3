package uploader

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
	"github.com/lin-stream/streamspy/pkg/core/model"
	"github.com/lin-stream/streamspy/pkg/log"
)

// ObjectStore is the remote side of one upload. Implementations must
// honor ctx cancellation and deadline.
type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, data []byte) error
}

type RetrierConfig struct {
	Bucket            string
	MaxAttempts       int
	PerAttemptTimeout time.Duration
	BackoffMin        time.Duration
	BackoffMax        time.Duration
}

func NewRetrierConfig() *RetrierConfig {
	return &RetrierConfig{
		MaxAttempts:       4,
		PerAttemptTimeout: 60 * time.Second,
		// matches the classic min(2^n, 10s) schedule
		BackoffMin: time.Second,
		BackoffMax: 10 * time.Second,
	}
}

// Retrier drives the attempt sequence for one frame: per-attempt
// timeout, exponential backoff on transient failures, immediate stop on
// permanent ones. The outcome latency is cumulative over all attempts,
// backoff waits included.
type Retrier struct {
	cfg   *RetrierConfig
	store ObjectStore
}

func NewRetrier(cfg *RetrierConfig, store ObjectStore) *Retrier {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Retrier{cfg: cfg, store: store}
}

func (r *Retrier) Upload(ctx context.Context, f *model.Frame) *model.UploadOutcome {
	boff := &backoff.Backoff{
		Min:    r.cfg.BackoffMin,
		Max:    r.cfg.BackoffMax,
		Factor: 2,
	}

	outcome := &model.UploadOutcome{
		Seq:   f.Seq,
		Key:   f.Key,
		Bytes: int64(len(f.Data)),
	}

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		outcome.Attempts = attempt

		actx, cancel := context.WithTimeout(ctx, r.cfg.PerAttemptTimeout)
		err := r.store.Put(actx, r.cfg.Bucket, f.Key, f.Data)
		cancel()

		if err == nil {
			outcome.Success = true
			outcome.Duration = time.Since(start)
			return outcome
		}
		lastErr = err
		outcome.ErrKind = Classify(err)
		log.Loger.Debug("upload seq:%d attempt:%d failed(%s):%v", f.Seq, attempt, outcome.ErrKind, err)

		if outcome.ErrKind == model.ErrKindPermanent || attempt == r.cfg.MaxAttempts {
			break
		}
		// run cancelled mid-backoff: stop retrying, keep the failure
		select {
		case <-time.After(boff.Duration()):
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}

	outcome.Success = false
	outcome.Duration = time.Since(start)
	if lastErr != nil {
		outcome.Err = lastErr.Error()
	}
	return outcome
}
