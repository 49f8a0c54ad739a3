package uploader

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lin-stream/streamspy/pkg/core/model"
	"github.com/lin-stream/streamspy/pkg/log"
	"github.com/sirupsen/logrus"
)

func init() {
	log.LogInit(os.TempDir()+"/streamspy_test", logrus.InfoLevel)
}

// fakeStore fails the first failN puts with the given error, then
// succeeds. Each attempt takes perPut.
type fakeStore struct {
	failN  int32
	err    error
	perPut time.Duration
	calls  int32
}

func (s *fakeStore) Put(ctx context.Context, bucket, key string, data []byte) error {
	n := atomic.AddInt32(&s.calls, 1)
	if s.perPut > 0 {
		select {
		case <-time.After(s.perPut):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if n <= s.failN {
		return s.err
	}
	return nil
}

func testRetrier(store ObjectStore, maxAttempts int) *Retrier {
	cfg := NewRetrierConfig()
	cfg.Bucket = "bench"
	cfg.MaxAttempts = maxAttempts
	cfg.PerAttemptTimeout = time.Second
	cfg.BackoffMin = time.Millisecond
	cfg.BackoffMax = 4 * time.Millisecond
	return NewRetrier(cfg, store)
}

func testFrame() *model.Frame {
	return model.NewFrame(7, []byte("payload"), time.Now(), "stream/0000007.jpg")
}

func TestUploadSucceedsAfterTwoTransientFailures(t *testing.T) {
	store := &fakeStore{failN: 2, err: NewTransientError(errors.New("reset")), perPut: 2 * time.Millisecond}
	r := testRetrier(store, 3)

	o := r.Upload(context.Background(), testFrame())
	if !o.Success {
		t.Fatalf("want success, got failure:%s", o.Err)
	}
	if o.Attempts != 3 {
		t.Errorf("want attempts=3, got:%d", o.Attempts)
	}
	// cumulative latency covers all three attempts
	if o.Duration < 6*time.Millisecond {
		t.Errorf("latency not cumulative:%v", o.Duration)
	}
	if o.Bytes != int64(len("payload")) {
		t.Errorf("bytes wrong:%d", o.Bytes)
	}
}

func TestUploadExhaustsTransientRetries(t *testing.T) {
	store := &fakeStore{failN: 100, err: NewTransientError(errors.New("503"))}
	r := testRetrier(store, 2)

	o := r.Upload(context.Background(), testFrame())
	if o.Success {
		t.Fatalf("want failure")
	}
	if o.Attempts != 2 {
		t.Errorf("want attempts=2, got:%d", o.Attempts)
	}
	if o.ErrKind != model.ErrKindTransient {
		t.Errorf("want transient, got:%s", o.ErrKind)
	}
}

func TestUploadPermanentNoRetry(t *testing.T) {
	store := &fakeStore{failN: 100, err: NewPermanentError(errors.New("access denied"))}
	r := testRetrier(store, 5)

	o := r.Upload(context.Background(), testFrame())
	if o.Success {
		t.Fatalf("want failure")
	}
	if o.Attempts != 1 {
		t.Errorf("permanent error must not retry, attempts:%d", o.Attempts)
	}
	if o.ErrKind != model.ErrKindPermanent {
		t.Errorf("want permanent, got:%s", o.ErrKind)
	}
}

func TestUploadPerAttemptTimeoutIsTransient(t *testing.T) {
	store := &fakeStore{failN: 100, err: errors.New("unused"), perPut: 50 * time.Millisecond}
	cfg := NewRetrierConfig()
	cfg.Bucket = "bench"
	cfg.MaxAttempts = 2
	cfg.PerAttemptTimeout = 5 * time.Millisecond
	cfg.BackoffMin = time.Millisecond
	cfg.BackoffMax = time.Millisecond
	r := NewRetrier(cfg, store)

	o := r.Upload(context.Background(), testFrame())
	if o.Success {
		t.Fatalf("want timeout failure")
	}
	if o.ErrKind != model.ErrKindTransient {
		t.Errorf("timeout should classify transient, got:%s", o.ErrKind)
	}
	if o.Attempts != 2 {
		t.Errorf("want attempts=2, got:%d", o.Attempts)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want model.ErrorKind
	}{
		{nil, model.ErrKindNone},
		{NewTransientError(errors.New("x")), model.ErrKindTransient},
		{NewPermanentError(errors.New("x")), model.ErrKindPermanent},
		{context.DeadlineExceeded, model.ErrKindTransient},
		{errors.New("connection reset by peer"), model.ErrKindTransient},
	}
	for i, c := range cases {
		if got := Classify(c.err); got != c.want {
			t.Errorf("case %d: want %s got %s", i, c.want, got)
		}
	}
}
