package uploader

import (
	"context"
	"testing"
	"time"

	"github.com/lin-stream/streamspy/pkg/component/queue"
	"github.com/lin-stream/streamspy/pkg/core/model"
)

func TestPoolDrainsQueueAndAccountsEveryFrame(t *testing.T) {
	q, _ := queue.New(16)
	ctx := context.Background()

	const frames = 50
	for i := uint64(1); i <= frames; i++ {
		// enqueue from a goroutine once workers run; prefill what fits
		go func(seq uint64) {
			q.Enqueue(ctx, model.NewFrame(seq, []byte("d"), time.Now(), "k"), queue.Block)
		}(i)
	}

	store := &fakeStore{failN: 10, err: NewTransientError(errTest)}
	stats := NewStats()
	pool := NewPool(&PoolConfig{Workers: 3}, q, testRetrier(store, 1), stats)
	pool.Start(ctx)

	var outcomes []*model.UploadOutcome
	done := make(chan struct{})
	go func() {
		for o := range pool.Outcomes() {
			outcomes = append(outcomes, o)
		}
		close(done)
	}()

	// give producers time to land all frames, then close
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if stats.Success()+stats.Failed() == frames {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	q.Close()
	pool.Wait()
	<-done

	if len(outcomes) != frames {
		t.Fatalf("want %d outcomes, got %d", frames, len(outcomes))
	}
	if stats.Success()+stats.Failed() != frames {
		t.Errorf("stats do not account all frames: %d + %d", stats.Success(), stats.Failed())
	}
	if stats.Failed() != 10 || stats.Transient() != 10 {
		t.Errorf("want 10 transient failures, got failed=%d transient=%d", stats.Failed(), stats.Transient())
	}
	seen := make(map[uint64]bool)
	for _, o := range outcomes {
		if seen[o.Seq] {
			t.Errorf("seq %d delivered twice", o.Seq)
		}
		seen[o.Seq] = true
	}
}

// after cancellation the workers must neither drain the queue nor
// record cancelled in-flight uploads as failures; the leftovers stay
// for the coordinator's abandoned count.
func TestPoolStopsRecordingAfterCancel(t *testing.T) {
	q, _ := queue.New(8)
	for i := uint64(1); i <= 5; i++ {
		q.Enqueue(context.Background(), model.NewFrame(i, []byte("d"), time.Now(), "k"), queue.Block)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := &fakeStore{failN: 100, err: NewTransientError(errTest)}
	stats := NewStats()
	pool := NewPool(&PoolConfig{Workers: 2}, q, testRetrier(store, 1), stats)
	pool.Start(ctx)
	pool.Wait()

	outcomes := 0
	for range pool.Outcomes() {
		outcomes++
	}
	if outcomes != 0 {
		t.Errorf("cancelled pool emitted %d outcomes", outcomes)
	}
	if stats.Success() != 0 || stats.Failed() != 0 {
		t.Errorf("cancelled pool polluted stats: success=%d failed=%d", stats.Success(), stats.Failed())
	}
	if q.Len() != 5 {
		t.Errorf("cancelled pool drained the queue, %d frames left", q.Len())
	}
}

func TestMeanLatency(t *testing.T) {
	s := NewStats()
	if s.MeanLatency() != 0 {
		t.Errorf("empty stats should report 0 mean latency")
	}
	s.Add(&model.UploadOutcome{Success: true, Duration: 100 * time.Millisecond, Bytes: 1})
	s.Add(&model.UploadOutcome{Success: false, Duration: 300 * time.Millisecond})
	if got := s.MeanLatency(); got != 200*time.Millisecond {
		t.Errorf("want mean 200ms, got:%v", got)
	}
}

func TestRecentErrorRate(t *testing.T) {
	s := NewStats()
	if s.RecentErrorRate() != 0 {
		t.Errorf("empty stats should report 0 error rate")
	}
	for i := 0; i < 10; i++ {
		s.Add(&model.UploadOutcome{Success: i%2 == 0, Bytes: 1})
	}
	if got := s.RecentErrorRate(); got != 0.5 {
		t.Errorf("want error rate 0.5, got:%f", got)
	}
}

var errTest = contextlessError("boom")

type contextlessError string

func (e contextlessError) Error() string { return string(e) }
