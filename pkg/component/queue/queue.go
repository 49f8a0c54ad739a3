package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/lin-stream/streamspy/pkg/core/model"
)

// Policy decides what Enqueue does when the queue is at capacity.
type Policy int

const (
	// Block waits until a worker frees a slot or the queue closes.
	Block Policy = iota
	// Drop fails immediately with ErrFull.
	Drop
)

var (
	ErrFull   = errors.New("queue full")
	ErrClosed = errors.New("queue closed")
)

func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "block":
		return Block, nil
	case "drop", "":
		return Drop, nil
	}
	return Drop, errors.New("unknown queue policy: " + s)
}

// FrameQueue is the bounded FIFO buffer between the producer and the
// upload workers. The buffered channel is the single source of truth
// for occupancy, so the counter can never drift from the buffer.
type FrameQueue struct {
	ch       chan *model.Frame
	closed   chan struct{}
	closeOne sync.Once
}

func New(capacity int) (*FrameQueue, error) {
	if capacity <= 0 {
		return nil, errors.New("queue capacity must be positive")
	}
	return &FrameQueue{
		ch:     make(chan *model.Frame, capacity),
		closed: make(chan struct{}),
	}, nil
}

// Enqueue adds one frame. With Drop policy a full queue fails with
// ErrFull, with Block policy the call waits until there is room, the
// context is cancelled or the queue is closed.
func (q *FrameQueue) Enqueue(ctx context.Context, f *model.Frame, policy Policy) error {
	select {
	case <-q.closed:
		return ErrClosed
	default:
	}

	if policy == Drop {
		select {
		case q.ch <- f:
			return nil
		default:
			return ErrFull
		}
	}

	select {
	case q.ch <- f:
		return nil
	case <-q.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue removes the oldest frame. After Close it keeps draining the
// buffered frames and then fails with ErrClosed.
func (q *FrameQueue) Dequeue(ctx context.Context) (*model.Frame, error) {
	// drain buffered frames first so Close does not lose items
	select {
	case f := <-q.ch:
		return f, nil
	default:
	}

	select {
	case f := <-q.ch:
		return f, nil
	case <-q.closed:
		select {
		case f := <-q.ch:
			return f, nil
		default:
			return nil, ErrClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close is idempotent. The underlying channel is never closed so a
// blocked Enqueue can not panic; it is released through the closed
// signal instead.
func (q *FrameQueue) Close() {
	q.closeOne.Do(func() {
		close(q.closed)
	})
}

func (q *FrameQueue) Len() int {
	return len(q.ch)
}

func (q *FrameQueue) Cap() int {
	return cap(q.ch)
}

func (q *FrameQueue) State() model.QueueState {
	return model.QueueState{
		Occupancy: q.Len(),
		Capacity:  q.Cap(),
	}
}
