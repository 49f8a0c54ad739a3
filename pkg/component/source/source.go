package source

import (
	"context"
	"errors"
	"time"
)

// ErrSourceUnavailable is fatal to the producer loop and triggers a
// coordinated shutdown.
var ErrSourceUnavailable = errors.New("frame source unavailable")

// FrameSource hands out one raw payload per call. Camera capture stays
// behind this interface; the repo ships a folder source and a synthetic
// one.
type FrameSource interface {
	NextFrame(ctx context.Context) ([]byte, time.Time, error)
	Close() error
}

// SyntheticSource produces fixed-size payloads without any I/O. The
// payload bytes vary per frame so uploads are not trivially dedupable.
type SyntheticSource struct {
	size int
	seq  byte
}

func NewSyntheticSource(size int) *SyntheticSource {
	if size <= 0 {
		size = 64 * 1024
	}
	return &SyntheticSource{size: size}
}

func (s *SyntheticSource) NextFrame(ctx context.Context) ([]byte, time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, time.Time{}, err
	}
	s.seq++
	data := make([]byte, s.size)
	for i := range data {
		data[i] = s.seq + byte(i)
	}
	return data, time.Now(), nil
}

func (s *SyntheticSource) Close() error {
	return nil
}
