package sampler

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/lin-stream/streamspy/pkg/core/model"
	"github.com/lin-stream/streamspy/pkg/log"
	"github.com/sirupsen/logrus"
)

func init() {
	log.LogInit(os.TempDir()+"/streamspy_test", logrus.InfoLevel)
}

type fakeProvider struct {
	calls int
}

func (f *fakeProvider) Sample(nic string) (*model.ResourceSample, error) {
	f.calls++
	return &model.ResourceSample{
		Ts:         time.Now(),
		CpuPercent: 12.5,
		BytesSent:  uint64(f.calls) * 1000,
		Nic:        model.AggregateNic,
	}, nil
}

func TestSamplerCollectsOnCadence(t *testing.T) {
	cfg := NewConfig()
	cfg.Interval = 10 * time.Millisecond
	p := &fakeProvider{}
	s := New(cfg, p)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(60 * time.Millisecond)
	cancel()
	s.Stop()

	samples := s.Samples()
	// priming call does not record; final sample does
	if len(samples) < 3 {
		t.Errorf("want at least 3 samples, got:%d", len(samples))
	}
	last := samples[len(samples)-1]
	if last.BytesSent == 0 {
		t.Errorf("final sample missing counters")
	}
	for i := 1; i < len(samples); i++ {
		if samples[i].Ts.Before(samples[i-1].Ts) {
			t.Errorf("samples not in order")
		}
	}
}
