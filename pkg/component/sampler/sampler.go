package sampler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"

	"github.com/lin-stream/streamspy/pkg/core/model"
	"github.com/lin-stream/streamspy/pkg/log"
)

type Config struct {
	Interval time.Duration
	Nic      string
}

func NewConfig() *Config {
	return &Config{
		Interval: time.Second,
	}
}

// MetricsProvider reads the host counters once. Split out so tests can
// run without touching /proc.
type MetricsProvider interface {
	Sample(nic string) (*model.ResourceSample, error)
}

// PsutilProvider reads CPU, memory and NIC counters through gopsutil.
// An unknown NIC name falls back to the aggregate counters.
type PsutilProvider struct{}

func (p *PsutilProvider) Sample(nic string) (*model.ResourceSample, error) {
	// interval 0 measures since the previous call, like psutil
	cpuPct, err := cpu.Percent(0, false)
	if err != nil {
		return nil, fmt.Errorf("cpu percent failed:%v", err)
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		return nil, fmt.Errorf("virtual memory failed:%v", err)
	}

	s := &model.ResourceSample{
		Ts:         time.Now(),
		RamPercent: vm.UsedPercent,
		Nic:        model.AggregateNic,
	}
	if len(cpuPct) > 0 {
		s.CpuPercent = cpuPct[0]
	}

	if nic != "" {
		counters, err := gnet.IOCounters(true)
		if err != nil {
			return nil, fmt.Errorf("net counters failed:%v", err)
		}
		for _, c := range counters {
			if c.Name == nic {
				s.Nic = nic
				s.BytesSent = c.BytesSent
				s.BytesRecv = c.BytesRecv
				s.PacketsSent = c.PacketsSent
				s.PacketsRecv = c.PacketsRecv
				return s, nil
			}
		}
		log.Loger.Warn("nic %s not found, falling back to aggregate", nic)
	}

	counters, err := gnet.IOCounters(false)
	if err != nil {
		return nil, fmt.Errorf("net counters failed:%v", err)
	}
	if len(counters) > 0 {
		s.BytesSent = counters[0].BytesSent
		s.BytesRecv = counters[0].BytesRecv
		s.PacketsSent = counters[0].PacketsSent
		s.PacketsRecv = counters[0].PacketsRecv
	}
	return s, nil
}

// Sampler appends a ResourceSample every Interval on its own schedule.
// It never touches the upload path; the samples are merged into the
// report at shutdown.
type Sampler struct {
	cfg      *Config
	provider MetricsProvider

	// OnSample, when set before Start, sees every sample as it is taken.
	OnSample func(*model.ResourceSample)

	mu      sync.Mutex
	samples []*model.ResourceSample
	wg      sync.WaitGroup
}

func New(cfg *Config, provider MetricsProvider) *Sampler {
	if provider == nil {
		provider = &PsutilProvider{}
	}
	return &Sampler{
		cfg:      cfg,
		provider: provider,
	}
}

func (s *Sampler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

func (s *Sampler) run(ctx context.Context) {
	defer s.wg.Done()

	// prime the cpu measurement so the first real sample has a delta
	s.provider.Sample(s.cfg.Nic)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.takeSample()
		}
	}
}

func (s *Sampler) takeSample() {
	sample, err := s.provider.Sample(s.cfg.Nic)
	if err != nil {
		log.Loger.Error("resource sample failed:%v", err)
		return
	}
	s.mu.Lock()
	s.samples = append(s.samples, sample)
	s.mu.Unlock()
	if s.OnSample != nil {
		s.OnSample(sample)
	}
}

// Stop waits for the loop to exit and takes one final sample so the
// cumulative byte counters cover the whole run.
func (s *Sampler) Stop() {
	s.wg.Wait()
	s.takeSample()
}

func (s *Sampler) Samples() []*model.ResourceSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.ResourceSample, len(s.samples))
	copy(out, s.samples)
	return out
}
