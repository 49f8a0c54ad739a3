package ratecontrol

import (
	"sync/atomic"
	"time"

	"github.com/lin-stream/streamspy/pkg/core/model"
)

// Config holds the hysteresis thresholds and step factors. They decide
// loop stability, so they are configuration, not constants.
type Config struct {
	InitFps float64
	MinFps  float64
	MaxFps  float64

	// queue fill fractions
	LowWater  float64
	HighWater float64
	// recent error rate above which we slow down
	ErrHigh float64
	// multiplicative interval steps: slow = interval*SlowFactor,
	// fast = interval/FastFactor
	SlowFactor float64
	FastFactor float64
}

func NewConfig() *Config {
	return &Config{
		InitFps:    5,
		MinFps:     1,
		MaxFps:     30,
		LowWater:   0.2,
		HighWater:  0.8,
		ErrHigh:    0.1,
		SlowFactor: 1.25,
		FastFactor: 1.11,
	}
}

// Observation is what the controller sees each cycle.
type Observation struct {
	Queue     model.QueueState
	ErrorRate float64
}

// Next is the pure transition: slow down multiplicatively when the
// queue runs hot or uploads keep failing, speed up when the queue is
// near empty and errors are quiet, otherwise hold. The result is always
// clamped to [1/MaxFps, 1/MinFps].
func Next(cfg *Config, state model.RateState, obs Observation) model.RateState {
	interval := state.Interval
	fill := obs.Queue.Fill()

	switch {
	case fill > cfg.HighWater || obs.ErrorRate > cfg.ErrHigh:
		interval = time.Duration(float64(interval) * cfg.SlowFactor)
	case fill < cfg.LowWater && obs.ErrorRate == 0:
		interval = time.Duration(float64(interval) / cfg.FastFactor)
	}

	return model.RateState{Interval: clamp(cfg, interval)}
}

func clamp(cfg *Config, interval time.Duration) time.Duration {
	min := fpsInterval(cfg.MaxFps)
	max := fpsInterval(cfg.MinFps)
	if interval < min {
		return min
	}
	if interval > max {
		return max
	}
	return interval
}

func fpsInterval(fps float64) time.Duration {
	if fps <= 0 {
		fps = 1
	}
	return time.Duration(float64(time.Second) / fps)
}

// Controller owns the rate state. Only the producer loop calls Update;
// everyone else reads the atomic snapshot.
type Controller struct {
	cfg        *Config
	intervalNs int64
}

func NewController(cfg *Config) *Controller {
	c := &Controller{cfg: cfg}
	atomic.StoreInt64(&c.intervalNs, int64(clamp(cfg, fpsInterval(cfg.InitFps))))
	return c
}

func (c *Controller) Update(obs Observation) model.RateState {
	state := Next(c.cfg, c.State(), obs)
	atomic.StoreInt64(&c.intervalNs, int64(state.Interval))
	return state
}

func (c *Controller) State() model.RateState {
	return model.RateState{Interval: time.Duration(atomic.LoadInt64(&c.intervalNs))}
}
