package model

import (
	"time"
)

// Frame is one captured payload on its way to the object store. It is
// created by the producer, consumed by exactly one upload worker and
// dropped after its outcome is recorded.
type Frame struct {
	Seq      uint64
	Data     []byte
	Captured time.Time
	Key      string
}

func NewFrame(seq uint64, data []byte, captured time.Time, key string) *Frame {
	return &Frame{
		Seq:      seq,
		Data:     data,
		Captured: captured,
		Key:      key,
	}
}

// UploadOutcome records the result of the whole attempt sequence for one
// frame. Duration is cumulative across all attempts including backoff.
type UploadOutcome struct {
	Seq      uint64
	Key      string
	Success  bool
	Attempts int
	Duration time.Duration
	Bytes    int64
	ErrKind  ErrorKind
	Err      string
}

func (o *UploadOutcome) Status() string {
	if o.Success {
		return StatusOk
	}
	return StatusFail
}

// ResourceSample is one reading of the host counters. Byte and packet
// counts are absolute counters as the kernel reports them, not deltas.
type ResourceSample struct {
	Ts          time.Time
	CpuPercent  float64
	RamPercent  float64
	BytesSent   uint64
	BytesRecv   uint64
	PacketsSent uint64
	PacketsRecv uint64
	Nic         string
}

// QueueState is a point-in-time view of the bounded queue.
type QueueState struct {
	Occupancy int
	Capacity  int
}

func (q QueueState) Fill() float64 {
	if q.Capacity == 0 {
		return 0
	}
	return float64(q.Occupancy) / float64(q.Capacity)
}

// RateState is the producer pacing state owned by the rate controller.
// Interval is the time between two frame captures.
type RateState struct {
	Interval time.Duration
}

func (r RateState) Fps() float64 {
	if r.Interval <= 0 {
		return 0
	}
	return float64(time.Second) / float64(r.Interval)
}

// RunReport is assembled once by the run coordinator after all loops
// stopped. Accounting invariant: Produced = Success + Failed + Dropped +
// Abandoned.
type RunReport struct {
	StartTime  time.Time
	EndTime    time.Time
	StopReason StopReason

	Produced  uint64
	Success   uint64
	Failed    uint64
	Transient uint64
	Permanent uint64
	Dropped   uint64
	Abandoned uint64

	BytesUploaded int64

	Outcomes []*UploadOutcome
	Samples  []*ResourceSample
}

func (r *RunReport) WallSeconds() float64 {
	return r.EndTime.Sub(r.StartTime).Seconds()
}

// ThroughputMbpsWall is wall-clock goodput in megabits per second, same
// definition the csv/json reports use.
func (r *RunReport) ThroughputMbpsWall() float64 {
	wall := r.WallSeconds()
	if wall <= 0 {
		return 0
	}
	return float64(r.BytesUploaded) * 8.0 / wall / 1e6
}

func (r *RunReport) Accounted() uint64 {
	return r.Success + r.Failed + r.Dropped + r.Abandoned
}
