package exporter

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/lin-stream/streamspy/pkg/core/model"
)

const SummaryName = "summary.json"

// Summary is the run-level json record, field layout kept compatible
// with the python predecessor's summary.json.
type Summary struct {
	FramesTotal     int     `json:"frames_total"`
	FramesFailed    int     `json:"frames_failed"`
	FramesDropped   int     `json:"frames_dropped"`
	FramesAbandoned int     `json:"frames_abandoned"`
	ErrorRate       float64 `json:"error_rate"`
	BytesTotal      int64   `json:"bytes_total"`
	WallSeconds     float64 `json:"wall_seconds"`
	ThroughputMbps  float64 `json:"throughput_mbps_wall"`

	PerFrameLatencyS map[string]*float64 `json:"per_frame_latency_s"`

	StopReason  string  `json:"stop_reason"`
	Concurrency int     `json:"concurrency"`
	Prefix      string  `json:"prefix"`
	Nic         string  `json:"nic"`
	SysInterval float64 `json:"sys_interval"`
	Timestamp   string  `json:"timestamp"`
}

type SummaryOpts struct {
	Concurrency int
	Prefix      string
	Nic         string
	SysInterval time.Duration
}

func BuildSummary(r *model.RunReport, opts SummaryOpts) *Summary {
	var durs []float64
	for _, o := range r.Outcomes {
		if o.Success {
			durs = append(durs, o.Duration.Seconds())
		}
	}

	nic := opts.Nic
	if nic == "" {
		nic = model.AggregateNic
	}

	var errRate float64
	if len(r.Outcomes) > 0 {
		errRate = float64(r.Failed) / float64(len(r.Outcomes))
	}

	return &Summary{
		FramesTotal:     int(r.Produced),
		FramesFailed:    int(r.Failed),
		FramesDropped:   int(r.Dropped),
		FramesAbandoned: int(r.Abandoned),
		ErrorRate:       errRate,
		BytesTotal:      r.BytesUploaded,
		WallSeconds:     r.WallSeconds(),
		ThroughputMbps:  r.ThroughputMbpsWall(),
		PerFrameLatencyS: map[string]*float64{
			"p50": Percentile(durs, 50),
			"p90": Percentile(durs, 90),
			"p95": Percentile(durs, 95),
			"p99": Percentile(durs, 99),
		},
		StopReason:  string(r.StopReason),
		Concurrency: opts.Concurrency,
		Prefix:      opts.Prefix,
		Nic:         nic,
		SysInterval: opts.SysInterval.Seconds(),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
}

// WriteSummary renders summary.json into outdir and returns the path.
func WriteSummary(outdir string, r *model.RunReport, opts SummaryOpts) (string, error) {
	s := BuildSummary(r, opts)
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal summary failed:%v", err)
	}
	path := filepath.Join(outdir, SummaryName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write summary failed:%v", err)
	}
	return path, nil
}

// Percentile interpolates linearly between order statistics, matching
// numpy's default. Returns nil for an empty sample so the json field
// renders as null like the python tool did.
func Percentile(sorted []float64, p float64) *float64 {
	if len(sorted) == 0 {
		return nil
	}
	vals := append([]float64(nil), sorted...)
	sort.Float64s(vals)

	rank := p / 100 * float64(len(vals)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	v := vals[lo]
	if hi != lo {
		frac := rank - float64(lo)
		v = vals[lo]*(1-frac) + vals[hi]*frac
	}
	return &v
}
