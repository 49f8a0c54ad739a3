package sqlitexporter

import (
	"time"

	"github.com/lin-stream/streamspy/pkg/core/model"
)

type Item interface {
	TableName() string
}

type UPLOAD struct {
	ID        uint `gorm:"primarykey"`
	Seq       uint64
	Key       string
	SizeBytes int64
	DurationS float64
	Attempts  int
	Status    string
	ErrKind   string
	Error     string
}

func (UPLOAD) TableName() string {
	return "UPLOAD"
}

type SYSSTAT struct {
	ID          uint `gorm:"primarykey"`
	Ts          time.Time
	CpuPercent  float64
	RamPercent  float64
	BytesSent   uint64
	BytesRecv   uint64
	PacketsSent uint64
	PacketsRecv uint64
	Nic         string
}

func (SYSSTAT) TableName() string {
	return "SYSSTAT"
}

func uploadFromOutcome(o *model.UploadOutcome) *UPLOAD {
	return &UPLOAD{
		Seq:       o.Seq,
		Key:       o.Key,
		SizeBytes: o.Bytes,
		DurationS: o.Duration.Seconds(),
		Attempts:  o.Attempts,
		Status:    o.Status(),
		ErrKind:   string(o.ErrKind),
		Error:     o.Err,
	}
}

func sysstatFromSample(s *model.ResourceSample) *SYSSTAT {
	return &SYSSTAT{
		Ts:          s.Ts,
		CpuPercent:  s.CpuPercent,
		RamPercent:  s.RamPercent,
		BytesSent:   s.BytesSent,
		BytesRecv:   s.BytesRecv,
		PacketsSent: s.PacketsSent,
		PacketsRecv: s.PacketsRecv,
		Nic:         s.Nic,
	}
}
