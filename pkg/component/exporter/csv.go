package exporter

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/lin-stream/streamspy/pkg/core/model"
)

const (
	UploadsLogName = "uploads_log.csv"
	SysMetricsName = "sys_metrics.csv"
)

var uploadsHeader = []string{"seq", "key", "size_bytes", "duration_s", "attempts", "status", "error"}
var sysHeader = []string{"ts", "cpu_percent", "ram_percent", "bytes_sent", "bytes_recv", "packets_sent", "packets_recv", "nic"}

// CsvExporter streams rows into uploads_log.csv and sys_metrics.csv in
// the outdir. Rows are flushed per write so a crashed run still leaves
// usable files.
type CsvExporter struct {
	mu sync.Mutex

	uploadsFile *os.File
	uploads     *csv.Writer
	sysFile     *os.File
	sys         *csv.Writer
}

func NewCsvExporter(outdir string) (*CsvExporter, error) {
	if err := os.MkdirAll(outdir, 0755); err != nil {
		return nil, fmt.Errorf("mkdir %s failed:%v", outdir, err)
	}

	uf, err := os.Create(filepath.Join(outdir, UploadsLogName))
	if err != nil {
		return nil, fmt.Errorf("create uploads log failed:%v", err)
	}
	sf, err := os.Create(filepath.Join(outdir, SysMetricsName))
	if err != nil {
		uf.Close()
		return nil, fmt.Errorf("create sys metrics failed:%v", err)
	}

	e := &CsvExporter{
		uploadsFile: uf,
		uploads:     csv.NewWriter(uf),
		sysFile:     sf,
		sys:         csv.NewWriter(sf),
	}
	e.uploads.Write(uploadsHeader)
	e.uploads.Flush()
	e.sys.Write(sysHeader)
	e.sys.Flush()
	return e, nil
}

func (e *CsvExporter) ConsumeOutcome(o *model.UploadOutcome) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.uploads.Write([]string{
		strconv.FormatUint(o.Seq, 10),
		o.Key,
		strconv.FormatInt(o.Bytes, 10),
		strconv.FormatFloat(o.Duration.Seconds(), 'f', 6, 64),
		strconv.Itoa(o.Attempts),
		o.Status(),
		o.Err,
	})
	e.uploads.Flush()
	if err != nil {
		return err
	}
	return e.uploads.Error()
}

func (e *CsvExporter) ConsumeSample(s *model.ResourceSample) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.sys.Write([]string{
		s.Ts.Format(time.RFC3339Nano),
		strconv.FormatFloat(s.CpuPercent, 'f', 2, 64),
		strconv.FormatFloat(s.RamPercent, 'f', 2, 64),
		strconv.FormatUint(s.BytesSent, 10),
		strconv.FormatUint(s.BytesRecv, 10),
		strconv.FormatUint(s.PacketsSent, 10),
		strconv.FormatUint(s.PacketsRecv, 10),
		s.Nic,
	})
	e.sys.Flush()
	if err != nil {
		return err
	}
	return e.sys.Error()
}

func (e *CsvExporter) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.uploads.Flush()
	e.sys.Flush()
	err := e.uploadsFile.Close()
	if cerr := e.sysFile.Close(); err == nil {
		err = cerr
	}
	return err
}
