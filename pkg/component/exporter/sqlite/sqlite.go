package sqlitexporter

import (
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/lin-stream/streamspy/pkg/core/model"
	"github.com/lin-stream/streamspy/pkg/log"
)

var (
	batchCacheSize = 200
	batchWait      = 2 * time.Second
)

// SqliteExporter persists outcomes and resource samples for later
// analysis. Writes go through a buffered channel and are flushed in
// batches so the upload path never waits on the database.
type SqliteExporter struct {
	name      string
	config    *Config
	waitGroup sync.WaitGroup
	quit      chan struct{}
	datas     chan Item
	DB        *gorm.DB
}

func NewSqliteExporter(cfg *Config) (*SqliteExporter, error) {
	server := &SqliteExporter{
		name:   "sqlite_exporter",
		config: cfg,
		quit:   make(chan struct{}),
		datas:  make(chan Item, 5000),
	}
	var err error
	server.DB, err = gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("sqlite open failed:%v", err)
	}

	// migrate tables
	server.DB.AutoMigrate(&UPLOAD{})
	server.DB.AutoMigrate(&SYSSTAT{})

	server.waitGroup.Add(1)
	go server.Run()

	return server, nil
}

func (s *SqliteExporter) ConsumeOutcome(o *model.UploadOutcome) error {
	select {
	case s.datas <- uploadFromOutcome(o):
	default:
		log.Loger.Warn("sqlite exporter buffer full, drop upload row seq:%d", o.Seq)
	}
	return nil
}

func (s *SqliteExporter) ConsumeSample(sample *model.ResourceSample) error {
	select {
	case s.datas <- sysstatFromSample(sample):
	default:
		log.Loger.Warn("sqlite exporter buffer full, drop sample row")
	}
	return nil
}

func (s *SqliteExporter) Flush(batch []Item) {
	var uploads []UPLOAD
	var sysstats []SYSSTAT

	if batch == nil {
		return
	}
	for _, val := range batch {
		switch item := val.(type) {
		case *UPLOAD:
			uploads = append(uploads, *item)
		case *SYSSTAT:
			sysstats = append(sysstats, *item)
		}
	}

	if len(uploads) > 0 {
		result := s.DB.Table("UPLOAD").CreateInBatches(uploads, batchCacheSize)
		if result.Error != nil {
			log.Loger.Error("table:%s, sqlite flush failed:%v", "UPLOAD", result.Error)
		}
	}
	if len(sysstats) > 0 {
		result := s.DB.Table("SYSSTAT").CreateInBatches(sysstats, batchCacheSize)
		if result.Error != nil {
			log.Loger.Error("table:%s, sqlite flush failed:%v", "SYSSTAT", result.Error)
		}
	}
}

func (s *SqliteExporter) Run() {
	var batch []Item
	maxWait := time.NewTimer(batchWait)

	defer func() {
		if len(batch) > 0 {
			s.Flush(batch)
		}
		s.waitGroup.Done()
		maxWait.Stop()
	}()

	for {
		select {
		case <-s.quit:
			// drain whatever is still buffered
			for {
				select {
				case item := <-s.datas:
					batch = append(batch, item)
				default:
					return
				}
			}
		case item := <-s.datas:
			batch = append(batch, item)
			if len(batch) >= batchCacheSize {
				s.Flush(batch)
				batch = nil
			}
		case <-maxWait.C:
			if len(batch) > 0 {
				s.Flush(batch)
				batch = nil
			}
			maxWait.Reset(batchWait)
		}
	}
}

func (s *SqliteExporter) Shutdown() error {
	// notify Run goroutine quit
	close(s.quit)
	// wait until Run() goroutine quit
	s.waitGroup.Wait()
	// close db connection
	db, err := s.DB.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
