package exporter

import (
	"github.com/lin-stream/streamspy/pkg/core/model"
)

// Exporter consumes outcomes and resource samples as they happen.
// Shutdown flushes whatever the exporter buffered.
type Exporter interface {
	ConsumeOutcome(o *model.UploadOutcome) error
	ConsumeSample(s *model.ResourceSample) error
	Shutdown() error
}
