package model

// exporter type
const (
	CSV        = "csv"
	SQLITE     = "sqlite"
	PROMETHEUS = "prometheus"
)

// upload status in logs and csv rows
const (
	StatusOk   = "ok"
	StatusFail = "fail"
)

// ErrorKind classifies a terminal upload failure. Transient failures are
// worth retrying, permanent ones are not.
type ErrorKind string

const (
	ErrKindNone      ErrorKind = ""
	ErrKindTransient ErrorKind = "transient"
	ErrKindPermanent ErrorKind = "permanent"
)

// StopReason says why the run ended.
type StopReason string

const (
	StopTimeLimit  StopReason = "time_limit"
	StopByteLimit  StopReason = "byte_limit"
	StopSourceLost StopReason = "source_unavailable"
	StopCancelled  StopReason = "cancelled"
	StopDrained    StopReason = "drained"
)

// AggregateNic is the NIC name used when counters are summed over all
// interfaces.
const AggregateNic = "aggregate"
