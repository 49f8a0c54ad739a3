package config

import (
	"time"
)

type Config struct {
	Version bool `mapstructure:"version"`

	STREAM STREAM `skip:"true" mapstructure:",squash"`
	FOLDER FOLDER `skip:"true" mapstructure:",squash"`
}

type STREAM struct {
	LogLevel string `def:"info" desc:"log level: debug|info|warn|error" mapstructure:"log-level"`

	// target configuration
	Bucket   string `def:"" desc:"destination bucket, required" mapstructure:"bucket"`
	Prefix   string `def:"stream" desc:"object key prefix" mapstructure:"prefix"`
	Endpoint string `def:"" desc:"custom s3 endpoint, e.g. http://localhost:9000 for minio" mapstructure:"endpoint"`
	Region   string `def:"us-east-1" desc:"bucket region" mapstructure:"region"`

	// upload path
	Concurrency int           `def:"4" desc:"number of upload workers" mapstructure:"concurrency"`
	Retries     int           `def:"3" desc:"retries per frame after the first attempt" mapstructure:"retries"`
	Timeout     time.Duration `def:"60s" desc:"per-attempt upload timeout" mapstructure:"timeout"`
	QueueSize   int           `def:"20" desc:"bounded frame queue capacity" mapstructure:"queue-size"`
	QueuePolicy string        `def:"drop" desc:"queue full policy: drop|block" mapstructure:"queue-policy"`

	// pacing
	InitFps float64 `def:"5" desc:"initial capture rate in frames per second" mapstructure:"init-fps"`
	MinFps  float64 `def:"1" desc:"lower bound of the adaptive rate" mapstructure:"min-fps"`
	MaxFps  float64 `def:"30" desc:"upper bound of the adaptive rate" mapstructure:"max-fps"`

	// stop conditions
	MaxSeconds   int           `def:"300" desc:"wall clock budget of the run in seconds" mapstructure:"max-seconds"`
	MaxMb        int           `def:"500" desc:"stop after this many uploaded megabytes, 0 for no limit" mapstructure:"max-mb"`
	GraceTimeout time.Duration `def:"10s" desc:"drain budget after the producer stops" mapstructure:"grace-timeout"`

	// frame source
	Folder     string `def:"" desc:"read frames from this folder instead of synthesizing them" mapstructure:"folder"`
	FrameBytes int    `def:"65536" desc:"synthetic frame size in bytes" mapstructure:"frame-bytes"`

	// observation
	Outdir      string        `def:"" desc:"report output dir, defaults to the yaml config value" mapstructure:"outdir"`
	Nic         string        `def:"" desc:"nic to sample, empty for aggregate counters" mapstructure:"nic"`
	SysInterval time.Duration `def:"1s" desc:"resource sampling interval" mapstructure:"sys-interval"`
	Sqlite      string        `def:"" desc:"also persist rows to this sqlite file" mapstructure:"sqlite"`
	PromAddr    string        `def:"" desc:"serve live prometheus metrics on this address, e.g. :9464" mapstructure:"prom-addr"`
}

type FOLDER struct {
	LogLevel string `def:"info" desc:"log level: debug|info|warn|error" mapstructure:"log-level"`

	Bucket   string `def:"" desc:"destination bucket, required" mapstructure:"bucket"`
	Prefix   string `def:"folder" desc:"object key prefix" mapstructure:"prefix"`
	Endpoint string `def:"" desc:"custom s3 endpoint, e.g. http://localhost:9000 for minio" mapstructure:"endpoint"`
	Region   string `def:"us-east-1" desc:"bucket region" mapstructure:"region"`

	Folder      string        `def:"" desc:"folder whose files get uploaded once each, required" mapstructure:"folder"`
	Concurrency int           `def:"4" desc:"number of upload workers" mapstructure:"concurrency"`
	Retries     int           `def:"3" desc:"retries per file after the first attempt" mapstructure:"retries"`
	Timeout     time.Duration `def:"60s" desc:"per-attempt upload timeout" mapstructure:"timeout"`
	QueueSize   int           `def:"20" desc:"bounded queue capacity" mapstructure:"queue-size"`

	GraceTimeout time.Duration `def:"10s" desc:"drain budget after the last file is queued" mapstructure:"grace-timeout"`

	Outdir      string        `def:"" desc:"report output dir, defaults to the yaml config value" mapstructure:"outdir"`
	Nic         string        `def:"" desc:"nic to sample, empty for aggregate counters" mapstructure:"nic"`
	SysInterval time.Duration `def:"1s" desc:"resource sampling interval" mapstructure:"sys-interval"`
	Sqlite      string        `def:"" desc:"also persist rows to this sqlite file" mapstructure:"sqlite"`
	PromAddr    string        `def:"" desc:"serve live prometheus metrics on this address, e.g. :9464" mapstructure:"prom-addr"`
}
