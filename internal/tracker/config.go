package tracker

import "time"

// Config configures the track command.
type Config struct {
	APIURL         string        `mapstructure:"api_url"`
	DeviceID       string        `mapstructure:"device_id"`
	Token          string        `mapstructure:"token"`
	Mode           string        `mapstructure:"mode"`
	GPSDAddr       string        `mapstructure:"gpsd_addr"`
	ReplayFile     string        `mapstructure:"replay_file"`
	SpoolPath      string        `mapstructure:"spool_path"`
	SpoolMax       int           `mapstructure:"spool_max"`
	FlushInterval  time.Duration `mapstructure:"flush_interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     uint64        `mapstructure:"max_retries"`
}
