package internal

import "time"

type Config struct {
	Host                 string        `env:"HOST"`
	Port                 int           `env:"PORT,required=true"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true"`
	LogLevel             string        `env:"LOG_LEVEL,required=true"`
	LimitMessages        *int          `env:"LIMIT_MESSAGES"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,required=true"`
	AuthTokenDuration    time.Duration `env:"AUTH_TOKEN_DURATION,required=true"`
	ReadTimeout          time.Duration `env:"READ_TIMEOUT"`
	WriteTimeout         time.Duration `env:"WRITE_TIMEOUT,required=true"`
	PingInterval         time.Duration `env:"PING_INTERVAL,required=true"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,required=true"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,required=true"`
	GCInterval           time.Duration `env:"GC_INTERVAL,required=true"`
	StatsRecentWindow    int           `env:"STATS_RECENT_WINDOW,default=1000"`
}
