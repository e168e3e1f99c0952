package main

import "time"

type Config struct {
	Host           string `env:"HOST,default=localhost"`
	Port           int    `env:"PORT,default=8080"`
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	LogLevel       string `env:"LOG_LEVEL,default=info"`
	JWTSecret      string `env:"JWT_SECRET,required=true"`

	// Per-connection outbound queue; a full queue drops events instead of
	// blocking the broadcaster.
	ConnectionBufferSize   int `env:"CONNECTION_BUFFER_SIZE,default=256"`
	NotificationBufferSize int `env:"NOTIFICATION_BUFFER_SIZE,default=1024"`

	MaxMessageSize   int64  `env:"MAX_MESSAGE_SIZE,default=65536"`
	MaxContentLength int    `env:"MAX_CONTENT_LENGTH,default=10000"`
	LimitMessages    *int   `env:"LIMIT_MESSAGES"`
	CharReplacement  string `env:"CHARACTER_REPLACEMENT,default=*"`

	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	MetricInterval  time.Duration `env:"METRIC_INTERVAL,default=30s"`
}
