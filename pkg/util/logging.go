package util

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RateLimitedLogger hands out sampled loggers keyed by something like an entity ID,
// so each key can log at most burst messages per period
type RateLimitedLogger struct {
	Burst  uint32
	Period time.Duration

	mutex   sync.Mutex
	loggers map[string]*zerolog.Logger
}

func NewRateLimitedLogger(burst uint32, period time.Duration) *RateLimitedLogger {
	return &RateLimitedLogger{
		Burst:   burst,
		Period:  period,
		loggers: map[string]*zerolog.Logger{},
	}
}

func (r *RateLimitedLogger) For(key string) *zerolog.Logger {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if logger, exists := r.loggers[key]; exists {
		return logger
	}

	logger := log.Logger.Sample(&zerolog.BurstSampler{
		Burst:  r.Burst,
		Period: r.Period,
	})
	r.loggers[key] = &logger

	return &logger
}
