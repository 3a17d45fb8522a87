package orchestrator

import (
	"time"

	"github.com/lydakis/mcpbridge/internal/clock"
	"github.com/lydakis/mcpbridge/internal/config"
)

// Policy bounds tool-call retries. Only channel failures are retried; a
// result the backend answered with, successful or not, ends the loop.
type Policy struct {
	Attempts int
	Delay    time.Duration
	Sleep    clock.SleepFunc
}

// DefaultPolicy is two attempts one second apart.
func DefaultPolicy() Policy {
	return Policy{
		Attempts: config.DefaultRetryAttempts,
		Delay:    config.DefaultRetryDelay,
		Sleep:    clock.Sleep,
	}
}

// PolicyFromConfig applies configured values over DefaultPolicy.
func PolicyFromConfig(rc config.RetryConfig) Policy {
	p := DefaultPolicy()
	p.Attempts = rc.AttemptsOrDefault()
	p.Delay = rc.DelayOrDefault()
	return p
}

func (p Policy) normalized() Policy {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	if p.Sleep == nil {
		p.Sleep = clock.Sleep
	}
	return p
}
