package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sandeepkv93/crudguard/internal/domain"
	"github.com/sandeepkv93/crudguard/internal/observability"
)

// Detacher runs fire-and-forget side effects off the request path. Failures
// never reach the caller; they are routed to the security log.
type Detacher struct {
	wg      sync.WaitGroup
	timeout time.Duration
	log     observability.SecurityLogger
}

func NewDetacher(timeout time.Duration, log observability.SecurityLogger) *Detacher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = observability.NoopSecurityLogger{}
	}
	return &Detacher{timeout: timeout, log: log}
}

func (d *Detacher) Go(name string, fn func(ctx context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				observability.RecordDetachedTask(ctx, name, "panic")
				d.log.LogSecurity(ctx, domain.EventError, "detached task panicked", "task", name, "panic", fmt.Sprint(r))
			}
		}()
		if err := fn(ctx); err != nil {
			observability.RecordDetachedTask(ctx, name, "error")
			d.log.LogSecurity(ctx, domain.EventError, "detached task failed", "task", name, "error", err.Error())
			return
		}
		observability.RecordDetachedTask(ctx, name, "success")
	}()
}

// Wait blocks until every spawned task returns or ctx is done.
func (d *Detacher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
