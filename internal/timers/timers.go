// Package timers is the single owner of every long-lived timer in the
// coordinator. Timers are registered under structured names
// (session:<id>:expiry, conn:<id>:auth, ...) so a whole family can be
// released in one call, and shutdown is a single CancelAll.
package timers

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/metrics"
)

type kind int

const (
	kindOnce kind = iota
	kindInterval
)

// Stats reports the live timer population by kind.
type Stats struct {
	Once     int `json:"once"`
	Interval int `json:"interval"`
}

type entry struct {
	kind  kind
	timer *time.Timer   // one-shot
	stop  chan struct{} // interval
}

// Controller is a named-timer registry. Scheduling an existing name
// replaces the previous timer. After CancelAll the controller is latched:
// further schedules are dropped, which makes shutdown deterministic.
type Controller struct {
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	stopped bool
}

// New creates an empty controller.
func New(logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// ScheduleOnce runs fn once after delay. The name doubles as the timer ID;
// the returned value is empty when the controller is already latched.
func (c *Controller) ScheduleOnce(name string, delay time.Duration, fn func()) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		c.logger.Debug("timer dropped after shutdown", "timer", name)
		return ""
	}
	c.cancelLocked(name)

	e := &entry{kind: kindOnce}
	e.timer = time.AfterFunc(delay, func() {
		c.fired(name, e)
		metrics.TimerFiresTotal.WithLabelValues("once").Inc()
		c.run(name, fn)
	})
	c.entries[name] = e
	c.publishLocked()
	return name
}

// ScheduleInterval runs fn every period until cancelled.
func (c *Controller) ScheduleInterval(name string, period time.Duration, fn func()) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		c.logger.Debug("timer dropped after shutdown", "timer", name)
		return ""
	}
	c.cancelLocked(name)

	e := &entry{kind: kindInterval, stop: make(chan struct{})}
	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.TimerFiresTotal.WithLabelValues("interval").Inc()
				c.run(name, fn)
			case <-e.stop:
				return
			}
		}
	}()
	c.entries[name] = e
	c.publishLocked()
	return name
}

// Cancel stops the named timer. Reports whether it existed.
func (c *Controller) Cancel(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ok := c.cancelLocked(name)
	c.publishLocked()
	return ok
}

// CancelByPrefix stops every timer whose name starts with prefix and
// returns how many it stopped. Session teardown uses this with the
// "session:<id>:" prefix.
func (c *Controller) CancelByPrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for name := range c.entries {
		if strings.HasPrefix(name, prefix) {
			c.cancelLocked(name)
			n++
		}
	}
	c.publishLocked()
	return n
}

// CancelAll stops every timer and latches the controller shut. Returns
// how many timers were live.
func (c *Controller) CancelAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	for name := range c.entries {
		c.cancelLocked(name)
	}
	c.stopped = true
	c.publishLocked()
	if n > 0 {
		c.logger.Info("timer controller stopped", "cancelled", n)
	}
	return n
}

// Stats counts live timers by kind.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statsLocked()
}

// Len is the number of live timers.
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Controller) statsLocked() Stats {
	var s Stats
	for _, e := range c.entries {
		if e.kind == kindOnce {
			s.Once++
		} else {
			s.Interval++
		}
	}
	return s
}

func (c *Controller) cancelLocked(name string) bool {
	e, ok := c.entries[name]
	if !ok {
		return false
	}
	switch e.kind {
	case kindOnce:
		e.timer.Stop()
	case kindInterval:
		close(e.stop)
	}
	delete(c.entries, name)
	return true
}

// fired removes a one-shot entry when its timer goes off, unless the name
// was already replaced by a newer timer.
func (c *Controller) fired(name string, e *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries[name] == e {
		delete(c.entries, name)
		c.publishLocked()
	}
}

// run invokes a callback, containing panics so one bad callback cannot
// take the process down.
func (c *Controller) run(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("timer callback panicked", "timer", name, "panic", r)
		}
	}()
	fn()
}

func (c *Controller) publishLocked() {
	s := c.statsLocked()
	metrics.ActiveTimers.WithLabelValues("once").Set(float64(s.Once))
	metrics.ActiveTimers.WithLabelValues("interval").Set(float64(s.Interval))
}
