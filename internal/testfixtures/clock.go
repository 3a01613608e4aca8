// Package testfixtures provides deterministic clocks, identifiers, catalog and
// account fixtures, and a migrated SQLite store for tests.
package testfixtures

import (
	"fmt"
	"sync"
	"time"
)

// Day is one loan day.
const Day = 24 * time.Hour

// ReferenceTime is the instant fixtures are stamped with: 2024-03-01 09:00 UTC.
func ReferenceTime() time.Time {
	return time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)
}

// Clock is a manually advanced time source safe for concurrent use.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

// NewClock returns a clock at start, or at ReferenceTime when start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Advance moves the clock forward and returns the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	return c.current
}

// AdvanceDays moves the clock forward by whole loan days.
func (c *Clock) AdvanceDays(days int) time.Time {
	return c.Advance(time.Duration(days) * Day)
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// IDs hands out prefix-0001, prefix-0002, ... and is safe for concurrent use.
type IDs struct {
	mu     sync.Mutex
	prefix string
	next   int
}

func NewIDs(prefix string) *IDs {
	if prefix == "" {
		prefix = "id"
	}
	return &IDs{prefix: prefix}
}

func (g *IDs) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("%s-%04d", g.prefix, g.next)
}
