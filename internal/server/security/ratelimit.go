package security

import (
	"container/list"
	"time"
)

// Rate limiter defaults.
const (
	DefaultRateLimitWindow      = 60 * time.Second
	DefaultRateLimitMaxRequests = 100
	DefaultRateLimitBlock       = 300 * time.Second
	MaxRateLimitEntries         = 1000
)

// RateLimitEntry is the per-IP sliding state.
type RateLimitEntry struct {
	IP          string
	WindowStart time.Time
	Count       int
	LastRequest time.Time
	Blocked     bool
}

// RateLimiter is a fixed-window counter per client IP with a temporary
// block once the threshold is crossed. Entries are kept in least recently
// requested order; the oldest one is evicted when the table is full.
// It is not safe for concurrent use; the Gatekeeper serializes access.
type RateLimiter struct {
	maxRequests int
	window      time.Duration
	block       time.Duration
	capacity    int

	entries map[string]*list.Element
	lru     *list.List // front is most recently requested
}

func NewRateLimiter(maxRequests int, window, block time.Duration, capacity int) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		block:       block,
		capacity:    capacity,
		entries:     make(map[string]*list.Element),
		lru:         list.New(),
	}
}

// Allow accounts one request from ip at now and reports whether it may
// proceed. Every call, allowed or not, refreshes LastRequest, so a client
// that keeps sending while blocked stays blocked.
func (l *RateLimiter) Allow(ip string, now time.Time) bool {
	el, ok := l.entries[ip]
	if !ok {
		if l.lru.Len() >= l.capacity {
			l.evictOldest()
		}
		l.entries[ip] = l.lru.PushFront(&RateLimitEntry{
			IP:          ip,
			WindowStart: now,
			Count:       1,
			LastRequest: now,
		})
		return true
	}

	l.lru.MoveToFront(el)
	e := el.Value.(*RateLimitEntry)

	if e.Blocked {
		if now.Sub(e.LastRequest) < l.block {
			e.LastRequest = now
			return false
		}
		e.Blocked = false
		e.Count = 0
		e.WindowStart = now
	}

	if now.Sub(e.WindowStart) > l.window {
		e.Count = 0
		e.WindowStart = now
	}

	e.Count++
	e.LastRequest = now
	if e.Count > l.maxRequests {
		e.Blocked = true
		return false
	}
	return true
}

func (l *RateLimiter) evictOldest() {
	back := l.lru.Back()
	if back == nil {
		return
	}
	l.lru.Remove(back)
	delete(l.entries, back.Value.(*RateLimitEntry).IP)
}

// Sweep drops entries that have been idle longer than both the window and
// the block duration. It returns how many were removed.
func (l *RateLimiter) Sweep(now time.Time) int {
	idle := max(l.window, l.block)
	removed := 0
	// Walk from the least recently requested end; stop at the first
	// entry still in use, everything in front of it is newer.
	for el := l.lru.Back(); el != nil; {
		e := el.Value.(*RateLimitEntry)
		if now.Sub(e.LastRequest) <= idle {
			break
		}
		prev := el.Prev()
		l.lru.Remove(el)
		delete(l.entries, e.IP)
		removed++
		el = prev
	}
	return removed
}

// BlockedCount returns the number of IPs whose block is still in effect.
func (l *RateLimiter) BlockedCount(now time.Time) int {
	n := 0
	for _, el := range l.entries {
		e := el.Value.(*RateLimitEntry)
		if e.Blocked && now.Sub(e.LastRequest) < l.block {
			n++
		}
	}
	return n
}

// Entry returns a copy of the state tracked for ip.
func (l *RateLimiter) Entry(ip string) (RateLimitEntry, bool) {
	el, ok := l.entries[ip]
	if !ok {
		return RateLimitEntry{}, false
	}
	return *el.Value.(*RateLimitEntry), true
}

// Len returns the number of tracked IPs.
func (l *RateLimiter) Len() int {
	return l.lru.Len()
}

// Reset forgets every tracked IP.
func (l *RateLimiter) Reset() {
	l.entries = make(map[string]*list.Element)
	l.lru.Init()
}
