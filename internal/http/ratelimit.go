package http

import (
	"sync"
	"time"
)

// rateLimiter applies a fixed per-minute request budget per client IP.
// Entries for idle clients are swept periodically to bound memory.
type rateLimiter struct {
	mu       sync.Mutex
	clients  map[string]*clientWindow
	perMin   int
	stop     chan struct{}
	stopOnce sync.Once
}

type clientWindow struct {
	windowStart time.Time
	requests    int
}

func newRateLimiter(requestsPerMinute int) *rateLimiter {
	rl := &rateLimiter{
		clients: make(map[string]*clientWindow),
		perMin:  requestsPerMinute,
		stop:    make(chan struct{}),
	}
	go rl.sweepLoop(5 * time.Minute)
	return rl
}

// allow reports whether a request from clientIP fits inside the
// current one-minute window.
func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	win, ok := rl.clients[clientIP]
	if !ok || now.Sub(win.windowStart) > time.Minute {
		rl.clients[clientIP] = &clientWindow{windowStart: now, requests: 1}
		return true
	}

	win.requests++
	return win.requests <= rl.perMin
}

func (rl *rateLimiter) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.sweep()
		case <-rl.stop:
			return
		}
	}
}

func (rl *rateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, win := range rl.clients {
		if win.windowStart.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

func (rl *rateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}
