package gateway

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// ClientRateLimiter implements sliding window rate limiting for one client
type ClientRateLimiter struct {
	mu                 sync.Mutex
	requestsPerMinute  int
	maxConcurrent      int
	requests           []time.Time
	concurrentRequests int
	now                func() time.Time
}

// NewClientRateLimiter creates a rate limiter with the given limits. A
// non-positive limit disables that check.
func NewClientRateLimiter(requestsPerMinute, maxConcurrent int) *ClientRateLimiter {
	return &ClientRateLimiter{
		requestsPerMinute: requestsPerMinute,
		maxConcurrent:     maxConcurrent,
		now:               time.Now,
	}
}

// Acquire admits one request if both limits allow it. On success the
// caller must call release when the request ends; otherwise reason says
// which limit was hit.
func (r *ClientRateLimiter) Acquire() (release func(), reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxConcurrent > 0 && r.concurrentRequests >= r.maxConcurrent {
		return nil, "too many concurrent requests"
	}

	r.prune()
	if r.requestsPerMinute > 0 && len(r.requests) >= r.requestsPerMinute {
		return nil, "rate limit exceeded"
	}

	r.requests = append(r.requests, r.now())
	r.concurrentRequests++

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if r.concurrentRequests > 0 {
				r.concurrentRequests--
			}
		})
	}, ""
}

// Admit counts one request against the per-minute window only. It is for
// long-lived streams that must not hold an in-flight slot.
func (r *ClientRateLimiter) Admit() (ok bool, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prune()
	if r.requestsPerMinute > 0 && len(r.requests) >= r.requestsPerMinute {
		return false, "rate limit exceeded"
	}
	r.requests = append(r.requests, r.now())
	return true, ""
}

// Stats returns the requests in the current window and those in flight.
func (r *ClientRateLimiter) Stats() (requestCount, concurrentCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prune()
	return len(r.requests), r.concurrentRequests
}

// idle reports whether the limiter holds no state worth keeping.
func (r *ClientRateLimiter) idle() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prune()
	return len(r.requests) == 0 && r.concurrentRequests == 0
}

// prune drops requests older than one minute; callers hold mu.
func (r *ClientRateLimiter) prune() {
	cutoff := r.now().Add(-time.Minute)
	kept := r.requests[:0]
	for _, reqTime := range r.requests {
		if reqTime.After(cutoff) {
			kept = append(kept, reqTime)
		}
	}
	r.requests = kept
}

// RateLimiter keeps one ClientRateLimiter per client address.
type RateLimiter struct {
	mu                sync.Mutex
	clients           map[string]*ClientRateLimiter
	requestsPerMinute int
	maxConcurrent     int
}

// NewRateLimiter creates a per-client limiter.
func NewRateLimiter(requestsPerMinute, maxConcurrent int) *RateLimiter {
	return &RateLimiter{
		clients:           make(map[string]*ClientRateLimiter),
		requestsPerMinute: requestsPerMinute,
		maxConcurrent:     maxConcurrent,
	}
}

func (l *RateLimiter) client(key string) *ClientRateLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.clients[key]
	if !ok {
		// Forget clients that went quiet so the map does not grow unbounded.
		for k, existing := range l.clients {
			if existing.idle() {
				delete(l.clients, k)
			}
		}
		c = NewClientRateLimiter(l.requestsPerMinute, l.maxConcurrent)
		l.clients[key] = c
	}
	return c
}

// Middleware rejects requests over the limit with 429.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		release, reason := l.client(clientKey(r)).Acquire()
		if release == nil {
			writeError(w, http.StatusTooManyRequests, reason)
			return
		}
		defer release()
		next.ServeHTTP(w, r)
	})
}

// StreamMiddleware is Middleware for endpoints whose GET requests open a
// server-sent event stream. Those streams count against the per-minute
// window but not against the in-flight cap.
func (l *RateLimiter) StreamMiddleware(next http.Handler) http.Handler {
	limited := l.Middleware(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			limited.ServeHTTP(w, r)
			return
		}
		if ok, reason := l.client(clientKey(r)).Admit(); !ok {
			writeError(w, http.StatusTooManyRequests, reason)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
