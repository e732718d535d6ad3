// Package connectivity tracks whether the bank API is reachable. The Monitor
// satisfies the connectivity middleware's probe and notifies subscribers when
// the state flips.
package connectivity

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/R3E-Network/bankline/internal/httputil"
	"github.com/R3E-Network/bankline/pkg/logger"
)

const (
	defaultInterval = 15 * time.Second
	defaultTimeout  = 5 * time.Second
)

// Static is a fixed probe.
type Static bool

func (s Static) IsConnected() bool { return bool(s) }

// CheckFunc performs one reachability check.
type CheckFunc func(ctx context.Context) bool

// HTTPCheck reports the target reachable when a HEAD request gets any HTTP
// response. Only transport failures count as disconnected.
func HTTPCheck(transport httputil.Transport, target string, timeout time.Duration) (CheckFunc, error) {
	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("connectivity: invalid check url %q", target)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return func(ctx context.Context) bool {
		_, err := transport.Send(ctx, &httputil.Request{
			Method:  http.MethodHead,
			URL:     u,
			Header:  make(http.Header),
			Timeout: timeout,
		})
		return err == nil
	}, nil
}

// Config configures a Monitor.
type Config struct {
	Check    CheckFunc
	Interval time.Duration
	// Initial is the state reported before the first check.
	Initial bool
	Log     *logger.Logger
}

// Monitor polls a CheckFunc and caches the result.
type Monitor struct {
	mu sync.Mutex

	check     CheckFunc
	interval  time.Duration
	log       *logger.Logger
	connected atomic.Bool

	subs    map[int]chan bool
	nextSub int

	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// New creates a monitor. Check may be nil, in which case the state only
// changes through Set.
func New(cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Log == nil {
		cfg.Log = logger.NewDefault("connectivity")
	}
	m := &Monitor{
		check:    cfg.Check,
		interval: cfg.Interval,
		log:      cfg.Log,
		subs:     make(map[int]chan bool),
	}
	m.connected.Store(cfg.Initial)
	return m
}

func (m *Monitor) Name() string { return "connectivity" }

// IsConnected returns the last observed state.
func (m *Monitor) IsConnected() bool { return m.connected.Load() }

// Set records a new state and notifies subscribers if it changed.
func (m *Monitor) Set(connected bool) {
	if m.connected.Swap(connected) == connected {
		return
	}
	m.log.WithField("connected", connected).Info("connectivity changed")

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- connected:
		default:
			// Slow subscriber: replace the stale value with the newest one.
			select {
			case <-ch:
			default:
			}
			ch <- connected
		}
	}
}

// Subscribe returns a channel receiving every state change and a function
// that unsubscribes and closes it.
func (m *Monitor) Subscribe() (<-chan bool, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan bool, 1)
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs, id)
			close(ch)
		})
	}
}

// CheckNow runs the check once and records the result.
func (m *Monitor) CheckNow(ctx context.Context) bool {
	if m.check == nil {
		return m.IsConnected()
	}
	ok := m.check(ctx)
	m.Set(ok)
	return ok
}

// Start checks immediately, then polls in the background until Stop.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("connectivity monitor already running")
	}
	m.running = true
	m.done = make(chan struct{})
	m.mu.Unlock()

	if m.check == nil {
		return nil
	}
	m.CheckNow(ctx)

	m.wg.Add(1)
	go m.loop(ctx, m.done)
	return nil
}

// Stop ends polling. It is safe to call more than once.
func (m *Monitor) Stop(context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	close(m.done)
	m.mu.Unlock()

	m.wg.Wait()
	return nil
}

func (m *Monitor) loop(ctx context.Context, done <-chan struct{}) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			m.CheckNow(ctx)
		}
	}
}
