package poller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/razem-io/ha-bayrol-cloud/internal/model"
)

// API is what the coordinator needs from the portal facade. Tests substitute
// a stub portal behind it.
type API interface {
	Login(ctx context.Context, username, password string) bool
	GetData(ctx context.Context, cid string) model.PoolData
	GetDeviceStatus(ctx context.Context, cid string) model.DeviceStatus
	GetDeviceStatusRaw(ctx context.Context, cid string) string
	GetControllerAccess(ctx context.Context, cid, password string) bool
	SetItems(ctx context.Context, cid string, items []model.SetItem) bool
}

// Snapshot is the all-or-nothing result of one poll cycle: measurement data
// plus the decoded control-item set. Nothing partial is ever committed.
type Snapshot struct {
	Data         model.PoolData
	DeviceStatus model.DeviceStatus
	FetchedAt    time.Time
}

// Config holds the per-controller coordinator settings.
type Config struct {
	Username         string
	Password         string
	CID              string
	SettingsPassword string // empty means read-only

	CycleTimeout time.Duration // whole-cycle wall clock, login and fallback included
	MaxAttempts  int
}

// Coordinator drives the periodic re-fetch-with-relogin-retry loop for one
// controller and the write-verify protocol for its settings. A circuit
// breaker around the portal exchange keeps a dead vendor portal from being
// hammered on every tick.
type Coordinator struct {
	api     API
	cfg     Config
	breaker *gobreaker.CircuitBreaker
	metrics *Metrics

	mu          sync.RWMutex
	last        Snapshot
	lastSuccess time.Time
}

// ErrUpdateFailed wraps the last underlying cause after a cycle exhausts its
// attempts.
var ErrUpdateFailed = errors.New("update failed")

func NewCoordinator(api API, cfg Config, metrics *Metrics) *Coordinator {
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Coordinator{
		api: api,
		cfg: cfg,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "portal-" + cfg.CID,
			Timeout: 2 * time.Minute,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 3
			},
		}),
		metrics: metrics,
	}
}

// CID returns the controller this coordinator polls.
func (c *Coordinator) CID() string { return c.cfg.CID }

// Last returns the most recent successful snapshot and when it was taken.
func (c *Coordinator) Last() (Snapshot, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last, c.lastSuccess
}

// Setup performs the initial login with bounded exponential backoff and
// verifies data access once, mirroring what happens again on every failed
// cycle later.
func (c *Coordinator) Setup(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.cfg.CycleTimeout
	err := backoff.Retry(func() error {
		if !c.api.Login(ctx, c.cfg.Username, c.cfg.Password) {
			return errors.New("login rejected")
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.cfg.MaxAttempts-1)), ctx))
	if err != nil {
		return fmt.Errorf("initial login failed after %d attempts: %w", c.cfg.MaxAttempts, err)
	}

	if data := c.api.GetData(ctx, c.cfg.CID); data.IsZero() {
		return fmt.Errorf("initial data fetch for controller %s returned nothing", c.cfg.CID)
	}
	return nil
}

// RunCycle executes one poll cycle and stores the snapshot on success. A
// failed cycle returns an error wrapping ErrUpdateFailed and leaves the
// previous snapshot untouched.
func (c *Coordinator) RunCycle(ctx context.Context) (Snapshot, error) {
	start := time.Now()
	res, err := c.breaker.Execute(func() (any, error) {
		return c.fetchCycle(ctx)
	})
	c.metrics.ObserveCycle(time.Since(start), err == nil)
	if err != nil {
		return Snapshot{}, err
	}

	snap := res.(Snapshot)
	c.mu.Lock()
	c.last = snap
	c.lastSuccess = snap.FetchedAt
	c.mu.Unlock()
	return snap, nil
}

// fetchCycle is the bounded attempt loop: fetch, and when the portal returns
// nothing, relogin and fetch again, up to MaxAttempts under one wall-clock
// timeout. Each attempt's failure is logged, not propagated; only exhaustion
// surfaces as a single aggregated error.
func (c *Coordinator) fetchCycle(ctx context.Context) (Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CycleTimeout)
	defer cancel()

	lastErr := errors.New("no data received")
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		data := c.api.GetData(ctx, c.cfg.CID)
		if !data.IsZero() {
			return c.buildSnapshot(ctx, data), nil
		}

		log.Printf("controller %s: attempt %d returned no data, re-logging in", c.cfg.CID, attempt)
		c.metrics.CountRelogin()
		if !c.api.Login(ctx, c.cfg.Username, c.cfg.Password) {
			lastErr = errors.New("login rejected")
			log.Printf("controller %s: attempt %d login failed", c.cfg.CID, attempt)
			continue
		}

		data = c.api.GetData(ctx, c.cfg.CID)
		if !data.IsZero() {
			return c.buildSnapshot(ctx, data), nil
		}
		lastErr = errors.New("data fetch empty after relogin")
		log.Printf("controller %s: attempt %d fetch still empty after relogin", c.cfg.CID, attempt)
	}

	return Snapshot{}, fmt.Errorf("%w for controller %s after %d attempts: %v",
		ErrUpdateFailed, c.cfg.CID, c.cfg.MaxAttempts, lastErr)
}

// buildSnapshot attaches the decoded control-item set to a successful data
// fetch. Device-status trouble never fails the cycle; measurements alone are
// still a valid snapshot.
func (c *Coordinator) buildSnapshot(ctx context.Context, data model.PoolData) Snapshot {
	snap := Snapshot{Data: data, FetchedAt: time.Now()}
	if status := c.api.GetDeviceStatus(ctx, c.cfg.CID); len(status) > 0 {
		snap.DeviceStatus = status
	} else {
		log.Printf("controller %s: no control items decoded this cycle", c.cfg.CID)
	}
	return snap
}
