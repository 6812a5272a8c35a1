package bayrol

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/razem-io/ha-bayrol-cloud/internal/model"
)

// Controller ids are masked in debug captures so diagnostic dumps can be
// shared without leaking account identifiers.
var maskCIDRe = regexp.MustCompile(`(?:device\.php\?c=|c=)(\d+)`)

// PoolAPI is the host-facing facade over the transport client: login,
// controller discovery, measurement fetches, decoded device status and
// settings writes. The session token is single-slot mutable state, so a
// mutex grants each call exclusive access to the client; scheduled polls and
// user-triggered writes may interleave freely above it.
type PoolAPI struct {
	mu     sync.Mutex
	client *Client
}

// NewPoolAPI builds a facade against the production portal.
func NewPoolAPI(timeout time.Duration) *PoolAPI {
	return &PoolAPI{client: NewClient(timeout)}
}

// NewPoolAPIWithBase builds a facade against an alternate portal root.
func NewPoolAPIWithBase(base string, timeout time.Duration) *PoolAPI {
	return &PoolAPI{client: NewClientWithBase(base, timeout)}
}

// SetDebugMode toggles raw-HTML capture on the underlying client.
func (a *PoolAPI) SetDebugMode(on bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.client.SetDebugMode(on)
}

// DebugMode reports whether raw-HTML capture is active.
func (a *PoolAPI) DebugMode() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.client.DebugMode()
}

// LastRawHTML returns the most recent raw page with controller ids masked,
// or "" when debug mode is off.
func (a *PoolAPI) LastRawHTML() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	raw := a.client.LastRawHTML()
	if raw == "" {
		return ""
	}
	return maskCIDRe.ReplaceAllString(raw, "device.php?c=XXXXX")
}

// Login authenticates against the portal, replacing any prior session.
func (a *PoolAPI) Login(ctx context.Context, username, password string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.client.Login(ctx, username, password)
}

// GetControllers lists the controllers on the account.
func (a *PoolAPI) GetControllers(ctx context.Context) []model.Controller {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.client.GetControllers(ctx)
}

// GetData fetches one controller's measurement snapshot, overview fallback
// included. The zero PoolData means the fetch failed.
func (a *PoolAPI) GetData(ctx context.Context, cid string) model.PoolData {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.client.GetData(ctx, cid)
}

// GetDeviceStatus fetches and decodes the control-item set of one
// controller's device page.
func (a *PoolAPI) GetDeviceStatus(ctx context.Context, cid string) model.DeviceStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return ParseDeviceStatus(a.client.GetDeviceStatusRaw(ctx, cid))
}

// GetDeviceStatusRaw fetches the device page undecoded; the write-verify
// loop and the debug path parse it separately.
func (a *PoolAPI) GetDeviceStatusRaw(ctx context.Context, cid string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.client.GetDeviceStatusRaw(ctx, cid)
}

// SetControllerPassword submits the per-controller settings password.
func (a *PoolAPI) SetControllerPassword(ctx context.Context, cid, password string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.client.SetControllerPassword(ctx, cid, password)
}

// GetControllerAccess runs the settings password/access handshake.
func (a *PoolAPI) GetControllerAccess(ctx context.Context, cid, password string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.client.GetControllerAccess(ctx, cid, password)
}

// SetItems writes control-item settings for one controller.
func (a *PoolAPI) SetItems(ctx context.Context, cid string, items []model.SetItem) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.client.SetItems(ctx, cid, items)
}
