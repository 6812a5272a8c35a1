package poller

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/razem-io/ha-bayrol-cloud/internal/bayrol"
	"github.com/razem-io/ha-bayrol-cloud/internal/model"
)

// WriteResult classifies the outcome of a settings write. Unverified is
// deliberately distinct from Failed: the portal acknowledged the write, the
// rendered page just never reflected it within the verify window, so the
// change may still be pending.
type WriteResult int

const (
	WriteVerified WriteResult = iota
	WriteUnverified
	WriteFailed
	WriteAccessDenied
)

func (r WriteResult) String() string {
	switch r {
	case WriteVerified:
		return "verified"
	case WriteUnverified:
		return "unverified"
	case WriteFailed:
		return "failed"
	case WriteAccessDenied:
		return "access_denied"
	default:
		return fmt.Sprintf("WriteResult(%d)", int(r))
	}
}

// Overridable in tests; the portal needs the real values.
var (
	settleDelay    = 2 * time.Second
	verifyAttempts = 10
	verifyInterval = 1 * time.Second
)

// SetOption changes one control item to the option with the given display
// text and verifies the change against the re-rendered device page. The
// portal accepts writes before the page reflects them, hence the settle
// delay and the bounded verify polling. The caller blocks for the whole
// sequence; a fresh data fetch is triggered after both Verified and
// Unverified outcomes so dependent readouts converge.
func (c *Coordinator) SetOption(ctx context.Context, item model.ControlItem, optionText string) (WriteResult, error) {
	defer func(start time.Time) {
		log.Printf("controller %s: write to %s finished in %s", c.cfg.CID, item.SensorID, time.Since(start).Round(time.Millisecond))
	}(time.Now())

	if c.cfg.SettingsPassword == "" {
		return WriteAccessDenied, fmt.Errorf("no settings password configured; controller %s is read-only", c.cfg.CID)
	}

	value := -1
	for _, opt := range item.Options {
		if opt.Text == optionText {
			value = opt.Value
			break
		}
	}
	if value < 0 {
		return WriteFailed, fmt.Errorf("option %q not available for %s", optionText, item.SensorID)
	}

	if !c.api.GetControllerAccess(ctx, c.cfg.CID, c.cfg.SettingsPassword) {
		return WriteAccessDenied, fmt.Errorf("settings password not accepted for controller %s", c.cfg.CID)
	}

	vector, err := model.OneHot(len(item.Options), value)
	if err != nil {
		return WriteFailed, fmt.Errorf("encoding %s=%d: %w", item.SensorID, value, err)
	}

	items := []model.SetItem{{
		Topic: item.Topic,
		Name:  "Betriebsart",
		Value: vector,
		Valid: 1,
		Cmd:   0,
	}}
	if !c.api.SetItems(ctx, c.cfg.CID, items) {
		return WriteFailed, fmt.Errorf("setItems rejected for %s", item.SensorID)
	}

	// The portal is eventually consistent; give it a moment before the
	// first verification read.
	if err := sleepCtx(ctx, settleDelay); err != nil {
		return WriteUnverified, err
	}

	for attempt := 1; attempt <= verifyAttempts; attempt++ {
		if html := c.api.GetDeviceStatusRaw(ctx, c.cfg.CID); html != "" {
			if _, selVal, selText, ok := bayrol.ExtractItemSelect(html, item.ItemNumber); ok {
				valueChanged := selVal != nil && *selVal == value
				textChanged := selText == optionText
				if valueChanged || textChanged {
					log.Printf("controller %s: %s verified as %q on attempt %d (value=%t text=%t)",
						c.cfg.CID, item.SensorID, optionText, attempt, valueChanged, textChanged)
					c.refreshAfterWrite(ctx)
					return WriteVerified, nil
				}
			}
		}
		if err := sleepCtx(ctx, verifyInterval); err != nil {
			break
		}
	}

	log.Printf("controller %s: could not verify %s change to %q after %d attempts; the change may not have been applied",
		c.cfg.CID, item.SensorID, optionText, verifyAttempts)
	c.refreshAfterWrite(ctx)
	return WriteUnverified, nil
}

func (c *Coordinator) refreshAfterWrite(ctx context.Context) {
	if _, err := c.RunCycle(ctx); err != nil {
		log.Printf("controller %s: refresh after write failed: %v", c.cfg.CID, err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
