package poller

import (
	"log"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// History writes measurement snapshots to InfluxDB for long-term charting.
// It wraps the non-blocking WriteAPI and tracks the last asynchronous write
// error so the health endpoints can report on the sink.
type History struct {
	api api.WriteAPI

	mu      sync.RWMutex
	lastErr time.Time
}

// NewHistory starts the error listener for the async write path. Write
// failures never reach the poll loop; they only surface in logs and health.
func NewHistory(w api.WriteAPI) *History {
	h := &History{
		api:     w,
		lastErr: time.Now().Add(-24 * time.Hour),
	}
	go func() {
		for err := range w.Errors() {
			if err != nil {
				h.mu.Lock()
				h.lastErr = time.Now()
				h.mu.Unlock()
				log.Printf("influx write error: %v", err)
			}
		}
	}()
	return h
}

// LastErrorAge reports how long the sink has been error-free. A nil History
// (sink not configured) always reads as healthy.
func (h *History) LastErrorAge() time.Duration {
	if h == nil {
		return 99999 * time.Hour
	}
	h.mu.RLock()
	t := h.lastErr
	h.mu.RUnlock()
	return time.Since(t)
}

// WriteSnapshot records one cycle's measurements. Offline snapshots carry no
// values and are skipped.
func (h *History) WriteSnapshot(cid string, snap Snapshot) {
	if h == nil || len(snap.Data.Measurements) == 0 {
		return
	}

	tags := map[string]string{"cid": cid}
	if snap.Data.DeviceModel != "" {
		tags["model"] = snap.Data.DeviceModel
	}

	fields := map[string]any{}
	for kind, m := range snap.Data.Measurements {
		fields[string(kind)] = m.Value
		fields[string(kind)+"_alarm"] = m.Alarm
	}

	point := influxdb2.NewPoint("pool_measurement", tags, fields, snap.FetchedAt)
	h.api.WritePoint(point)
}

// Flush drains buffered points, used on shutdown.
func (h *History) Flush() {
	if h == nil {
		return
	}
	h.api.Flush()
}
