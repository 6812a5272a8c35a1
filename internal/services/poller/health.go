package poller

import (
	"encoding/json"
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type healthHandler struct {
	mqtt         mqtt.Client
	coordinators []*Coordinator
	history      *History
	maxStale     time.Duration
}

// NewHealthHandler reports overall daemon health: broker link, snapshot
// freshness across all controllers, and the history sink's error age.
func NewHealthHandler(m mqtt.Client, cs []*Coordinator, h *History, maxStale time.Duration) http.Handler {
	return &healthHandler{mqtt: m, coordinators: cs, history: h, maxStale: maxStale}
}

func (h *healthHandler) staleCount() int {
	stale := 0
	for _, c := range h.coordinators {
		if _, last := c.Last(); last.IsZero() || time.Since(last) > h.maxStale {
			stale++
		}
	}
	return stale
}

func (h *healthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	type status struct {
		Status           string  `json:"status"`
		MQTTConnected    bool    `json:"mqtt_connected"`
		Controllers      int     `json:"controllers"`
		StaleControllers int     `json:"stale_controllers"`
		LastWriteErrorS  float64 `json:"last_write_error_age_sec"`
	}
	stale := h.staleCount()
	st := status{
		MQTTConnected:    h.mqtt != nil && h.mqtt.IsConnectionOpen(),
		Controllers:      len(h.coordinators),
		StaleControllers: stale,
		LastWriteErrorS:  h.history.LastErrorAge().Seconds(),
	}

	switch {
	case st.MQTTConnected && stale == 0 && h.history.LastErrorAge() > 30*time.Second:
		st.Status = "ok"
	case st.MQTTConnected || stale < len(h.coordinators):
		st.Status = "degraded"
	default:
		st.Status = "down"
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(st)
}

type readyHandler struct {
	mqtt         mqtt.Client
	coordinators []*Coordinator
}

// NewReadyHandler answers 200 only once the broker is connected and every
// controller has produced at least one snapshot.
func NewReadyHandler(m mqtt.Client, cs []*Coordinator) http.Handler {
	return &readyHandler{mqtt: m, coordinators: cs}
}

func (h *readyHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	ready := h.mqtt != nil && h.mqtt.IsConnectionOpen()
	for _, c := range h.coordinators {
		if _, last := c.Last(); last.IsZero() {
			ready = false
			break
		}
	}
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	w.Header().Set("Content-Type", "application/json")
	type resp struct {
		Ready bool `json:"ready"`
	}
	_ = json.NewEncoder(w).Encode(resp{Ready: ready})
}
