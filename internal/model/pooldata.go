package model

// Kind is the canonical code for one measurement reported by a controller.
type Kind string

const (
	KindPH          Kind = "pH"
	KindRedox       Kind = "mV"
	KindTemperature Kind = "T"
	KindChlorine    Kind = "Cl"
	KindSalt        Kind = "Salt"
)

// Kinds lists every canonical measurement kind in a stable order.
var Kinds = []Kind{KindPH, KindRedox, KindTemperature, KindChlorine, KindSalt}

type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// Measurement is one reading plus the warning/alarm visual state of its box.
type Measurement struct {
	Value float64 `json:"value"`
	Alarm bool    `json:"alarm"`
}

// PoolData is the snapshot produced by one data fetch for one controller.
// The zero value means "fetch failed". An offline device yields
// Status == StatusOffline with no measurements; LastSeen keeps the portal's
// "DD.MM.YY, HH:MM" UTC timestamp string.
type PoolData struct {
	Status        Status               `json:"status,omitempty"`
	Measurements  map[Kind]Measurement `json:"measurements,omitempty"`
	Name          string               `json:"name,omitempty"`
	DeviceID      string               `json:"device_id,omitempty"`
	DeviceModel   string               `json:"device_model,omitempty"`
	DeviceVersion string               `json:"device_version,omitempty"`
	LastSeen      string               `json:"last_seen,omitempty"`
}

// Set records one measurement, allocating the map on first use.
func (d *PoolData) Set(k Kind, value float64, alarm bool) {
	if d.Measurements == nil {
		d.Measurements = make(map[Kind]Measurement)
	}
	d.Measurements[k] = Measurement{Value: value, Alarm: alarm}
}

// IsZero reports whether the snapshot carries nothing at all, the
// "fetch failed" sentinel.
func (d PoolData) IsZero() bool {
	return d.Status == "" && len(d.Measurements) == 0 &&
		d.DeviceID == "" && d.LastSeen == ""
}

// DegenerateOffline reports whether the snapshot is exactly an offline status
// with no identifying detail. Together with IsZero it is the trigger for the
// overview-page fallback.
func (d PoolData) DegenerateOffline() bool {
	return d.Status == StatusOffline && len(d.Measurements) == 0 &&
		d.DeviceID == "" && d.LastSeen == ""
}
