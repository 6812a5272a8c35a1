package poller

import (
	"fmt"
	"log"
	"sort"

	"github.com/razem-io/ha-bayrol-cloud/internal/model"
	"github.com/razem-io/ha-bayrol-cloud/pkg/mqtt"
)

// Publisher turns snapshots into the MQTT entity surface the host
// home-automation platform consumes: retained availability and state topics
// per controller, per-control-item state topics, and retained Home Assistant
// discovery configs announced once per entity.
type Publisher struct {
	pub             mqtt.IPublisher
	topicPrefix     string
	discoveryPrefix string
	announced       map[string]bool
}

func NewPublisher(pub mqtt.IPublisher, topicPrefix, discoveryPrefix string) *Publisher {
	if topicPrefix == "" {
		topicPrefix = "bayrol"
	}
	return &Publisher{
		pub:             pub,
		topicPrefix:     topicPrefix,
		discoveryPrefix: discoveryPrefix,
		announced:       map[string]bool{},
	}
}

func (p *Publisher) availabilityTopic(cid string) string {
	return fmt.Sprintf("%s/%s/availability", p.topicPrefix, cid)
}

func (p *Publisher) stateTopic(cid string) string {
	return fmt.Sprintf("%s/%s/state", p.topicPrefix, cid)
}

func (p *Publisher) controlStateTopic(cid, sensorID string) string {
	return fmt.Sprintf("%s/%s/control/%s/state", p.topicPrefix, cid, sensorID)
}

// ControlCommandTopic is where the host platform writes desired options;
// the command listener subscribes to the matching wildcard.
func (p *Publisher) ControlCommandTopic(cid, sensorID string) string {
	return fmt.Sprintf("%s/%s/control/%s/set", p.topicPrefix, cid, sensorID)
}

// CommandFilter is the subscription filter covering every control item.
func (p *Publisher) CommandFilter() string {
	return p.topicPrefix + "/+/control/+/set"
}

type controlState struct {
	Option string `json:"option"`
	Value  *int   `json:"value"`
}

// PublishSnapshot pushes one cycle's full result. Availability reflects the
// controller's own status so offline devices show as unavailable, not as an
// error.
func (p *Publisher) PublishSnapshot(cid string, snap Snapshot) error {
	p.announce(cid, snap)

	availability := "online"
	if snap.Data.Status == model.StatusOffline {
		availability = "offline"
	}
	if err := p.pub.Publish(p.availabilityTopic(cid), true, availability); err != nil {
		return err
	}
	if err := p.pub.Publish(p.stateTopic(cid), true, snap.Data); err != nil {
		return err
	}

	for id, item := range snap.DeviceStatus {
		state := controlState{Option: item.CurrentText, Value: item.CurrentValue}
		if err := p.pub.Publish(p.controlStateTopic(cid, id), true, state); err != nil {
			return err
		}
	}
	return nil
}

// PublishUnavailable marks a controller unavailable after a failed cycle;
// the next successful cycle recovers it silently.
func (p *Publisher) PublishUnavailable(cid string) error {
	return p.pub.Publish(p.availabilityTopic(cid), true, "offline")
}

// PublishNotification surfaces one human-readable message to the host
// platform (settings failures, persistent cycle failures).
func (p *Publisher) PublishNotification(cid, message string) error {
	topic := fmt.Sprintf("%s/%s/notification", p.topicPrefix, cid)
	return p.pub.Publish(topic, false, message)
}

var kindUnits = map[model.Kind]string{
	model.KindPH:          "pH",
	model.KindRedox:       "mV",
	model.KindTemperature: "°C",
	model.KindChlorine:    "mg/l",
	model.KindSalt:        "g/l",
}

type discoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model,omitempty"`
}

type sensorDiscovery struct {
	Name              string          `json:"name"`
	UniqueID          string          `json:"unique_id"`
	StateTopic        string          `json:"state_topic"`
	AvailabilityTopic string          `json:"availability_topic"`
	ValueTemplate     string          `json:"value_template"`
	Unit              string          `json:"unit_of_measurement,omitempty"`
	Device            discoveryDevice `json:"device"`
}

type selectDiscovery struct {
	Name              string          `json:"name"`
	UniqueID          string          `json:"unique_id"`
	StateTopic        string          `json:"state_topic"`
	CommandTopic      string          `json:"command_topic"`
	AvailabilityTopic string          `json:"availability_topic"`
	ValueTemplate     string          `json:"value_template"`
	Options           []string        `json:"options"`
	Device            discoveryDevice `json:"device"`
}

// announce publishes retained discovery configs for whatever entities this
// snapshot carries. Each config goes out once per process lifetime; the
// entity set is small enough that re-announcing after restart is harmless.
func (p *Publisher) announce(cid string, snap Snapshot) {
	if p.discoveryPrefix == "" {
		return
	}

	device := discoveryDevice{
		Identifiers:  []string{"bayrol_cloud_" + cid},
		Name:         snap.Data.Name,
		Manufacturer: "Bayrol",
		Model:        snap.Data.DeviceModel,
	}
	if device.Name == "" {
		device.Name = "Pool Controller " + cid
	}

	kinds := make([]model.Kind, 0, len(snap.Data.Measurements))
	for kind := range snap.Data.Measurements {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	for _, kind := range kinds {
		key := fmt.Sprintf("%s/sensor/%s", cid, kind)
		if p.announced[key] {
			continue
		}
		topic := fmt.Sprintf("%s/sensor/bayrol_%s/%s/config", p.discoveryPrefix, cid, kind)
		cfg := sensorDiscovery{
			Name:              fmt.Sprintf("%s %s", device.Name, kind),
			UniqueID:          fmt.Sprintf("bayrol_cloud_%s_%s", cid, kind),
			StateTopic:        p.stateTopic(cid),
			AvailabilityTopic: p.availabilityTopic(cid),
			ValueTemplate:     fmt.Sprintf("{{ value_json.measurements['%s'].value }}", kind),
			Unit:              kindUnits[kind],
			Device:            device,
		}
		if err := p.pub.Publish(topic, true, cfg); err != nil {
			log.Printf("discovery announce for %s failed: %v", key, err)
			continue
		}
		p.announced[key] = true
	}

	ids := make([]string, 0, len(snap.DeviceStatus))
	for id := range snap.DeviceStatus {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		key := fmt.Sprintf("%s/select/%s", cid, id)
		if p.announced[key] {
			continue
		}
		item := snap.DeviceStatus[id]
		options := make([]string, 0, len(item.Options))
		for _, opt := range item.Options {
			options = append(options, opt.Text)
		}
		topic := fmt.Sprintf("%s/select/bayrol_%s/%s/config", p.discoveryPrefix, cid, id)
		cfg := selectDiscovery{
			Name:              item.Name,
			UniqueID:          fmt.Sprintf("bayrol_cloud_%s_%s", cid, id),
			StateTopic:        p.controlStateTopic(cid, id),
			CommandTopic:      p.ControlCommandTopic(cid, id),
			AvailabilityTopic: p.availabilityTopic(cid),
			ValueTemplate:     "{{ value_json.option }}",
			Options:           options,
			Device:            device,
		}
		if err := p.pub.Publish(topic, true, cfg); err != nil {
			log.Printf("discovery announce for %s failed: %v", key, err)
			continue
		}
		p.announced[key] = true
	}
}
