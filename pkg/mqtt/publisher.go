package mqtt

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// IPublisher is the publishing side used by the poller; tests substitute it.
type IPublisher interface {
	Publish(topic string, retain bool, message any) error
	Close()
}

// Publisher publishes entity state and discovery payloads for the poller.
type Publisher struct {
	client mqtt.Client
	qos    byte
}

// NewPublisher wraps the shared MQTT client. QoS 1 so state survives a
// flaky broker link; the payload volume is tiny.
func NewPublisher(client mqtt.Client) *Publisher {
	return &Publisher{client: client, qos: 1}
}

// Publish sends one message. Strings and byte slices go out as-is; anything
// else is JSON-encoded.
func (p *Publisher) Publish(topic string, retain bool, message any) error {
	var payload []byte
	switch m := message.(type) {
	case []byte:
		payload = m
	case string:
		payload = []byte(m)
	default:
		encoded, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encoding payload for %s: %w", topic, err)
		}
		payload = encoded
	}

	token := p.client.Publish(topic, p.qos, retain, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, token.Error())
	}
	return nil
}

// Close gracefully closes the MQTT connection for the publisher.
func (p *Publisher) Close() {
	Disconnect(p.client)
}

// Subscribe attaches a handler to one topic filter and keeps it attached
// until the client disconnects.
func Subscribe(client mqtt.Client, filter string, handler func(topic string, payload []byte)) error {
	token := client.Subscribe(filter, 1, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("subscribing to %s: %w", filter, token.Error())
	}
	return nil
}
