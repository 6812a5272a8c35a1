package poller

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/razem-io/ha-bayrol-cloud/pkg/dedup"
	pkgmqtt "github.com/razem-io/ha-bayrol-cloud/pkg/mqtt"
)

// CommandListener receives option writes from the host platform over MQTT
// and drives the write-verify protocol. Failures are surfaced as
// notifications, suppressed per control item so a repeating failure does not
// flood the platform.
type CommandListener struct {
	ctx          context.Context
	coordinators map[string]*Coordinator
	publisher    *Publisher
	metrics      *Metrics
	suppressor   *dedup.Suppressor
}

func NewCommandListener(ctx context.Context, cs []*Coordinator, pub *Publisher, metrics *Metrics) *CommandListener {
	byCID := make(map[string]*Coordinator, len(cs))
	for _, c := range cs {
		byCID[c.CID()] = c
	}
	return &CommandListener{
		ctx:          ctx,
		coordinators: byCID,
		publisher:    pub,
		metrics:      metrics,
		suppressor:   dedup.New(15*time.Minute, 64),
	}
}

// Start subscribes to the control command filter on the shared client.
func (l *CommandListener) Start(client mqtt.Client) error {
	return pkgmqtt.Subscribe(client, l.publisher.CommandFilter(), l.handle)
}

// handle runs on paho's router goroutine; the actual write happens in its
// own goroutine because write-verify blocks for many seconds.
func (l *CommandListener) handle(topic string, payload []byte) {
	cid, sensorID, ok := splitCommandTopic(topic)
	if !ok {
		log.Printf("ignoring command on unexpected topic %s", topic)
		return
	}

	coord, ok := l.coordinators[cid]
	if !ok {
		log.Printf("command for unknown controller %s ignored", cid)
		return
	}

	snap, at := coord.Last()
	if at.IsZero() {
		l.notify(cid, sensorID, fmt.Sprintf("cannot change %s: no data fetched yet", sensorID))
		return
	}
	item, ok := snap.DeviceStatus[sensorID]
	if !ok {
		l.notify(cid, sensorID, fmt.Sprintf("unknown control item %s", sensorID))
		return
	}

	optionText := strings.TrimSpace(string(payload))
	go func() {
		result, err := coord.SetOption(l.ctx, item, optionText)
		l.metrics.CountWrite(result)
		switch result {
		case WriteVerified:
			l.suppressor.Reset(cid + "/" + sensorID)
		case WriteUnverified:
			l.notify(cid, sensorID, fmt.Sprintf("change of %s to %q was accepted but could not be confirmed", item.Name, optionText))
		default:
			l.notify(cid, sensorID, fmt.Sprintf("failed to change %s to %q: %v", item.Name, optionText, err))
		}
	}()
}

// notify publishes one notification per failure episode; repeats within the
// suppression window only hit the log.
func (l *CommandListener) notify(cid, sensorID, message string) {
	log.Printf("controller %s: %s", cid, message)
	if !l.suppressor.ShouldNotify(cid + "/" + sensorID) {
		return
	}
	if err := l.publisher.PublishNotification(cid, message); err != nil {
		log.Printf("controller %s: publishing notification failed: %v", cid, err)
	}
}

// splitCommandTopic extracts cid and sensor id from
// <prefix>/<cid>/control/<sensor>/set.
func splitCommandTopic(topic string) (cid, sensorID string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 5 || parts[len(parts)-1] != "set" || parts[len(parts)-3] != "control" {
		return "", "", false
	}
	return parts[len(parts)-4], parts[len(parts)-2], true
}
