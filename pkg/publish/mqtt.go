// Package publish mirrors capability changes to an MQTT broker.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/meterbill/pkg/log"
	"github.com/raterudder/meterbill/pkg/storage"
	"github.com/raterudder/meterbill/pkg/types"
)

// Publisher is the part of mqtt.Client the Database needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Message is the payload published for a capability.
type Message struct {
	DeviceID   string          `json:"deviceId"`
	Capability string          `json:"capability"`
	Kind       types.ValueKind `json:"kind"`
	Value      any             `json:"value"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// Database wraps a storage.Database and publishes every capability whose
// stored value changed. Publishing never fails a Set.
type Database struct {
	storage.Database

	Publisher Publisher
	Prefix    string
	QoS       byte
	Timeout   time.Duration

	now func() time.Time
}

// Wrap returns db publishing through p under prefix.
func Wrap(db storage.Database, p Publisher, prefix string) *Database {
	return &Database{
		Database:  db,
		Publisher: p,
		Prefix:    prefix,
		QoS:       1,
		Timeout:   5 * time.Second,
	}
}

// Topic returns the topic of a capability.
func (d *Database) Topic(deviceID, name string) string {
	return fmt.Sprintf("%s/%s/%s", d.Prefix, deviceID, name)
}

func (d *Database) Set(ctx context.Context, deviceID, name string, value types.CapabilityValue) (bool, error) {
	changed, err := d.Database.Set(ctx, deviceID, name, value)
	if err != nil || !changed || d.Publisher == nil {
		return changed, err
	}

	now := time.Now
	if d.now != nil {
		now = d.now
	}
	b, err := json.Marshal(Message{
		DeviceID:   deviceID,
		Capability: name,
		Kind:       value.Kind,
		Value:      value.Any(),
		UpdatedAt:  now(),
	})
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to encode capability", slog.String("capability", name), slog.Any("error", err))
		return changed, nil
	}

	topic := d.Topic(deviceID, name)
	token := d.Publisher.Publish(topic, d.QoS, true, b)
	if !token.WaitTimeout(d.Timeout) {
		log.Ctx(ctx).WarnContext(ctx, "timed out publishing capability", slog.String("topic", topic))
	} else if err := token.Error(); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to publish capability", slog.String("topic", topic), slog.Any("error", err))
	}
	return changed, nil
}

// Close disconnects the client, when it is one, and closes the wrapped
// storage.
func (d *Database) Close() error {
	if c, ok := d.Publisher.(mqtt.Client); ok {
		c.Disconnect(250)
	}
	return d.Database.Close()
}

// Configured wraps db with an MQTT publisher when mqtt-broker is set and
// returns db unchanged otherwise.
func Configured(db storage.Database) storage.Database {
	broker := lflag.String("mqtt-broker", "", "MQTT broker to publish capability changes to, e.g. tcp://localhost:1883. Empty disables publishing")
	clientID := lflag.String("mqtt-client-id", "meterbill", "MQTT client id")
	username := lflag.String("mqtt-username", "", "MQTT username")
	password := lflag.String("mqtt-password", "", "MQTT password")
	prefix := lflag.String("mqtt-topic-prefix", "meterbill", "Prefix of every published topic")
	timeout := lflag.Duration("mqtt-timeout", 5*time.Second, "Timeout for connecting and publishing")

	var p struct{ storage.Database }
	lflag.Do(func() {
		if *broker == "" {
			p.Database = db
			return
		}
		opts := mqtt.NewClientOptions().
			AddBroker(*broker).
			SetClientID(*clientID).
			SetAutoReconnect(true).
			SetConnectTimeout(*timeout)
		if *username != "" {
			opts.SetUsername(*username)
			opts.SetPassword(*password)
		}
		c := mqtt.NewClient(opts)
		if token := c.Connect(); !token.WaitTimeout(*timeout) || token.Error() != nil {
			panic(fmt.Sprintf("failed to connect to mqtt broker %s: %v", *broker, token.Error()))
		}
		wrapped := Wrap(db, c, *prefix)
		wrapped.Timeout = *timeout
		p.Database = wrapped
		slog.Info("publishing capabilities", slog.String("broker", *broker), slog.String("prefix", *prefix))
	})
	return &p
}
