package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTPublisher publishes events as JSON on `<prefix>/<table>/<op>` with QoS 1.
type MQTTPublisher struct {
	client mqtt.Client
	logger *zap.Logger
	prefix string
	qos    byte
}

// NewMQTTPublisher connects to broker, e.g. "tcp://localhost:1883".
func NewMQTTPublisher(broker, prefix string, logger *zap.Logger) (*MQTTPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(fmt.Sprintf("rowgate-%d", time.Now().UnixNano())).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("MQTT connection lost", zap.Error(err))
		})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("broker connection error: %w", token.Error())
	}

	return newMQTTPublisher(client, prefix, logger), nil
}

func newMQTTPublisher(client mqtt.Client, prefix string, logger *zap.Logger) *MQTTPublisher {
	return &MQTTPublisher{client: client, prefix: prefix, logger: logger, qos: 1}
}

// Publish waits for the broker acknowledgement or ctx cancellation.
func (p *MQTTPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	topic := Topic(p.prefix, e)
	token := p.client.Publish(topic, p.qos, false, payload)

	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	p.logger.Debug("event published", zap.String("topic", topic))
	return nil
}

// Close disconnects from the broker, allowing 250ms for in-flight work.
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
