package report

import (
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// DefaultTopicPrefix is prepended to every reading name.
const DefaultTopicPrefix = "energy/meter/sensor"

// MQTTReporter publishes each reading to "<prefix>/<name>" on a broker.
// A fresh connection is made per reading and closed afterwards, so an
// unreachable broker costs one timeout and leaves no client state behind.
type MQTTReporter struct {
	broker   string
	prefix   string
	clientID string
	timeout  time.Duration
	now      func() time.Time
	stats    Stats

	// newClient is replaced in tests.
	newClient func(*paho.ClientOptions) paho.Client
}

// NewMQTTReporter creates a reporter for the given broker URL.
func NewMQTTReporter(broker, prefix, clientID string, timeout time.Duration) *MQTTReporter {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	if clientID == "" {
		clientID = "meter-sensor"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &MQTTReporter{
		broker:    broker,
		prefix:    strings.TrimSuffix(prefix, "/"),
		clientID:  clientID,
		timeout:   timeout,
		now:       time.Now,
		newClient: paho.NewClient,
	}
}

// Topic returns the topic a reading name publishes to.
func (m *MQTTReporter) Topic(name string) string {
	return m.prefix + "/" + name
}

// Report connects, publishes the value at QoS 0 (not retained) and disconnects.
func (m *MQTTReporter) Report(name string, value float64) error {
	if err := m.publish(m.Topic(name), []byte(FormatValue(value))); err != nil {
		m.stats.Failed++
		m.stats.LastError = err.Error()
		return err
	}
	m.stats.Sent++
	m.stats.LastSent = m.now()
	return nil
}

func (m *MQTTReporter) publish(topic string, payload []byte) error {
	opts := paho.NewClientOptions().
		AddBroker(m.broker).
		SetClientID(m.clientID).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(m.timeout)

	client := m.newClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(m.timeout) {
		return fmt.Errorf("connect to %s: timeout", m.broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to %s: %w", m.broker, err)
	}
	defer client.Disconnect(250)

	token = client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(m.timeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Stats returns delivery counters.
func (m *MQTTReporter) Stats() Stats { return m.stats }
