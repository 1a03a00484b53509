// Package mqtt publishes readings to an MQTT broker and receives plugin
// reconfiguration requests on a control topic.
package mqtt

import (
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/eddielth/pt100-south/config"
	"github.com/eddielth/pt100-south/logger"
	"github.com/eddielth/pt100-south/plugin"
)

// Client represents an MQTT client
type Client struct {
	client mqtt.Client
	config config.MQTTConfig
}

// MessageHandler is the callback function type for handling MQTT messages
type MessageHandler func(topic string, payload []byte)

// ReconfigureFunc applies plugin configuration values received on the control topic
type ReconfigureFunc func(values map[string]string) error

// Manager publishes batches and dispatches control messages
type Manager struct {
	client      *Client
	encode      Encoder
	topicPrefix string
	reconfigure ReconfigureFunc
}

// NewManager creates a new MQTT manager
func NewManager(cfg config.MQTTConfig, reconfigure ReconfigureFunc) (*Manager, error) {
	encode, err := NewEncoder(cfg.Format)
	if err != nil {
		return nil, err
	}

	mqttClient, err := newClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MQTT client: %w", err)
	}

	return &Manager{
		client:      mqttClient,
		encode:      encode,
		topicPrefix: strings.TrimSuffix(cfg.TopicPrefix, "/"),
		reconfigure: reconfigure,
	}, nil
}

// ControlTopic is the topic reconfiguration requests arrive on
func (m *Manager) ControlTopic() string {
	return m.topicPrefix + "/config"
}

// ReadingTopic is the topic a reading of asset is published on
func (m *Manager) ReadingTopic(asset string) string {
	return m.topicPrefix + "/" + strings.TrimPrefix(asset, "/")
}

// Start connects to the broker and subscribes to the control topic
func (m *Manager) Start() error {
	if err := m.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	if m.reconfigure != nil {
		if err := m.client.Subscribe(m.ControlTopic(), m.handleControl); err != nil {
			logger.Warn("failed to subscribe to topic %s: %v", m.ControlTopic(), err)
		}
	}

	return nil
}

// Stop stops the MQTT service
func (m *Manager) Stop() {
	m.client.Disconnect()
}

// Store publishes every reading of batch, making the manager usable as a storage backend
func (m *Manager) Store(batch plugin.Batch) error {
	for _, reading := range batch {
		payload, err := m.encode(reading)
		if err != nil {
			return fmt.Errorf("failed to encode reading %s: %w", reading.Key, err)
		}
		if err := m.client.Publish(m.ReadingTopic(reading.Asset), payload); err != nil {
			return err
		}
	}
	return nil
}

// Close implements the storage backend contract
func (m *Manager) Close() error {
	m.Stop()
	return nil
}

// handleControl decodes a control message and forwards it to the reconfigure callback
func (m *Manager) handleControl(topic string, payload []byte) {
	values, err := plugin.DecodeValues(payload)
	if err != nil {
		logger.Warn("ignoring message on %s: %v", topic, err)
		return
	}

	logger.Info("reconfiguration requested on %s: %v", topic, values)
	if err := m.reconfigure(values); err != nil {
		logger.Error("reconfiguration from %s failed: %v", topic, err)
	}
}

// newClient creates a new MQTT client
func newClient(config config.MQTTConfig) (*Client, error) {
	if config.Broker == "" {
		return nil, fmt.Errorf("MQTT broker address cannot be empty")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)

	if config.ClientID == "" {
		config.ClientID = fmt.Sprintf("pt100-south-%d", time.Now().Unix())
	}
	opts.SetClientID(config.ClientID)

	if config.Username != "" {
		opts.SetUsername(config.Username)
		opts.SetPassword(config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Error("MQTT connection lost: %v", err)
	})

	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		logger.Info("trying to reconnect to MQTT broker...")
	})

	return &Client{
		client: mqtt.NewClient(opts),
		config: config,
	}, nil
}

// Connect connects to the MQTT broker
func (c *Client) Connect() error {
	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("connection to MQTT broker timed out")
	}

	if err := token.Error(); err != nil {
		return err
	}

	logger.Info("successfully connected to MQTT broker: %s", c.config.Broker)
	return nil
}

// Subscribe subscribes handler to the specified topic
func (c *Client) Subscribe(topic string, handler MessageHandler) error {
	token := c.client.Subscribe(topic, c.config.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		logger.Debug("received message from topic %s", msg.Topic())
		handler(msg.Topic(), msg.Payload())
	})

	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscription to topic %s timed out", topic)
	}

	if err := token.Error(); err != nil {
		return err
	}

	logger.Info("successfully subscribed to topic: %s", topic)
	return nil
}

// Publish sends payload to topic
func (c *Client) Publish(topic string, payload []byte) error {
	token := c.client.Publish(topic, c.config.QoS, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish to topic %s timed out", topic)
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}

	logger.Debug("published %d bytes to topic %s", len(payload), topic)
	return nil
}

// Disconnect disconnects from the MQTT broker
func (c *Client) Disconnect() {
	c.client.Disconnect(250)
	logger.Info("disconnected from MQTT broker")
}
