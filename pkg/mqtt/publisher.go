// Package mqtt implements best-effort fan-out of InferenceResponses and
// applied FeedbackRecords to an MQTT broker for an out-of-process
// mobile delivery system to consume. A publishing failure never fails
// inference or feedback processing: while disconnected nothing is sent,
// a rate-limit hit drops the message, and a broker error is logged. A
// message that is sent is published synchronously, waiting for the
// broker's acknowledgement before returning.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/time/rate"

	"github.com/mirakessler/nudge/pkg"
	"github.com/mirakessler/nudge/pkg/logx"
)

// Config holds MQTT broker configuration.
type Config struct {
	Broker      string `json:"broker"`
	Port        int    `json:"port"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic_prefix"`
	QoS         int    `json:"qos"`
	Retain      bool   `json:"retain"`
	Enabled     bool   `json:"enabled"`
}

// DefaultConfig returns a disabled, localhost-pointed Config.
func DefaultConfig() *Config {
	return &Config{
		Broker:      "localhost",
		Port:        1883,
		ClientID:    "nudged",
		TopicPrefix: "nudge",
		QoS:         1,
		Retain:      false,
		Enabled:     false,
	}
}

// Publisher publishes suggestion and feedback events to MQTT, rate
// limited so a noisy inference loop can't flood the broker.
type Publisher struct {
	client      MQTT.Client
	logger      *logx.Logger
	config      *Config
	connected   bool
	lastPublish time.Time
	limiter     *rate.Limiter
}

// NewPublisher creates a Publisher. The limiter allows burst publishes
// up to burst, refilling at ratePerSecond per second.
func NewPublisher(config *Config, logger *logx.Logger, ratePerSecond float64, burst int) *Publisher {
	if ratePerSecond <= 0 {
		ratePerSecond = 10
	}
	if burst <= 0 {
		burst = 10
	}
	return &Publisher{
		logger:  logger,
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

// Connect establishes the MQTT connection. A no-op if the publisher is
// disabled in config.
func (p *Publisher) Connect() error {
	if !p.config.Enabled {
		p.logger.Debug("mqtt publisher disabled")
		return nil
	}

	opts := MQTT.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", p.config.Broker, p.config.Port))
	opts.SetClientID(p.config.ClientID)

	if p.config.Username != "" {
		opts.SetUsername(p.config.Username)
		opts.SetPassword(p.config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	opts.SetOnConnectHandler(p.onConnect)
	opts.SetConnectionLostHandler(p.onConnectionLost)

	p.client = MQTT.NewClient(opts)

	if token := p.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to mqtt broker: %w", token.Error())
	}

	p.logger.Info("mqtt publisher connected", "broker", p.config.Broker, "port", p.config.Port)
	return nil
}

// Disconnect tears down the MQTT connection, if any.
func (p *Publisher) Disconnect() error {
	if p.client != nil && p.connected {
		p.client.Disconnect(250)
		p.connected = false
		p.logger.Info("mqtt publisher disconnected")
	}
	return nil
}

func (p *Publisher) onConnect(MQTT.Client) {
	p.connected = true
	p.logger.Info("mqtt connection established")
}

func (p *Publisher) onConnectionLost(_ MQTT.Client, err error) {
	p.connected = false
	p.logger.Error("mqtt connection lost", "error", err.Error())
}

// PublishSuggestions publishes an InferenceResponse to
// "<prefix>/suggestions". Best-effort: failures are logged, never
// returned to the HTTP caller.
func (p *Publisher) PublishSuggestions(resp pkg.InferenceResponse) {
	if !p.shouldPublish() {
		return
	}
	topic := fmt.Sprintf("%s/suggestions", p.config.TopicPrefix)
	p.publishJSONBestEffort(topic, map[string]any{
		"timestamp": time.Now(),
		"response":  resp,
	})
}

// PublishFeedback publishes an applied FeedbackRecord to
// "<prefix>/feedback".
func (p *Publisher) PublishFeedback(rec pkg.FeedbackRecord) {
	if !p.shouldPublish() {
		return
	}
	topic := fmt.Sprintf("%s/feedback", p.config.TopicPrefix)
	p.publishJSONBestEffort(topic, map[string]any{
		"timestamp": time.Now(),
		"feedback":  rec,
	})
}

func (p *Publisher) shouldPublish() bool {
	return p.config.Enabled && p.connected
}

// publishJSONBestEffort rate-limits, marshals, and publishes payload,
// logging (never returning) any failure.
func (p *Publisher) publishJSONBestEffort(topic string, payload any) {
	if !p.limiter.Allow() {
		p.logger.Debug("mqtt publish dropped by rate limiter", "topic", topic)
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("failed to marshal mqtt payload", "error", err.Error(), "topic", topic)
		return
	}

	token := p.client.Publish(topic, byte(p.config.QoS), p.config.Retain, data)
	if token.Wait() && token.Error() != nil {
		p.logger.Error("failed to publish mqtt message", "error", token.Error().Error(), "topic", topic)
		return
	}

	p.lastPublish = time.Now()
	p.logger.Debug("mqtt message published", "topic", topic, "size", len(data))
}

// IsConnected reports whether the underlying MQTT client is connected.
func (p *Publisher) IsConnected() bool {
	return p.connected && p.client != nil && p.client.IsConnected()
}

// LastPublish returns the timestamp of the most recent successful publish.
func (p *Publisher) LastPublish() time.Time {
	return p.lastPublish
}
