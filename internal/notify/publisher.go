package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/roman-kulish/rfnoc-capture/internal/receiver"
)

const (
	DefaultTopic          = "rfnoc-capture"
	DefaultPublishTimeout = 5 * time.Second
)

// Client is the part of mqtt.Client used by the publisher
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Config is the broker connection configuration
type Config struct {
	Broker   string `yaml:"broker" json:"broker"`
	Topic    string `yaml:"topic" json:"topic"`
	ClientID string `yaml:"clientId" json:"clientId"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	QoS      byte   `yaml:"qos" json:"qos"`
	Retain   bool   `yaml:"retain" json:"retain"`
}

func (c *Config) Validate() error {
	if c.Broker == "" {
		return errors.New("mqtt: broker required")
	}
	if c.QoS > 2 {
		return fmt.Errorf("mqtt: invalid QoS %d", c.QoS)
	}
	return nil
}

// Connect dials the broker described by config
func Connect(config Config, logger *slog.Logger) (mqtt.Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	clientID := config.ClientID
	if clientID == "" {
		clientID = "rfnoc_capture_" + uuid.NewString()[:8]
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(clientID)
	if config.Username != "" {
		opts.SetUsername(config.Username)
	}
	if config.Password != "" {
		opts.SetPassword(config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", slog.String("error", err.Error()))
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to mqtt broker %s: %w", config.Broker, token.Error())
	}

	logger.Info("connected to mqtt broker", slog.String("broker", config.Broker))
	return client, nil
}

// MeasurementPayload is published to <topic>/measurement
type MeasurementPayload struct {
	RunID      string      `json:"runId"`
	Index      int         `json:"index"`
	Status     string      `json:"status"`
	Requested  uint64      `json:"requested"`
	Accepted   uint64      `json:"accepted"`
	Shortfall  uint64      `json:"shortfall"`
	Overflows  int         `json:"overflows"`
	Clipped    int         `json:"clippedChunks"`
	MaxI       float64     `json:"maxI"`
	MaxQ       float64     `json:"maxQ"`
	Bytes      int64       `json:"bytes"`
	ChunkSizes map[int]int `json:"chunkSizes,omitempty"`
	Files      []string    `json:"files,omitempty"`
	Error      string      `json:"error,omitempty"`
	Timestamp  int64       `json:"timestamp"`
	DurationMs int64       `json:"durationMs"`
}

// RunPayload is published to <topic>/run
type RunPayload struct {
	RunID        string   `json:"runId"`
	Measurements int      `json:"measurements"`
	Failed       int      `json:"failed"`
	Accepted     uint64   `json:"accepted"`
	Bytes        int64    `json:"bytes"`
	Cancelled    bool     `json:"cancelled"`
	Files        []string `json:"files,omitempty"`
	Timestamp    int64    `json:"timestamp"`
	DurationMs   int64    `json:"durationMs"`
}

// WithLogger sets the logger for the publisher
func WithLogger(logger *slog.Logger) func(p *Publisher) {
	return func(p *Publisher) {
		p.logger = logger.With(slog.String("component", "mqtt"))
	}
}

// WithTimeout bounds the wait for each publish acknowledgement
func WithTimeout(timeout time.Duration) func(p *Publisher) {
	return func(p *Publisher) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

// Publisher is a receiver.Observer publishing measurement and run summaries.
// Acknowledgements are awaited in the background; failures are logged and
// never interrupt the run.
type Publisher struct {
	receiver.BaseObserver

	client  Client
	topic   string
	qos     byte
	retain  bool
	timeout time.Duration
	runID   string
	pending sync.WaitGroup

	logger *slog.Logger
}

// NewPublisher creates a new Publisher instance with a discard logger
func NewPublisher(client Client, config Config, options ...func(p *Publisher)) *Publisher {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	topic := config.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	p := Publisher{
		client:  client,
		topic:   topic,
		qos:     config.QoS,
		retain:  config.Retain,
		timeout: DefaultPublishTimeout,
		logger:  logger,
	}

	for _, option := range options {
		option(&p)
	}

	return &p
}

func (p *Publisher) OnRunStart(_ context.Context, info receiver.RunInfo) {
	p.runID = info.RunID
}

func (p *Publisher) OnMeasurementEnd(_ context.Context, m *receiver.MeasurementResult) {
	payload := MeasurementPayload{
		RunID:      p.runID,
		Index:      m.Index,
		Status:     string(m.Status),
		Requested:  m.Requested,
		Accepted:   m.Accepted,
		Shortfall:  m.Shortfall(),
		Overflows:  m.Overflows,
		Clipped:    m.ClippedChunks,
		MaxI:       m.MaxI,
		MaxQ:       m.MaxQ,
		Bytes:      m.Bytes,
		ChunkSizes: m.ChunkSizes,
		Files:      m.Files,
		Timestamp:  m.FinishedAt.Unix(),
		DurationMs: m.Duration().Milliseconds(),
	}
	if m.Err != nil {
		payload.Error = m.Err.Error()
	}

	p.publish(p.topic+"/measurement", payload)
}

func (p *Publisher) OnRunEnd(_ context.Context, r *receiver.RunResult) {
	p.publish(p.topic+"/run", RunPayload{
		RunID:        r.RunID,
		Measurements: len(r.Measurements),
		Failed:       r.Failed(),
		Accepted:     r.Accepted(),
		Bytes:        r.Bytes(),
		Cancelled:    r.Cancelled,
		Files:        r.Files,
		Timestamp:    r.FinishedAt.Unix(),
		DurationMs:   r.FinishedAt.Sub(r.StartedAt).Milliseconds(),
	})
}

func (p *Publisher) publish(topic string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("failed to marshal payload", slog.String("topic", topic), slog.String("error", err.Error()))
		return
	}

	token := p.client.Publish(topic, p.qos, p.retain, data)

	p.pending.Add(1)
	go p.await(topic, token)
}

func (p *Publisher) await(topic string, token mqtt.Token) {
	defer p.pending.Done()

	if !token.WaitTimeout(p.timeout) {
		p.logger.Warn("publish not acknowledged", slog.String("topic", topic), slog.Duration("timeout", p.timeout))
		return
	}
	if err := token.Error(); err != nil {
		p.logger.Error("failed to publish", slog.String("topic", topic), slog.String("error", err.Error()))
	}
}

// Close waits for outstanding acknowledgements, each bounded by the publish
// timeout, then disconnects the client
func (p *Publisher) Close() error {
	p.pending.Wait()
	p.client.Disconnect(250)
	return nil
}
