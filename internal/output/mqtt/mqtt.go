package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/crimson-sun/nocdash/internal/model"
	"github.com/crimson-sun/nocdash/internal/output"
)

const (
	DefaultTopic          = "nocdash/reports"
	defaultQoS            = 1
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
)

// publisher is the part of paho.Client the sink needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// Option configures an MQTT Output.
type Option func(*Output)

// WithQoS sets the publish QoS (0, 1 or 2). Default: 1.
func WithQoS(qos byte) Option {
	return func(o *Output) { o.qos = qos }
}

// WithRetained marks published reports as retained on the broker.
func WithRetained() Option {
	return func(o *Output) { o.retained = true }
}

// WithVerbosity sets how much of each report is published. Default: Standard.
func WithVerbosity(v output.Verbosity) Option {
	return func(o *Output) { o.verbosity = v }
}

// WithCredentials sets broker username and password.
func WithCredentials(user, pass string) Option {
	return func(o *Output) { o.user, o.pass = user, pass }
}

// WithPublishTimeout bounds the wait for a broker acknowledgement. Default: 5s.
func WithPublishTimeout(d time.Duration) Option {
	return func(o *Output) { o.publishTimeout = d }
}

// Output publishes each saved report as JSON to "<topic>/<verdict>", e.g.
// "nocdash/reports/abnormal", so subscribers can filter on verdict.
type Output struct {
	client         publisher
	topic          string
	qos            byte
	retained       bool
	verbosity      output.Verbosity
	user, pass     string
	publishTimeout time.Duration
}

// New connects to broker (e.g. "tcp://localhost:1883") and returns an
// Output publishing under topic.
func New(broker, topic string, opts ...Option) (*Output, error) {
	o := newOutput(nil, topic, opts...)

	popts := paho.NewClientOptions()
	popts.AddBroker(broker)
	popts.SetClientID("nocdash-" + uuid.NewString()[:8])
	popts.SetKeepAlive(60 * time.Second)
	popts.SetPingTimeout(10 * time.Second)
	popts.SetConnectTimeout(defaultConnectTimeout)
	popts.SetAutoReconnect(true)
	popts.SetMaxReconnectInterval(time.Minute)
	if o.user != "" {
		popts.SetUsername(o.user)
		popts.SetPassword(o.pass)
	}
	popts.SetOnConnectHandler(func(paho.Client) {
		slog.Info("mqtt output connected", "broker", broker)
	})
	popts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		slog.Warn("mqtt output connection lost", "broker", broker, "error", err)
	})

	client := paho.NewClient(popts)
	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("mqtt output: connect %s: timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt output: connect %s: %w", broker, err)
	}
	o.client = client
	return o, nil
}

func newOutput(client publisher, topic string, opts ...Option) *Output {
	topic = strings.TrimRight(strings.TrimSpace(topic), "/")
	if topic == "" {
		topic = DefaultTopic
	}
	o := &Output{
		client:         client,
		topic:          topic,
		qos:            defaultQoS,
		verbosity:      output.Standard,
		publishTimeout: defaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Topic returns the topic a report is published to.
func (o *Output) Topic(r model.Report) string {
	return o.topic + "/" + strings.ToLower(string(r.Verdict))
}

func (o *Output) Write(ctx context.Context, r model.Report) error {
	payload, err := json.Marshal(output.FormatReport(r, o.verbosity))
	if err != nil {
		return fmt.Errorf("mqtt output: marshal: %w", err)
	}

	topic := o.Topic(r)
	token := o.client.Publish(topic, o.qos, o.retained, payload)

	timer := time.NewTimer(o.publishTimeout)
	defer timer.Stop()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("mqtt output: publish %s: %w", topic, ctx.Err())
	case <-timer.C:
		return fmt.Errorf("mqtt output: publish %s: %w", topic, errPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt output: publish %s: %w", topic, err)
	}
	return nil
}

var errPublishTimeout = errors.New("timed out waiting for broker")

func (o *Output) Close() error {
	if o.client != nil {
		o.client.Disconnect(250)
	}
	return nil
}
