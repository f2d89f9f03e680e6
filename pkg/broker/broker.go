package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sony/gobreaker"

	"github.com/LeonardoBeccarini/smartdustbin/internal/clock"
)

var (
	ErrNotConnected  = errors.New("mqtt session not connected")
	ErrPublishFailed = errors.New("mqtt publish failed")
)

type Config struct {
	Host           string
	Port           int
	ClientIDPrefix string
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	Attempts       int           // connects per EnsureConnected call
	RetryDelay     time.Duration // wait after a failed connect
}

// Message is a payload bound to a topic.
type Message struct {
	Topic   string
	Payload string
}

// Recorder receives session events, typically for metrics.
type Recorder interface {
	Published(topic string, retained bool)
	PublishFailed(topic string)
	Connected(attempts int)
	ConnectFailed()
}

type nopRecorder struct{}

func (nopRecorder) Published(string, bool) {}
func (nopRecorder) PublishFailed(string)   {}
func (nopRecorder) Connected(int)          {}
func (nopRecorder) ConnectFailed()         {}

// Session owns the broker connection of the node. It is driven from the
// single control loop; only the connection-lost callback runs on paho's goroutines.
type Session struct {
	cfg       Config
	logger    *slog.Logger
	newClient func(*mqtt.ClientOptions) mqtt.Client
	random    func() uint16
	sleeper   clock.Sleeper
	recorder  Recorder
	breaker   *gobreaker.CircuitBreaker

	client    mqtt.Client
	connected bool
	lost      atomic.Bool
	gen       atomic.Uint64

	seeds  []Message
	seeded bool
}

type Option func(*Session)

// WithClientFactory replaces mqtt.NewClient.
func WithClientFactory(f func(*mqtt.ClientOptions) mqtt.Client) Option {
	return func(s *Session) { s.newClient = f }
}

// WithRandom replaces the source of the client-id suffix.
func WithRandom(f func() uint16) Option {
	return func(s *Session) { s.random = f }
}

// WithSleeper sets the wait used between connect attempts.
func WithSleeper(sl clock.Sleeper) Option {
	return func(s *Session) { s.sleeper = sl }
}

func WithRecorder(r Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

// WithSeeds sets the retained messages published once, on the first
// successful connect of the process lifetime.
func WithSeeds(seeds ...Message) Option {
	return func(s *Session) { s.seeds = append([]Message(nil), seeds...) }
}

func NewSession(cfg Config, logger *slog.Logger, opts ...Option) *Session {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		cfg:       cfg,
		logger:    logger,
		newClient: mqtt.NewClient,
		random:    func() uint16 { return uint16(rand.Intn(0x10000)) },
		sleeper:   clock.NewSystem(),
		recorder:  nopRecorder{},
	}
	for _, o := range opts {
		o(s)
	}
	s.breaker = s.newBreaker()
	return s
}

// newBreaker guards publishes on one connection. Failures seen on a previous
// connection say nothing about the next one, so every successful connect
// starts from a closed breaker.
func (s *Session) newBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "mqtt-publish",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 5 },
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn("mqtt publish breaker", "name", name, "from", from.String(), "to", to.String())
		},
	})
}

// Connected reports whether the last handshake succeeded and no later
// Service call observed the session going away.
func (s *Session) Connected() bool { return s.connected }

// Seeded reports whether the first-connect seed has been published.
func (s *Session) Seeded() bool { return s.seeded }

// EnsureConnected makes up to cfg.Attempts connects, waiting cfg.RetryDelay
// after each failure. Every attempt uses a fresh client id so a ghost session
// on the broker cannot preempt it.
func (s *Session) EnsureConnected(ctx context.Context) error {
	if s.connected {
		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.cfg.RetryDelay), uint64(s.cfg.Attempts-1)),
		ctx,
	)
	attempts := 0
	err := backoff.RetryNotifyWithTimer(func() error {
		attempts++
		return s.connectOnce()
	}, bo, func(err error, next time.Duration) {
		s.logger.Warn("mqtt connect failed, retrying", "attempt", attempts, "retry_in", next, "err", err)
	}, clock.NewBackoffTimer(s.sleeper))
	if err != nil {
		s.recorder.ConnectFailed()
		s.logger.Error("could not establish MQTT connection after retries", "attempts", attempts, "err", err)
		return fmt.Errorf("could not establish MQTT connection after %d attempts: %w", attempts, err)
	}

	s.recorder.Connected(attempts)
	if !s.seeded {
		for _, m := range s.seeds {
			_ = s.Publish(m.Topic, m.Payload, true)
		}
		s.seeded = true
		s.logger.Info("default values published with retained flag", "count", len(s.seeds))
	}
	return nil
}

func (s *Session) connectOnce() error {
	id := fmt.Sprintf("%s%04x", s.cfg.ClientIDPrefix, s.random())
	gen := s.gen.Add(1)

	client := s.newClient(s.clientOptions(id, gen))
	token := client.Connect()
	if !token.WaitTimeout(s.cfg.ConnectTimeout) {
		client.Disconnect(0)
		return fmt.Errorf("connect %s: timed out after %s", id, s.cfg.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect %s: %w", id, err)
	}

	s.client = client
	s.connected = true
	s.lost.Store(false)
	s.breaker = s.newBreaker()
	s.logger.Info("connected to MQTT broker", "broker", s.brokerURL(), "client_id", id)
	return nil
}

func (s *Session) brokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", s.cfg.Host, s.cfg.Port)
}

func (s *Session) clientOptions(id string, gen uint64) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.brokerURL())
	opts.SetClientID(id)
	opts.SetKeepAlive(s.cfg.KeepAlive)
	opts.SetConnectTimeout(s.cfg.ConnectTimeout)
	opts.SetCleanSession(true)
	// reconnects are owned by EnsureConnected
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		if s.gen.Load() == gen {
			s.lost.Store(true)
		}
		s.logger.Warn("mqtt connection lost", "client_id", id, "err", err)
	})
	return opts
}

// Service is called on every scheduler tick. Keep-alive and inbound dispatch
// run inside the paho client; here the loop observes a dropped session.
func (s *Session) Service() {
	if !s.connected {
		return
	}
	if s.lost.Swap(false) || !s.client.IsConnectionOpen() {
		s.connected = false
		s.logger.Warn("mqtt session down, will reconnect on next tick")
	}
}

// Publish delivers payload at QoS 0. Failures are logged and returned; the
// caller is expected to drop them.
func (s *Session) Publish(topic, payload string, retained bool) error {
	if !s.connected {
		s.recorder.PublishFailed(topic)
		s.logger.Warn("publish dropped", "topic", topic, "payload", payload, "err", ErrNotConnected)
		return ErrNotConnected
	}

	_, err := s.breaker.Execute(func() (interface{}, error) {
		token := s.client.Publish(topic, 0, retained, payload)
		if !token.WaitTimeout(s.cfg.PublishTimeout) {
			return nil, fmt.Errorf("%w: %s timed out", ErrPublishFailed, topic)
		}
		if err := token.Error(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPublishFailed, err)
		}
		return nil, nil
	})
	if err != nil {
		s.recorder.PublishFailed(topic)
		s.logger.Warn("publish failed", "topic", topic, "payload", payload, "retained", retained, "err", err)
		return err
	}

	s.recorder.Published(topic, retained)
	s.logger.Info("published", "topic", topic, "payload", payload, "retained", retained)
	return nil
}

// Disconnect closes the session, waiting quiesce for in-flight work.
func (s *Session) Disconnect(quiesce time.Duration) {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(uint(quiesce.Milliseconds()))
		s.logger.Info("MQTT connection closed")
	}
	s.connected = false
}
