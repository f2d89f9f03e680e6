// Package brokertest provides an in-memory paho client for tests.
package brokertest

import (
	"errors"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var ErrRefused = errors.New("connection refused: not authorised")

// Publish is one recorded publish.
type Publish struct {
	ClientID string
	Topic    string
	Payload  string
	Retained bool
	QoS      byte
}

// Broker hands out fake clients and records what they do.
type Broker struct {
	mu        sync.Mutex
	refuse    int // connects still to refuse
	failPub   bool
	publishes []Publish
	clientIDs []string
	clients   []*Client
}

// RefuseNext makes the next n connects fail.
func (b *Broker) RefuseNext(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refuse = n
}

// FailPublishes makes every publish return an error while on.
func (b *Broker) FailPublishes(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failPub = on
}

// NewClient matches the signature of mqtt.NewClient.
func (b *Broker) NewClient(opts *mqtt.ClientOptions) mqtt.Client {
	r := mqtt.NewOptionsReader(opts)
	c := &Client{broker: b, id: r.ClientID(), opts: opts}
	b.mu.Lock()
	b.clients = append(b.clients, c)
	b.mu.Unlock()
	return c
}

func (b *Broker) Publishes() []Publish {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Publish(nil), b.publishes...)
}

// Retained returns only the retained publishes.
func (b *Broker) Retained() []Publish {
	var out []Publish
	for _, p := range b.Publishes() {
		if p.Retained {
			out = append(out, p)
		}
	}
	return out
}

// On returns the publishes on topic.
func (b *Broker) On(topic string) []Publish {
	var out []Publish
	for _, p := range b.Publishes() {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

// Reset forgets recorded publishes.
func (b *Broker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishes = nil
}

// ConnectAttempts returns the client ids of every connect attempt.
func (b *Broker) ConnectAttempts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.clientIDs...)
}

// Last returns the most recently created client.
func (b *Broker) Last() *Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.clients) == 0 {
		return nil
	}
	return b.clients[len(b.clients)-1]
}

// Client is a fake mqtt.Client. Methods the node does not use panic through
// the nil embedded interface.
type Client struct {
	mqtt.Client
	broker *Broker
	id     string
	opts   *mqtt.ClientOptions

	mu        sync.Mutex
	connected bool
}

func (c *Client) Connect() mqtt.Token {
	b := c.broker
	b.mu.Lock()
	b.clientIDs = append(b.clientIDs, c.id)
	refuse := b.refuse > 0
	if refuse {
		b.refuse--
	}
	b.mu.Unlock()

	if refuse {
		return &Token{err: ErrRefused}
	}
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return &Token{}
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) IsConnectionOpen() bool { return c.IsConnected() }

func (c *Client) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

func (c *Client) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failPub {
		return &Token{err: errors.New("write: broken pipe")}
	}
	s, _ := payload.(string)
	b.publishes = append(b.publishes, Publish{ClientID: c.id, Topic: topic, Payload: s, Retained: retained, QoS: qos})
	return &Token{}
}

// Drop simulates the broker closing the connection, firing the lost handler.
func (c *Client) Drop(err error) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	if h := c.opts.OnConnectionLost; h != nil {
		h(c, err)
	}
}

// Token is an already-completed mqtt.Token.
type Token struct {
	err error
}

func (t *Token) Wait() bool                     { return true }
func (t *Token) WaitTimeout(time.Duration) bool { return true }
func (t *Token) Error() error                   { return t.err }

func (t *Token) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
