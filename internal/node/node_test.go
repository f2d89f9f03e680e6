package node

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/smartdustbin/internal/clock"
	"github.com/LeonardoBeccarini/smartdustbin/internal/config"
	"github.com/LeonardoBeccarini/smartdustbin/internal/hal"
	"github.com/LeonardoBeccarini/smartdustbin/internal/model"
	"github.com/LeonardoBeccarini/smartdustbin/internal/netlink"
	"github.com/LeonardoBeccarini/smartdustbin/internal/ranger"
	"github.com/LeonardoBeccarini/smartdustbin/pkg/broker"
	"github.com/LeonardoBeccarini/smartdustbin/pkg/broker/brokertest"
)

type readyStation struct{}

func (readyStation) Begin(string, string) error { return nil }
func (readyStation) Status() netlink.Status     { return netlink.StatusConnected }
func (readyStation) LocalIP() net.IP            { return net.IPv4(10, 0, 0, 2) }

type rig struct {
	node      *Node
	clk       *clock.Fake
	broker    *brokertest.Broker
	fillEcho  *hal.FakeEcho
	proxEcho  *hal.FakeEcho
	indicator *hal.FakeOutput
	serial    *bytes.Buffer
}

// newRig boots a node with H = 42 cm, D = 20.0 and T = 50 cm. Nothing is in
// front of the proximity sensor unless a test queues readings.
func newRig(t *testing.T) *rig {
	t.Helper()
	r := &rig{
		clk:       clock.NewFake(0),
		broker:    &brokertest.Broker{},
		fillEcho:  hal.NewFakeEcho(),
		proxEcho:  hal.NewFakeEcho(),
		indicator: &hal.FakeOutput{},
		serial:    &bytes.Buffer{},
	}
	r.proxEcho.Idle = ranger.PulseWidth(100)
	r.fillEcho.Idle = ranger.PulseWidth(30)

	hw := Hardware{
		FillTrigger:      &hal.FakeOutput{},
		FillEcho:         r.fillEcho,
		ProximityTrigger: &hal.FakeOutput{},
		ProximityEcho:    r.proxEcho,
		Indicator:        r.indicator,
		Peer:             r.serial,
		Station:          readyStation{},
	}
	var n uint16
	r.node = New(config.Default(), hw, r.clk, slog.New(slog.NewTextHandler(io.Discard, nil)), nil,
		broker.WithClientFactory(r.broker.NewClient),
		broker.WithRandom(func() uint16 { n++; return n }),
	)
	require.NoError(t, r.node.Boot(context.Background()))
	return r
}

// proximityTick advances one proximity interval and runs a single iteration.
func (r *rig) proximityTick(t *testing.T) {
	t.Helper()
	r.serial.Reset()
	r.broker.Reset()
	r.clk.Advance(200 * time.Millisecond)
	r.node.Tick(context.Background())
}

// fillTick advances one fill interval and runs a single iteration.
func (r *rig) fillTick(t *testing.T) {
	t.Helper()
	r.broker.Reset()
	r.clk.Advance(10 * time.Second)
	r.node.Tick(context.Background())
}

func (r *rig) queueProximity(cm float64) {
	r.proxEcho.Queue(ranger.PulseWidth(cm), ranger.PulseWidth(cm), ranger.PulseWidth(cm))
}

func payloads(ps []brokertest.Publish) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Payload)
	}
	return out
}

func TestBootDrivesIndicatorLowAndWaitsForPeer(t *testing.T) {
	r := newRig(t)
	assert.Equal(t, []bool{false}, r.indicator.Levels())
	assert.Equal(t, clock.Millis(2000), r.clk.Now())
	assert.Empty(t, r.broker.ConnectAttempts(), "no broker traffic before the loop")
}

func TestS1FirstConnectSeedsRetainedDefaults(t *testing.T) {
	r := newRig(t)
	r.node.Tick(context.Background())

	assert.Equal(t, []brokertest.Publish{
		{ClientID: "smartbin_0170001", Topic: model.TopicFillLevel, Payload: "20.0", Retained: true},
		{ClientID: "smartbin_0170001", Topic: model.TopicLidState, Payload: "CLOSED", Retained: true},
	}, r.broker.Retained())
}

func TestS2FillReading(t *testing.T) {
	r := newRig(t)
	r.node.Tick(context.Background())

	r.fillEcho.Queue(ranger.PulseWidth(10))
	r.fillTick(t)

	fills := r.broker.On(model.TopicFillLevel)
	require.Len(t, fills, 1)
	assert.Equal(t, "76.2", fills[0].Payload)
	assert.False(t, fills[0].Retained)
	assert.Equal(t, []time.Duration{30 * time.Millisecond}, r.fillEcho.Timeouts(), "fill sensor echo timeout")
}

func TestS3InvalidThenEmpty(t *testing.T) {
	r := newRig(t)
	r.node.Tick(context.Background())

	r.fillEcho.Queue(0, ranger.PulseWidth(42))
	r.fillTick(t)
	first := r.broker.On(model.TopicFillLevel)
	r.fillTick(t)
	second := r.broker.On(model.TopicFillLevel)

	assert.Equal(t, []string{"20.0"}, payloads(first))
	assert.Equal(t, []string{"0.0"}, payloads(second))
	assert.Empty(t, r.broker.Retained())
}

func TestS4S5S6LidSequence(t *testing.T) {
	r := newRig(t)
	r.node.Tick(context.Background())

	// S4: hand at 30 cm while CLOSED
	r.queueProximity(30)
	r.proximityTick(t)
	assert.Equal(t, "D:30.00\nO:1\n", r.serial.String())
	assert.Equal(t, []string{"OPEN"}, payloads(r.broker.On(model.TopicLidState)))
	assert.Empty(t, r.broker.Retained())
	assert.Equal(t, model.LidOpen, r.node.LidState())
	assert.True(t, r.indicator.Level())
	require.NotEmpty(t, r.proxEcho.Timeouts())
	for _, to := range r.proxEcho.Timeouts() {
		assert.Equal(t, 15*time.Millisecond, to, "proximity sensor echo timeout")
	}

	// S6: 40 cm while OPEN
	r.queueProximity(40)
	r.proximityTick(t)
	assert.Equal(t, "D:40.00\n", r.serial.String())
	assert.Empty(t, r.broker.On(model.TopicLidState))
	assert.Equal(t, model.LidOpen, r.node.LidState())

	// S5: 60 cm while OPEN
	r.queueProximity(60)
	r.proximityTick(t)
	assert.Equal(t, "D:60.00\nO:0\n", r.serial.String())
	assert.Equal(t, []string{"CLOSED"}, payloads(r.broker.On(model.TopicLidState)))
	assert.Equal(t, model.LidClosed, r.node.LidState())
	assert.False(t, r.indicator.Level())
}

func TestReconnectDoesNotReseed(t *testing.T) {
	r := newRig(t)
	r.node.Tick(context.Background())
	require.Len(t, r.broker.Retained(), 2)

	r.broker.Last().Drop(errors.New("EOF"))
	r.proximityTick(t) // observes the drop
	r.proximityTick(t) // reconnects

	assert.Len(t, r.broker.ConnectAttempts(), 2)
	assert.Empty(t, r.broker.Retained())
}

func TestBrokerDownKeepsLoopRunning(t *testing.T) {
	r := newRig(t)
	r.broker.RefuseNext(3)
	r.node.Tick(context.Background())
	assert.Len(t, r.broker.ConnectAttempts(), 3)
	assert.Len(t, r.clk.SleptAtLeast(2*time.Second), 3, "boot delay plus two retry waits")

	// lid still works while the broker is unreachable
	r.queueProximity(20)
	r.proximityTick(t)
	assert.Equal(t, model.LidOpen, r.node.LidState())
	assert.Contains(t, r.serial.String(), "O:1\n")
	assert.Len(t, r.broker.Retained(), 2, "seed goes out once the broker answers")
}

func TestNoDuplicatePublishesPerTick(t *testing.T) {
	r := newRig(t)
	r.node.Tick(context.Background())

	r.queueProximity(10)
	r.fillEcho.Queue(ranger.PulseWidth(21))
	r.fillTick(t)

	assert.Len(t, r.broker.On(model.TopicFillLevel), 1)
	assert.Len(t, r.broker.On(model.TopicLidState), 1)
	assert.Equal(t, "50.0", r.broker.On(model.TopicFillLevel)[0].Payload)
}

func TestRunStopsAndDisconnects(t *testing.T) {
	r := newRig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, r.node.Run(ctx))
}
