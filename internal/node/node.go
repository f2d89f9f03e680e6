// Package node wires the smart dustbin components into one control loop.
package node

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/LeonardoBeccarini/smartdustbin/internal/clock"
	"github.com/LeonardoBeccarini/smartdustbin/internal/config"
	"github.com/LeonardoBeccarini/smartdustbin/internal/fill"
	"github.com/LeonardoBeccarini/smartdustbin/internal/hal"
	"github.com/LeonardoBeccarini/smartdustbin/internal/lid"
	"github.com/LeonardoBeccarini/smartdustbin/internal/metrics"
	"github.com/LeonardoBeccarini/smartdustbin/internal/model"
	"github.com/LeonardoBeccarini/smartdustbin/internal/model/messages"
	"github.com/LeonardoBeccarini/smartdustbin/internal/netlink"
	"github.com/LeonardoBeccarini/smartdustbin/internal/peer"
	"github.com/LeonardoBeccarini/smartdustbin/internal/ranger"
	"github.com/LeonardoBeccarini/smartdustbin/internal/scheduler"
	"github.com/LeonardoBeccarini/smartdustbin/pkg/broker"
)

// Hardware is the set of lines and links the node drives. GPIO lines are
// partitioned per component.
type Hardware struct {
	FillTrigger      hal.OutputPin
	FillEcho         hal.EchoPin
	ProximityTrigger hal.OutputPin
	ProximityEcho    hal.EchoPin
	Indicator        hal.OutputPin
	Peer             io.Writer
	Station          netlink.Station
}

// idleYield keeps an iteration where no cadence fired from busy-spinning a
// host CPU core while waiting for the next deadline.
const idleYield = time.Millisecond

type Node struct {
	cfg     *config.Config
	hw      Hardware
	clk     clock.Clock
	logger  *slog.Logger
	metrics *metrics.Node

	session *broker.Session
	lid     *lid.Controller
	loop    *scheduler.Scheduler
}

// New builds the node. Extra broker options are applied after the defaults.
func New(cfg *config.Config, hw Hardware, clk clock.Clock, logger *slog.Logger, m *metrics.Node, opts ...broker.Option) *Node {
	if m == nil {
		m = metrics.New()
	}
	bin := model.Bin{HeightCM: cfg.Bin.HeightCM, DefaultFillPct: cfg.Bin.DefaultFillPct}

	sessionOpts := append([]broker.Option{
		broker.WithSleeper(clk),
		broker.WithRecorder(m),
		broker.WithSeeds(
			broker.Message{Topic: model.TopicFillLevel, Payload: messages.FillLevel(bin.DefaultFillPct)},
			broker.Message{Topic: model.TopicLidState, Payload: messages.LidState(model.LidClosed)},
		),
	}, opts...)
	session := broker.NewSession(broker.Config{
		Host:           cfg.Broker.Host,
		Port:           cfg.Broker.Port,
		ClientIDPrefix: cfg.Broker.ClientIDPrefix,
		KeepAlive:      cfg.Broker.KeepAlive,
		ConnectTimeout: cfg.Broker.ConnectTimeout,
		PublishTimeout: cfg.Broker.PublishTimeout,
		Attempts:       cfg.Broker.Attempts,
		RetryDelay:     cfg.Broker.RetryDelay,
	}, logger.With("component", "broker"), sessionOpts...)

	fillRanger := ranger.New(ranger.Config{
		Name:        "fill",
		EchoTimeout: cfg.Sensors.Fill.EchoTimeout,
		MinCM:       cfg.Sensors.MinCM,
		MaxCM:       cfg.Sensors.MaxCM,
	}, hw.FillTrigger, hw.FillEcho, clk)
	proxRanger := ranger.New(ranger.Config{
		Name:        "proximity",
		EchoTimeout: cfg.Sensors.Proximity.EchoTimeout,
		MinCM:       cfg.Sensors.MinCM,
		MaxCM:       cfg.Sensors.MaxCM,
	}, hw.ProximityTrigger, hw.ProximityEcho, clk)

	estimator := fill.NewEstimator(fillRanger, bin,
		broker.NewPublisher(session, model.TopicFillLevel), logger.With("component", "fill"), m)

	controller := lid.NewController(lid.Config{
		ThresholdCM:    cfg.Lid.ThresholdCM,
		Samples:        cfg.Lid.Samples,
		SampleDelay:    cfg.Lid.SampleDelay,
		TransitionHold: cfg.Lid.TransitionHold,
	}, proxRanger, peer.NewLink(hw.Peer), hw.Indicator,
		broker.NewPublisher(session, model.TopicLidState), clk, logger.With("component", "lid"), m)

	loop := scheduler.New(scheduler.Config{
		ProximityInterval: cfg.Schedule.ProximityInterval,
		FillInterval:      cfg.Schedule.FillInterval,
		Idle:              idleYield,
	}, clk, session, controller, estimator, logger.With("component", "scheduler"))

	return &Node{
		cfg:     cfg,
		hw:      hw,
		clk:     clk,
		logger:  logger,
		metrics: m,
		session: session,
		lid:     controller,
		loop:    loop,
	}
}

// Boot runs the blocking start-up path: status indicator off, WiFi
// association, then a pause for the actuator peer to finish booting.
func (n *Node) Boot(ctx context.Context) error {
	n.logger.Info("smart dustbin node starting")
	if err := n.hw.Indicator.Set(false); err != nil {
		return fmt.Errorf("status indicator: %w", err)
	}

	if _, err := netlink.BringUp(ctx, n.hw.Station, n.cfg.WiFi.SSID, n.cfg.WiFi.PSK,
		n.cfg.WiFi.PollInterval, n.clk, n.logger.With("component", "netlink")); err != nil {
		return err
	}

	n.clk.Sleep(n.cfg.Peer.BootDelay)
	return nil
}

// Tick runs one iteration of the control loop.
func (n *Node) Tick(ctx context.Context) bool { return n.loop.Tick(ctx) }

// Run drives the control loop until ctx is cancelled, then closes the broker session.
func (n *Node) Run(ctx context.Context) error {
	defer n.session.Disconnect(250 * time.Millisecond)
	return n.loop.Run(ctx)
}

func (n *Node) LidState() model.LidState { return n.lid.State() }

func (n *Node) Metrics() *metrics.Node { return n.metrics }
