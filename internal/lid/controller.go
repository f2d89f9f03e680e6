// Package lid drives the bin lid from the proximity sensor. The controller is
// an edge-triggered two-state machine: the actuator peer is only commanded,
// and the broker only told, when the state actually changes.
package lid

import (
	"context"
	"log/slog"
	"time"

	"github.com/LeonardoBeccarini/smartdustbin/internal/clock"
	"github.com/LeonardoBeccarini/smartdustbin/internal/hal"
	"github.com/LeonardoBeccarini/smartdustbin/internal/model"
	"github.com/LeonardoBeccarini/smartdustbin/internal/model/messages"
	"github.com/LeonardoBeccarini/smartdustbin/pkg/broker"
)

// Sensor is a ranging module returning centimetres or an error for no reading.
type Sensor interface {
	Measure() (float64, error)
}

// Peer is the serial link to the actuator board.
type Peer interface {
	SendDistance(avgCM float64) error
	SendCommand(s model.LidState) error
}

// Recorder receives controller observations, typically for metrics.
type Recorder interface {
	InvalidReading(sensor string)
	LidChanged(s model.LidState)
}

type nopRecorder struct{}

func (nopRecorder) InvalidReading(string)     {}
func (nopRecorder) LidChanged(model.LidState) {}

type Config struct {
	ThresholdCM    float64
	Samples        int           // valid readings averaged per check
	SampleDelay    time.Duration // wait after every reading, valid or not
	TransitionHold time.Duration // debounce after a transition
}

type Controller struct {
	cfg       Config
	sensor    Sensor
	peer      Peer
	indicator hal.OutputPin
	publisher broker.IPublisher
	clk       clock.Clock
	logger    *slog.Logger
	recorder  Recorder

	state model.LidState
}

func NewController(cfg Config, sensor Sensor, peer Peer, indicator hal.OutputPin,
	publisher broker.IPublisher, clk clock.Clock, logger *slog.Logger, rec Recorder) *Controller {
	if cfg.Samples < 1 {
		cfg.Samples = 1
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg:       cfg,
		sensor:    sensor,
		peer:      peer,
		indicator: indicator,
		publisher: publisher,
		clk:       clk,
		logger:    logger,
		recorder:  rec,
		state:     model.LidClosed,
	}
}

// State returns the last state the controller transitioned into.
func (c *Controller) State() model.LidState { return c.state }

// Next is the transition function. The threshold belongs to the CLOSED side:
// avg == threshold never opens the lid and always closes it.
func Next(current model.LidState, avgCM, thresholdCM float64) model.LidState {
	near := avgCM < thresholdCM
	switch {
	case near && !current.IsOpen():
		return model.LidOpen
	case !near && current.IsOpen():
		return model.LidClosed
	default:
		return current
	}
}

// Check averages the proximity sensor, reports the average to the peer and
// applies at most one transition. It only returns early when ctx is done while
// waiting for valid readings.
func (c *Controller) Check(ctx context.Context) error {
	avg, err := c.average(ctx)
	if err != nil {
		return err
	}

	if err := c.peer.SendDistance(avg); err != nil {
		c.logger.Warn("peer distance line failed", "err", err)
	}

	next := Next(c.state, avg, c.cfg.ThresholdCM)
	if next == c.state {
		return nil
	}
	c.transition(next, avg)
	return nil
}

func (c *Controller) transition(next model.LidState, avg float64) {
	if err := c.peer.SendCommand(next); err != nil {
		c.logger.Warn("peer lid command failed", "state", next, "err", err)
	}
	if err := c.indicator.Set(next.IsOpen()); err != nil {
		c.logger.Warn("status indicator failed", "err", err)
	}
	c.state = next
	c.recorder.LidChanged(next)
	c.logger.Info("lid state changed", "state", next, "distance_cm", avg)

	_ = c.publisher.PublishMessage(messages.LidState(next), false)
	c.clk.Sleep(c.cfg.TransitionHold)
}

// average collects cfg.Samples valid readings. Invalid readings are retried
// without limit; a stuck proximity sensor cannot usefully drive the lid anyway.
func (c *Controller) average(ctx context.Context) (float64, error) {
	var sum float64
	for valid := 0; valid < c.cfg.Samples; {
		d, err := c.sensor.Measure()
		c.clk.Sleep(c.cfg.SampleDelay)
		if err != nil {
			c.recorder.InvalidReading("proximity")
			c.logger.Debug("proximity reading invalid, resampling", "err", err)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return 0, ctxErr
			}
			continue
		}
		sum += d
		valid++
	}
	return sum / float64(c.cfg.Samples), nil
}
