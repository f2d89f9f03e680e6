// Package fill turns fill-sensor readings into fill-level telemetry.
package fill

import (
	"log/slog"

	"github.com/LeonardoBeccarini/smartdustbin/internal/model"
	"github.com/LeonardoBeccarini/smartdustbin/internal/model/messages"
	"github.com/LeonardoBeccarini/smartdustbin/pkg/broker"
)

// Sensor is a ranging module returning centimetres or an error for no reading.
type Sensor interface {
	Measure() (float64, error)
}

// Recorder receives estimator observations, typically for metrics.
type Recorder interface {
	InvalidReading(sensor string)
	FillLevel(pct float64)
}

type nopRecorder struct{}

func (nopRecorder) InvalidReading(string) {}
func (nopRecorder) FillLevel(float64)     {}

type Estimator struct {
	sensor    Sensor
	bin       model.Bin
	publisher broker.IPublisher
	logger    *slog.Logger
	recorder  Recorder
}

func NewEstimator(sensor Sensor, bin model.Bin, publisher broker.IPublisher, logger *slog.Logger, rec Recorder) *Estimator {
	if rec == nil {
		rec = nopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Estimator{sensor: sensor, bin: bin, publisher: publisher, logger: logger, recorder: rec}
}

// MeasureAndPublish takes one reading and publishes the fill level, not
// retained. A missing or out-of-bin reading publishes the bin default so an
// empty bin is never reported full on sensor failure.
func (e *Estimator) MeasureAndPublish() float64 {
	d, err := e.sensor.Measure()
	if err != nil {
		e.recorder.InvalidReading("fill")
		e.logger.Warn("invalid fill level measurement, using default value", "err", err, "default", e.bin.DefaultFillPct)
		return e.publish(e.bin.DefaultFillPct)
	}

	e.logger.Debug("fill distance", "distance_cm", d)
	pct, ok := e.bin.FillPercent(d)
	if !ok {
		e.logger.Warn("fill distance outside bin, using default value", "distance_cm", d, "height_cm", e.bin.HeightCM)
		return e.publish(pct)
	}

	e.logger.Debug("fill calculation", "height_cm", e.bin.HeightCM, "distance_cm", d, "fill_pct", pct)
	return e.publish(pct)
}

func (e *Estimator) publish(pct float64) float64 {
	e.recorder.FillLevel(pct)
	// failures are already logged by the session; the next cadence refreshes
	_ = e.publisher.PublishMessage(messages.FillLevel(pct), false)
	return pct
}
