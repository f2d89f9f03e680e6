package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/LeonardoBeccarini/smartdustbin/internal/model"
)

func TestNodeCounters(t *testing.T) {
	n := New()

	n.Published(model.TopicFillLevel, true)
	n.Published(model.TopicFillLevel, false)
	n.Published(model.TopicFillLevel, false)
	n.PublishFailed(model.TopicLidState)
	n.Connected(1)
	n.ConnectFailed()
	n.InvalidReading("fill")

	assert.Equal(t, 1.0, testutil.ToFloat64(n.publishes.WithLabelValues(model.TopicFillLevel, "true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(n.publishes.WithLabelValues(model.TopicFillLevel, "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(n.publishErrors.WithLabelValues(model.TopicLidState)))
	assert.Equal(t, 1.0, testutil.ToFloat64(n.connects))
	assert.Equal(t, 1.0, testutil.ToFloat64(n.connectErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(n.invalid.WithLabelValues("fill")))
}

func TestNodeGauges(t *testing.T) {
	n := New()

	n.FillLevel(76.2)
	assert.Equal(t, 76.2, testutil.ToFloat64(n.fillPercent))

	n.LidChanged(model.LidOpen)
	assert.Equal(t, 1.0, testutil.ToFloat64(n.lidOpen))
	n.LidChanged(model.LidClosed)
	assert.Equal(t, 0.0, testutil.ToFloat64(n.lidOpen))
	assert.Equal(t, 1.0, testutil.ToFloat64(n.lidTransitions.WithLabelValues("OPEN")))
	assert.Equal(t, 1.0, testutil.ToFloat64(n.lidTransitions.WithLabelValues("CLOSED")))
}

func TestRegistryGathers(t *testing.T) {
	n := New()
	n.FillLevel(10)
	count, err := testutil.GatherAndCount(n.Registry(), "smartbin_fill_percent")
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}
