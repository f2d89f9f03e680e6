// Package metrics exposes node counters in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LeonardoBeccarini/smartdustbin/internal/model"
)

// Node holds the collectors of one node. It implements broker.Recorder.
type Node struct {
	registry *prometheus.Registry

	publishes      *prometheus.CounterVec
	publishErrors  *prometheus.CounterVec
	connects       prometheus.Counter
	connectErrors  prometheus.Counter
	lidTransitions *prometheus.CounterVec
	invalid        *prometheus.CounterVec
	fillPercent    prometheus.Gauge
	lidOpen        prometheus.Gauge
}

func New() *Node {
	n := &Node{
		registry: prometheus.NewRegistry(),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smartbin", Name: "mqtt_publishes_total",
			Help: "Successful broker publishes.",
		}, []string{"topic", "retained"}),
		publishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smartbin", Name: "mqtt_publish_errors_total",
			Help: "Publishes that were dropped.",
		}, []string{"topic"}),
		connects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smartbin", Name: "mqtt_connects_total",
			Help: "Successful broker sessions.",
		}),
		connectErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smartbin", Name: "mqtt_connect_failures_total",
			Help: "Reconnect rounds that exhausted their attempts.",
		}),
		lidTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smartbin", Name: "lid_transitions_total",
			Help: "Lid state changes by target state.",
		}, []string{"state"}),
		invalid: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smartbin", Name: "sensor_invalid_readings_total",
			Help: "Ultrasonic readings rejected by validation.",
		}, []string{"sensor"}),
		fillPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "smartbin", Name: "fill_percent",
			Help: "Last published fill level.",
		}),
		lidOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "smartbin", Name: "lid_open",
			Help: "1 while the lid is open.",
		}),
	}
	n.registry.MustRegister(
		n.publishes, n.publishErrors, n.connects, n.connectErrors,
		n.lidTransitions, n.invalid, n.fillPercent, n.lidOpen,
	)
	return n
}

func (n *Node) Registry() *prometheus.Registry { return n.registry }

func (n *Node) Published(topic string, retained bool) {
	r := "false"
	if retained {
		r = "true"
	}
	n.publishes.WithLabelValues(topic, r).Inc()
}

func (n *Node) PublishFailed(topic string) { n.publishErrors.WithLabelValues(topic).Inc() }

func (n *Node) Connected(int) { n.connects.Inc() }

func (n *Node) ConnectFailed() { n.connectErrors.Inc() }

func (n *Node) LidChanged(s model.LidState) {
	n.lidTransitions.WithLabelValues(string(s)).Inc()
	if s.IsOpen() {
		n.lidOpen.Set(1)
	} else {
		n.lidOpen.Set(0)
	}
}

func (n *Node) InvalidReading(sensor string) { n.invalid.WithLabelValues(sensor).Inc() }

func (n *Node) FillLevel(pct float64) { n.fillPercent.Set(pct) }

// Serve exposes /metrics on addr until ctx is cancelled. It runs beside the
// control loop and only reads the collectors.
func (n *Node) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(n.registry, promhttp.HandlerOpts{}))

	hs := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = hs.Shutdown(shCtx)
	}()

	logger.Info("metrics listening", "addr", addr)
	if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
