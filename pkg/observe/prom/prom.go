// Package prom reports observability events as Prometheus metrics and log lines.
package prom

import (
	"time"

	"github.com/itohio/gotelem/pkg/observe"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Obs implements observe.Observer.
type Obs struct {
	log *logrus.Entry

	unavailable *prometheus.CounterVec
	framing     prometheus.Counter
	storage     prometheus.Counter
	responses   prometheus.Counter
	latency     prometheus.Histogram
	persists    prometheus.Counter
	calibration prometheus.Gauge
	generation  prometheus.Gauge
	delay       prometheus.Gauge
}

var _ observe.Observer = (*Obs)(nil)

// New registers the unit's metrics with reg and logs through log.
func New(reg prometheus.Registerer, log *logrus.Entry) (*Obs, error) {
	o := &Obs{
		log: log,
		unavailable: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_sensor_unavailable_total",
			Help: "Sensor reads that did not complete, by binding id.",
		}, []string{"binding"}),
		framing: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_protocol_framing_total",
			Help: "Command lines discarded because they could not be delimited.",
		}),
		storage: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_storage_write_errors_total",
			Help: "Calibration writes that failed after their retry.",
		}),
		responses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_responses_total",
			Help: "Read requests answered.",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "telemetry_response_latency_seconds",
			Help:    "Time from a complete command line to its response being written.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		persists: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_calibration_writes_total",
			Help: "Calibration records written.",
		}),
		calibration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "telemetry_calibration_value",
			Help: "Last persisted calibration aggregate.",
		}),
		generation: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "telemetry_calibration_generation",
			Help: "Generation counter of the persisted calibration record.",
		}),
		delay: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "telemetry_sample_delay_ms",
			Help: "Delay chosen before the next sampling cycle.",
		}),
	}

	for _, c := range []prometheus.Collector{
		o.unavailable, o.framing, o.storage, o.responses, o.latency,
		o.persists, o.calibration, o.generation, o.delay,
	} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "register metrics")
		}
	}
	return o, nil
}

func (o *Obs) SensorUnavailable(id string, err error) {
	o.unavailable.WithLabelValues(id).Inc()
	o.log.WithField("binding", id).WithError(err).Warn("sensor unavailable")
}

func (o *Obs) ProtocolFraming(err error) {
	o.framing.Inc()
	o.log.WithError(err).Warn("discarded command line")
}

func (o *Obs) StorageWrite(err error) {
	o.storage.Inc()
	o.log.WithError(err).Error("calibration write failed")
}

func (o *Obs) Responded(keys int, latency time.Duration) {
	o.responses.Inc()
	o.latency.Observe(latency.Seconds())
	o.log.WithFields(logrus.Fields{"keys": keys, "latency": latency}).Debug("responded")
}

func (o *Obs) Persisted(value int32, generation uint32) {
	o.persists.Inc()
	o.calibration.Set(float64(value))
	o.generation.Set(float64(generation))
	o.log.WithFields(logrus.Fields{"value": value, "generation": generation}).Info("calibration persisted")
}

func (o *Obs) DelayChosen(delayMs int) {
	o.delay.Set(float64(delayMs))
	o.log.WithField("delay_ms", delayMs).Debug("next sample")
}
