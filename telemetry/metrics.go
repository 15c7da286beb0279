// Package telemetry exports radio and receiver counters to prometheus.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "subghz"

var (
	RadioState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "radio",
		Name:      "state",
		Help:      "1 for the current radio state, 0 otherwise.",
	}, []string{"state"})

	Frequency = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "radio",
		Name:      "frequency_hz",
		Help:      "Currently tuned frequency.",
	})

	RSSI = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "radio",
		Name:      "rssi_dbm",
		Help:      "Last RSSI sample taken by the receiver tick.",
	})

	TxRefused = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "radio",
		Name:      "tx_refused_total",
		Help:      "Transmissions refused by the regulatory gate.",
	})

	CaptureSamples = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "samples_total",
		Help:      "Level/duration samples delivered to the consumer.",
	})

	CaptureDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "dropped_total",
		Help:      "Samples dropped because the consumer was busy or stopping.",
	})

	TxSamples = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tx",
		Name:      "samples_total",
		Help:      "Samples pulled from transmit suppliers.",
	})

	TxUnderruns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tx",
		Name:      "underruns_total",
		Help:      "Transmissions aborted by a buffer underrun.",
	})

	Decodes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "protocol",
		Name:      "decodes_total",
		Help:      "Items produced by each decoder.",
	}, []string{"protocol"})

	DecodesSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "protocol",
		Name:      "suppressed_total",
		Help:      "Items dropped as repeats or because the hand-off queue was full.",
	}, []string{"reason"})

	HistoryItems = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "history",
		Name:      "items",
		Help:      "Items held in the receiver history.",
	})

	HistoryRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "history",
		Name:      "rejected_total",
		Help:      "Items refused because the history text budget was exhausted.",
	})

	Hops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hopper",
		Name:      "hops_total",
		Help:      "Frequency hops performed.",
	})
)

// SetRadioState marks state as the only active radio state.
func SetRadioState(state string, all []string) {
	for _, s := range all {
		if s == state {
			RadioState.WithLabelValues(s).Set(1)
		} else {
			RadioState.WithLabelValues(s).Set(0)
		}
	}
}
