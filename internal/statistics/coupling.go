package statistics

import (
	"github.com/markusressel/heat2go/internal/coupling"
	"github.com/prometheus/client_golang/prometheus"
)

const subsystemCoupling = "coupling"

type CouplingCollector struct {
	learner *coupling.Learner

	value            *prometheus.Desc
	confidence       *prometheus.Desc
	observationCount *prometheus.Desc
	validating       *prometheus.Desc
}

func NewCouplingCollector(learner *coupling.Learner) *CouplingCollector {
	labels := []string{"source", "target"}
	return &CouplingCollector{
		learner: learner,
		value: prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystemCoupling, "coefficient"),
			"Heat transfer coefficient between two zones in °C/h per °C",
			labels, nil,
		),
		confidence: prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystemCoupling, "confidence"),
			"Confidence of the coupling coefficient",
			labels, nil,
		),
		observationCount: prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystemCoupling, "observations"),
			"Number of observations the coupling coefficient is based on",
			labels, nil,
		),
		validating: prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystemCoupling, "validating"),
			"1 while the coupling coefficient is under validation",
			labels, nil,
		),
	}
}

func (collector *CouplingCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- collector.value
	ch <- collector.confidence
	ch <- collector.observationCount
	ch <- collector.validating
}

// Collect implements required collect function for all prometheus collectors
func (collector *CouplingCollector) Collect(ch chan<- prometheus.Metric) {
	for _, c := range collector.learner.Coefficients() {
		source, target := c.Pair.Source, c.Pair.Target
		ch <- prometheus.MustNewConstMetric(collector.value, prometheus.GaugeValue, c.Value, source, target)
		ch <- prometheus.MustNewConstMetric(collector.confidence, prometheus.GaugeValue, c.Confidence, source, target)
		ch <- prometheus.MustNewConstMetric(collector.observationCount, prometheus.GaugeValue, float64(c.ObservationCount), source, target)
		validating := 0.0
		if c.IsValidating() {
			validating = 1
		}
		ch <- prometheus.MustNewConstMetric(collector.validating, prometheus.GaugeValue, validating, source, target)
	}
}
