package statistics

import (
	"github.com/markusressel/heat2go/internal/zone"
	"github.com/prometheus/client_golang/prometheus"
)

const subsystemZone = "zone"

type ZoneCollector struct {
	zones []*zone.Zone

	temperature     *prometheus.Desc
	setpoint        *prometheus.Desc
	duty            *prometheus.Desc
	heating         *prometheus.Desc
	term            *prometheus.Desc
	gain            *prometheus.Desc
	cyclesCompleted *prometheus.Desc
	adjustments     *prometheus.Desc
	thermalDebt     *prometheus.Desc
	kiMultiplier    *prometheus.Desc
}

func NewZoneCollector(zones []*zone.Zone) *ZoneCollector {
	desc := func(name string, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystemZone, name),
			help,
			append([]string{"id"}, labels...), nil,
		)
	}
	return &ZoneCollector{
		zones:           zones,
		temperature:     desc("temperature", "Current temperature of the zone in °C"),
		setpoint:        desc("setpoint", "Current setpoint of the zone in °C"),
		duty:            desc("duty", "Duty applied to the actuator of the zone in %"),
		heating:         desc("heating", "1 while the zone is actively heating"),
		term:            desc("pid_term", "Current value of a PID controller term", "term"),
		gain:            desc("pid_gain", "Current value of a PID controller gain", "gain"),
		cyclesCompleted: desc("cycles_completed", "Number of completed heating cycles"),
		adjustments:     desc("gain_adjustments", "Number of recent gain adjustments by kind", "kind"),
		thermalDebt:     desc("thermal_debt", "Accumulated thermal debt in °C·h"),
		kiMultiplier:    desc("ki_multiplier", "Cumulative Ki multiplier applied because of persistent undershoot"),
	}
}

func (collector *ZoneCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- collector.temperature
	ch <- collector.setpoint
	ch <- collector.duty
	ch <- collector.heating
	ch <- collector.term
	ch <- collector.gain
	ch <- collector.cyclesCompleted
	ch <- collector.adjustments
	ch <- collector.thermalDebt
	ch <- collector.kiMultiplier
}

// Collect implements required collect function for all prometheus collectors
func (collector *ZoneCollector) Collect(ch chan<- prometheus.Metric) {
	for _, z := range collector.zones {
		status := z.Status()
		id := status.Id

		if status.Temperature != nil {
			ch <- prometheus.MustNewConstMetric(collector.temperature, prometheus.GaugeValue, *status.Temperature, id)
		}
		ch <- prometheus.MustNewConstMetric(collector.setpoint, prometheus.GaugeValue, status.Setpoint, id)
		ch <- prometheus.MustNewConstMetric(collector.duty, prometheus.GaugeValue, status.Duty, id)
		heating := 0.0
		if status.Heating {
			heating = 1
		}
		ch <- prometheus.MustNewConstMetric(collector.heating, prometheus.GaugeValue, heating, id)

		terms := map[string]float64{
			"p": status.Controller.P,
			"i": status.Controller.I,
			"d": status.Controller.D,
			"e": status.Controller.E,
			"f": status.Controller.F,
		}
		for name, value := range terms {
			ch <- prometheus.MustNewConstMetric(collector.term, prometheus.GaugeValue, value, id, name)
		}

		gains := map[string]float64{
			"kp":      status.Controller.Gains.Kp,
			"ki":      status.Controller.Gains.Ki,
			"kd":      status.Controller.Gains.Kd,
			"ke":      status.Controller.Gains.Ke,
			"ke_wind": status.Controller.Gains.KeWind,
		}
		for name, value := range gains {
			ch <- prometheus.MustNewConstMetric(collector.gain, prometheus.GaugeValue, value, id, name)
		}

		ch <- prometheus.MustNewConstMetric(collector.cyclesCompleted, prometheus.CounterValue, float64(status.CyclesCompleted), id)

		adjustments := map[string]int{}
		for _, adjustment := range status.Adjustments {
			adjustments[string(adjustment.Kind)]++
		}
		for kind, count := range adjustments {
			ch <- prometheus.MustNewConstMetric(collector.adjustments, prometheus.GaugeValue, float64(count), id, kind)
		}

		ch <- prometheus.MustNewConstMetric(collector.thermalDebt, prometheus.GaugeValue, status.ThermalDebt, id)
		ch <- prometheus.MustNewConstMetric(collector.kiMultiplier, prometheus.GaugeValue, status.KiMultiplier, id)
	}
}
