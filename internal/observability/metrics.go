package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"turbinecraft.ai/internal/sim/multiblock"
	"turbinecraft.ai/internal/sim/multiblock/turbine"
	"turbinecraft.ai/internal/sim/world"
)

// WorldCollector exports world and controller state to Prometheus.
type WorldCollector struct {
	gatherer prometheus.Gatherer

	Validations      *prometheus.CounterVec
	ControllerStates *prometheus.GaugeVec
	Power            *prometheus.GaugeVec
	Energy           *prometheus.GaugeVec
	InputRate        *prometheus.GaugeVec
	Tick             prometheus.Gauge
	Parts            prometheus.Gauge
	Observers        prometheus.Gauge
	UnloadedChunks   prometheus.Gauge
	StepMS           prometheus.Gauge
}

// NewWorldCollector registers the collector on reg (DefaultRegisterer when
// nil). Registering twice returns the existing collectors.
func NewWorldCollector(reg prometheus.Registerer) (*WorldCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	validations, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "multiblock_validations_total",
		Help: "Structure validation runs, labeled by kind and result code.",
	}, []string{"kind", "code"}), "multiblock_validations_total")
	if err != nil {
		return nil, err
	}
	states, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "multiblock_controllers",
		Help: "Controllers by kind and assembly state.",
	}, []string{"kind", "state"}), "multiblock_controllers")
	if err != nil {
		return nil, err
	}
	power, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "turbine_power",
		Help: "Energy produced per tick by each turbine.",
	}, []string{"controller"}), "turbine_power")
	if err != nil {
		return nil, err
	}
	energy, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "turbine_energy_stored",
		Help: "Energy held in each turbine's buffer.",
	}, []string{"controller"}), "turbine_energy_stored")
	if err != nil {
		return nil, err
	}
	rate, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "turbine_input_rate",
		Help: "Input fluid consumed during the last tick.",
	}, []string{"controller"}), "turbine_input_rate")
	if err != nil {
		return nil, err
	}

	gauges := map[string]*prometheus.Gauge{}
	c := &WorldCollector{
		gatherer:         gatherer,
		Validations:      validations,
		ControllerStates: states,
		Power:            power,
		Energy:           energy,
		InputRate:        rate,
	}
	gauges["world_tick"] = &c.Tick
	gauges["world_parts"] = &c.Parts
	gauges["world_observers"] = &c.Observers
	gauges["world_unloaded_chunks"] = &c.UnloadedChunks
	gauges["world_step_ms"] = &c.StepMS
	help := map[string]string{
		"world_tick":            "Last simulated tick.",
		"world_parts":           "Multiblock parts placed in the world.",
		"world_observers":       "Connected observers.",
		"world_unloaded_chunks": "Chunks currently unloaded.",
		"world_step_ms":         "Duration of the last simulation step in milliseconds.",
	}
	for name, dst := range gauges {
		g, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help[name]}), name)
		if err != nil {
			return nil, err
		}
		*dst = g
	}
	return c, nil
}

// ObserveValidation counts one validation run. It matches the world's
// validation hook signature.
func (c *WorldCollector) ObserveValidation(kind multiblock.Kind, code string) {
	if c == nil || c.Validations == nil {
		return
	}
	c.Validations.WithLabelValues(string(kind), code).Inc()
}

// Update replaces the gauges with the latest world metrics. Controllers that
// no longer exist drop out of the per-controller series.
func (c *WorldCollector) Update(m world.WorldMetrics) {
	if c == nil {
		return
	}
	c.Tick.Set(float64(m.Tick))
	c.Parts.Set(float64(m.Parts))
	c.Observers.Set(float64(m.Observers))
	c.UnloadedChunks.Set(float64(m.Unloaded))
	c.StepMS.Set(m.StepMS)

	c.ControllerStates.Reset()
	c.Power.Reset()
	c.Energy.Reset()
	c.InputRate.Reset()
	for _, info := range m.Controllers {
		c.ControllerStates.WithLabelValues(info.Kind, info.State).Inc()
		if info.Kind != string(turbine.Kind) {
			continue
		}
		c.Power.WithLabelValues(info.ID).Set(info.Power)
		c.Energy.WithLabelValues(info.ID).Set(float64(info.Energy))
		c.InputRate.WithLabelValues(info.ID).Set(float64(info.InputRate))
	}
}

// Handler exposes the registry in the Prometheus text format.
func (c *WorldCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
