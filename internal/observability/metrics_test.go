package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"turbinecraft.ai/internal/sim/multiblock/turbine"
	"turbinecraft.ai/internal/sim/world"
)

func TestObserveValidationCountsByCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewWorldCollector(reg)
	if err != nil {
		t.Fatalf("NewWorldCollector: %v", err)
	}
	c.ObserveValidation(turbine.Kind, "ok")
	c.ObserveValidation(turbine.Kind, "ok")
	c.ObserveValidation(turbine.Kind, "too_small")

	if got := testutil.ToFloat64(c.Validations.WithLabelValues("turbine", "ok")); got != 2 {
		t.Fatalf("ok validations: got %v want 2", got)
	}
	if got := testutil.ToFloat64(c.Validations.WithLabelValues("turbine", "too_small")); got != 1 {
		t.Fatalf("too_small validations: got %v want 1", got)
	}
}

func TestUpdateDropsVanishedControllers(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewWorldCollector(reg)
	if err != nil {
		t.Fatalf("NewWorldCollector: %v", err)
	}
	c.Update(world.WorldMetrics{
		Tick:   7,
		Parts:  120,
		StepMS: 1.5,
		Controllers: []world.ControllerInfo{
			{ID: "a", Kind: "turbine", State: "assembled", Power: 64, Energy: 1000},
			{ID: "b", Kind: "turbine", State: "disassembled"},
		},
	})
	if got := testutil.ToFloat64(c.Tick); got != 7 {
		t.Fatalf("tick: got %v want 7", got)
	}
	if got := gaugeValue(t, reg, "world_step_ms"); got != 1.5 {
		t.Fatalf("step ms: got %v want 1.5", got)
	}
	if got := testutil.ToFloat64(c.Power.WithLabelValues("a")); got != 64 {
		t.Fatalf("power: got %v want 64", got)
	}
	if got := testutil.ToFloat64(c.ControllerStates.WithLabelValues("turbine", "assembled")); got != 1 {
		t.Fatalf("assembled controllers: got %v want 1", got)
	}

	c.Update(world.WorldMetrics{Tick: 8, Controllers: []world.ControllerInfo{
		{ID: "a", Kind: "turbine", State: "assembled", Power: 32},
	}})
	if got := testutil.CollectAndCount(c.Power); got != 1 {
		t.Fatalf("power series: got %d want 1", got)
	}
	if got := testutil.CollectAndCount(c.ControllerStates); got != 1 {
		t.Fatalf("state series: got %d want 1", got)
	}
}

func TestCollectorRegistersTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewWorldCollector(reg)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	b, err := NewWorldCollector(reg)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	a.ObserveValidation(turbine.Kind, "ok")
	if got := testutil.ToFloat64(b.Validations.WithLabelValues("turbine", "ok")); got != 1 {
		t.Fatalf("shared counter: got %v want 1", got)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewWorldCollector(reg)
	if err != nil {
		t.Fatalf("NewWorldCollector: %v", err)
	}
	c.Update(world.WorldMetrics{Tick: 3})

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "world_tick 3") {
		t.Fatalf("metrics output missing world_tick:\n%s", body)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *WorldCollector
	c.ObserveValidation(turbine.Kind, "ok")
	c.Update(world.WorldMetrics{Tick: 1})
}

func gaugeValue(t *testing.T, gatherer prometheus.Gatherer, name string) float64 {
	t.Helper()

	families, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	var found *dto.MetricFamily
	for _, mf := range families {
		if mf.GetName() == name {
			found = mf
		}
	}
	if found == nil || len(found.Metric) == 0 {
		t.Fatalf("metric %s not gathered", name)
	}
	return found.Metric[0].GetGauge().GetValue()
}
