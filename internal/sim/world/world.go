package world

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/google/uuid"

	"turbinecraft.ai/internal/persistence/snapshot"
	"turbinecraft.ai/internal/sim/catalogs"
	"turbinecraft.ai/internal/sim/multiblock"
	"turbinecraft.ai/internal/sim/multiblock/turbine"
)

// World is the voxel host for multiblock controllers. All state below the
// channels is owned by the loop goroutine.
type World struct {
	cfg      WorldConfig
	catalogs *catalogs.Catalogs
	kinds    map[multiblock.Kind]KindSpec

	tick atomic.Uint64

	// Filler blocks by palette id; absent means AIR.
	blocks  map[cube.Pos]uint16
	parts   map[cube.Pos]multiblock.Part
	owner   map[cube.Pos]*multiblock.Controller
	signals map[cube.Pos]bool

	unloaded map[ChunkKey]bool

	controllers       map[uuid.UUID]*multiblock.Controller
	nextControllerNum uint64

	observers map[string]*observerClient

	inbox          chan Command
	observerJoin   chan ObserverJoinRequest
	observerListen chan ObserverListenRequest
	observerLeave  chan string
	admin          chan snapshotReq
	stop           chan struct{}
	stopOnce       sync.Once

	tickLogger  TickLogger
	eventLogger EventLogger
	onValidate  func(kind multiblock.Kind, code string)
	logger      *log.Logger

	// Optional snapshot sink (may be nil). Snapshot writing should be off-thread.
	snapshotSink chan<- snapshot.SnapshotV1

	// Assembly events of the current step, flushed after controllers tick.
	pendingEvents []AssemblyEvent

	metrics atomic.Value
}

func New(cfg WorldConfig, cats *catalogs.Catalogs) (*World, error) {
	if cats == nil {
		return nil, errors.New("world: catalogs required")
	}
	if _, ok := cats.Blocks.Index["AIR"]; !ok || cats.Blocks.Index["AIR"] != 0 {
		return nil, errors.New("world: block palette must start with AIR")
	}
	cfg.applyDefaults()
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("world: %w", err)
	}

	w := &World{
		cfg:            cfg,
		catalogs:       cats,
		kinds:          map[multiblock.Kind]KindSpec{},
		blocks:         map[cube.Pos]uint16{},
		parts:          map[cube.Pos]multiblock.Part{},
		owner:          map[cube.Pos]*multiblock.Controller{},
		signals:        map[cube.Pos]bool{},
		unloaded:       map[ChunkKey]bool{},
		controllers:    map[uuid.UUID]*multiblock.Controller{},
		observers:      map[string]*observerClient{},
		inbox:          make(chan Command, 1024),
		observerJoin:   make(chan ObserverJoinRequest, 16),
		observerListen: make(chan ObserverListenRequest, 64),
		observerLeave:  make(chan string, 16),
		admin:          make(chan snapshotReq, 8),
		stop:           make(chan struct{}),
	}

	tcfg := cfg.Tuning
	w.registerKind(KindSpec{
		Rules:      turbine.NewRules(tcfg.Turbine),
		NewMachine: func() multiblock.Machine { return turbine.New(tcfg, &w.catalogs.Recipes) },
		PartName:   turbine.PartName,
		ParsePart:  turbine.ParsePart,
	})
	return w, nil
}

func (w *World) registerKind(spec KindSpec) { w.kinds[spec.Rules.Kind] = spec }

func (w *World) SetTickLogger(l TickLogger)                    { w.tickLogger = l }
func (w *World) SetEventLogger(l EventLogger)                  { w.eventLogger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }
func (w *World) SetLogger(l *log.Logger)                       { w.logger = l }

// SetValidationHook receives the result code of every validation run.
func (w *World) SetValidationHook(fn func(kind multiblock.Kind, code string)) { w.onValidate = fn }

func (w *World) Inbox() chan<- Command                            { return w.inbox }
func (w *World) ObserverJoin() chan<- ObserverJoinRequest         { return w.observerJoin }
func (w *World) ObserverListen() chan<- ObserverListenRequest     { return w.observerListen }
func (w *World) ObserverLeave() chan<- string                     { return w.observerLeave }
func (w *World) CurrentTick() uint64                              { return w.tick.Load() }
func (w *World) Catalogs() *catalogs.Catalogs                     { return w.catalogs }
func (w *World) Controller(id uuid.UUID) *multiblock.Controller   { return w.controllers[id] }
func (w *World) ControllerAt(pos cube.Pos) *multiblock.Controller { return w.owner[pos] }

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) TickRateHz() int {
	if w == nil {
		return 0
	}
	return w.cfg.TickRateHz
}

func (w *World) logf(format string, args ...any) {
	if w.logger != nil {
		w.logger.Printf(format, args...)
	}
}

// PartAt, MaterialAt, IsAir, IsLoaded and Powered make the world the Grid
// every controller validates against.

func (w *World) PartAt(pos cube.Pos) (multiblock.Part, bool) {
	p, ok := w.parts[pos]
	return p, ok
}

func (w *World) MaterialAt(pos cube.Pos) multiblock.Material {
	if _, ok := w.parts[pos]; ok {
		return multiblock.MaterialSolid
	}
	id := w.blocks[pos]
	var m multiblock.Material
	if id == 0 {
		m |= multiblock.MaterialAir
	}
	if int(id) < len(w.catalogs.Blocks.Palette) {
		def := w.catalogs.Blocks.Defs[w.catalogs.Blocks.Palette[id]]
		if def.Solid {
			m |= multiblock.MaterialSolid
		}
		if def.Replaceable {
			m |= multiblock.MaterialReplaceable
		}
	}
	return m
}

func (w *World) IsAir(pos cube.Pos) bool {
	if _, ok := w.parts[pos]; ok {
		return false
	}
	return w.blocks[pos] == 0
}

func (w *World) IsLoaded(pos cube.Pos) bool { return !w.unloaded[w.chunkOf(pos)] }

func (w *World) Powered(pos cube.Pos) bool { return w.signals[pos] }

func (w *World) controllerID(n uint64) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s/controller/%d", w.cfg.ID, n)))
}

// newController allocates the next deterministic controller id for kind.
func (w *World) newController(kind multiblock.Kind) *multiblock.Controller {
	w.nextControllerNum++
	return w.attachController(w.kinds[kind], w.controllerID(w.nextControllerNum))
}

func (w *World) attachController(spec KindSpec, id uuid.UUID) *multiblock.Controller {
	c := multiblock.NewController(spec.Rules, w, spec.NewMachine(),
		multiblock.WithID(id),
		multiblock.WithBroadcaster(w),
		multiblock.WithTransitionHook(w.onTransition),
		multiblock.WithValidationHook(w.validated),
	)
	w.controllers[id] = c
	return c
}

func (w *World) validated(kind multiblock.Kind, code string) {
	if w.onValidate != nil {
		w.onValidate(kind, code)
	}
}

func (w *World) onTransition(t multiblock.Transition) {
	ev := AssemblyEvent{
		Tick:       t.Tick,
		Type:       "transition",
		Controller: t.Controller.String(),
		Kind:       string(t.Kind),
		From:       t.From.String(),
		To:         t.To.String(),
	}
	if t.Err != nil {
		ev.Code = t.Err.Code
		ev.Message = t.Err.Error()
		if t.Err.HasPos {
			p := [3]int(t.Err.Pos)
			ev.Pos = &p
		}
	}
	w.pendingEvents = append(w.pendingEvents, ev)
}

func (w *World) event(typ string, c *multiblock.Controller, other *multiblock.Controller, pos *cube.Pos) {
	ev := AssemblyEvent{
		Tick:       w.tick.Load(),
		Type:       typ,
		Controller: c.ID().String(),
		Kind:       string(c.Kind()),
	}
	if other != nil {
		ev.Other = other.ID().String()
	}
	if pos != nil {
		p := [3]int(*pos)
		ev.Pos = &p
	}
	w.pendingEvents = append(w.pendingEvents, ev)
}

// sortedControllers orders controllers by reference position, then id, so
// every run ticks them in the same order.
func (w *World) sortedControllers() []*multiblock.Controller {
	out := make([]*multiblock.Controller, 0, len(w.controllers))
	for _, c := range w.controllers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, _ := out[i].Reference()
		rj, _ := out[j].Reference()
		if ri != rj {
			return multiblock.Less(ri, rj)
		}
		return out[i].ID().String() < out[j].ID().String()
	})
	return out
}

// Info summarizes one controller for observers and metrics.
func (w *World) Info(c *multiblock.Controller) ControllerInfo {
	info := ControllerInfo{
		ID:    c.ID().String(),
		Kind:  string(c.Kind()),
		State: c.State().String(),
		Parts: c.Registry().Len(),
	}
	if box, ok := c.Registry().Box(); ok {
		info.Min, info.Max = [3]int(box.Min), [3]int(box.Max)
	}
	if e := c.LastError(); e != nil {
		info.ErrorCode = e.Code
		info.Error = e.Error()
		if e.HasPos {
			p := [3]int(e.Pos)
			info.ErrorPos = &p
		}
	}
	if t, ok := c.Machine().(*turbine.Turbine); ok {
		info.On = t.IsOn()
		info.Power = t.Power()
		info.Energy = t.Energy.Stored()
		info.Capacity = t.Energy.Capacity()
		info.InputFluid, info.InputAmount = t.Input.Fluid(), t.Input.Amount()
		info.OutputFluid, info.OutputAmount = t.Output.Fluid(), t.Output.Amount()
		info.InputRate = t.ActualInputRate()
	}
	return info
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	m, ok := w.metrics.Load().(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}
