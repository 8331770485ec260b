package multiblock

import (
	"context"
	"errors"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/google/uuid"
)

type AssemblyState uint8

const (
	Disassembled AssemblyState = iota
	Assembled
	Paused
)

func (s AssemblyState) String() string {
	switch s {
	case Assembled:
		return "assembled"
	case Paused:
		return "paused"
	default:
		return "disassembled"
	}
}

func ParseAssemblyState(s string) AssemblyState {
	switch s {
	case "assembled":
		return Assembled
	case "paused":
		return Paused
	default:
		return Disassembled
	}
}

// Machine is the kind-specific simulation behind a controller.
type Machine interface {
	OnAssembled(c *Controller, layout any)
	OnRestored(c *Controller, layout any)
	OnPaused(c *Controller)
	OnDisassembled(c *Controller)
	Update(ctx context.Context, c *Controller, tick uint64)

	// Absorb takes over the resources of a machine being assimilated.
	Absorb(other Machine)

	Save() ([]byte, error)
	Load(b []byte) error
}

// Broadcaster delivers packets to observers. Delivery is best effort.
type Broadcaster interface {
	// BroadcastListening reaches observers that asked to listen to id.
	BroadcastListening(id uuid.UUID, payload []byte)
	// BroadcastAll reaches every connected observer.
	BroadcastAll(id uuid.UUID, payload []byte)
}

type Transition struct {
	Controller uuid.UUID
	Kind       Kind
	Tick       uint64
	From       AssemblyState
	To         AssemblyState
	Err        *ValidationError
}

type Option func(*Controller)

func WithID(id uuid.UUID) Option { return func(c *Controller) { c.id = id } }

func WithBroadcaster(b Broadcaster) Option { return func(c *Controller) { c.bc = b } }

// WithTransitionHook is called on every state change.
func WithTransitionHook(fn func(Transition)) Option {
	return func(c *Controller) { c.onTransition = fn }
}

// WithValidationHook is called with the result code of every validation run.
func WithValidationHook(fn func(kind Kind, code string)) Option {
	return func(c *Controller) { c.onValidate = fn }
}

// Controller owns one connected structure: its part registry, assembly state
// and machine. It takes no locks; all calls happen on the simulation loop.
type Controller struct {
	id      uuid.UUID
	rules   *Rules
	reg     *Registry
	grid    Grid
	machine Machine
	bc      Broadcaster

	state     AssemblyState
	dirty     bool
	restoring bool
	lastErr   *ValidationError
	layout    any

	onTransition func(Transition)
	onValidate   func(Kind, string)
}

func NewController(rules *Rules, grid Grid, m Machine, opts ...Option) *Controller {
	c := &Controller{
		id:      uuid.New(),
		rules:   rules,
		reg:     NewRegistry(rules.Kind),
		grid:    grid,
		machine: m,
		dirty:   true,
	}
	if c.machine == nil {
		c.machine = nopMachine{}
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Controller) ID() uuid.UUID               { return c.id }
func (c *Controller) Kind() Kind                  { return c.rules.Kind }
func (c *Controller) Rules() *Rules               { return c.rules }
func (c *Controller) State() AssemblyState        { return c.state }
func (c *Controller) Registry() *Registry         { return c.reg }
func (c *Controller) Grid() Grid                  { return c.grid }
func (c *Controller) Machine() Machine            { return c.machine }
func (c *Controller) Layout() any                 { return c.layout }
func (c *Controller) LastError() *ValidationError { return c.lastErr }
func (c *Controller) Dirty() bool                 { return c.dirty }
func (c *Controller) Empty() bool                 { return c.reg.Len() == 0 }
func (c *Controller) IsAssembled() bool           { return c.state == Assembled }

// Reference is the smallest registered position in scan order.
func (c *Controller) Reference() (cube.Pos, bool) {
	parts := c.reg.Parts()
	if len(parts) == 0 {
		return cube.Pos{}, false
	}
	return parts[0].Pos, true
}

// Attach registers p and schedules re-validation.
func (c *Controller) Attach(p Part) bool {
	if !c.reg.Add(p) {
		return false
	}
	c.dirty = true
	return true
}

// Detach unregisters the part at pos and schedules re-validation.
func (c *Controller) Detach(pos cube.Pos) (Part, bool) {
	p, ok := c.reg.Remove(pos)
	if ok {
		c.dirty = true
	}
	return p, ok
}

// MarkRestored makes the next successful validation call OnRestored instead
// of OnAssembled. Used for controllers rebuilt from a snapshot.
func (c *Controller) MarkRestored() {
	c.restoring = true
	c.dirty = true
}

// Invalidate forces a re-validation on the next tick.
func (c *Controller) Invalidate() { c.dirty = true }

// Tick re-validates when needed and advances the machine while assembled.
// A disassembled controller re-validates every tick; an assembled one only
// after its parts changed.
func (c *Controller) Tick(ctx context.Context, tick uint64) {
	switch c.state {
	case Paused:
		return
	case Disassembled:
		c.check(ctx, tick)
	case Assembled:
		if c.dirty {
			c.check(ctx, tick)
		}
	}
	if c.state == Assembled {
		c.machine.Update(ctx, c, tick)
	}
}

func (c *Controller) validate(ctx context.Context) (any, *ValidationError) {
	layout, err := Validate(ctx, c.rules, c.reg, c.grid)
	c.dirty = false
	if c.onValidate != nil {
		c.onValidate(c.rules.Kind, CodeOf(err))
	}
	if err == nil {
		return layout, nil
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		verr = Fail("internal", err.Error())
	}
	return nil, verr
}

func (c *Controller) check(ctx context.Context, tick uint64) {
	layout, verr := c.validate(ctx)
	if verr != nil {
		c.lastErr = verr
		c.layout = nil
		if c.state == Assembled {
			c.state = Disassembled
			c.machine.OnDisassembled(c)
			c.emit(tick, Assembled, Disassembled, verr)
		} else if c.restoring {
			c.restoring = false
			c.machine.OnDisassembled(c)
		}
		return
	}
	c.lastErr = nil
	c.layout = layout
	if c.state == Assembled {
		// Still whole after a topology change; re-derive geometry.
		c.machine.OnAssembled(c, layout)
		return
	}
	from := c.state
	c.state = Assembled
	if c.restoring {
		c.restoring = false
		c.machine.OnRestored(c, layout)
	} else {
		c.machine.OnAssembled(c, layout)
	}
	c.emit(tick, from, Assembled, nil)
}

// Pause suspends an assembled controller without tearing it down.
func (c *Controller) Pause(tick uint64) {
	if c.state != Assembled {
		return
	}
	c.state = Paused
	c.machine.OnPaused(c)
	c.emit(tick, Assembled, Paused, nil)
}

// Resume re-validates a paused controller and restores it when still whole.
func (c *Controller) Resume(ctx context.Context, tick uint64) {
	if c.state != Paused {
		return
	}
	layout, verr := c.validate(ctx)
	if verr != nil {
		c.lastErr = verr
		c.layout = nil
		c.state = Disassembled
		c.machine.OnDisassembled(c)
		c.emit(tick, Paused, Disassembled, verr)
		return
	}
	c.lastErr = nil
	c.layout = layout
	c.state = Assembled
	c.machine.OnRestored(c, layout)
	c.emit(tick, Paused, Assembled, nil)
}

// Dissolve tears the controller down without validating, for hosts removing
// its last part.
func (c *Controller) Dissolve(tick uint64) {
	c.layout = nil
	if c.state == Disassembled {
		return
	}
	from := c.state
	c.state = Disassembled
	c.machine.OnDisassembled(c)
	c.emit(tick, from, Disassembled, nil)
}

// Assimilate moves every part and resource of other into c in one step.
// other is left empty and disassembled.
func (c *Controller) Assimilate(other *Controller, tick uint64) {
	if other == nil || other == c {
		return
	}
	for _, p := range other.reg.Parts() {
		other.reg.Remove(p.Pos)
		c.reg.Add(p)
	}
	c.machine.Absorb(other.machine)
	if other.state != Disassembled {
		from := other.state
		other.state = Disassembled
		other.emit(tick, from, Disassembled, nil)
	}
	other.layout = nil
	c.dirty = true
}

func (c *Controller) BroadcastListening(payload []byte) {
	if c.bc != nil {
		c.bc.BroadcastListening(c.id, payload)
	}
}

func (c *Controller) BroadcastAll(payload []byte) {
	if c.bc != nil {
		c.bc.BroadcastAll(c.id, payload)
	}
}

func (c *Controller) emit(tick uint64, from, to AssemblyState, verr *ValidationError) {
	if c.onTransition == nil {
		return
	}
	c.onTransition(Transition{Controller: c.id, Kind: c.rules.Kind, Tick: tick, From: from, To: to, Err: verr})
}

type nopMachine struct{}

func (nopMachine) OnAssembled(*Controller, any)                {}
func (nopMachine) OnRestored(*Controller, any)                 {}
func (nopMachine) OnPaused(*Controller)                        {}
func (nopMachine) OnDisassembled(*Controller)                  {}
func (nopMachine) Update(context.Context, *Controller, uint64) {}
func (nopMachine) Absorb(Machine)                              {}
func (nopMachine) Save() ([]byte, error)                       { return nil, nil }
func (nopMachine) Load([]byte) error                           { return nil }
