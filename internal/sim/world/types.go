package world

import (
	"errors"

	"turbinecraft.ai/internal/sim/multiblock"
)

var (
	ErrOccupied     = errors.New("cell occupied")
	ErrNoPart       = errors.New("no part at cell")
	ErrUnknownKind  = errors.New("unknown multiblock kind")
	ErrUnknownPart  = errors.New("unknown part type")
	ErrUnknownBlock = errors.New("unknown block")
	ErrNotLoaded    = errors.New("chunk not loaded")
	ErrNoController = errors.New("no such controller")
	ErrNoTanks      = errors.New("controller has no tanks")
	ErrUnknownOp    = errors.New("unknown command op")
	ErrNoSink       = errors.New("snapshot sink not configured")
	ErrSinkFull     = errors.New("snapshot sink backed up")
)

// KindSpec binds a multiblock kind to its rules and machine factory.
type KindSpec struct {
	Rules      *multiblock.Rules
	NewMachine func() multiblock.Machine
	PartName   func(multiblock.PartType) string
	ParsePart  func(string) (multiblock.PartType, bool)
}

type ChunkKey struct {
	CX int `json:"cx"`
	CZ int `json:"cz"`
}

// AssemblyEvent is one line of the assembly event log.
type AssemblyEvent struct {
	Tick       uint64  `json:"tick"`
	Type       string  `json:"type"` // created, transition, merged, split, destroyed
	Controller string  `json:"controller"`
	Kind       string  `json:"kind"`
	From       string  `json:"from,omitempty"`
	To         string  `json:"to,omitempty"`
	Code       string  `json:"code,omitempty"`
	Pos        *[3]int `json:"pos,omitempty"`
	Message    string  `json:"message,omitempty"`

	// Other is the second controller of a merge or split.
	Other string `json:"other,omitempty"`
}

type TickLogEntry struct {
	Tick     uint64    `json:"tick"`
	Commands []Command `json:"commands,omitempty"`
	Digest   string    `json:"digest"`
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type EventLogger interface {
	WriteEvent(e AssemblyEvent) error
}

// ControllerInfo is the read-only summary published after every step.
type ControllerInfo struct {
	ID        string  `json:"id"`
	Kind      string  `json:"kind"`
	State     string  `json:"state"`
	Parts     int     `json:"parts"`
	Min       [3]int  `json:"min"`
	Max       [3]int  `json:"max"`
	ErrorCode string  `json:"error_code,omitempty"`
	Error     string  `json:"error,omitempty"`
	ErrorPos  *[3]int `json:"error_pos,omitempty"`

	On       bool    `json:"on"`
	Power    float64 `json:"power"`
	Energy   int     `json:"energy"`
	Capacity int     `json:"capacity"`

	InputFluid   string `json:"input_fluid,omitempty"`
	InputAmount  int    `json:"input_amount,omitempty"`
	OutputFluid  string `json:"output_fluid,omitempty"`
	OutputAmount int    `json:"output_amount,omitempty"`
	InputRate    int    `json:"input_rate,omitempty"`
}

type WorldMetrics struct {
	Tick        uint64           `json:"tick"`
	Parts       int              `json:"parts"`
	Observers   int              `json:"observers"`
	Unloaded    int              `json:"unloaded_chunks"`
	StepMS      float64          `json:"step_ms"`
	Controllers []ControllerInfo `json:"controllers"`
}
