package world

import (
	"context"
	"fmt"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/google/uuid"

	"turbinecraft.ai/internal/sim/multiblock"
)

type CommandOp string

const (
	OpPlace       CommandOp = "PLACE"
	OpBreak       CommandOp = "BREAK"
	OpSetBlock    CommandOp = "SET_BLOCK"
	OpSignal      CommandOp = "SIGNAL"
	OpFill        CommandOp = "FILL"
	OpDrain       CommandOp = "DRAIN"
	OpUnloadChunk CommandOp = "UNLOAD_CHUNK"
	OpLoadChunk   CommandOp = "LOAD_CHUNK"
)

// Command is one host edit. Commands are applied in receive order at the
// start of a tick and recorded verbatim in the tick log.
type Command struct {
	Op CommandOp `json:"op"`

	Pos     [3]int `json:"pos"`
	Kind    string `json:"kind,omitempty"`
	Part    string `json:"part,omitempty"`
	Variant string `json:"variant,omitempty"`
	Block   string `json:"block,omitempty"`
	On      bool   `json:"on,omitempty"`

	Controller string `json:"controller,omitempty"`
	Fluid      string `json:"fluid,omitempty"`
	Amount     int    `json:"amount,omitempty"`

	Chunk ChunkKey `json:"chunk"`

	Resp chan CommandResult `json:"-"`
}

type CommandResult struct {
	Controller string `json:"controller,omitempty"`
	Fluid      string `json:"fluid,omitempty"`
	Amount     int    `json:"amount,omitempty"`
	Err        error  `json:"-"`
}

// Apply executes cmd immediately. It must run on the world loop goroutine
// (or with the loop stopped).
func (w *World) Apply(ctx context.Context, cmd Command) CommandResult {
	pos := cube.Pos(cmd.Pos)
	switch cmd.Op {
	case OpPlace:
		spec, ok := w.kinds[multiblock.Kind(cmd.Kind)]
		if !ok {
			return CommandResult{Err: fmt.Errorf("%w: %s", ErrUnknownKind, cmd.Kind)}
		}
		t, ok := spec.ParsePart(cmd.Part)
		if !ok {
			return CommandResult{Err: fmt.Errorf("%w: %s", ErrUnknownPart, cmd.Part)}
		}
		c, err := w.Place(multiblock.Part{Pos: pos, Kind: spec.Rules.Kind, Type: t, Variant: cmd.Variant})
		if err != nil {
			return CommandResult{Err: err}
		}
		return CommandResult{Controller: c.ID().String()}
	case OpBreak:
		_, err := w.Break(pos)
		return CommandResult{Err: err}
	case OpSetBlock:
		return CommandResult{Err: w.SetBlock(pos, cmd.Block)}
	case OpSignal:
		w.SetSignal(pos, cmd.On)
		return CommandResult{}
	case OpFill:
		id, err := uuid.Parse(cmd.Controller)
		if err != nil {
			return CommandResult{Err: fmt.Errorf("%w: %s", ErrNoController, cmd.Controller)}
		}
		n, err := w.FillInput(id, cmd.Fluid, cmd.Amount)
		return CommandResult{Controller: cmd.Controller, Fluid: cmd.Fluid, Amount: n, Err: err}
	case OpDrain:
		id, err := uuid.Parse(cmd.Controller)
		if err != nil {
			return CommandResult{Err: fmt.Errorf("%w: %s", ErrNoController, cmd.Controller)}
		}
		fluid, n, err := w.DrainOutput(id, cmd.Amount)
		return CommandResult{Controller: cmd.Controller, Fluid: fluid, Amount: n, Err: err}
	case OpUnloadChunk:
		w.UnloadChunk(cmd.Chunk)
		return CommandResult{}
	case OpLoadChunk:
		w.LoadChunk(ctx, cmd.Chunk)
		return CommandResult{}
	default:
		return CommandResult{Err: fmt.Errorf("%w: %q", ErrUnknownOp, cmd.Op)}
	}
}

// Submit queues cmd for the next tick and waits for its result.
func (w *World) Submit(ctx context.Context, cmd Command) (CommandResult, error) {
	resp := make(chan CommandResult, 1)
	cmd.Resp = resp
	select {
	case w.inbox <- cmd:
	case <-ctx.Done():
		return CommandResult{}, ctx.Err()
	}
	select {
	case r := <-resp:
		return r, nil
	case <-ctx.Done():
		return CommandResult{}, ctx.Err()
	}
}
