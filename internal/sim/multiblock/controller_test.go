package multiblock

import (
	"context"
	"testing"

	"github.com/df-mc/dragonfly/server/block/cube"
)

func TestRegistry_BoxGrowsAndShrinks(t *testing.T) {
	reg := NewRegistry(testKind)
	if _, ok := reg.Box(); ok {
		t.Fatalf("empty registry has a box")
	}
	add := func(p cube.Pos) { reg.Add(Part{Pos: p, Kind: testKind, Type: typeShell}) }
	add(cube.Pos{0, 0, 0})
	add(cube.Pos{2, 1, 0})
	before, _ := reg.Box()
	add(cube.Pos{1, 5, -3})
	after, _ := reg.Box()
	if !after.Contains(before.Min) || !after.Contains(before.Max) {
		t.Fatalf("add shrank box: %v -> %v", before, after)
	}
	if after.Min != (cube.Pos{0, 0, -3}) || after.Max != (cube.Pos{2, 5, 0}) {
		t.Fatalf("box after add: got %v", after)
	}

	reg.Remove(cube.Pos{1, 5, -3})
	shrunk, _ := reg.Box()
	if shrunk != before {
		t.Fatalf("box after remove: got %v want %v", shrunk, before)
	}
	if reg.Add(Part{Pos: cube.Pos{9, 9, 9}, Kind: "reactor"}) {
		t.Fatalf("foreign kind accepted")
	}
	if reg.Add(Part{Pos: cube.Pos{0, 0, 0}, Kind: testKind, Type: typeCore}) {
		t.Fatalf("occupied position accepted")
	}
}

func TestRegistry_TypeSetsAndReachable(t *testing.T) {
	reg := NewRegistry(testKind)
	for _, p := range []cube.Pos{{2, 0, 0}, {0, 0, 0}, {1, 0, 0}, {5, 0, 0}} {
		reg.Add(Part{Pos: p, Kind: testKind, Type: typeShell})
	}
	reg.Add(Part{Pos: cube.Pos{5, 1, 0}, Kind: testKind, Type: typeCore})

	got := reg.OfType(typeShell)
	want := []cube.Pos{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}, {5, 0, 0}}
	if len(got) != len(want) {
		t.Fatalf("of type: got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("of type order: got %v want %v", got, want)
		}
	}
	if reg.Count(typeCore) != 1 {
		t.Fatalf("core count: got %d want 1", reg.Count(typeCore))
	}

	seen := reg.Reachable(cube.Pos{0, 0, 0})
	if len(seen) != 3 || seen[cube.Pos{5, 0, 0}] {
		t.Fatalf("reachable: got %v", seen)
	}
	if other := reg.Reachable(cube.Pos{5, 1, 0}); len(other) != 2 {
		t.Fatalf("reachable from core: got %v", other)
	}
}

func TestController_AssemblesAndDisassembles(t *testing.T) {
	g := newFakeGrid()
	m := &recordingMachine{}
	var transitions []Transition
	c := NewController(testRules(), g, m, WithTransitionHook(func(tr Transition) {
		transitions = append(transitions, tr)
	}))
	shell(c.Registry(), g, cube.Pos{}, [3]int{3, 3, 3})

	ctx := context.Background()
	c.Tick(ctx, 1)
	if c.State() != Assembled || m.last() != "assembled" || m.updates != 1 {
		t.Fatalf("after first tick: state %s calls %v updates %d", c.State(), m.calls, m.updates)
	}
	if c.LastError() != nil {
		t.Fatalf("unexpected last error %v", c.LastError())
	}

	c.Tick(ctx, 2)
	if len(m.calls) != 1 || m.updates != 2 {
		t.Fatalf("assembled controller re-validated without a change: %v", m.calls)
	}

	c.Detach(cube.Pos{0, 0, 0})
	delete(g.parts, cube.Pos{0, 0, 0})
	c.Tick(ctx, 3)
	if c.State() != Disassembled || m.last() != "disassembled" {
		t.Fatalf("after detach: state %s calls %v", c.State(), m.calls)
	}
	if m.updates != 2 {
		t.Fatalf("disassembled controller updated its machine")
	}
	if c.LastError() == nil || c.LastError().Code != CodeTooFewParts {
		t.Fatalf("last error: got %v", c.LastError())
	}
	if len(transitions) != 2 || transitions[1].From != Assembled || transitions[1].To != Disassembled || transitions[1].Tick != 3 {
		t.Fatalf("transitions: got %+v", transitions)
	}
}

func TestController_PauseAndResume(t *testing.T) {
	g := newFakeGrid()
	m := &recordingMachine{}
	c := NewController(testRules(), g, m)
	shell(c.Registry(), g, cube.Pos{}, [3]int{3, 3, 3})
	ctx := context.Background()
	c.Tick(ctx, 1)

	c.Pause(2)
	if c.State() != Paused || m.last() != "paused" {
		t.Fatalf("pause: state %s calls %v", c.State(), m.calls)
	}
	c.Tick(ctx, 3)
	if m.updates != 1 {
		t.Fatalf("paused controller updated")
	}
	c.Resume(ctx, 4)
	if c.State() != Assembled || m.last() != "restored" {
		t.Fatalf("resume: state %s calls %v", c.State(), m.calls)
	}
}

func TestController_RestoredAfterSnapshot(t *testing.T) {
	g := newFakeGrid()
	m := &recordingMachine{}
	c := NewController(testRules(), g, m)
	shell(c.Registry(), g, cube.Pos{}, [3]int{3, 3, 3})
	c.MarkRestored()
	c.Tick(context.Background(), 10)
	if m.last() != "restored" {
		t.Fatalf("calls: got %v want restored", m.calls)
	}
}

func TestController_AssimilateMovesEverything(t *testing.T) {
	g := newFakeGrid()
	ma, mb := &recordingMachine{}, &recordingMachine{}
	a := NewController(testRules(), g, ma)
	b := NewController(testRules(), g, mb)
	shell(a.Registry(), g, cube.Pos{}, [3]int{3, 3, 3})
	b.Attach(Part{Pos: cube.Pos{3, 1, 1}, Kind: testKind, Type: typeShell})

	a.Tick(context.Background(), 1)
	a.Assimilate(b, 2)
	if !b.Empty() {
		t.Fatalf("loser kept %d parts", b.Registry().Len())
	}
	if a.Registry().Len() != 27 || ma.absorbed != 1 {
		t.Fatalf("survivor: parts %d absorbed %d", a.Registry().Len(), ma.absorbed)
	}
	if !a.Dirty() {
		t.Fatalf("survivor not scheduled for re-validation")
	}
}

func TestController_DissolveSkipsValidation(t *testing.T) {
	g := newFakeGrid()
	m := &recordingMachine{}
	var transitions []Transition
	c := NewController(testRules(), g, m, WithTransitionHook(func(tr Transition) {
		transitions = append(transitions, tr)
	}))
	shell(c.Registry(), g, cube.Pos{}, [3]int{3, 3, 3})
	c.Tick(context.Background(), 1)

	c.Dissolve(5)
	if c.State() != Disassembled || m.last() != "disassembled" {
		t.Fatalf("dissolve: state %s calls %v", c.State(), m.calls)
	}
	if c.Layout() != nil {
		t.Fatalf("layout kept after dissolve")
	}
	if len(transitions) != 2 || transitions[1].Tick != 5 || transitions[1].Err != nil {
		t.Fatalf("transitions: got %+v", transitions)
	}

	c.Dissolve(6)
	if len(m.calls) != 2 || len(transitions) != 2 {
		t.Fatalf("second dissolve fired hooks: calls %v transitions %d", m.calls, len(transitions))
	}
}
