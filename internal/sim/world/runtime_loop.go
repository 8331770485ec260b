package world

import (
	"context"
	"time"
)

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pending []Command
	var pendingAdmin []snapshotReq

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.observerJoin:
			w.handleObserverJoin(req)
		case req := <-w.observerListen:
			w.handleObserverListen(req)
		case id := <-w.observerLeave:
			w.handleObserverLeave(id)
		case req := <-w.admin:
			pendingAdmin = append(pendingAdmin, req)
		case cmd := <-w.inbox:
			pending = append(pending, cmd)
		case <-ticker.C:
			w.stepInternal(ctx, pending)
			w.answerSnapshotRequests(pendingAdmin)
			pending = pending[:0]
			pendingAdmin = pendingAdmin[:0]
		}
	}
}

func (w *World) Stop() { w.stopOnce.Do(func() { close(w.stop) }) }

// StepOnce advances the world by a single tick using the same ordering
// semantics as Run. It is meant for replays and tests.
func (w *World) StepOnce(ctx context.Context, cmds []Command) (tick uint64, digest string) {
	tick = w.tick.Load()
	return tick, w.stepInternal(ctx, cmds)
}

func (w *World) stepInternal(ctx context.Context, cmds []Command) string {
	stepStart := time.Now()
	nowTick := w.tick.Load()

	// Commands apply in receive order, before any controller ticks.
	recorded := make([]Command, 0, len(cmds))
	for _, cmd := range cmds {
		res := w.Apply(ctx, cmd)
		if cmd.Resp != nil {
			select {
			case cmd.Resp <- res:
			default:
			}
		}
		cmd.Resp = nil
		recorded = append(recorded, cmd)
	}

	for _, c := range w.sortedControllers() {
		if !w.fullyLoaded(c) {
			continue
		}
		c.Tick(ctx, nowTick)
	}
	w.flushEvents()

	digest := w.stateDigest(nowTick)
	if w.tickLogger != nil {
		if err := w.tickLogger.WriteTick(TickLogEntry{Tick: nowTick, Commands: recorded, Digest: digest}); err != nil {
			w.logf("tick log: %v", err)
		}
	}

	if w.snapshotSink != nil && nowTick != 0 && w.cfg.SnapshotEveryTicks > 0 {
		if nowTick%uint64(w.cfg.SnapshotEveryTicks) == 0 {
			snap := w.ExportSnapshot(nowTick)
			select {
			case w.snapshotSink <- snap:
			default:
				// Drop snapshot if sink is backed up.
			}
		}
	}

	stepMS := float64(time.Since(stepStart).Microseconds()) / 1000.0
	nextTick := w.tick.Add(1)

	infos := make([]ControllerInfo, 0, len(w.controllers))
	for _, c := range w.sortedControllers() {
		infos = append(infos, w.Info(c))
	}
	w.metrics.Store(WorldMetrics{
		Tick:        nextTick,
		Parts:       len(w.parts),
		Observers:   len(w.observers),
		Unloaded:    len(w.unloaded),
		StepMS:      stepMS,
		Controllers: infos,
	})
	return digest
}

// SnapshotReceipt describes a snapshot queued on request.
type SnapshotReceipt struct {
	Tick        uint64 `json:"tick"`
	Parts       int    `json:"parts"`
	Controllers int    `json:"controllers"`
	Assembled   int    `json:"assembled"`
}

type snapshotReq struct {
	resp chan snapshotAnswer
}

type snapshotAnswer struct {
	receipt SnapshotReceipt
	err     error
}

// RequestSnapshot has the loop export the last finished tick to the snapshot
// sink. Safe to call from any goroutine.
func (w *World) RequestSnapshot(ctx context.Context) (SnapshotReceipt, error) {
	resp := make(chan snapshotAnswer, 1)
	select {
	case w.admin <- snapshotReq{resp: resp}:
	case <-ctx.Done():
		return SnapshotReceipt{}, ctx.Err()
	}
	select {
	case a := <-resp:
		return a.receipt, a.err
	case <-ctx.Done():
		return SnapshotReceipt{}, ctx.Err()
	}
}

func (w *World) answerSnapshotRequests(reqs []snapshotReq) {
	if len(reqs) == 0 {
		return
	}
	var a snapshotAnswer
	if t := w.tick.Load(); t > 0 {
		a.receipt.Tick = t - 1
	}
	a.receipt.Parts = len(w.parts)
	a.receipt.Controllers = len(w.controllers)
	for _, c := range w.controllers {
		if c.IsAssembled() {
			a.receipt.Assembled++
		}
	}
	switch {
	case w.snapshotSink == nil:
		a.err = ErrNoSink
	default:
		select {
		case w.snapshotSink <- w.ExportSnapshot(a.receipt.Tick):
		default:
			a.err = ErrSinkFull
		}
	}
	for _, r := range reqs {
		select {
		case r.resp <- a:
		default:
		}
	}
}

func (w *World) flushEvents() {
	for _, ev := range w.pendingEvents {
		if w.eventLogger != nil {
			if err := w.eventLogger.WriteEvent(ev); err != nil {
				w.logf("event log: %v", err)
			}
		}
		w.notifyObservers(ev)
	}
	w.pendingEvents = w.pendingEvents[:0]
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
