package world

import (
	"encoding/base64"
	"encoding/json"
	"sort"

	"github.com/google/uuid"

	"turbinecraft.ai/internal/sim/multiblock/turbine"
)

// ObserverJoinRequest registers a read-only observer session. Packets and
// assembly notices are written to Out as JSON messages; slow readers lose the
// oldest pending message.
type ObserverJoinRequest struct {
	SessionID string
	Out       chan []byte
}

// ObserverListenRequest starts or stops the per-update packet stream of one
// controller for a session.
type ObserverListenRequest struct {
	SessionID  string
	Controller string
	Listen     bool
}

type observerClient struct {
	id        string
	out       chan []byte
	listening map[uuid.UUID]bool
}

// ObserverMsg is the envelope sent to observers.
type ObserverMsg struct {
	Type       string `json:"type"` // PACKET, ASSEMBLY
	Tick       uint64 `json:"tick"`
	Controller string `json:"controller,omitempty"`

	// Packet is a base64 turbine.UpdatePacket.
	Packet string `json:"packet,omitempty"`

	Event *AssemblyEvent `json:"event,omitempty"`
}

func (w *World) handleObserverJoin(req ObserverJoinRequest) {
	if req.SessionID == "" || req.Out == nil {
		return
	}
	w.observers[req.SessionID] = &observerClient{
		id:        req.SessionID,
		out:       req.Out,
		listening: map[uuid.UUID]bool{},
	}
}

func (w *World) handleObserverListen(req ObserverListenRequest) {
	cl := w.observers[req.SessionID]
	if cl == nil {
		return
	}
	id, err := uuid.Parse(req.Controller)
	if err != nil {
		return
	}
	if !req.Listen {
		delete(cl.listening, id)
		return
	}
	cl.listening[id] = true

	// A new listener gets the current packet right away.
	if c := w.controllers[id]; c != nil {
		if t, ok := c.Machine().(*turbine.Turbine); ok {
			if b, ok := w.packetMsg(id, t.Packet().Marshal()); ok {
				sendLatest(cl.out, b)
			}
		}
	}
}

func (w *World) handleObserverLeave(id string) {
	delete(w.observers, id)
}

func (w *World) packetMsg(id uuid.UUID, payload []byte) ([]byte, bool) {
	b, err := json.Marshal(ObserverMsg{
		Type:       "PACKET",
		Tick:       w.tick.Load(),
		Controller: id.String(),
		Packet:     base64.StdEncoding.EncodeToString(payload),
	})
	return b, err == nil
}

func (w *World) sortedObservers() []*observerClient {
	out := make([]*observerClient, 0, len(w.observers))
	for _, cl := range w.observers {
		out = append(out, cl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// BroadcastListening implements multiblock.Broadcaster.
func (w *World) BroadcastListening(id uuid.UUID, payload []byte) {
	if len(w.observers) == 0 {
		return
	}
	b, ok := w.packetMsg(id, payload)
	if !ok {
		return
	}
	for _, cl := range w.sortedObservers() {
		if cl.listening[id] {
			sendLatest(cl.out, b)
		}
	}
}

// BroadcastAll implements multiblock.Broadcaster.
func (w *World) BroadcastAll(id uuid.UUID, payload []byte) {
	if len(w.observers) == 0 {
		return
	}
	b, ok := w.packetMsg(id, payload)
	if !ok {
		return
	}
	for _, cl := range w.sortedObservers() {
		sendLatest(cl.out, b)
	}
}

func (w *World) notifyObservers(ev AssemblyEvent) {
	if len(w.observers) == 0 {
		return
	}
	b, err := json.Marshal(ObserverMsg{Type: "ASSEMBLY", Tick: ev.Tick, Controller: ev.Controller, Event: &ev})
	if err != nil {
		return
	}
	for _, cl := range w.sortedObservers() {
		sendLatest(cl.out, b)
	}
}
