package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"turbinecraft.ai/internal/sim/world"
)

// ListenMsg is the only message observers send: start or stop the packet
// stream of one controller.
type ListenMsg struct {
	Type       string `json:"type"` // LISTEN
	Controller string `json:"controller"`
	Listen     bool   `json:"listen"`
}

type Server struct {
	world *world.World
	log   *log.Logger

	// AllowRemote lifts the loopback restriction on the websocket and
	// command endpoints.
	AllowRemote bool

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	return &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Register mounts the observer endpoints on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/observe", s.WSHandler())
	mux.HandleFunc("/v1/controllers", s.ControllersHandler())
	mux.HandleFunc("/v1/commands", s.CommandsHandler())
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func (s *Server) allowed(r *http.Request) bool {
	return s.AllowRemote || isLoopbackRemote(r.RemoteAddr)
}

// ControllersHandler lists the controllers as of the last finished tick.
func (s *Server) ControllersHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		m := s.world.Metrics()
		controllers := m.Controllers
		if controllers == nil {
			controllers = []world.ControllerInfo{}
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(struct {
			WorldID     string                 `json:"world_id"`
			Tick        uint64                 `json:"tick"`
			Controllers []world.ControllerInfo `json:"controllers"`
		}{s.world.ID(), m.Tick, controllers})
	}
}

// CommandsHandler submits one command and waits for the tick that applies it.
func (s *Server) CommandsHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		var cmd world.Command
		if err := json.NewDecoder(http.MaxBytesReader(rw, r.Body, 64*1024)).Decode(&cmd); err != nil {
			http.Error(rw, "bad command: "+err.Error(), http.StatusBadRequest)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()
		res, err := s.world.Submit(ctx, cmd)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}
		out := struct {
			world.CommandResult
			Error string `json:"error,omitempty"`
		}{CommandResult: res}
		status := http.StatusOK
		if res.Err != nil {
			out.Error = res.Err.Error()
			status = http.StatusUnprocessableEntity
		}
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(status)
		_ = json.NewEncoder(rw).Encode(out)
	}
}

// WSHandler streams packets and assembly notices. Clients send LISTEN
// messages to pick the controllers whose per-update packets they receive.
func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		out := make(chan []byte, 256)
		select {
		case s.world.ObserverJoin() <- world.ObserverJoinRequest{SessionID: sid, Out: out}:
		default:
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server busy"), time.Now().Add(time.Second))
			return
		}
		defer func() {
			select {
			case s.world.ObserverLeave() <- sid:
			default:
				// World loop is stopping; nothing else to do.
			}
		}()
		s.logf("observer %s joined from %s", sid, r.RemoteAddr)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b, ok := <-out:
					if !ok {
						writeErr <- nil
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var m ListenMsg
			if err := json.Unmarshal(msg, &m); err != nil || m.Type != "LISTEN" {
				continue
			}
			req := world.ObserverListenRequest{SessionID: sid, Controller: m.Controller, Listen: m.Listen}
			select {
			case s.world.ObserverListen() <- req:
			default:
				// Drop under load; the client may resend.
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
		s.logf("observer %s left", sid)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
