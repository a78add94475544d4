// Package server streams live analyzer snapshots to the dashboard over
// WebSocket and accepts the same commands the MQTT topics carry.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dooshek/auralight/internal/audio"
	"github.com/dooshek/auralight/internal/logger"
	"github.com/dooshek/auralight/internal/state"
	"github.com/dooshek/auralight/internal/types"
)

// Source provides what the feed streams.
type Source interface {
	Snapshot() audio.Snapshot
	DeviceState() state.Snapshot
}

// Controller applies commands received from a client.
type Controller interface {
	SetVolumeRange(minDb, maxDb float64) error
	SetMode(m state.Mode)
	SetPower(on bool)
}

// Message is one frame sent to a client.
type Message struct {
	Type  string          `json:"type"`
	Audio *audio.Snapshot `json:"audio,omitempty"`
	On    bool            `json:"on"`
	Mode  string          `json:"mode"`
	Error string          `json:"error,omitempty"`
}

// Command is one frame received from a client.
type Command struct {
	Type string  `json:"type"` // set_range, set_mode, set_power
	Min  float64 `json:"min,omitempty"`
	Max  float64 `json:"max,omitempty"`
	Mode string  `json:"mode,omitempty"`
	On   bool    `json:"on,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		host := r.Host
		if strings.HasPrefix(origin, "http://"+host) || strings.HasPrefix(origin, "https://"+host) {
			return true
		}
		if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
			return true
		}
		logger.Warnf("Rejected WebSocket connection from origin: %s", origin)
		return false
	},
}

type Server struct {
	cfg     types.ServerConfig
	source  Source
	control Controller
	clients atomic.Int32
	httpSrv *http.Server

	closing   chan struct{}
	closeOnce sync.Once
}

func New(cfg types.ServerConfig, source Source, control Controller) *Server {
	return &Server{cfg: cfg, source: source, control: control, closing: make(chan struct{})}
}

// Close ends every open WebSocket stream. Shutdown leaves hijacked
// connections alone, so they are told to go away here.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.closing) })
}

// Clients is the number of connected WebSocket clients.
func (s *Server) Clients() int { return int(s.clients.Load()) }

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// Start listens on the configured address until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.httpSrv = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		s.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Dashboard server stopped", err)
		}
	}()

	logger.Infof("🌐 Dashboard feed on ws://%s/ws", ln.Addr())
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"clients": s.Clients(),
	})
}

func (s *Server) message() Message {
	snap := s.source.Snapshot()
	dev := s.source.DeviceState()
	return Message{Type: "levels", Audio: &snap, On: dev.On, Mode: dev.Mode.String()}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.clients.Add(1)
	defer s.clients.Add(-1)

	replies := make(chan Message, 4)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			var cmd Command
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			reply := s.handleCommand(cmd)
			select {
			case replies <- reply:
			default:
			}
		}
	}()

	ticker := time.NewTicker(s.cfg.Interval())
	defer ticker.Stop()

	if err := conn.WriteJSON(s.message()); err != nil {
		return
	}
	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-s.closing:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return
		case reply := <-replies:
			if err := conn.WriteJSON(reply); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteJSON(s.message()); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleCommand(cmd Command) Message {
	ack := Message{Type: "ack"}
	switch cmd.Type {
	case "set_range":
		if err := s.control.SetVolumeRange(cmd.Min, cmd.Max); err != nil {
			ack.Type, ack.Error = "error", err.Error()
		}
	case "set_mode":
		m, err := state.ParseMode(cmd.Mode)
		if err != nil {
			ack.Type, ack.Error = "error", err.Error()
			break
		}
		s.control.SetMode(m)
	case "set_power":
		s.control.SetPower(cmd.On)
	default:
		logger.Warnf("Unknown WebSocket command type: %s", cmd.Type)
		ack.Type, ack.Error = "error", "unknown command "+cmd.Type
	}

	dev := s.source.DeviceState()
	ack.On, ack.Mode = dev.On, dev.Mode.String()
	return ack
}
