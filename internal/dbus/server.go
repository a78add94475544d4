package dbus

import (
	"context"
	"fmt"

	"github.com/dooshek/auralight/internal/audio"
	"github.com/dooshek/auralight/internal/logger"
	"github.com/dooshek/auralight/internal/state"
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

const (
	dbusServiceName = "com.dooshek.auralight"
	dbusObjectPath  = "/com/dooshek/auralight/Analyzer"
	dbusInterface   = "com.dooshek.auralight.Analyzer"
)

// Analyzer is the read side exposed over the bus.
type Analyzer interface {
	Volume() float64
	Decibel() float64
	Level(maxLevels int) int
	Bands() [audio.NumBands]float64
	VolumeRange() audio.Range
}

// Controller applies changes requested over the bus.
type Controller interface {
	SetVolumeRange(minDb, maxDb float64) error
	SetMode(m state.Mode)
	DeviceState() state.Snapshot
	StatsJSON() (string, error)
}

// Server implements the D-Bus service for local tools and desktop widgets
type Server struct {
	conn     *dbus.Conn
	analyzer Analyzer
	control  Controller
}

func NewServer(analyzer Analyzer, control Controller) *Server {
	return &Server{analyzer: analyzer, control: control}
}

// Start connects to the session bus and exports the analyzer object
func (s *Server) Start() error {
	var err error
	s.conn, err = dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}

	reply, err := s.conn.RequestName(dbusServiceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		s.conn.Close()
		return fmt.Errorf("failed to request name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		s.conn.Close()
		return fmt.Errorf("name %s already taken", dbusServiceName)
	}

	if err := s.conn.Export(s, dbusObjectPath, dbusInterface); err != nil {
		s.conn.Close()
		return fmt.Errorf("failed to export object: %w", err)
	}

	err = s.conn.Export(introspect.NewIntrospectable(introspection()), dbusObjectPath, "org.freedesktop.DBus.Introspectable")
	if err != nil {
		s.conn.Close()
		return fmt.Errorf("failed to export introspectable: %w", err)
	}

	logger.Infof("🔌 D-Bus service started: %s", dbusServiceName)
	return nil
}

func introspection() *introspect.Node {
	out := func(name, typ string) introspect.Arg {
		return introspect.Arg{Name: name, Type: typ, Direction: "out"}
	}
	in := func(name, typ string) introspect.Arg {
		return introspect.Arg{Name: name, Type: typ, Direction: "in"}
	}

	return &introspect.Node{
		Name: dbusObjectPath,
		Interfaces: []introspect.Interface{{
			Name: dbusInterface,
			Methods: []introspect.Method{
				{Name: "GetVolume", Args: []introspect.Arg{out("volume", "d")}},
				{Name: "GetDecibel", Args: []introspect.Arg{out("decibel", "d")}},
				{Name: "GetLevel", Args: []introspect.Arg{in("max_levels", "i"), out("level", "i")}},
				{Name: "GetBands", Args: []introspect.Arg{out("bands", "ad")}},
				{Name: "GetVolumeRange", Args: []introspect.Arg{out("min", "d"), out("max", "d")}},
				{Name: "SetVolumeRange", Args: []introspect.Arg{in("min", "d"), in("max", "d")}},
				{Name: "GetMode", Args: []introspect.Arg{out("mode", "s")}},
				{Name: "SetMode", Args: []introspect.Arg{in("mode", "s")}},
				{Name: "GetStats", Args: []introspect.Arg{out("stats", "s")}},
			},
			Signals: []introspect.Signal{
				{Name: "ModeChanged", Args: []introspect.Arg{{Name: "mode", Type: "s"}}},
				{Name: "PowerChanged", Args: []introspect.Arg{{Name: "on", Type: "b"}}},
			},
		}},
	}
}

// Stop releases the bus connection
func (s *Server) Stop() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	logger.Infof("🔌 D-Bus service stopped")
}

// Watch emits ModeChanged and PowerChanged for every device change until ctx ends.
func (s *Server) Watch(ctx context.Context, changes <-chan state.Snapshot) {
	prev := s.control.DeviceState()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-changes:
			if !ok {
				return
			}
			if snap.Mode != prev.Mode {
				s.emitSignal("ModeChanged", snap.Mode.String())
			}
			if snap.On != prev.On {
				s.emitSignal("PowerChanged", snap.On)
			}
			prev = snap
		}
	}
}

func (s *Server) GetVolume() (float64, *dbus.Error) {
	return s.analyzer.Volume(), nil
}

func (s *Server) GetDecibel() (float64, *dbus.Error) {
	return s.analyzer.Decibel(), nil
}

func (s *Server) GetLevel(maxLevels int32) (int32, *dbus.Error) {
	return int32(s.analyzer.Level(int(maxLevels))), nil
}

func (s *Server) GetBands() ([]float64, *dbus.Error) {
	bands := s.analyzer.Bands()
	return bands[:], nil
}

func (s *Server) GetVolumeRange() (float64, float64, *dbus.Error) {
	r := s.analyzer.VolumeRange()
	return r.Min, r.Max, nil
}

func (s *Server) SetVolumeRange(minDb, maxDb float64) *dbus.Error {
	logger.Debugf("D-Bus: SetVolumeRange(%.1f, %.1f)", minDb, maxDb)
	if err := s.control.SetVolumeRange(minDb, maxDb); err != nil {
		return dbus.MakeFailedError(err)
	}
	return nil
}

func (s *Server) GetMode() (string, *dbus.Error) {
	return s.control.DeviceState().Mode.String(), nil
}

func (s *Server) SetMode(name string) *dbus.Error {
	logger.Debugf("D-Bus: SetMode(%s)", name)
	m, err := state.ParseMode(name)
	if err != nil {
		return dbus.MakeFailedError(err)
	}
	s.control.SetMode(m)
	return nil
}

func (s *Server) GetStats() (string, *dbus.Error) {
	js, err := s.control.StatsJSON()
	if err != nil {
		return "", dbus.MakeFailedError(err)
	}
	return js, nil
}

// emitSignal emits a D-Bus signal
func (s *Server) emitSignal(name string, args ...interface{}) {
	if s.conn == nil {
		logger.Debugf("D-Bus: not connected, dropping signal %s", name)
		return
	}

	signalPath := dbus.ObjectPath(dbusObjectPath)
	signalName := dbusInterface + "." + name

	if err := s.conn.Emit(signalPath, signalName, args...); err != nil {
		logger.Errorf("D-Bus: Failed to emit signal %s", err, name)
	} else {
		logger.Debugf("D-Bus: Emitted signal: %s", name)
	}
}
