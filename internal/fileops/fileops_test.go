package fileops

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestConfigRoundTrip(t *testing.T) {
	fo := NewFileOps(t.TempDir())
	if err := fo.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	if _, err := fo.LoadConfig("auralight.yaml"); !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("LoadConfig on empty dir = %v, want ErrConfigNotFound", err)
	}
	if err := fo.SaveConfig("auralight.yaml", []byte("device:\n  id: lab\n")); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	data, err := fo.LoadConfig("auralight.yaml")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if string(data) != "device:\n  id: lab\n" {
		t.Errorf("LoadConfig = %q", data)
	}
}

func TestClips(t *testing.T) {
	fo := NewFileOps(t.TempDir())
	if err := fo.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"b.wav", "a.MP3", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(fo.GetClipsDir(), name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	clips, err := fo.ListClips()
	if err != nil {
		t.Fatalf("ListClips: %v", err)
	}
	if len(clips) != 2 || clips[0] != "a.MP3" || clips[1] != "b.wav" {
		t.Errorf("ListClips = %v, want [a.MP3 b.wav]", clips)
	}

	path, err := fo.ResolveClip("b.wav")
	if err != nil {
		t.Fatalf("ResolveClip: %v", err)
	}
	if path != filepath.Join(fo.GetClipsDir(), "b.wav") {
		t.Errorf("ResolveClip = %s", path)
	}
	if _, err := fo.ResolveClip("missing.wav"); err == nil {
		t.Error("ResolveClip of a missing clip succeeded")
	}
}

func TestPIDFile(t *testing.T) {
	fo := NewFileOps(t.TempDir())
	if err := fo.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}

	if err := fo.CheckPID(); err != nil {
		t.Fatalf("CheckPID without file = %v", err)
	}
	if err := fo.SavePID(); err != nil {
		t.Fatalf("SavePID: %v", err)
	}
	// Our own PID is not a competing instance.
	if err := fo.CheckPID(); err != nil {
		t.Errorf("CheckPID with own PID = %v", err)
	}

	// PID 1 always exists on Linux.
	if err := os.WriteFile(fo.getPIDFilePath(), []byte(strconv.Itoa(1)), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := fo.CheckPID(); !errors.Is(err, ErrProcessAlreadyRunning) && err != nil {
		t.Errorf("CheckPID with live PID = %v", err)
	}

	if err := os.WriteFile(fo.getPIDFilePath(), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := fo.CheckPID(); err == nil {
		t.Error("CheckPID accepted a corrupt PID file")
	}

	fo.HandleExit()
	if _, err := os.Stat(fo.getPIDFilePath()); !os.IsNotExist(err) {
		t.Errorf("PID file still present after HandleExit")
	}
}
