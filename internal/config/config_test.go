package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaults(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)

	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// First load writes the default config to disk
	if _, err := os.Stat(m.GetPath()); err != nil {
		t.Errorf("Expected config file to be created: %v", err)
	}

	cfg := m.Get()
	if cfg.Audio.SampleRate != 44100 {
		t.Errorf("Expected default sample rate 44100, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.DefaultVolume != 1.0 {
		t.Errorf("Expected default volume 1.0, got %f", cfg.Audio.DefaultVolume)
	}
	if cfg.Engine.FadeCurve != "equalPower" {
		t.Errorf("Expected default fade curve equalPower, got %s", cfg.Engine.FadeCurve)
	}
	if cfg.Engine.CrossfadeMs != 0 {
		t.Errorf("Expected default crossfade 0, got %d", cfg.Engine.CrossfadeMs)
	}
}

func TestUpdateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg := m.Get()
	cfg.Engine.CrossfadeMs = 250
	cfg.Engine.FadeCurve = "linear"
	cfg.Behavior.PreviousRestartSec = 10
	if err := m.Update(cfg); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	// A fresh manager should read back the saved values
	m2 := NewManager(dir)
	if err := m2.Load(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	got := m2.Get()
	if got.Engine.CrossfadeMs != 250 {
		t.Errorf("Expected crossfade 250, got %d", got.Engine.CrossfadeMs)
	}
	if got.Engine.FadeCurve != "linear" {
		t.Errorf("Expected fade curve linear, got %s", got.Engine.FadeCurve)
	}
	if got.Behavior.PreviousRestartSec != 10 {
		t.Errorf("Expected previousRestartSec 10, got %f", got.Behavior.PreviousRestartSec)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"engine":{"crossfadeMs":100}}`), 0600); err != nil {
		t.Fatal(err)
	}

	m := NewManager(dir)
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg := m.Get()
	if cfg.Engine.CrossfadeMs != 100 {
		t.Errorf("Expected crossfade 100, got %d", cfg.Engine.CrossfadeMs)
	}
	// unspecified fields come from the defaults
	if cfg.Audio.SampleRate != 44100 {
		t.Errorf("Expected sample rate 44100, got %d", cfg.Audio.SampleRate)
	}
}

func TestLoadInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`not json`), 0600); err != nil {
		t.Fatal(err)
	}

	m := NewManager(dir)
	if err := m.Load(); err == nil {
		t.Error("Expected error for invalid config file")
	}
}
