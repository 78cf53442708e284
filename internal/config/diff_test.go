package config_test

import (
	"strings"
	"testing"

	"github.com/stagelink/ingestd/internal/config"
)

func loadValid(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

func TestDiffNoChanges(t *testing.T) {
	t.Parallel()
	a := loadValid(t, validYAML)
	b := loadValid(t, validYAML)

	r := config.Diff(a, b)
	if r.RestartRequired() {
		t.Errorf("identical configs report changed sections: %v", r.ChangedSections)
	}
	if r.LogLevelChanged {
		t.Error("identical configs report a log level change")
	}
}

func TestDiffLogLevel(t *testing.T) {
	t.Parallel()
	a := loadValid(t, validYAML)
	b := loadValid(t, strings.Replace(validYAML, "log_level: info", "log_level: debug", 1))

	r := config.Diff(a, b)
	if !r.LogLevelChanged || r.NewLogLevel != config.LogDebug {
		t.Errorf("log level change not reported: %+v", r)
	}
	if len(r.ChangedSections) != 1 || r.ChangedSections[0] != "server" {
		t.Errorf("ChangedSections = %v, want [server]", r.ChangedSections)
	}
}

func TestDiffButtonChanges(t *testing.T) {
	t.Parallel()
	a := loadValid(t, validYAML)
	b := loadValid(t, strings.Replace(validYAML, "speak_key: KEY_S", "speak_key: KEY_G", 1))

	r := config.Diff(a, b)
	if !r.RestartRequired() {
		t.Fatal("avatar key rebind not reported as a change")
	}
	if len(r.ChangedSections) != 1 || r.ChangedSections[0] != "buttons" {
		t.Errorf("ChangedSections = %v, want [buttons]", r.ChangedSections)
	}
}

func TestDiffMultipleSections(t *testing.T) {
	t.Parallel()
	a := loadValid(t, validYAML)
	changed := strings.Replace(validYAML, "device_name: \"USB Audio\"", "device_name: \"Scarlett\"", 1)
	changed = strings.Replace(changed, "url: tls://nats.local:4222", "url: tls://nats2.local:4222", 1)
	b := loadValid(t, changed)

	r := config.Diff(a, b)
	want := []string{"audio", "nats"}
	if len(r.ChangedSections) != len(want) {
		t.Fatalf("ChangedSections = %v, want %v", r.ChangedSections, want)
	}
	for i := range want {
		if r.ChangedSections[i] != want[i] {
			t.Errorf("ChangedSections[%d] = %q, want %q", i, r.ChangedSections[i], want[i])
		}
	}
}
