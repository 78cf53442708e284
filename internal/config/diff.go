package config

// ChangeReport describes what changed between two loaded configs. The
// ingest daemon applies nothing at runtime; the report feeds the
// restart-required advisory logged by the watcher callback.
type ChangeReport struct {
	// LogLevelChanged is the one change that could in principle be
	// hot-applied; it is still only advisory here.
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ChangedSections lists the top-level sections whose content
	// differs, in schema order.
	ChangedSections []string
}

// RestartRequired reports whether any change needs a process restart to
// take effect.
func (r ChangeReport) RestartRequired() bool {
	return len(r.ChangedSections) > 0
}

// Diff compares two configs section by section.
func Diff(old, updated *Config) ChangeReport {
	r := ChangeReport{}

	if old.Server.LogLevel != updated.Server.LogLevel {
		r.LogLevelChanged = true
		r.NewLogLevel = updated.Server.LogLevel
	}

	if old.Server != updated.Server {
		r.ChangedSections = append(r.ChangedSections, "server")
	}
	if old.Show != updated.Show {
		r.ChangedSections = append(r.ChangedSections, "show")
	}
	if old.Audio != updated.Audio {
		r.ChangedSections = append(r.ChangedSections, "audio")
	}
	if !buttonsEqual(old.Buttons, updated.Buttons) {
		r.ChangedSections = append(r.ChangedSections, "buttons")
	}
	if old.Devices != updated.Devices {
		r.ChangedSections = append(r.ChangedSections, "devices")
	}
	if old.NATS != updated.NATS {
		r.ChangedSections = append(r.ChangedSections, "nats")
	}
	if old.Signaling != updated.Signaling {
		r.ChangedSections = append(r.ChangedSections, "signaling")
	}

	return r
}

// buttonsEqual compares the buttons section including the avatar slice.
func buttonsEqual(a, b ButtonsConfig) bool {
	if a.DebounceMs != b.DebounceMs || a.Reset != b.Reset {
		return false
	}
	if len(a.Avatars) != len(b.Avatars) {
		return false
	}
	for i := range a.Avatars {
		if a.Avatars[i] != b.Avatars[i] {
			return false
		}
	}
	return true
}
