package logging

import (
	"encoding/json"
	"fmt"
	"os"
)

// Settings is the parsed form of the log settings file (spec.md §6): a
// JSON object mapping sink name ("console" or a filesystem path) to a
// minimum severity string.
type Settings map[string]string

// LoadSettings reads and parses a log settings file from path.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("logging: reading settings file: %w", err)
	}
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("logging: parsing settings file: %w", err)
	}
	return s, nil
}

// Build constructs a Sink realizing the settings: one ZerologSink per
// entry ("console" -> stderr, any other key -> that path), fanned out
// through a MultiSink. An empty Settings still yields a usable, silent
// sink rather than nil, so callers never need a nil check.
func (s Settings) Build() (Sink, error) {
	var sinks []Sink
	for name, sevStr := range s {
		sev, err := ParseSeverity(sevStr)
		if err != nil {
			return nil, fmt.Errorf("logging: sink %q: %w", name, err)
		}
		if name == "console" {
			sinks = append(sinks, NewConsoleSink(sev))
			continue
		}
		fileSink, err := NewFileSink(name, sev)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, fileSink)
	}
	return NewMultiSink(sinks...), nil
}

// DefaultSettings returns the settings a process uses when no settings
// file is configured: console at INFO.
func DefaultSettings() Settings {
	return Settings{"console": "INFO"}
}
