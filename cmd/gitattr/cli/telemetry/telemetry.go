// Package telemetry sends opt-in, anonymous command usage events. It never
// carries repository content, file paths, or attribution data: only the
// command name and a coarse outcome. Disabled by default; enabled via
// `gitattr config telemetry on` or GITATTR_TELEMETRY=1.
package telemetry

import (
	"os"
	"sync"

	"github.com/denisbrodbeck/machineid"
	"github.com/posthog/posthog-go"
)

const posthogAPIKey = "" // set at build time via -ldflags; empty disables sends

var (
	mu       sync.Mutex
	client   posthog.Client
	distinct string
	enabled  bool
)

// Init configures telemetry. It is a no-op (client stays nil) unless
// settingsEnabled is true and a build-time API key was embedded.
func Init(settingsEnabled bool) {
	mu.Lock()
	defer mu.Unlock()

	enabled = settingsEnabled && os.Getenv("GITATTR_TELEMETRY") != "0"
	if !enabled || posthogAPIKey == "" {
		return
	}

	id, err := machineid.ProtectedID("gitattr")
	if err != nil {
		enabled = false
		return
	}
	distinct = id

	c, err := posthog.NewWithConfig(posthogAPIKey, posthog.Config{})
	if err != nil {
		enabled = false
		return
	}
	client = c
}

// TrackCommand records that a command ran, with a coarse outcome
// ("ok"/"error") and no other payload.
func TrackCommand(command, outcome string) {
	mu.Lock()
	defer mu.Unlock()
	if !enabled || client == nil {
		return
	}
	_ = client.Enqueue(posthog.Capture{
		DistinctId: distinct,
		Event:      "gitattr_command",
		Properties: posthog.NewProperties().
			Set("command", command).
			Set("outcome", outcome),
	})
}

// Close flushes and releases the client, if one is active.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if client != nil {
		_ = client.Close()
		client = nil
	}
}
