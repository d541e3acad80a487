package tui

import (
	"fmt"
	"strings"
)

// Run starts the appropriate TUI based on the view type.
// Returns an error if the view type doesn't support TUI.
func Run(viewType string, data any) error {
	// Validate TUI is only used for supported commands
	if !IsTUISupported(viewType) {
		return fmt.Errorf("TUI mode is not supported for %s", viewType)
	}

	if strings.HasPrefix(viewType, "pipe_") {
		view, ok := data.(*LiveView)
		if !ok {
			return fmt.Errorf("invalid data payload for %s", viewType)
		}
		return RunPipeTUI(view)
	}

	return fmt.Errorf("unknown view type: %s", viewType)
}

// IsTUISupported returns true if the view type supports TUI mode.
// Only the live pipe view supports TUI.
func IsTUISupported(viewType string) bool {
	return strings.HasPrefix(viewType, "pipe_")
}

// SupportedTUIViews returns a list of view types that support TUI.
func SupportedTUIViews() []string {
	return []string{
		"pipe_run",
	}
}
