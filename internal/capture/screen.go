package capture

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// Screen abstracts the viewer window: finding it, grabbing its
// contents and sending page-turn keystrokes. Tests substitute a
// scripted implementation.
type Screen interface {
	// Locate finds the viewer window and brings it to the front.
	Locate(ctx context.Context) error
	// Capture writes a screenshot of the window to path.
	Capture(ctx context.Context, path string) error
	// Advance sends the named page-turn key to the window.
	Advance(ctx context.Context, key string) error
}

// keyNames maps the configurable key selection to X keysym names.
var keyNames = map[string]string{
	"right":    "Right",
	"space":    "space",
	"pagedown": "Next",
}

// X11Screen drives the viewer window through xdotool and captures it
// with ImageMagick's import. Both are invoked per operation; there is
// no long-lived child to manage.
type X11Screen struct {
	// WindowName is the substring matched against window titles.
	WindowName string

	windowID string
	log      zerolog.Logger
}

// NewX11Screen returns a screen bound to the first visible window
// whose title contains name.
func NewX11Screen(name string, log zerolog.Logger) *X11Screen {
	return &X11Screen{WindowName: name, log: log.With().Str("component", "screen").Logger()}
}

func (s *X11Screen) Locate(ctx context.Context) error {
	out, err := exec.CommandContext(ctx, "xdotool", "search", "--onlyvisible", "--name", s.WindowName).Output()
	if err != nil {
		return fmt.Errorf("searching for window %q: %w", s.WindowName, err)
	}

	ids := strings.Fields(string(out))
	if len(ids) == 0 {
		return fmt.Errorf("no visible window matching %q", s.WindowName)
	}
	s.windowID = ids[0]
	s.log.Info().Str("window_id", s.windowID).Str("name", s.WindowName).Msg("Viewer window located")

	if err := exec.CommandContext(ctx, "xdotool", "windowactivate", "--sync", s.windowID).Run(); err != nil {
		return fmt.Errorf("activating window %s: %w", s.windowID, err)
	}
	return nil
}

func (s *X11Screen) Capture(ctx context.Context, path string) error {
	if s.windowID == "" {
		return fmt.Errorf("window not located")
	}
	if err := exec.CommandContext(ctx, "import", "-window", s.windowID, path).Run(); err != nil {
		return fmt.Errorf("capturing window %s: %w", s.windowID, err)
	}
	return nil
}

func (s *X11Screen) Advance(ctx context.Context, key string) error {
	if s.windowID == "" {
		return fmt.Errorf("window not located")
	}
	keysym, ok := keyNames[key]
	if !ok {
		keysym = keyNames["right"]
	}
	if err := exec.CommandContext(ctx, "xdotool", "key", "--window", s.windowID, keysym).Run(); err != nil {
		return fmt.Errorf("sending key %s: %w", keysym, err)
	}
	return nil
}
