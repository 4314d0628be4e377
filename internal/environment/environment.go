// Package environment models the two deployment slots ("blue" and "green")
// and resolves which one is currently active from a snapshot of the
// container runtime's state.
package environment

import (
	"errors"
	"fmt"

	"promotectl/internal/config"
)

// Color identifies one of the two deployment slots.
type Color string

const (
	Blue  Color = "blue"
	Green Color = "green"
)

// InvalidColorError reports a color argument outside the registered set.
type InvalidColorError struct {
	Value string
}

func (e *InvalidColorError) Error() string {
	return fmt.Sprintf("invalid color %q: must be %q or %q", e.Value, Blue, Green)
}

// ErrAmbiguousState is returned when both colors are running at resolution
// time, which only happens after a promotion crashed mid-flight. Resolution
// refuses to guess; the operator must pass an explicit target color.
var ErrAmbiguousState = errors.New("both blue and green containers are running; pass an explicit target color")

// ErrNoEnvironmentRunning is returned when neither color is running. First
// bring-up is a compose concern, not a promotion.
var ErrNoEnvironmentRunning = errors.New("neither blue nor green container is running; nothing to promote from")

// ParseColor validates a color string against the registered set.
func ParseColor(s string) (Color, error) {
	switch Color(s) {
	case Blue, Green:
		return Color(s), nil
	default:
		return "", &InvalidColorError{Value: s}
	}
}

// Other returns the complementary color.
func (c Color) Other() Color {
	if c == Blue {
		return Green
	}
	return Blue
}

func (c Color) String() string {
	return string(c)
}

// Environment is one named deployment slot. The port is fixed per color by
// configuration; the container and compose service names are derived from
// the color by naming convention. Whether a slot is active is never stored,
// it is derived from the runtime snapshot on every resolution.
type Environment struct {
	Color         Color
	Port          int    // Host port published by this slot
	AppPort       int    // Port the app listens on inside the container
	ContainerName string // e.g. "chat-app-blue"
	Service       string // Compose service name, e.g. "app-blue"
}

// New builds the Environment for a color from the static settings.
func New(c Color, settings config.EnvironmentSettings) Environment {
	port := settings.BluePort
	if c == Green {
		port = settings.GreenPort
	}
	return Environment{
		Color:         c,
		Port:          port,
		AppPort:       settings.AppPort,
		ContainerName: fmt.Sprintf("%s-%s", settings.ContainerPrefix, c),
		Service:       fmt.Sprintf("app-%s", c),
	}
}

// Snapshot is an explicit view of the container runtime's running set,
// captured once per resolution. Resolving over a snapshot instead of live
// queries keeps resolution a pure function and testable with a fake.
type Snapshot struct {
	Running []string // Names of currently running containers
}

// Contains reports whether a container name is in the running set.
func (s Snapshot) Contains(name string) bool {
	for _, n := range s.Running {
		if n == name {
			return true
		}
	}
	return false
}

// ResolveActive determines which color is currently serving from the
// snapshot. Exactly one color's container must be running: both running is
// ambiguous (crash recovery, ErrAmbiguousState), neither running means
// there is nothing to promote from (ErrNoEnvironmentRunning).
func ResolveActive(snap Snapshot, settings config.EnvironmentSettings) (Environment, error) {
	blue := New(Blue, settings)
	green := New(Green, settings)

	blueRunning := snap.Contains(blue.ContainerName)
	greenRunning := snap.Contains(green.ContainerName)

	switch {
	case blueRunning && greenRunning:
		return Environment{}, ErrAmbiguousState
	case blueRunning:
		return blue, nil
	case greenRunning:
		return green, nil
	default:
		return Environment{}, ErrNoEnvironmentRunning
	}
}

// ResolveTarget returns the slot to promote. A non-empty forced value
// bypasses the snapshot entirely but is still validated against the
// registered colors.
func ResolveTarget(active Environment, forced string, settings config.EnvironmentSettings) (Environment, error) {
	if forced != "" {
		c, err := ParseColor(forced)
		if err != nil {
			return Environment{}, err
		}
		return New(c, settings), nil
	}
	return New(active.Color.Other(), settings), nil
}
