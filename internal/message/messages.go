package message

import (
	"image"
	"time"

	"github.com/google/uuid"
)

// Quit terminates an actor. It bypasses handler lookup: the mailbox worker
// runs the actor's shutdown routine, discards any queued messages, and
// exits. Subsequent Accept calls fail with errs.ErrClosed.
type Quit struct {
	TS time.Time
}

// ConfigureEvent asks a component to (re)load its configuration. Content
// is component-specific; NotifyTo, when non-nil, receives the matching
// ConfigureNotify.
type ConfigureEvent struct {
	Token    uuid.UUID
	Content  any
	NotifyTo Sink
	TS       time.Time
}

// ConfigureNotify reports the outcome of a ConfigureEvent with the same
// token. Err is nil on success.
type ConfigureNotify struct {
	Token  uuid.UUID
	Source string
	Err    error
	TS     time.Time
}

// StartPlayback tells a layer to begin playing at the given logical time.
// Layers self-dispatch it after a successful Configure.
type StartPlayback struct {
	TS time.Time
}

// NextTrack advances a layer to the next track of its current playlist.
type NextTrack struct {
	TS time.Time
}

// TimerExpired reports that an armed layer timer reached its target.
type TimerExpired struct {
	Target time.Time
}

// DisplayImage carries one rendered frame to the display topic.
type DisplayImage struct {
	Title string
	Img   image.Image
	TS    time.Time
}

// DisplaySettings reports the display's identity and resolution. The
// application forwards it into both layers, which adopt the dimensions
// for subsequent renders.
type DisplaySettings struct {
	Name   string
	Width  int
	Height int
}

// FutureCompleted is posted to an owner mailbox when submitted work
// finishes. Exactly one of Result/Err is meaningful; Cancelled work
// carries neither. PluginName routes the message to the plugin that
// submitted the work.
type FutureCompleted struct {
	PluginName string
	Token      uuid.UUID
	Cancelled  bool
	Result     any
	Err        error
}

// PluginReceive addresses an arbitrary payload to the named plugin via
// its owning layer.
type PluginReceive struct {
	PluginName string
	SourceID   string
	Payload    any
}

// Telemetry is a structured state-transition report emitted by layers on
// the telemetry topic.
type Telemetry struct {
	Name   string
	Values map[string]any
	TS     time.Time
}
