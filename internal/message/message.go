// Package message implements the actor mesh primitives: typed messages,
// the per-actor mailbox with its serial worker, the explicit dispatch
// table, and the topic router.
//
// Every long-lived component owns one Mailbox. Components never call each
// other's handlers directly; they enqueue messages via Sink.Accept or
// Router.Send. Delivery within a mailbox is strictly FIFO; across
// mailboxes the only guarantee is sender-to-receiver FIFO.
package message

// Message is any value delivered through a mailbox. Concrete message
// types are plain structs; the dispatcher selects handlers by type.
type Message any

// Sink accepts messages for asynchronous processing. Accept is
// non-blocking and safe for concurrent use. Accept returns an error
// wrapping errs.ErrClosed once the sink has shut down.
type Sink interface {
	Name() string
	Accept(msg Message) error
}

// Topics used by the core wiring.
const (
	TopicDisplay         = "display"
	TopicPlaylistLayer   = "playlist-layer"
	TopicTimerLayer      = "timer-layer"
	TopicDisplaySettings = "display-settings"
	TopicTelemetry       = "telemetry"
)
