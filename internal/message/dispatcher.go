package message

import (
	"reflect"
)

// Handler processes one message on the actor's worker. Returned errors
// are logged by the mailbox; they never kill the actor.
type Handler func(msg Message) error

// Dispatcher maps message types to handlers. Registration is explicit and
// happens at actor construction; there is no reflection scanning.
//
// Lookup walks from most specific to least: the exact concrete type
// first, then registered interface types in registration order, then the
// default handler. The first match wins.
type Dispatcher struct {
	exact   map[reflect.Type]Handler
	ifaces  []ifaceHandler
	defined Handler
}

type ifaceHandler struct {
	t reflect.Type
	h Handler
}

// NewDispatcher returns an empty dispatch table.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{exact: make(map[reflect.Type]Handler)}
}

// On registers a handler for the message type T. If T is a concrete type
// the handler matches exactly that type; if T is an interface type the
// handler matches any message implementing it, consulted in registration
// order after exact matches. Registering the same concrete type twice
// replaces the earlier handler.
func On[T Message](d *Dispatcher, h func(T) error) {
	t := reflect.TypeFor[T]()
	wrapped := func(msg Message) error { return h(msg.(T)) }
	if t.Kind() == reflect.Interface {
		for i := range d.ifaces {
			if d.ifaces[i].t == t {
				d.ifaces[i].h = wrapped
				return
			}
		}
		d.ifaces = append(d.ifaces, ifaceHandler{t: t, h: wrapped})
		return
	}
	d.exact[t] = wrapped
}

// Default registers the handler of last resort, matched when no exact or
// interface registration applies.
func (d *Dispatcher) Default(h Handler) {
	d.defined = h
}

// Dispatch runs the most specific handler for msg. It reports whether any
// handler matched, and that handler's error.
func (d *Dispatcher) Dispatch(msg Message) (bool, error) {
	t := reflect.TypeOf(msg)
	if h, ok := d.exact[t]; ok {
		return true, h(msg)
	}
	for _, e := range d.ifaces {
		if t.Implements(e.t) {
			return true, e.h(msg)
		}
	}
	if d.defined != nil {
		return true, d.defined(msg)
	}
	return false, nil
}
