package message

import (
	"log/slog"
	"sync"

	"github.com/escape-llc/eink-billboard/internal/logging"
)

// Router fans messages out by topic. It owns no worker: Send runs on the
// caller and only enqueues into subscriber mailboxes, so it is
// non-blocking. A delivery failure to one sink is logged and does not
// affect the others.
type Router struct {
	logger *slog.Logger

	mu     sync.RWMutex
	routes map[string][]Sink
}

// NewRouter returns an empty router.
func NewRouter(logger *slog.Logger) *Router {
	return &Router{
		logger: logging.Default(logger).With("component", "router"),
		routes: make(map[string][]Sink),
	}
}

// Add subscribes sink to topic. Sinks receive messages in subscription
// order.
func (r *Router) Add(topic string, sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[topic] = append(r.routes[topic], sink)
}

// Send delivers msg to every subscriber of topic and reports how many
// sinks accepted it. An unknown topic delivers to nobody.
func (r *Router) Send(topic string, msg Message) int {
	r.mu.RLock()
	sinks := r.routes[topic]
	r.mu.RUnlock()

	if len(sinks) == 0 {
		r.logger.Debug("no route", "topic", topic)
		return 0
	}

	delivered := 0
	for _, sink := range sinks {
		if err := sink.Accept(msg); err != nil {
			r.logger.Warn("delivery failed", "topic", topic, "sink", sink.Name(), "error", err)
			continue
		}
		delivered++
	}
	return delivered
}
