// Package subscription implements the Subscription Registry (C3): a
// per-connection map of (topic, filter) entries plus the inverse index
// needed for fast fan-out, and the topic-specific filter matchers that
// decide whether a published event reaches a given subscriber.
package subscription

import (
	"sync"

	apperrors "github.com/loominal/weft/internal/common/errors"
	"github.com/loominal/weft/internal/events"
)

// Topics is the closed set of subscription channels.
const (
	TopicWork    = "work"
	TopicAgents  = "agents"
	TopicTargets = "targets"
	TopicStats   = "stats"
)

// Filter is a conjunction of equality predicates over event fields.
// Missing keys default to "accept".
type Filter map[string]string

// entry is one (topic, filter) subscription for a connection.
type entry struct {
	topic  string
	filter Filter
}

// Registry tracks subscriptions per connection and their inverse index.
type Registry struct {
	mu sync.RWMutex
	// byConn[connID][topic] = filter
	byConn map[string]map[string]Filter
	// byTopic[topic][connID] = struct{}, the inverse index for fan-out
	byTopic map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		byConn:  make(map[string]map[string]Filter),
		byTopic: make(map[string]map[string]struct{}),
	}
}

// Subscribe replaces any existing entry for (connID, topic) atomically.
func (r *Registry) Subscribe(connID, topic string, filter Filter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.byConn[connID] == nil {
		r.byConn[connID] = make(map[string]Filter)
	}
	r.byConn[connID][topic] = filter

	if r.byTopic[topic] == nil {
		r.byTopic[topic] = make(map[string]struct{})
	}
	r.byTopic[topic][connID] = struct{}{}
}

// Unsubscribe removes the (connID, topic) entry, or fails with
// NotSubscribed if none exists.
func (r *Registry) Unsubscribe(connID, topic string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	topics, ok := r.byConn[connID]
	if !ok {
		return apperrors.BadRequest("not subscribed to topic: " + topic)
	}
	if _, ok := topics[topic]; !ok {
		return apperrors.BadRequest("not subscribed to topic: " + topic)
	}
	delete(topics, topic)
	if len(topics) == 0 {
		delete(r.byConn, connID)
	}
	if conns, ok := r.byTopic[topic]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.byTopic, topic)
		}
	}
	return nil
}

// UnsubscribeAll removes every subscription for a connection. It is
// idempotent.
func (r *Registry) UnsubscribeAll(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	topics, ok := r.byConn[connID]
	if !ok {
		return
	}
	for topic := range topics {
		if conns, ok := r.byTopic[topic]; ok {
			delete(conns, connID)
			if len(conns) == 0 {
				delete(r.byTopic, topic)
			}
		}
	}
	delete(r.byConn, connID)
}

// Fanout returns, exactly once each, every connID subscribed to topic
// whose filter matches event.
func (r *Registry) Fanout(topic string, event *events.Event) []string {
	r.mu.RLock()
	conns := make([]string, 0, len(r.byTopic[topic]))
	type candidate struct {
		connID string
		filter Filter
	}
	candidates := make([]candidate, 0, len(r.byTopic[topic]))
	for connID := range r.byTopic[topic] {
		candidates = append(candidates, candidate{connID: connID, filter: r.byConn[connID][topic]})
	}
	r.mu.RUnlock()

	for _, c := range candidates {
		if Matches(topic, c.filter, event) {
			conns = append(conns, c.connID)
		}
	}
	return conns
}

// StatsSubscribers returns the connIDs subscribed to "stats".
func (r *Registry) StatsSubscribers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]string, 0, len(r.byTopic[TopicStats]))
	for connID := range r.byTopic[TopicStats] {
		conns = append(conns, connID)
	}
	return conns
}

// Count returns the total number of (connection, topic) subscriptions,
// used for the WebSocket stats snapshot.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, topics := range r.byConn {
		n += len(topics)
	}
	return n
}

// ConnectionCount returns the number of distinct connections holding at
// least one subscription.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}
