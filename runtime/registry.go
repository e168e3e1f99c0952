// Package runtime holds the live-connection state of the messaging core:
// presence, channel membership, and the supervised background workers.
// It coordinates delivery without containing business rules.
package runtime

import (
	"sync"

	"chat-core/contract"
	"chat-core/domain"
)

type Set map[string]struct{}

// Registry is the process-wide map of live connections. Presence is purely
// additive/subtractive: a user is online iff at least one of their
// connections is registered at query time. Channel membership is derived at
// subscribe time and never persisted.
//
// A single RWMutex guards every table, so concurrent register/deregister for
// the same user are linearizable with no lost updates.
type Registry struct {
	mu sync.RWMutex
	// connection id -> live sink and owning user
	sessions map[string]session
	// user id -> connection ids (multiple simultaneous connections allowed)
	userConns map[domain.UserID]Set
	// channel id -> member connection ids
	channelMembers map[domain.ChannelID]Set
}

type session struct {
	user domain.User
	sink contract.EventSink
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:       make(map[string]session),
		userConns:      make(map[domain.UserID]Set),
		channelMembers: make(map[domain.ChannelID]Set),
	}
}

// Register adds the connection under the user's bucket and auto-subscribes it
// to the user's private channel, so notification fanout reaches every live
// connection without an explicit join.
func (r *Registry) Register(connID string, user domain.User, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[connID] = session{user: user, sink: sink}

	if _, ok := r.userConns[user.ID]; !ok {
		r.userConns[user.ID] = make(Set)
	}
	r.userConns[user.ID][connID] = struct{}{}

	r.subscribeLocked(connID, domain.PrivateChannel(user.ID))
}

// Deregister removes the connection from the user bucket and from every
// channel it was subscribed to. Empty sets are removed entirely so the maps
// do not leak over time.
func (r *Registry) Deregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[connID]
	if !ok {
		return
	}
	delete(r.sessions, connID)

	if conns, ok := r.userConns[sess.user.ID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.userConns, sess.user.ID)
		}
	}

	for channel, members := range r.channelMembers {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.channelMembers, channel)
		}
	}
}

// Subscribe adds the connection to a channel. Idempotent: subscribing twice
// is a no-op. Unknown connections are ignored since a disconnect may race a
// join.
func (r *Registry) Subscribe(connID string, channel domain.ChannelID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[connID]; !ok {
		return
	}
	r.subscribeLocked(connID, channel)
}

func (r *Registry) subscribeLocked(connID string, channel domain.ChannelID) {
	if _, ok := r.channelMembers[channel]; !ok {
		r.channelMembers[channel] = make(Set)
	}
	r.channelMembers[channel][connID] = struct{}{}
}

// Member reports whether the connection is currently subscribed to a channel.
func (r *Registry) Member(connID string, channel domain.ChannelID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.channelMembers[channel]
	if !ok {
		return false
	}
	_, ok = members[connID]
	return ok
}

// Online reports whether the user has at least one live connection.
func (r *Registry) Online(u domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.userConns[u]) > 0
}

// Sinks returns the delivery endpoints of every connection subscribed to the
// channel. Returns nil if the channel has no members.
func (r *Registry) Sinks(channel domain.ChannelID) []contract.EventSink {
	return r.collect(channel, "")
}

// SinksExcept is Sinks with one connection filtered out, for events the
// originator must not receive back (typing, read receipts).
func (r *Registry) SinksExcept(channel domain.ChannelID, connID string) []contract.EventSink {
	return r.collect(channel, connID)
}

func (r *Registry) collect(channel domain.ChannelID, exclude string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.channelMembers[channel]
	if !ok {
		return nil
	}
	var active []contract.EventSink
	for connID := range members {
		if connID == exclude {
			continue
		}
		if sess, exists := r.sessions[connID]; exists {
			active = append(active, sess.sink)
		}
	}
	return active
}

// Stats exposes coarse gauges for the telemetry worker.
func (r *Registry) Stats() (connections, users, channels int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions), len(r.userConns), len(r.channelMembers)
}
