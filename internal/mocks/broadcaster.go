package mocks

import (
	"sync"
)

// BroadcastCall records one Broadcast invocation.
type BroadcastCall struct {
	Event   string
	Payload any
}

// RecordingBroadcaster captures broadcasts instead of sending them.
type RecordingBroadcaster struct {
	mu    sync.Mutex
	calls []BroadcastCall
}

func (r *RecordingBroadcaster) Broadcast(event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, BroadcastCall{Event: event, Payload: payload})
}

// Calls returns the recorded broadcasts in order.
func (r *RecordingBroadcaster) Calls() []BroadcastCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]BroadcastCall(nil), r.calls...)
}

// Events returns the recorded broadcasts with the given event name.
func (r *RecordingBroadcaster) Events(event string) []BroadcastCall {
	var out []BroadcastCall
	for _, c := range r.Calls() {
		if c.Event == event {
			out = append(out, c)
		}
	}
	return out
}
