package notify

import (
	"context"
	"sync"
)

// Recorder keeps every intent it receives. Err, when set, is returned from
// Dispatch after recording.
type Recorder struct {
	mu      sync.Mutex
	intents []Intent
	Err     error
}

func (r *Recorder) Dispatch(_ context.Context, intent Intent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents = append(r.intents, intent)
	return r.Err
}

func (r *Recorder) Intents() []Intent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Intent, len(r.intents))
	copy(out, r.intents)
	return out
}

// Kinds lists the kinds received, in order.
func (r *Recorder) Kinds() []Kind {
	intents := r.Intents()
	out := make([]Kind, 0, len(intents))
	for _, i := range intents {
		out = append(out, i.Kind)
	}
	return out
}
