package common

import "fmt"

type pauseStore interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var pausePrefix = []byte("pauses/")

func pauseKey(module string) []byte {
	return []byte(fmt.Sprintf("%s%s", pausePrefix, module))
}

// Pauses is a PauseView backed by persistent state so operator pause flags
// survive restarts.
type Pauses struct {
	store pauseStore
}

// NewPauses constructs a pause registry over the provided state backend.
func NewPauses(store pauseStore) *Pauses {
	return &Pauses{store: store}
}

// SetState rebinds the registry to a different state backend. The node calls
// this once per entry point with the call-scoped manager.
func (p *Pauses) SetState(store pauseStore) {
	if p == nil {
		return
	}
	p.store = store
}

// IsPaused implements PauseView. Storage failures report as not paused so a
// broken read cannot brick every module; the enclosing call will surface the
// real error on its own reads.
func (p *Pauses) IsPaused(module string) bool {
	if p == nil || p.store == nil || module == "" {
		return false
	}
	var paused bool
	ok, err := p.store.KVGet(pauseKey(module), &paused)
	if err != nil || !ok {
		return false
	}
	return paused
}

// SetPaused persists the pause flag for a module.
func (p *Pauses) SetPaused(module string, paused bool) error {
	if p == nil || p.store == nil {
		return fmt.Errorf("pauses: state not configured")
	}
	if module == "" {
		return fmt.Errorf("pauses: module name required")
	}
	return p.store.KVPut(pauseKey(module), paused)
}
