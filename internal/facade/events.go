package facade

import "github.com/nalvarez/comanda/internal/models"

// Event describes one applied mutation: which table changed, how, the
// resulting record, and whether the change reached the primary backend.
type Event struct {
	Table  string
	Op     models.OpKind
	Record models.Record
	State  SyncState
}

// Handler receives data change events.
type Handler func(Event)

// Subscribe registers a handler for every successful or queued mutation.
// The returned function cancels the subscription.
func (f *Facade) Subscribe(h Handler) func() {
	f.subMu.Lock()
	defer f.subMu.Unlock()

	id := f.nextID
	f.nextID++
	f.subs[id] = h

	return func() {
		f.subMu.Lock()
		defer f.subMu.Unlock()
		delete(f.subs, id)
	}
}

// emit delivers the event to every subscriber. Handlers run on the calling
// goroutine; subscribers that need to block should hand off themselves.
func (f *Facade) emit(ev Event) {
	f.subMu.Lock()
	handlers := make([]Handler, 0, len(f.subs))
	for _, h := range f.subs {
		handlers = append(handlers, h)
	}
	f.subMu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}
