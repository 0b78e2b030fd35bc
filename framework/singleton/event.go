package singleton

import (
	"sync"

	"github.com/google/uuid"
)

// Property names the slot field an Event reports on.
type Property int

const (
	PropertyNone Property = iota
	PropertyCurrentInstance
	PropertyInstance
	PropertyInitialized
	PropertyDisposed
	PropertyBlocked
	PropertyManager
)

func (p Property) String() string {
	switch p {
	case PropertyCurrentInstance:
		return "CurrentInstance"
	case PropertyInstance:
		return "Instance"
	case PropertyInitialized:
		return "Initialized"
	case PropertyDisposed:
		return "Disposed"
	case PropertyBlocked:
		return "Blocked"
	case PropertyManager:
		return "Manager"
	default:
		return "None"
	}
}

// Event is one state transition of a slot.
type Event struct {
	// Identity is the slot the transition happened on.
	Identity Identity
	// Property is the field that changed.
	Property Property
	// Value is the new value (bool for flags, Manager for PropertyManager).
	Value any
	// Sender is the live instance of the slot at the time, or nil.
	Sender any
}

// Handler receives events synchronously on the goroutine that caused them.
type Handler func(Event)

// Subscription identifies a registered Handler.
type Subscription uuid.UUID

func (s Subscription) String() string { return uuid.UUID(s).String() }

type subscriber struct {
	id Subscription
	fn Handler
}

// observers is an ordered, explicitly managed handler list.
type observers struct {
	mu   sync.Mutex
	subs []subscriber
}

func (o *observers) add(fn Handler) Subscription {
	id := Subscription(uuid.New())
	o.mu.Lock()
	o.subs = append(o.subs, subscriber{id: id, fn: fn})
	o.mu.Unlock()
	return id
}

func (o *observers) remove(id Subscription) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, s := range o.subs {
		if s.id == id {
			o.subs = append(o.subs[:i:i], o.subs[i+1:]...)
			return true
		}
	}
	return false
}

func (o *observers) clear() {
	o.mu.Lock()
	o.subs = nil
	o.mu.Unlock()
}

func (o *observers) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.subs)
}

// fire calls every handler in subscription order. The list is copied first so
// handlers may subscribe or unsubscribe while running.
func (o *observers) fire(ev Event) {
	o.mu.Lock()
	subs := make([]subscriber, len(o.subs))
	copy(subs, o.subs)
	o.mu.Unlock()
	for _, s := range subs {
		s.fn(ev)
	}
}
