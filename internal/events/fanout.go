package events

import "sync"

// Fanout delivers events to any number of subscriber channels. Publish never
// blocks: when a subscriber's buffer is full its oldest event is dropped to
// make room. Subscribers that fall behind lose history, not liveness.
type Fanout struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	buffer int
}

// NewFanout creates a Fanout whose subscriber channels buffer up to buffer
// events each.
func NewFanout(buffer int) *Fanout {
	if buffer < 1 {
		buffer = 16
	}
	return &Fanout{subs: make(map[int]chan Event), buffer: buffer}
}

// Subscribe registers a new consumer. The returned cancel func unregisters it
// and closes the channel; it is safe to call more than once.
func (f *Fanout) Subscribe() (<-chan Event, func()) {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	ch := make(chan Event, f.buffer)
	f.subs[id] = ch
	f.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			if c, ok := f.subs[id]; ok {
				delete(f.subs, id)
				close(c)
			}
			f.mu.Unlock()
		})
	}
	return ch, cancel
}

// Publish fans the event out to every subscriber without blocking.
func (f *Fanout) Publish(e Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- e:
		default:
			// Full: drop the oldest event, then retry once.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- e:
			default:
			}
		}
	}
}

// SubscriberCount reports the number of active subscribers.
func (f *Fanout) SubscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
