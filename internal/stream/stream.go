package stream

import (
	"context"
	"sync"
	"time"

	"cachepledge.org/internal/registry"
)

// Location is an approximate point used by the public activity map. Events
// are placed at the state capital, never at the cache itself.
type Location struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Event is one lifecycle change as seen by the public feed.
type Event struct {
	Kind      string             `json:"kind"`
	State     registry.State     `json:"state"`
	CacheType registry.CacheType `json:"cacheType"`
	Location  Location           `json:"location"`
	Timestamp time.Time          `json:"timestamp"`
}

// Stream fans out events to all active subscribers (SSE clients).
type Stream struct {
	mu        sync.RWMutex
	subs      map[int]chan Event
	next      int
	locations map[registry.State]Location
}

var _ registry.ActivitySink = (*Stream)(nil)

// New initialises an empty stream.
func New() *Stream {
	return &Stream{
		subs: make(map[int]chan Event),
		locations: map[registry.State]Location{
			registry.StateACT: {Name: "Canberra", Lat: -35.2809, Lon: 149.1300},
			registry.StateNSW: {Name: "Sydney", Lat: -33.8688, Lon: 151.2093},
			registry.StateNT:  {Name: "Darwin", Lat: -12.4634, Lon: 130.8456},
			registry.StateQLD: {Name: "Brisbane", Lat: -27.4698, Lon: 153.0251},
			registry.StateSA:  {Name: "Adelaide", Lat: -34.9285, Lon: 138.6007},
			registry.StateTAS: {Name: "Hobart", Lat: -42.8821, Lon: 147.3272},
			registry.StateVIC: {Name: "Melbourne", Lat: -37.8136, Lon: 144.9631},
			registry.StateWA:  {Name: "Perth", Lat: -31.9505, Lon: 115.8605},
		},
	}
}

// Subscribe registers a subscriber and returns a channel which will receive events.
// The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Subscribers returns the number of connected clients.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// slow subscriber, drop
		}
	}
}

// PublishActivity places a registry activity on the map and publishes it.
func (s *Stream) PublishActivity(a registry.Activity) {
	ts := a.At
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	s.Publish(Event{
		Kind:      a.Kind,
		State:     a.State,
		CacheType: a.CacheType,
		Location:  s.LocationFor(a.State),
		Timestamp: ts,
	})
}

// LocationFor maps a state to its capital. Unknown states get a zero Location.
func (s *Stream) LocationFor(state registry.State) Location {
	return s.locations[state]
}
