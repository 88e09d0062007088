package capture

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errNoPublisher = errors.New("no frame publisher connected")

// FeedDevice is a Device whose frames are pushed by remote clients (the
// browser streams webcam JPEGs over a websocket). While open it is bound to
// one publisher and drops frames from everyone else. Each accepted frame is
// read at most once; frames older than staleAfter are ignored.
type FeedDevice struct {
	staleAfter time.Duration
	now        func() time.Time

	mu         sync.Mutex
	publishers map[string]int
	open       bool
	bound      string
	latest     Frame
	consumed   bool
}

func NewFeedDevice(staleAfter time.Duration) *FeedDevice {
	return &FeedDevice{
		staleAfter: staleAfter,
		now:        time.Now,
		publishers: make(map[string]int),
		consumed:   true,
	}
}

// Connect registers a stream from publisher. The returned func unregisters it.
func (d *FeedDevice) Connect(publisher string) func() {
	d.mu.Lock()
	d.publishers[publisher]++
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			if d.publishers[publisher]--; d.publishers[publisher] <= 0 {
				delete(d.publishers, publisher)
			}
			d.mu.Unlock()
		})
	}
}

// Publish replaces the latest frame. It reports false, dropping the frame,
// unless the device is open and bound to publisher.
func (d *FeedDevice) Publish(publisher string, frame Frame) bool {
	if frame.CapturedAt.IsZero() {
		frame.CapturedAt = d.now()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open || d.bound != publisher {
		return false
	}
	d.latest = frame
	d.consumed = false
	return true
}

// Publishers returns the number of connected streams.
func (d *FeedDevice) Publishers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.publishers {
		n += c
	}
	return n
}

// Open binds the device to publisher, which must have a stream connected.
func (d *FeedDevice) Open(_ context.Context, publisher string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.publishers[publisher] == 0 {
		return errNoPublisher
	}
	d.open = true
	d.bound = publisher
	d.consumed = true
	return nil
}

func (d *FeedDevice) ReadFrame(_ context.Context) (Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open || d.consumed {
		return Frame{}, ErrNoFrame
	}
	if d.staleAfter > 0 && d.now().Sub(d.latest.CapturedAt) > d.staleAfter {
		return Frame{}, ErrNoFrame
	}
	d.consumed = true
	return d.latest, nil
}

func (d *FeedDevice) Close() error {
	d.mu.Lock()
	d.open = false
	d.bound = ""
	d.consumed = true
	d.latest = Frame{}
	d.mu.Unlock()
	return nil
}
