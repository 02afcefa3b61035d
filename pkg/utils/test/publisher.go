package testutils

import (
	"context"
	"errors"
	"sync"

	"github.com/papercomputeco/docquery/pkg/eventstream"
)

// MockPublisher records published events.
type MockPublisher struct {
	mu     sync.Mutex
	events []*eventstream.DocumentEvent

	// Fail causes Publish to return an error after recording the event.
	Fail bool

	Closed bool
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (p *MockPublisher) Publish(_ context.Context, event *eventstream.DocumentEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	if p.Fail {
		return errors.New("mock publish failure")
	}
	return nil
}

// Events returns a copy of the recorded events.
func (p *MockPublisher) Events() []*eventstream.DocumentEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*eventstream.DocumentEvent(nil), p.events...)
}

func (p *MockPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return nil
}

var _ eventstream.Publisher = (*MockPublisher)(nil)
