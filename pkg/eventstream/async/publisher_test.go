package async_test

import (
	"context"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/docquery/pkg/eventstream"
	"github.com/papercomputeco/docquery/pkg/eventstream/async"
)

// recorder is a publisher that records delivered events and can be held
// closed to fill the queue.
type recorder struct {
	mu     sync.Mutex
	events []*eventstream.DocumentEvent
	gate   chan struct{}
	fail   bool
	closed bool
}

func (r *recorder) Publish(_ context.Context, event *eventstream.DocumentEvent) error {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("broker down")
	}
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recorder) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Document.ID)
	}
	return out
}

func event(id string) *eventstream.DocumentEvent {
	return eventstream.NewDocumentEvent(eventstream.EventTypeDocumentUpserted, eventstream.DocumentRef{ID: id}, 1)
}

var _ = Describe("Publisher", func() {
	var (
		ctx context.Context
		rec *recorder
	)

	BeforeEach(func() {
		ctx = context.Background()
		rec = &recorder{}
	})

	It("requires a publisher", func() {
		_, err := async.NewPublisher(&async.Config{})
		Expect(err).To(MatchError(ContainSubstring("publisher is required")))
	})

	It("delivers every queued event before Close returns", func() {
		p, err := async.NewPublisher(&async.Config{Publisher: rec, NumWorkers: 1})
		Expect(err).NotTo(HaveOccurred())

		for _, id := range []string{"a", "b", "c"} {
			Expect(p.Publish(ctx, event(id))).To(Succeed())
		}
		Expect(p.Close()).To(Succeed())

		Expect(rec.ids()).To(Equal([]string{"a", "b", "c"}))
		Expect(rec.closed).To(BeTrue())
	})

	It("rejects nil events", func() {
		p, err := async.NewPublisher(&async.Config{Publisher: rec})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(p.Close)

		Expect(p.Publish(ctx, nil)).To(MatchError(eventstream.ErrNilEvent))
	})

	It("drops events when the queue is full", func() {
		rec.gate = make(chan struct{})
		p, err := async.NewPublisher(&async.Config{Publisher: rec, NumWorkers: 1, QueueSize: 1})
		Expect(err).NotTo(HaveOccurred())

		// The worker takes the first event and blocks on the gate; the second
		// fills the queue.
		Expect(p.Publish(ctx, event("a"))).To(Succeed())
		Eventually(func() error { return p.Publish(ctx, event("b")) }).Should(Succeed())

		Expect(p.Publish(ctx, event("c"))).To(MatchError(async.ErrQueueFull))

		close(rec.gate)
		Expect(p.Close()).To(Succeed())
		Expect(rec.ids()).To(ContainElements("a", "b"))
		Expect(rec.ids()).NotTo(ContainElement("c"))
	})

	It("logs delivery failures instead of returning them", func() {
		rec.fail = true
		p, err := async.NewPublisher(&async.Config{Publisher: rec})
		Expect(err).NotTo(HaveOccurred())

		Expect(p.Publish(ctx, event("a"))).To(Succeed())
		Expect(p.Close()).To(Succeed())
		Expect(rec.ids()).To(BeEmpty())
	})

	It("refuses events after Close", func() {
		p, err := async.NewPublisher(&async.Config{Publisher: rec})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Close()).To(Succeed())
		Expect(p.Close()).To(Succeed())

		Expect(p.Publish(ctx, event("a"))).To(MatchError(async.ErrClosed))
	})
})
