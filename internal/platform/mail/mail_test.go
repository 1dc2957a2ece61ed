package mail

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// mockSender records calls and can be told to fail for the first N attempts.
type mockSender struct {
	mu        sync.Mutex
	calls     []Message
	failFirst int
}

func (m *mockSender) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Message{To: to, Subject: subject, Body: body})
	if len(m.calls) <= m.failFirst {
		return errors.New("smtp unavailable")
	}
	return nil
}

func (m *mockSender) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func TestDispatcher_DeliversMessage(t *testing.T) {
	sender := &mockSender{}
	d := NewDispatcher(sender, DispatcherConfig{Backoff: time.Millisecond})

	if err := d.Enqueue(Message{To: "patient@example.com", Subject: "s", Body: "b"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	d.Close()

	if sender.callCount() != 1 {
		t.Errorf("expected 1 send, got %d", sender.callCount())
	}
	sender.mu.Lock()
	defer sender.mu.Unlock()
	if sender.calls[0].To != "patient@example.com" {
		t.Errorf("unexpected recipient %q", sender.calls[0].To)
	}
}

func TestDispatcher_RetriesTransientFailure(t *testing.T) {
	sender := &mockSender{failFirst: 2}
	d := NewDispatcher(sender, DispatcherConfig{Attempts: 3, Backoff: time.Millisecond})

	d.Enqueue(Message{To: "x@example.com"})
	d.Close()

	if sender.callCount() != 3 {
		t.Errorf("expected 3 attempts, got %d", sender.callCount())
	}
}

func TestDispatcher_ReportsExhaustedRetries(t *testing.T) {
	sender := &mockSender{failFirst: 10}
	d := NewDispatcher(sender, DispatcherConfig{Attempts: 2, Backoff: time.Millisecond})

	var failed Message
	var failErr error
	var mu sync.Mutex
	d.OnFailure = func(msg Message, err error) {
		mu.Lock()
		failed, failErr = msg, err
		mu.Unlock()
	}

	d.Enqueue(Message{To: "x@example.com", Subject: "otp"})
	d.Close()

	mu.Lock()
	defer mu.Unlock()
	if failErr == nil {
		t.Fatal("expected failure callback")
	}
	if failed.To != "x@example.com" {
		t.Errorf("unexpected failed message recipient %q", failed.To)
	}
	if sender.callCount() != 2 {
		t.Errorf("expected 2 attempts, got %d", sender.callCount())
	}
}

// blockingSender stalls its first Send until release is closed so tests can
// hold the worker mid-delivery while messages pile up in the queue.
type blockingSender struct {
	mockSender
	release chan struct{}
	started chan struct{}
	first   sync.Once
}

func (s *blockingSender) Send(ctx context.Context, to, subject, body string) error {
	var block bool
	s.first.Do(func() {
		close(s.started)
		block = true
	})
	if block {
		<-s.release
	}
	return s.mockSender.Send(ctx, to, subject, body)
}

func TestDispatcher_CloseDeliversQueuedMessages(t *testing.T) {
	sender := &blockingSender{release: make(chan struct{}), started: make(chan struct{})}
	d := NewDispatcher(sender, DispatcherConfig{Backoff: time.Millisecond})

	d.Enqueue(Message{To: "one@example.com"})
	<-sender.started
	d.Enqueue(Message{To: "two@example.com"})
	d.Enqueue(Message{To: "three@example.com"})

	done := make(chan struct{})
	go func() {
		d.Close()
		close(done)
	}()
	close(sender.release)
	<-done

	if sender.callCount() != 3 {
		t.Errorf("expected all 3 queued messages delivered on close, got %d", sender.callCount())
	}
}

func TestDispatcher_ConcurrentEnqueueAndClose(t *testing.T) {
	for i := 0; i < 50; i++ {
		d := NewDispatcher(&mockSender{}, DispatcherConfig{})

		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 20; j++ {
					if err := d.Enqueue(Message{To: "x@example.com"}); err != nil {
						return
					}
				}
			}()
		}
		d.Close()
		wg.Wait()
	}
}

func TestDispatcher_EnqueueAfterClose(t *testing.T) {
	d := NewDispatcher(&mockSender{}, DispatcherConfig{})
	d.Close()

	if err := d.Enqueue(Message{To: "x@example.com"}); !errors.Is(err, ErrDispatcherClosed) {
		t.Errorf("expected ErrDispatcherClosed, got %v", err)
	}
}

func TestLogSender(t *testing.T) {
	var gotTo, gotSubject string
	s := NewLogSender(func(to, subject, _ string) {
		gotTo, gotSubject = to, subject
	})

	if err := s.Send(context.Background(), "a@b.c", "hello", "body"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotTo != "a@b.c" || gotSubject != "hello" {
		t.Errorf("log sender did not receive message: %q %q", gotTo, gotSubject)
	}
}
