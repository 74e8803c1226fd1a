package outqueue

import (
	"errors"
	"sync"
	"testing"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	fail map[string]bool
}

func (f *fakeSender) SendMessage(target, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[target] {
		return errors.New("boom")
	}
	f.sent = append(f.sent, target+":"+text)
	return nil
}

func TestSendWhileDisconnectedQueues(t *testing.T) {
	q := New(nil)
	s := &fakeSender{}
	q.Send(s, "chat1", "hello")
	if q.Len() != 1 {
		t.Fatalf("Len = %d, want 1", q.Len())
	}
	if len(s.sent) != 0 {
		t.Error("expected no send while disconnected")
	}
}

func TestSendWhileConnectedDelivers(t *testing.T) {
	q := New(nil)
	q.SetConnected(true)
	s := &fakeSender{}
	q.Send(s, "chat1", "hello")
	if q.Len() != 0 {
		t.Errorf("Len = %d, want 0", q.Len())
	}
	if len(s.sent) != 1 || s.sent[0] != "chat1:hello" {
		t.Errorf("sent = %v", s.sent)
	}
}

func TestSendOrErrorReportsDisconnected(t *testing.T) {
	q := New(nil)
	s := &fakeSender{}
	if err := q.SendOrError(s, "chat1", "hi"); err == nil {
		t.Error("expected an error while disconnected")
	}
	if q.Len() != 1 {
		t.Errorf("Len = %d, want 1 (queued for later)", q.Len())
	}
}

func TestSendOrErrorReportsSendFailure(t *testing.T) {
	q := New(nil)
	q.SetConnected(true)
	s := &fakeSender{fail: map[string]bool{"chat1": true}}
	if err := q.SendOrError(s, "chat1", "hi"); err == nil {
		t.Error("expected an error when the underlying send fails")
	}
}

func TestSendOrErrorSuccess(t *testing.T) {
	q := New(nil)
	q.SetConnected(true)
	s := &fakeSender{}
	if err := q.SendOrError(s, "chat1", "hi"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSendFailureRequeues(t *testing.T) {
	q := New(nil)
	q.SetConnected(true)
	s := &fakeSender{fail: map[string]bool{"chat1": true}}
	q.Send(s, "chat1", "hello")
	if q.Len() != 1 {
		t.Errorf("Len = %d, want 1 after failed send", q.Len())
	}
}

func TestFlushDrainsInOrder(t *testing.T) {
	q := New(nil)
	s := &fakeSender{}
	q.Send(s, "chat1", "a")
	q.Send(s, "chat1", "b")
	q.Send(s, "chat2", "c")
	if q.Len() != 3 {
		t.Fatalf("Len = %d, want 3", q.Len())
	}

	q.SetConnected(true)
	q.Flush(s)

	if q.Len() != 0 {
		t.Errorf("Len = %d, want 0 after flush", q.Len())
	}
	want := []string{"chat1:a", "chat1:b", "chat2:c"}
	if len(s.sent) != len(want) {
		t.Fatalf("sent = %v", s.sent)
	}
	for i, v := range want {
		if s.sent[i] != v {
			t.Errorf("sent[%d] = %q, want %q", i, s.sent[i], v)
		}
	}
}

func TestFlushNoopWhenEmpty(t *testing.T) {
	q := New(nil)
	q.SetConnected(true)
	q.Flush(&fakeSender{})
	if q.Len() != 0 {
		t.Error("expected empty queue to stay empty")
	}
}

func TestFlushNoopWhileAlreadyFlushing(t *testing.T) {
	q := New(nil)
	q.flushing = true
	s := &fakeSender{}
	q.Send(s, "chat1", "a") // queued: not connected yet
	q.SetConnected(true)
	q.Flush(s)
	if len(s.sent) != 0 {
		t.Error("expected re-entrant flush to be a no-op")
	}
}
