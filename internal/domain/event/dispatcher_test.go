package event

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vertextoedge/download-controller/internal/domain"
)

func TestInMemoryDispatcher_SyncOrder(t *testing.T) {
	d := NewInMemoryDispatcher(false)

	var got []string
	first := NewHandlerFunc(func(e DomainEvent) error {
		got = append(got, "first:"+e.EventName())
		return nil
	}, NameDownloadCreated)
	all := NewHandlerFunc(func(e DomainEvent) error {
		got = append(got, "all:"+e.EventName())
		return nil
	})
	d.Subscribe(first)
	d.Subscribe(all)

	d.DispatchAll([]DomainEvent{
		NewDownloadCreated(domain.Handle{}),
		NewUnsupportedDownload("http://example.com/a"),
	})

	want := []string{
		"first:" + NameDownloadCreated,
		"all:" + NameDownloadCreated,
		"all:" + NameUnsupportedDownload,
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestInMemoryDispatcher_Unsubscribe(t *testing.T) {
	d := NewInMemoryDispatcher(false)

	calls := 0
	h := NewHandlerFunc(func(DomainEvent) error {
		calls++
		return nil
	})
	other := NewHandlerFunc(func(DomainEvent) error { return nil })
	d.Subscribe(h)
	d.Subscribe(other)
	d.Dispatch(NewDownloadsCleared())
	d.Unsubscribe(h)
	d.Dispatch(NewDownloadsCleared())

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if n := len(d.handlers[AllEvents]); n != 1 {
		t.Errorf("remaining handlers = %d, want 1", n)
	}
}

func TestInMemoryDispatcher_ErrorHandler(t *testing.T) {
	d := NewInMemoryDispatcher(false)
	boom := errors.New("boom")

	var reported error
	d.SetErrorHandler(func(_ DomainEvent, err error) { reported = err })
	d.Subscribe(NewHandlerFunc(func(DomainEvent) error { return boom }))
	d.Dispatch(NewDownloadsCleared())

	if !errors.Is(reported, boom) {
		t.Errorf("reported = %v, want %v", reported, boom)
	}
}

func TestInMemoryDispatcher_Async(t *testing.T) {
	d := NewInMemoryDispatcher(true)

	var wg sync.WaitGroup
	wg.Add(2)
	h := NewHandlerFunc(func(DomainEvent) error {
		wg.Done()
		return nil
	})
	d.Subscribe(h)
	d.Dispatch(NewDownloadsCleared())
	d.Dispatch(NewDownloadsCleared())

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async handlers did not run")
	}
}

func TestNullDispatcher(t *testing.T) {
	d := NewNullDispatcher()
	called := false
	d.Subscribe(NewHandlerFunc(func(DomainEvent) error {
		called = true
		return nil
	}))
	d.Dispatch(NewDownloadsCleared())
	if called {
		t.Error("NullDispatcher should not call handlers")
	}
}
