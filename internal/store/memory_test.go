package store

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func incident(id string) Incident {
	return Incident{Source: "GitHub", IncidentID: id, Title: "title " + id, DetectedAt: time.Now()}
}

func TestNewMemoryStore(t *testing.T) {
	store := NewMemoryStore(0)
	if store == nil {
		t.Fatal("NewMemoryStore() = nil")
	}
	if len(store.Recent()) != 0 {
		t.Errorf("Recent() = %v items, want 0", len(store.Recent()))
	}
	if len(store.ring) != DefaultCapacity {
		t.Errorf("capacity = %d, want %d", len(store.ring), DefaultCapacity)
	}
}

func TestMemoryStore_AddNewestFirst(t *testing.T) {
	store := NewMemoryStore(10)

	store.Add(incident("1"))
	store.Add(incident("2"))
	store.Add(incident("3"))

	got := store.Recent()
	want := []string{"3", "2", "1"}
	if len(got) != len(want) {
		t.Fatalf("Recent() = %v items, want %v", len(got), len(want))
	}
	for i, id := range want {
		if got[i].IncidentID != id {
			t.Errorf("Recent()[%d].IncidentID = %v, want %v", i, got[i].IncidentID, id)
		}
	}
}

func TestMemoryStore_EvictsOldest(t *testing.T) {
	store := NewMemoryStore(3)

	for i := 1; i <= 5; i++ {
		store.Add(incident(fmt.Sprint(i)))
	}

	got := store.Recent()
	want := []string{"5", "4", "3"}
	if len(got) != len(want) {
		t.Fatalf("Recent() = %v items, want %v", len(got), len(want))
	}
	for i, id := range want {
		if got[i].IncidentID != id {
			t.Errorf("Recent()[%d].IncidentID = %v, want %v", i, got[i].IncidentID, id)
		}
	}
	if store.Len() != 3 {
		t.Errorf("Len() = %d, want 3", store.Len())
	}
}

func TestMemoryStore_RecentIsSnapshot(t *testing.T) {
	store := NewMemoryStore(3)
	store.Add(incident("1"))

	got := store.Recent()
	got[0].IncidentID = "mutated"

	if store.Recent()[0].IncidentID != "1" {
		t.Error("mutating Recent() result changed the store")
	}
}

func TestMemoryStore_Subscribe(t *testing.T) {
	store := NewMemoryStore(3)
	ch := store.Subscribe()
	defer store.Unsubscribe(ch)

	store.Add(incident("1"))

	select {
	case got := <-ch:
		if got.IncidentID != "1" {
			t.Errorf("received IncidentID = %v, want 1", got.IncidentID)
		}
	case <-time.After(time.Second):
		t.Fatal("no incident received")
	}
}

func TestMemoryStore_MultipleSubscribers(t *testing.T) {
	store := NewMemoryStore(3)
	ch1 := store.Subscribe()
	ch2 := store.Subscribe()
	defer store.Unsubscribe(ch1)
	defer store.Unsubscribe(ch2)

	store.Add(incident("1"))

	for i, ch := range []<-chan Incident{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Errorf("subscriber %d received nothing", i)
		}
	}
}

func TestMemoryStore_Unsubscribe(t *testing.T) {
	store := NewMemoryStore(3)
	ch := store.Subscribe()

	store.Unsubscribe(ch)

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Unsubscribe")
	}

	// second unsubscribe is a no-op
	store.Unsubscribe(ch)
}

func TestMemoryStore_SlowSubscriberDoesNotBlock(t *testing.T) {
	store := NewMemoryStore(10)

	// never read
	_ = store.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			store.Add(incident(fmt.Sprint(i)))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Add() blocked on slow subscriber")
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore(5)

	var wg sync.WaitGroup
	const numGoroutines, numOps = 10, 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			for j := 0; j < numOps; j++ {
				store.Add(incident("x"))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < numOps; j++ {
				_ = store.Recent()
			}
		}()
		go func() {
			defer wg.Done()
			ch := store.Subscribe()
			time.Sleep(10 * time.Millisecond)
			store.Unsubscribe(ch)
		}()
	}

	wg.Wait()

	if store.Len() != 5 {
		t.Errorf("Len() = %d, want 5", store.Len())
	}
}
