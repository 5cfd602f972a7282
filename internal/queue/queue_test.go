package queue

import (
	"testing"
	"time"
)

type fakeItem uint64

func (f fakeItem) QueueID() uint64 { return uint64(f) }

func TestPushPopOrder(t *testing.T) {
	q := New()
	q.Push(fakeItem(1))
	q.Push(fakeItem(2))
	q.Push(fakeItem(3))

	for _, want := range []uint64{1, 2, 3} {
		item, ok := q.Pop()
		if !ok {
			t.Fatal("Pop returned ok=false unexpectedly")
		}
		if item.QueueID() != want {
			t.Errorf("Pop() = %d, want %d", item.QueueID(), want)
		}
	}
}

func TestPushIsIdempotentByID(t *testing.T) {
	q := New()
	q.Push(fakeItem(1))
	q.Push(fakeItem(1))

	if q.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", q.Len())
	}
}

func TestPopBlocksUntilPush(t *testing.T) {
	q := New()
	done := make(chan Item, 1)
	go func() {
		item, _ := q.Pop()
		done <- item
	}()

	select {
	case <-done:
		t.Fatal("Pop returned before anything was pushed")
	case <-time.After(50 * time.Millisecond):
	}

	q.Push(fakeItem(9))

	select {
	case item := <-done:
		if item.QueueID() != 9 {
			t.Errorf("Pop() = %d, want 9", item.QueueID())
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after Push")
	}
}

func TestCloseUnblocksPop(t *testing.T) {
	q := New()
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop()
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("Pop() ok = true after Close with empty queue, want false")
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after Close")
	}
}
