package list_test

import (
	"slices"
	"testing"

	"github.com/djdv/go-bufferpool/internal/list"
)

func values(l *list.List[int]) []int {
	var got []int
	for e := range l.All() {
		got = append(got, e.Value)
	}
	return got
}

func checkOrder(t *testing.T, l *list.List[int], want ...int) {
	t.Helper()
	if got := values(l); !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if l.Len() != len(want) {
		t.Fatalf("expected length %d, got %d", len(want), l.Len())
	}
}

func TestList(t *testing.T) {
	t.Parallel()
	var l list.List[int]
	if l.Front() != nil || l.Back() != nil {
		t.Fatal("zero list should be empty")
	}
	one := l.PushFront(1)
	two := l.PushFront(2)
	three := l.PushFront(3)
	checkOrder(t, &l, 3, 2, 1)
	if l.Back() != one || l.Front() != three {
		t.Fatal("front/back mismatch")
	}

	l.MoveToFront(one)
	checkOrder(t, &l, 1, 3, 2)
	l.MoveToFront(one)
	checkOrder(t, &l, 1, 3, 2)

	if got := l.Remove(three); got != 3 {
		t.Fatalf("expected removed value 3, got %d", got)
	}
	checkOrder(t, &l, 1, 2)
	if l.Contains(three) || three.Next() != nil || three.Prev() != nil {
		t.Fatal("removed element should be detached")
	}
	l.Remove(three)
	checkOrder(t, &l, 1, 2)
	if !l.Contains(two) || l.Contains(nil) {
		t.Fatal("membership mismatch")
	}

	var other list.List[int]
	other.MoveToFront(two)
	other.Remove(two)
	checkOrder(t, &l, 1, 2)
}

func TestBackwardRemoval(t *testing.T) {
	t.Parallel()
	var l list.List[int]
	for i := range 6 {
		l.PushFront(i)
	}
	var visited []int
	for e := range l.Backward() {
		visited = append(visited, e.Value)
		if e.Value%2 == 0 {
			l.Remove(e)
		}
	}
	if want := []int{0, 1, 2, 3, 4, 5}; !slices.Equal(visited, want) {
		t.Fatalf("expected visit order %v, got %v", want, visited)
	}
	checkOrder(t, &l, 5, 3, 1)

	for e := range l.Backward() {
		if e.Value == 3 {
			break
		}
		l.Remove(e)
	}
	checkOrder(t, &l, 5, 3)
}
