// Package list is a specialized adaption of `container/list` for use in ARC.
// Elements are intrusive: the cache keeps the [*Element] handle in its index
// so moves and removals do not search.
package list

import "iter"

type (
	// An Element is an entry of a [List].
	// The zero value is detached and holds a zero Value.
	Element[Value any] struct {
		next, prev *Element[Value]
		list       *List[Value]
		Value      Value
	}
	// List is a doubly linked list ordered from front (most recent)
	// to back (least recent). The zero value is an empty list ready to use.
	List[Value any] struct {
		root Element[Value] // Sentinel; root.next is the front, root.prev the back.
		len  int
	}
)

// Next returns the element behind e, or nil at the back.
func (e *Element[Value]) Next() *Element[Value] {
	if n := e.next; e.list != nil && n != &e.list.root {
		return n
	}
	return nil
}

// Prev returns the element in front of e, or nil at the front.
func (e *Element[Value]) Prev() *Element[Value] {
	if p := e.prev; e.list != nil && p != &e.list.root {
		return p
	}
	return nil
}

func (l *List[Value]) lazyInit() {
	if l.root.next == nil {
		l.root.next = &l.root
		l.root.prev = &l.root
	}
}

// Len returns the number of elements in l in constant time.
func (l *List[Value]) Len() int { return l.len }

// Front returns the most recent element of l or nil.
func (l *List[Value]) Front() *Element[Value] {
	if l.len == 0 {
		return nil
	}
	return l.root.next
}

// Back returns the least recent element of l or nil.
func (l *List[Value]) Back() *Element[Value] {
	if l.len == 0 {
		return nil
	}
	return l.root.prev
}

// insert links e after at and returns e.
func (l *List[Value]) insert(e, at *Element[Value]) *Element[Value] {
	// Note: Cannot use multiple assignment because
	// evaluation order of LHS is not specified.
	e.prev = at
	e.next = at.next
	e.prev.next = e
	e.next.prev = e
	e.list = l
	l.len++
	return e
}

// PushFront inserts a new element holding value at the front of l.
func (l *List[Value]) PushFront(value Value) *Element[Value] {
	l.lazyInit()
	return l.insert(&Element[Value]{Value: value}, &l.root)
}

// Remove unlinks e from l if it is a member and returns its Value.
// The element is detached and must not be reused with another list.
func (l *List[Value]) Remove(e *Element[Value]) Value {
	if e.list == l {
		e.prev.next = e.next
		e.next.prev = e.prev
		e.next = nil
		e.prev = nil
		e.list = nil
		l.len--
	}
	return e.Value
}

// MoveToFront moves e to the front of l.
// If e is not a member of l the list is not modified.
func (l *List[Value]) MoveToFront(e *Element[Value]) {
	if e.list != l || l.root.next == e {
		return
	}
	e.prev.next = e.next
	e.next.prev = e.prev
	l.len--
	l.insert(e, &l.root)
}

// Contains reports whether e is currently linked into l.
func (l *List[Value]) Contains(e *Element[Value]) bool {
	return e != nil && e.list == l
}

// Backward iterates from the back (least recent) to the front.
// The current element may be removed during iteration.
func (l *List[Value]) Backward() iter.Seq[*Element[Value]] {
	return func(yield func(*Element[Value]) bool) {
		for e := l.Back(); e != nil; {
			prev := e.Prev()
			if !yield(e) {
				return
			}
			e = prev
		}
	}
}

// All iterates from the front (most recent) to the back.
func (l *List[Value]) All() iter.Seq[*Element[Value]] {
	return func(yield func(*Element[Value]) bool) {
		for e := l.Front(); e != nil; e = e.Next() {
			if !yield(e) {
				return
			}
		}
	}
}
