package engine

import (
	"container/list"
)

// readyQueue is a FIFO of operations deferred until a session's metadata
// is known. It is only touched from the event loop.
type readyQueue struct {
	lst *list.List
}

func newReadyQueue() *readyQueue {
	return &readyQueue{lst: list.New()}
}

func (q *readyQueue) Push(fn func()) {
	q.lst.PushBack(fn)
}

func (q *readyQueue) Pop() func() {
	if elm := q.lst.Front(); elm != nil {
		return q.lst.Remove(elm).(func())
	}
	return nil
}

// Drain runs every queued operation in order, including any pushed while
// draining.
func (q *readyQueue) Drain() {
	for fn := q.Pop(); fn != nil; fn = q.Pop() {
		fn()
	}
}

func (q *readyQueue) Clear() {
	q.lst.Init()
}
