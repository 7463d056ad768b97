package modem

import "sync"

// Queue is a channel's pending command list. High-priority commands are
// inserted behind other queued high-priority commands and ahead of every
// normal one. The command in flight is not part of the queue, so it is
// never overtaken.
type Queue struct {
	mu     sync.Mutex
	items  []*Command
	ready  chan struct{}
	closed bool
}

func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Push adds cmd. It returns ErrClosed once the queue is closed.
func (q *Queue) Push(cmd *Command) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	if cmd.HighPriority {
		i := 0
		for i < len(q.items) && q.items[i].HighPriority {
			i++
		}
		q.items = append(q.items, nil)
		copy(q.items[i+1:], q.items[i:])
		q.items[i] = cmd
	} else {
		q.items = append(q.items, cmd)
	}

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return nil
}

// Pop removes and returns the head, or nil when the queue is empty.
func (q *Queue) Pop() *Command {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	cmd := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return cmd
}

// Ready is signalled after every Push.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further pushes and returns the commands still queued.
func (q *Queue) Close() []*Command {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	items := q.items
	q.items = nil
	return items
}
