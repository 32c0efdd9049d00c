package server

import (
	"context"
	"sync"

	"github.com/boypt/torrentdesk/ipc"
	"github.com/boypt/torrentdesk/metrics"
)

// commandQueue is an unbounded, ordered outbox to the worker so the UI loop
// never waits on the connection.
type commandQueue struct {
	mu     sync.Mutex
	queue  []ipc.Command
	signal chan struct{}
}

func newCommandQueue() *commandQueue {
	return &commandQueue{signal: make(chan struct{}, 1)}
}

func (q *commandQueue) push(c ipc.Command) {
	q.mu.Lock()
	q.queue = append(q.queue, c)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *commandQueue) take() []ipc.Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	cmds := q.queue
	q.queue = nil
	return cmds
}

func (q *commandQueue) run(ctx context.Context, conn ipc.Conn) error {
	for {
		select {
		case <-q.signal:
		case <-ctx.Done():
			return ctx.Err()
		}
		for _, c := range q.take() {
			m, err := ipc.EncodeCommand(c)
			if err != nil {
				log.Errorf("encode %s: %v", c.CommandName(), err)
				continue
			}
			if err := conn.Send(ctx, m); err != nil {
				return err
			}
		}
	}
}

func (s *Server) send(c ipc.Command) {
	log.Debugf("-> %s", c.CommandName())
	s.commands.push(c)
}

// recvEvents is the single consumer of worker events. Each one is routed on
// the UI loop in arrival order.
func (s *Server) recvEvents(ctx context.Context, conn ipc.Conn) error {
	for {
		m, err := conn.Recv(ctx)
		if err != nil {
			return err
		}
		ev, err := ipc.DecodeEvent(m)
		if err != nil {
			log.Errorf("bad event from worker: %v", err)
			s.post(func() { s.state.AddError(s.now(), err.Error(), 0) })
			continue
		}
		metrics.UIEventsTotal.WithLabelValues(ev.EventName()).Inc()
		s.post(func() { s.route(ev) })
	}
}

type waiter struct {
	ctx context.Context
	fn  func(ipc.Event)
}

// waiters holds one-shot callbacks keyed by topic. A waiter whose context
// is done by the time its topic fires is skipped.
type waiters map[string][]waiter

func (w waiters) add(ctx context.Context, topic string, fn func(ipc.Event)) {
	w[topic] = append(w[topic], waiter{ctx: ctx, fn: fn})
}

func (w waiters) fire(topic string, ev ipc.Event) {
	list := w[topic]
	delete(w, topic)
	for _, wt := range list {
		if wt.ctx.Err() != nil {
			continue
		}
		wt.fn(ev)
	}
}
