package ipc

import (
	"context"
	"sync"
)

// Conn is an ordered, bidirectional message channel between the two
// processes. Send and Recv may be used from different goroutines, but each
// direction has a single writer and a single reader.
type Conn interface {
	Send(ctx context.Context, m Message) error
	Recv(ctx context.Context) (Message, error)
	Close() error
}

type pipeEnd struct {
	in     <-chan Message
	out    chan<- Message
	closed chan struct{}
	once   *sync.Once
}

// Pipe returns the two ends of an in-memory connection used when the UI and
// the worker run in one process. buffer bounds each direction.
func Pipe(buffer int) (Conn, Conn) {
	ab := make(chan Message, buffer)
	ba := make(chan Message, buffer)
	closed := make(chan struct{})
	once := &sync.Once{}
	a := &pipeEnd{in: ba, out: ab, closed: closed, once: once}
	b := &pipeEnd{in: ab, out: ba, closed: closed, once: once}
	return a, b
}

func (p *pipeEnd) Send(ctx context.Context, m Message) error {
	select {
	case <-p.closed:
		return ErrClosed
	default:
	}
	select {
	case p.out <- m:
		return nil
	case <-p.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeEnd) Recv(ctx context.Context) (Message, error) {
	select {
	case m := <-p.in:
		return m, nil
	case <-p.closed:
		return Message{}, ErrClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (p *pipeEnd) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}
