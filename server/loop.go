package server

import (
	"context"
	"fmt"
	"runtime/debug"
)

// post queues fn on the UI loop. It never blocks once the loop is gone.
func (s *Server) post(fn func()) {
	select {
	case s.inbox <- fn:
	case <-s.closed:
	}
}

// call runs fn on the UI loop and waits for it.
func (s *Server) call(fn func()) {
	done := make(chan struct{})
	s.post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
	case <-s.closed:
	}
}

func (s *Server) runLoop(ctx context.Context) {
	for {
		select {
		case fn := <-s.inbox:
			s.handle(fn)
		case <-ctx.Done():
			return
		}
	}
}

// handle runs fn with the state locked, then schedules a redraw unless fn
// asked not to.
func (s *Server) handle(fn func()) {
	s.state.Lock()
	s.skipPush = false
	s.safely(fn)
	s.state.PruneErrors(s.now())
	push := !s.skipPush
	s.state.Unlock()
	if push {
		s.state.Push()
	}
}

func (s *Server) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("recovered panic: %v\n%s", r, debug.Stack())
			s.state.AddError(s.now(), fmt.Sprintf("Uncaught error: %v", r), 0)
		}
	}()
	fn()
}
