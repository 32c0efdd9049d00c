package ipc

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsReadLimit    = 8 << 20
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type wsConn struct {
	c    *websocket.Conn
	wmu  sync.Mutex
	in   chan Message
	done chan struct{}
	once sync.Once
}

func newWSConn(c *websocket.Conn) *wsConn {
	w := &wsConn{
		c:    c,
		in:   make(chan Message, 64),
		done: make(chan struct{}),
	}
	go w.readPump()
	go w.pingPump()
	return w
}

// Dial connects to a worker listening with Handler.
func Dial(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return newWSConn(c), nil
}

// Upgrade accepts a websocket peer on an http request.
func Upgrade(w http.ResponseWriter, r *http.Request) (Conn, error) {
	c, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return newWSConn(c), nil
}

// Handler serves each accepted peer with serve, closing it afterwards.
func Handler(serve func(Conn)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrade(w, r)
		if err != nil {
			return
		}
		defer conn.Close()
		serve(conn)
	})
}

func (w *wsConn) readPump() {
	defer w.Close()
	w.c.SetReadLimit(wsReadLimit)
	_ = w.c.SetReadDeadline(time.Now().Add(wsPongWait))
	w.c.SetPongHandler(func(string) error {
		return w.c.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		var m Message
		if err := w.c.ReadJSON(&m); err != nil {
			close(w.in)
			return
		}
		_ = w.c.SetReadDeadline(time.Now().Add(wsPongWait))
		select {
		case w.in <- m:
		case <-w.done:
			close(w.in)
			return
		}
	}
}

func (w *wsConn) pingPump() {
	tk := time.NewTicker(wsPingInterval)
	defer tk.Stop()
	for {
		select {
		case <-tk.C:
			if err := w.c.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-w.done:
			return
		}
	}
}

func (w *wsConn) Send(ctx context.Context, m Message) error {
	select {
	case <-w.done:
		return ErrClosed
	default:
	}
	w.wmu.Lock()
	defer w.wmu.Unlock()
	deadline := time.Now().Add(wsWriteWait)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = w.c.SetWriteDeadline(deadline)
	return w.c.WriteJSON(m)
}

func (w *wsConn) Recv(ctx context.Context) (Message, error) {
	select {
	case m, ok := <-w.in:
		if !ok {
			return Message{}, ErrClosed
		}
		return m, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (w *wsConn) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		w.wmu.Lock()
		_ = w.c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		w.wmu.Unlock()
		err = w.c.Close()
	})
	return err
}
