package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/boypt/torrentdesk/ipc"
	"github.com/boypt/torrentdesk/metrics"
)

const inboxSize = 256

// Engine is the torrent worker. All of its state is owned by the goroutine
// running Run; other goroutines hand work to it with post.
type Engine struct {
	config Config
	client Client

	ctx    context.Context
	conn   ipc.Conn
	inbox  chan func()
	closed chan struct{}
	once   sync.Once

	sessions map[int]*Session
	trackers []string
	// the UI has sent its own tracker list
	trackersSet bool

	server  *streamServer
	pending *serverRequest

	lastSnapshot *ipc.Snapshot
	audio        *cache.Cache
	now          func() time.Time
}

func New(c Config, client Client) *Engine {
	ttl := c.AudioCacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Engine{
		config:   c,
		client:   client,
		ctx:      context.Background(),
		inbox:    make(chan func(), inboxSize),
		closed:   make(chan struct{}),
		sessions: map[int]*Session{},
		audio:    cache.New(ttl, 2*ttl),
		now:      time.Now,
	}
}

// Run serves commands from conn until ctx is done or the connection fails.
func (e *Engine) Run(ctx context.Context, conn ipc.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.ctx = ctx
	e.conn = conn
	defer e.shutdown()

	recvErr := make(chan error, 1)
	go func() { recvErr <- e.recvLoop(ctx) }()

	tk := time.NewTicker(e.config.progressInterval())
	defer tk.Stop()

	if url := e.config.TrackerListURL; url != "" {
		go e.loadTrackerList(ctx, url)
	}

	log.Printf("worker running, progress every %s", e.config.progressInterval())
	for {
		select {
		case fn := <-e.inbox:
			e.safely(fn)
		case <-tk.C:
			e.safely(e.tick)
		case err := <-recvErr:
			if errors.Is(err, ipc.ErrClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (e *Engine) recvLoop(ctx context.Context) error {
	for {
		m, err := e.conn.Recv(ctx)
		if err != nil {
			return err
		}
		cmd, err := ipc.DecodeCommand(m)
		if err != nil {
			e.post(func() {
				e.emit(ipc.UncaughtErrorEvent{Process: "worker", Message: err.Error()})
			})
			continue
		}
		e.post(func() { e.dispatch(cmd) })
	}
}

// post queues fn on the event loop. It never blocks once the loop is gone.
func (e *Engine) post(fn func()) {
	select {
	case e.inbox <- fn:
	case <-e.closed:
	}
}

// call runs fn on the event loop and waits for it to return.
func (e *Engine) call(fn func()) {
	done := make(chan struct{})
	e.post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
	case <-e.closed:
	}
}

func (e *Engine) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			metrics.WorkerPanics.Inc()
			log.Errorf("recovered panic: %v\n%s", r, debug.Stack())
			e.emit(ipc.UncaughtErrorEvent{Process: "worker", Message: fmt.Sprint(r)})
		}
	}()
	fn()
}

func (e *Engine) emit(ev ipc.Event) {
	if e.conn == nil {
		return
	}
	m, err := ipc.EncodeEvent(ev)
	if err != nil {
		log.Errorf("encode %s: %v", ev.EventName(), err)
		return
	}
	if err := e.conn.Send(e.ctx, m); err != nil {
		log.Debugf("send %s: %v", ev.EventName(), err)
	}
}

func (e *Engine) warn(key int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Warnf("[%d] %s", key, msg)
	e.emit(ipc.WarningEvent{Key: key, Message: msg})
}

func (e *Engine) dispatch(cmd ipc.Command) {
	metrics.CommandsTotal.WithLabelValues(cmd.CommandName()).Inc()
	switch c := cmd.(type) {
	case ipc.StartTorrenting:
		e.startTorrenting(c)
	case ipc.StopTorrenting:
		e.stopTorrenting(c)
	case ipc.CreateTorrent:
		e.createTorrent(c)
	case ipc.SelectFiles:
		e.selectFilesCommand(c)
	case ipc.SetGlobalTrackers:
		e.trackersSet = true
		e.setGlobalTrackers(c.Trackers)
	case ipc.SetDownloadLimit:
		e.client.SetDownloadLimit(c.BytesPerSec)
		log.Printf("download limit set to %d B/s", c.BytesPerSec)
	case ipc.SetUploadLimit:
		e.client.SetUploadLimit(c.BytesPerSec)
		log.Printf("upload limit set to %d B/s", c.BytesPerSec)
	case ipc.StartServer:
		e.startServer(c)
	case ipc.StopServer:
		e.stopServer()
	case ipc.GetAudioMetadata:
		e.getAudioMetadata(c)
	default:
		panic(fmt.Sprintf("unhandled command %T", cmd))
	}
}

func (e *Engine) setGlobalTrackers(trackers []string) {
	e.trackers = append([]string(nil), trackers...)
	for _, s := range e.sessions {
		if s.handle != nil {
			s.handle.AddTrackers(e.trackers)
		}
	}
	log.Printf("global trackers set: %d", len(e.trackers))
}

// loadTrackerList applies the boot tracker list unless the UI sent one
// first.
func (e *Engine) loadTrackerList(ctx context.Context, url string) {
	trackers, err := FetchTrackers(ctx, url)
	if err != nil {
		log.Warnf("tracker list: %v", err)
		return
	}
	e.post(func() {
		if e.trackersSet {
			log.Debugf("tracker list from %s skipped, UI list in use", url)
			return
		}
		e.setGlobalTrackers(trackers)
	})
}

func (e *Engine) shutdown() {
	e.once.Do(func() {
		e.stopServer()
		for _, s := range e.sessions {
			e.removeSession(s)
		}
		close(e.closed)
	})
}
