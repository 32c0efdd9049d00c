package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/boypt/torrentdesk/common"
	"github.com/boypt/torrentdesk/ipc"
	"github.com/boypt/torrentdesk/playback"
	"github.com/boypt/torrentdesk/storage"
	"github.com/boypt/torrentdesk/store"
	"github.com/fsnotify/fsnotify"
	"github.com/mmcdole/gofeed"
	"github.com/skratchdot/open-golang/open"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

var log = common.Logger("server")

const (
	// PlaybackTimeout bounds the wait for the streaming server.
	PlaybackTimeout = 10 * time.Second
	inboxSize       = 256
)

var (
	ErrNotFound      = errors.New("torrent not found")
	ErrUnknownAction = errors.New("unknown action")
)

// Server is the UI process: it owns the state tree, talks to the torrent
// worker and serves the browser UI.
type Server struct {
	//config
	Title          string `opts:"help=Title of this instance, env=TITLE"`
	Port           int    `opts:"help=Listening port, env=PORT"`
	Host           string `opts:"help=Listening interface (default all)"`
	Auth           string `opts:"help=Optional basic auth in form 'user:password', env=AUTH"`
	ConfigPath     string `opts:"help=Worker configuration file path (yaml)"`
	StatePath      string `opts:"help=UI state file path (json)"`
	Log            bool   `opts:"help=Enable request logging"`
	Open           bool   `opts:"help=Open now with your default browser"`
	WorkerAddr     string `opts:"help=Websocket URL of a remote worker (default runs one in this process)"`
	WorkerListen   string `opts:"help=Only run the torrent worker and listen on this address"`
	DisableLogTime bool   `opts:"help=Don't print timestamp in log"`
	LogLevel       string `opts:"help=Log level: debug info warn error, env=LOG_LEVEL"`
	LogFile        string `opts:"help=Also write the log to this file with rotation, env=LOG_FILE"`
	LogJSON        bool   `opts:"help=Log in JSON format"`
	DebugTorrent   bool   `opts:"help=Debug torrent engine"`

	state    *store.State
	saver    *store.Saver
	coord    *playback.Coordinator
	commands *commandQueue
	waiters  waiters
	storage  *storage.Storage

	ctx        context.Context
	inbox      chan func()
	closed     chan struct{}
	skipPush   bool
	cancelPlay context.CancelFunc

	fs        afero.Fs
	now       func() time.Time
	afterFunc func(time.Duration, func()) func() bool
	launcher  playback.Launcher
	registry  *playback.Registry

	rssCache      map[string][]*gofeed.Item
	watcher       *fsnotify.Watcher
	syncConnected chan struct{}
	statsRunning  int32
}

// LogConfig is the logging setup requested on the command line.
func (s *Server) LogConfig() common.LogConfig {
	return common.LogConfig{
		Level:  s.LogLevel,
		File:   s.LogFile,
		NoTime: s.DisableLogTime,
		JSON:   s.LogJSON,
	}
}

func (s *Server) initDefaults() {
	if s.fs == nil {
		s.fs = afero.NewOsFs()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.afterFunc == nil {
		s.afterFunc = func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		}
	}
	if s.launcher == nil {
		s.launcher = playback.ExecLauncher{}
	}
	if s.registry == nil {
		s.registry = playback.NewRegistry()
	}
	if s.StatePath == "" {
		s.StatePath = "torrentdesk-state.json"
	}
}

// setup loads the saved state and builds the UI side components.
func (s *Server) setup(version, downloadPath string) error {
	s.initDefaults()
	downloadPath, err := filepath.Abs(downloadPath)
	if err != nil {
		return fmt.Errorf("invalid download path: %w", err)
	}
	saved, err := store.Load(s.fs, s.StatePath, version, store.Prefs{DownloadPath: downloadPath})
	if err != nil {
		return err
	}
	s.state = store.New(saved)
	s.state.Stats.Title = s.Title
	s.state.Stats.Version = version
	s.state.Stats.Runtime = strings.TrimPrefix(runtime.Version(), "go")
	s.state.Stats.Uptime = s.now()
	s.saver = store.NewSaver(s.fs, s.StatePath)
	s.commands = newCommandQueue()
	s.waiters = waiters{}
	s.inbox = make(chan func(), inboxSize)
	s.closed = make(chan struct{})
	s.syncConnected = make(chan struct{}, 1)
	s.rssCache = map[string][]*gofeed.Item{}
	s.storage = storage.New(afero.NewBasePathFs(s.fs, s.state.Saved.Prefs.DownloadPath))
	s.coord = playback.NewCoordinator(&s.state.Playing, s.registry, s.launcher, s.post, func(msg string) {
		s.state.AddError(s.now(), msg, 0)
	})
	return nil
}

// serve runs the UI loop and the worker link until ctx is done or the
// link fails.
func (s *Server) serve(ctx context.Context, conn ipc.Conn) error {
	g, ctx := errgroup.WithContext(ctx)
	s.ctx = ctx
	g.Go(func() error {
		defer close(s.closed)
		s.runLoop(ctx)
		return nil
	})
	g.Go(func() error { return s.commands.run(ctx, conn) })
	g.Go(func() error {
		err := s.recvEvents(ctx, conn)
		if errors.Is(err, ipc.ErrClosed) {
			return fmt.Errorf("worker disconnected: %w", err)
		}
		return err
	})
	s.post(s.resume)
	return g.Wait()
}

// Run the UI process against a connected worker.
func (s *Server) Run(ctx context.Context, version, downloadPath string, conn ipc.Conn) error {
	if err := s.setup(version, downloadPath); err != nil {
		return err
	}
	defer func() {
		if err := s.saver.Flush(); err != nil {
			log.Errorf("final save: %v", err)
		}
	}()

	host := s.Host
	if host == "" {
		host = "0.0.0.0"
	}
	addr := fmt.Sprintf("%s:%d", host, s.Port)
	server := &http.Server{
		Addr:     addr,
		Handler:  s.handler(),
		ErrorLog: common.StdLogger("http"),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.serve(ctx, conn) })
	g.Go(func() error {
		log.Infof("Listening at http://%s", addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		s.backgroundRoutines(ctx)
		return nil
	})
	if s.Open {
		openhost := host
		if openhost == "0.0.0.0" {
			openhost = "localhost"
		}
		go func() {
			time.Sleep(1 * time.Second)
			common.HandleError(open.Run(fmt.Sprintf("http://%s:%d", openhost, s.Port)))
		}()
	}
	return g.Wait()
}

// backgroundRoutines starts the watcher, the rss poller and the stats
// ticker. It returns when ctx is done.
func (s *Server) backgroundRoutines(ctx context.Context) {
	s.call(func() { s.restartWatcher(s.state.Saved.Prefs.WatchDirectory) })
	go s.rssLoop(ctx)
	for {
		select {
		case <-s.syncConnected:
			if atomic.CompareAndSwapInt32(&s.statsRunning, 0, 1) {
				go s.statsRoutine(ctx)
			}
		case <-ctx.Done():
			s.call(func() { s.restartWatcher("") })
			return
		}
	}
}

// resume restarts saved torrents and pushes prefs to the worker.
func (s *Server) resume() {
	p := s.state.Saved.Prefs
	if len(p.GlobalTrackers) > 0 {
		s.send(ipc.SetGlobalTrackers{Trackers: p.GlobalTrackers})
	}
	if p.DownloadLimit > 0 {
		s.send(ipc.SetDownloadLimit{BytesPerSec: p.DownloadLimit})
	}
	if p.UploadLimit > 0 {
		s.send(ipc.SetUploadLimit{BytesPerSec: p.UploadLimit})
	}
	for _, ts := range s.state.Saved.Torrents {
		if ts.Status == store.StatusPaused || ts.StartID() == "" {
			continue
		}
		log.Infof("resuming %s", ts.Name)
		s.startTorrenting(ts)
	}
}

func (s *Server) startTorrenting(ts *store.TorrentSummary) {
	ts.Error = ""
	s.send(ipc.StartTorrenting{
		Key:          ts.TorrentKey,
		TorrentID:    ts.StartID(),
		Path:         ts.Path,
		FileModtimes: ts.FileModtimes,
		Selections:   ts.Selections,
	})
}

func (s *Server) stopTorrenting(ts *store.TorrentSummary) {
	s.send(ipc.StopTorrenting{InfoHash: ts.InfoHash, Key: ts.TorrentKey})
	ts.Progress = nil
	ts.Ready = false
	if s.state.Server != nil && s.state.Server.TorrentKey == ts.TorrentKey {
		s.stopPlayback()
	}
}

func (s *Server) save() {
	if err := s.saver.Save(s.state.Saved); err != nil {
		log.Errorf("save state: %v", err)
	}
}
