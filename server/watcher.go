package server

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// restartWatcher watches dir for new .torrent files, replacing any previous
// watcher. An empty dir only stops it.
func (s *Server) restartWatcher(dir string) {
	if s.watcher != nil {
		log.Info("Torrent Watcher: close")
		s.watcher.Close()
		s.watcher = nil
	}
	if dir == "" {
		return
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		log.Warnf("Torrent Watcher: %s is not a directory", dir)
		return
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Errorf("Torrent Watcher: %v", err)
		return
	}
	if err := w.Add(dir); err != nil {
		log.Errorf("Torrent Watcher: %v", err)
		w.Close()
		return
	}
	s.watcher = w
	log.Infof("Torrent Watcher: watching torrent file in %s", dir)

	// files already waiting in the directory
	existing, _ := filepath.Glob(filepath.Join(dir, "*.torrent"))
	settle := newDebouncer(watchSettle)
	go func() {
		defer settle.stop()
		for _, p := range existing {
			s.addWatched(p)
		}
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
					continue
				}
				if strings.HasSuffix(ev.Name, ".torrent") {
					settle.touch(ev.Name)
				}
			case p := <-settle.C:
				settle.done(p)
				s.addWatched(p)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warnf("Torrent Watcher: %v", err)
			}
		}
	}()
}

// watchSettle is how long a file must stay unchanged before it is read.
const watchSettle = 500 * time.Millisecond

// debouncer delivers a path on C once no touch has been seen for delay.
// Only the goroutine reading C may call touch and done.
type debouncer struct {
	delay  time.Duration
	timers map[string]*time.Timer
	C      chan string
	quit   chan struct{}
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{
		delay:  delay,
		timers: map[string]*time.Timer{},
		C:      make(chan string),
		quit:   make(chan struct{}),
	}
}

func (d *debouncer) touch(p string) {
	if t, ok := d.timers[p]; ok {
		t.Reset(d.delay)
		return
	}
	d.timers[p] = time.AfterFunc(d.delay, func() {
		select {
		case d.C <- p:
		case <-d.quit:
		}
	})
}

func (d *debouncer) done(p string) {
	delete(d.timers, p)
}

func (d *debouncer) stop() {
	close(d.quit)
	for _, t := range d.timers {
		t.Stop()
	}
}

// addWatched adds the torrent file at p and removes it.
func (s *Server) addWatched(p string) {
	data, err := os.ReadFile(p)
	if err != nil {
		// already consumed by an earlier event
		return
	}
	if err := s.addTorrentFile(data); err != nil {
		log.Warnf("Torrent Watcher: fail to add %s, ERR:%v", filepath.Base(p), err)
		return
	}
	log.Infof("Torrent Watcher: added %s, file removed", filepath.Base(p))
	os.Remove(p)
}
