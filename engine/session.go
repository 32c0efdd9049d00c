package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/boypt/torrentdesk/ipc"
	"github.com/boypt/torrentdesk/metrics"
)

var ErrSelectionLength = errors.New("selections length does not match file count")

// Session is one torrent being fetched or seeded, correlated with the UI by
// Key. A session is live while the registry maps Key to it.
type Session struct {
	Key      int
	InfoHash string
	Path     string

	handle     Handle
	ctx        context.Context
	cancel     context.CancelFunc
	selections []bool
	modtimes   map[string]int64
	ready      bool
	done       bool
	queue      *readyQueue
	speed      speedSample
}

func (e *Engine) newSession(key int, path string) *Session {
	ctx, cancel := context.WithCancel(e.ctx)
	return &Session{
		Key:    key,
		Path:   path,
		ctx:    ctx,
		cancel: cancel,
		queue:  newReadyQueue(),
	}
}

func (e *Engine) live(s *Session) bool {
	return s != nil && e.sessions[s.Key] == s
}

// lookup finds a live session by key or info-hash. The keyed session wins
// unless it already resolved to a different hash; a session whose add has
// not returned yet has no hash and is only reachable by key.
func (e *Engine) lookup(infoHash string, key int) *Session {
	if s, ok := e.sessions[key]; ok && key != 0 {
		if infoHash == "" || s.InfoHash == "" || strings.EqualFold(s.InfoHash, infoHash) {
			return s
		}
	}
	if infoHash == "" {
		return nil
	}
	for _, s := range e.sessions {
		if strings.EqualFold(s.InfoHash, infoHash) {
			return s
		}
	}
	return nil
}

func (e *Engine) startTorrenting(c ipc.StartTorrenting) {
	if _, ok := e.sessions[c.Key]; ok {
		e.warn(c.Key, "torrent %d already started", c.Key)
		return
	}
	path := c.Path
	if path == "" {
		path = e.config.DownloadDirectory
	}
	s := e.newSession(c.Key, path)
	s.selections = c.Selections
	s.modtimes = c.FileModtimes
	e.sessions[c.Key] = s
	metrics.ActiveSessions.Set(float64(len(e.sessions)))
	log.Printf("[%d] starting %s", c.Key, c.TorrentID)

	torrentID := c.TorrentID
	go func() {
		if err := mkdir(path); err != nil {
			e.post(func() { e.onAdded(s, nil, err) })
			return
		}
		h, err := e.client.AddTorrent(torrentID, path)
		e.post(func() { e.onAdded(s, h, err) })
	}()
}

func (e *Engine) createTorrent(c ipc.CreateTorrent) {
	if _, ok := e.sessions[c.Key]; ok {
		e.warn(c.Key, "torrent %d already started", c.Key)
		return
	}
	s := e.newSession(c.Key, filepath.Dir(c.Options.Path))
	e.sessions[c.Key] = s
	metrics.ActiveSessions.Set(float64(len(e.sessions)))
	log.Printf("[%d] creating torrent from %s", c.Key, c.Options.Path)

	opts := c.Options
	if len(opts.AnnounceList) == 0 && len(e.trackers) > 0 {
		opts.AnnounceList = [][]string{e.trackers}
	}
	go func() {
		h, err := e.client.Seed(opts)
		e.post(func() { e.onAdded(s, h, err) })
	}()
}

// onAdded runs once the client has produced a handle. A session stopped in
// the meantime gets its handle released and nothing is emitted.
func (e *Engine) onAdded(s *Session, h Handle, err error) {
	if !e.live(s) {
		if h != nil && e.lookup(h.InfoHash(), 0) == nil {
			h.Drop()
		}
		return
	}
	if err != nil {
		e.removeSession(s)
		log.Warnf("[%d] add failed: %v", s.Key, err)
		e.emit(ipc.ErrorEvent{Key: s.Key, Message: err.Error()})
		return
	}
	s.handle = h
	s.InfoHash = h.InfoHash()
	if len(e.trackers) > 0 {
		h.AddTrackers(e.trackers)
	}
	e.emit(ipc.InfoHashEvent{Key: s.Key, InfoHash: s.InfoHash, MagnetURI: h.MagnetURI()})
	e.awaitInfo(s)
}

func (e *Engine) awaitInfo(s *Session) {
	gotInfo := s.handle.GotInfo()
	warnAfter := e.config.MetadataWarnAfter
	go func() {
		var warnC <-chan time.Time
		if warnAfter > 0 {
			t := time.NewTimer(warnAfter)
			defer t.Stop()
			warnC = t.C
		}
		for {
			select {
			case <-gotInfo:
				e.post(func() { e.onMetadata(s) })
				return
			case <-warnC:
				warnC = nil
				e.post(func() {
					if e.live(s) {
						e.warn(s.Key, "no metadata after %s, still waiting for peers", warnAfter)
					}
				})
			case <-s.ctx.Done():
				return
			}
		}
	}()
}

func (e *Engine) onMetadata(s *Session) {
	if !e.live(s) {
		return
	}
	info := e.torrentInfo(s)
	log.Printf("[%d] metadata %s: %d files, %s", s.Key, s.InfoHash, len(info.Files),
		humanize.IBytes(uint64(info.Length)))
	e.emit(ipc.MetadataEvent{Key: s.Key, Info: info})
	e.saveTorrentFile(s)

	if err := e.applySelections(s, s.selections); err != nil {
		e.warn(s.Key, "%v, selecting all files", err)
		e.applySelections(s, nil)
	}
	s.ready = true
	e.emit(ipc.ReadyEvent{Key: s.Key, Info: info})
	s.queue.Drain()

	if !e.live(s) {
		return
	}
	e.checkModtimes(s)
	e.makePoster(s)
}

func (e *Engine) torrentInfo(s *Session) ipc.TorrentInfo {
	h := s.handle
	info := ipc.TorrentInfo{
		InfoHash:  s.InfoHash,
		MagnetURI: h.MagnetURI(),
		Name:      h.Name(),
	}
	select {
	case <-h.GotInfo():
	default:
		return info
	}
	info.Length = h.Length()
	info.PieceLength = h.PieceLength()
	info.BytesReceived = h.Stats().BytesRead
	for _, f := range h.Files() {
		info.Files = append(info.Files, ipc.FileInfo{
			Name:   filepath.Base(filepath.FromSlash(f.Path)),
			Path:   f.Path,
			Length: f.Length,
		})
	}
	return info
}

// applySelections selects files per sel, nil meaning every file. Nothing is
// applied when the length is wrong.
func (e *Engine) applySelections(s *Session, sel []bool) error {
	files := s.handle.Files()
	if sel == nil {
		sel = make([]bool, len(files))
		for i := range sel {
			sel[i] = true
		}
	}
	if len(sel) != len(files) {
		return fmt.Errorf("%w: got %d, torrent has %d", ErrSelectionLength, len(sel), len(files))
	}
	for i, on := range sel {
		s.handle.SetFileSelected(i, on)
	}
	s.selections = append([]bool(nil), sel...)
	return nil
}

func (e *Engine) selectFilesCommand(c ipc.SelectFiles) {
	s := e.lookup(c.InfoHash, c.Key)
	if s == nil {
		log.Printf("select-files: no session for %s/%d", c.InfoHash, c.Key)
		return
	}
	sel := c.Selections
	apply := func() {
		if err := e.applySelections(s, sel); err != nil {
			e.warn(s.Key, "%v", err)
		}
	}
	if s.ready {
		apply()
		return
	}
	s.queue.Push(apply)
}

func (e *Engine) stopTorrenting(c ipc.StopTorrenting) {
	s := e.lookup(c.InfoHash, c.Key)
	if s == nil {
		log.Debugf("stop: no session for %s/%d", c.InfoHash, c.Key)
		return
	}
	log.Printf("[%d] stopping %s", s.Key, s.InfoHash)
	e.removeSession(s)
}

func (e *Engine) removeSession(s *Session) {
	if !e.live(s) {
		return
	}
	delete(e.sessions, s.Key)
	s.cancel()
	s.queue.Clear()
	if e.pending != nil && e.pending.session == s {
		e.pending.cancel()
		e.pending = nil
	}
	if e.server != nil && e.server.info.TorrentKey == s.Key {
		e.stopServer()
	}
	// a duplicate add shares the handle with the original session
	if s.handle != nil && e.lookup(s.InfoHash, 0) == nil {
		s.handle.Drop()
	}
	metrics.ActiveSessions.Set(float64(len(e.sessions)))
}

func (e *Engine) checkModtimes(s *Session) {
	if len(s.modtimes) == 0 {
		return
	}
	now := diskModtimes(s)
	for p, want := range s.modtimes {
		if got, ok := now[p]; ok && got != want {
			e.warn(s.Key, "%s changed on disk since it was downloaded", p)
			return
		}
	}
}
