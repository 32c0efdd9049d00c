package engine

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/go-cmp/cmp"

	"github.com/boypt/torrentdesk/ipc"
	"github.com/boypt/torrentdesk/metrics"
)

// tick runs once per progress interval on the event loop.
func (e *Engine) tick() {
	e.checkDone()
	snap := e.snapshot(e.now())
	e.updateGauges(snap)
	if e.lastSnapshot != nil && cmp.Equal(*e.lastSnapshot, snap) {
		metrics.ProgressSuppressed.Inc()
		return
	}
	e.lastSnapshot = &snap
	metrics.ProgressEmitted.Inc()
	e.emit(ipc.ProgressEvent{Snapshot: snap})
}

func (e *Engine) checkDone() {
	for _, s := range e.sortedSessions() {
		if !s.ready || s.done || s.handle == nil {
			continue
		}
		length := s.handle.Length()
		if length <= 0 || s.handle.BytesCompleted() != length {
			continue
		}
		s.done = true
		info := e.torrentInfo(s)
		log.Printf("[%d] done %s, %s received", s.Key, s.InfoHash,
			humanize.IBytes(uint64(info.BytesReceived)))
		e.emit(ipc.DoneEvent{Key: s.Key, Info: info})
		e.emit(ipc.FileModtimesEvent{Key: s.Key, Modtimes: diskModtimes(s)})
	}
}

func (e *Engine) sortedSessions() []*Session {
	out := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// snapshot samples every live session. Overall progress is -1 when there is
// nothing left to download.
func (e *Engine) snapshot(now time.Time) ipc.Snapshot {
	snap := ipc.Snapshot{Progress: -1, Torrents: []ipc.TorrentProgress{}}
	if len(e.sessions) == 0 {
		return snap
	}
	var completed, length int64
	for _, s := range e.sortedSessions() {
		tp, hasInfo := e.torrentProgress(s, now)
		if hasInfo {
			completed += tp.Downloaded
			length += tp.Length
		} else {
			snap.HasActiveTorrents = true
		}
		if hasInfo && tp.Downloaded < tp.Length {
			snap.HasActiveTorrents = true
		}
		snap.Torrents = append(snap.Torrents, tp)
	}
	p := fraction(completed, length)
	if p >= 1 {
		p = -1
	}
	snap.Progress = p
	return snap
}

func (e *Engine) updateGauges(snap ipc.Snapshot) {
	var down, up int64
	var peers int
	for _, t := range snap.Torrents {
		down += t.DownloadSpeed
		up += t.UploadSpeed
		peers += t.NumPeers
	}
	metrics.ActiveSessions.Set(float64(len(e.sessions)))
	metrics.DownloadSpeedBytes.Set(float64(down))
	metrics.UploadSpeedBytes.Set(float64(up))
	metrics.ConnectedPeers.Set(float64(peers))
}

// diskModtimes returns unix millisecond modtimes of the session's files as
// found on disk, keyed by path inside the torrent.
func diskModtimes(s *Session) map[string]int64 {
	out := map[string]int64{}
	for _, f := range s.handle.Files() {
		st, err := os.Stat(filepath.Join(s.Path, filepath.FromSlash(f.Path)))
		if err != nil {
			continue
		}
		out[f.Path] = st.ModTime().UnixMilli()
	}
	return out
}
