package engine

import (
	"time"

	"github.com/boypt/torrentdesk/ipc"
)

// speedSample holds the counters from the previous tick so rates can be
// derived from deltas.
type speedSample struct {
	read      int64
	written   int64
	sampledAt time.Time
}

// update records the current counters and returns bytes per second since
// the previous sample. The first sample reports zero.
func (sp *speedSample) update(read, written int64, now time.Time) (down, up int64) {
	if !sp.sampledAt.IsZero() {
		if dt := now.Sub(sp.sampledAt); dt > 0 {
			dtinv := float64(time.Second) / float64(dt)
			down = int64(float64(read-sp.read) * dtinv)
			up = int64(float64(written-sp.written) * dtinv)
		}
	}
	if down < 0 {
		down = 0
	}
	if up < 0 {
		up = 0
	}
	sp.read = read
	sp.written = written
	sp.sampledAt = now
	return
}

func fraction(n, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(n) / float64(total)
}

// torrentProgress builds the snapshot entry for one session. hasInfo is
// false while metadata is still being fetched.
func (e *Engine) torrentProgress(s *Session, now time.Time) (tp ipc.TorrentProgress, hasInfo bool) {
	tp = ipc.TorrentProgress{
		TorrentKey: s.Key,
		InfoHash:   s.InfoHash,
		Ready:      s.ready,
	}
	h := s.handle
	if h == nil {
		return tp, false
	}
	st := h.Stats()
	tp.NumPeers = st.Peers
	tp.DownloadSpeed, tp.UploadSpeed = s.speed.update(st.BytesRead, st.BytesWritten, now)

	select {
	case <-h.GotInfo():
	default:
		return tp, false
	}
	tp.Length = h.Length()
	tp.Downloaded = h.BytesCompleted()
	tp.Progress = fraction(tp.Downloaded, tp.Length)
	tp.Files = filesProgress(h)
	return tp, true
}

func filesProgress(h Handle) []ipc.FileProgress {
	pl := h.PieceLength()
	if pl <= 0 {
		return nil
	}
	files := h.Files()
	out := make([]ipc.FileProgress, 0, len(files))
	for _, f := range files {
		fp := ipc.FileProgress{StartPiece: int(f.Offset / pl)}
		if f.Length > 0 {
			fp.EndPiece = int((f.Offset + f.Length - 1) / pl)
		} else {
			fp.EndPiece = fp.StartPiece
		}
		fp.NumPieces = fp.EndPiece - fp.StartPiece + 1
		for i := fp.StartPiece; i <= fp.EndPiece; i++ {
			if h.PieceComplete(i) {
				fp.NumPiecesPresent++
			}
		}
		out = append(out, fp)
	}
	return out
}
