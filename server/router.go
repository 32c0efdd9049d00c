package server

import (
	"fmt"

	"github.com/boypt/torrentdesk/common"
	"github.com/boypt/torrentdesk/ipc"
	"github.com/boypt/torrentdesk/store"
	"github.com/dustin/go-humanize"
)

const duplicateTorrentMessage = "This torrent is already in the list"

// summary returns the live summary for key. Paused and removed torrents
// get nil, so their late events are dropped.
func (s *Server) summary(key int) *store.TorrentSummary {
	ts := s.state.TorrentByKey(key)
	if ts == nil || ts.Status == store.StatusPaused {
		return nil
	}
	return ts
}

// route folds one worker event into the state tree.
func (s *Server) route(ev ipc.Event) {
	now := s.now()
	switch ev := ev.(type) {
	case ipc.InfoHashEvent:
		s.onInfoHash(ev)
	case ipc.MetadataEvent:
		ts := s.summary(ev.Key)
		if ts == nil {
			return
		}
		ts.Name = ev.Info.Name
		ts.MergeFiles(ev.Info.Files)
		if len(ts.Selections) != len(ts.Files) {
			ts.Selections = make([]bool, len(ts.Files))
			for i := range ts.Selections {
				ts.Selections[i] = true
			}
		}
		if ts.Status != store.StatusSeeding {
			ts.Status = store.StatusDownloading
		}
		log.Infof("[%d] metadata %s, %d files, %s", ev.Key, ts.Name, len(ts.Files), humanize.Bytes(uint64(ev.Info.Length)))
		s.save()
	case ipc.ReadyEvent:
		ts := s.summary(ev.Key)
		if ts == nil {
			return
		}
		ts.Ready = true
		s.waiters.fire(ipc.ReadyTopic(ts.InfoHash), ev)
	case ipc.DoneEvent:
		ts := s.summary(ev.Key)
		if ts == nil {
			return
		}
		ts.Status = store.StatusSeeding
		if ev.Info.BytesReceived > 0 {
			s.state.Notify(now, "Download Complete", fmt.Sprintf("%s finished downloading", ev.Info.Name))
		}
		log.Infof("[%d] done %s", ev.Key, ev.Info.Name)
		s.save()
	case ipc.WarningEvent:
		log.Warnf("[%d] worker warning: %s", ev.Key, ev.Message)
		s.state.AddError(now, ev.Message, ev.Key)
	case ipc.ErrorEvent:
		ts := s.summary(ev.Key)
		if ts == nil {
			return
		}
		log.Errorf("[%d] torrent error: %s", ev.Key, ev.Message)
		s.stopTorrenting(ts)
		ts.Status = store.StatusPaused
		ts.Error = ev.Message
		s.state.AddError(now, ev.Message, ev.Key)
		s.save()
	case ipc.ProgressEvent:
		s.onProgress(ev.Snapshot)
	case ipc.FileModtimesEvent:
		if ts := s.summary(ev.Key); ts != nil {
			ts.FileModtimes = ev.Modtimes
			s.save()
		}
	case ipc.FileSavedEvent:
		if ts := s.summary(ev.Key); ts != nil {
			ts.TorrentFileName = ev.FileName
			s.save()
		}
	case ipc.PosterEvent:
		if ts := s.summary(ev.Key); ts != nil {
			ts.PosterFileName = ev.FileName
			s.save()
		}
	case ipc.AudioMetadataEvent:
		ts := s.state.TorrentByInfoHash(ev.InfoHash)
		if ts == nil || ev.Index < 0 || ev.Index >= len(ts.Files) {
			return
		}
		md := ev.Metadata
		ts.Files[ev.Index].AudioInfo = &md
	case ipc.ServerRunningEvent:
		info := ev.Info
		s.state.Server = &info
		log.Infof("streaming %s at %s", common.ShortHash(info.InfoHash), info.LocalURL)
		s.waiters.fire(ipc.ServerTopic(info.InfoHash), ev)
	case ipc.UncaughtErrorEvent:
		log.Errorf("uncaught error in %s: %s", ev.Process, ev.Message)
		s.state.AddError(now, fmt.Sprintf("%s: %s", ev.Process, ev.Message), 0)
	default:
		log.Errorf("unhandled event %s", ev.EventName())
	}
}

func (s *Server) onInfoHash(ev ipc.InfoHashEvent) {
	ts := s.summary(ev.Key)
	if ts == nil {
		return
	}
	if other := s.state.TorrentByInfoHash(ev.InfoHash); other != nil && other != ts {
		log.Warnf("[%d] duplicate of %s", ev.Key, other.Name)
		// by key only, the hash would also match the original session
		s.send(ipc.StopTorrenting{Key: ev.Key})
		s.state.RemoveTorrent(ts.TorrentKey)
		s.state.AddError(s.now(), duplicateTorrentMessage, other.TorrentKey)
		return
	}
	ts.InfoHash = ev.InfoHash
	ts.MagnetURI = ev.MagnetURI
	if ts.Status == store.StatusNew {
		ts.Status = store.StatusDownloading
	}
	s.save()
}

func (s *Server) onProgress(snap ipc.Snapshot) {
	s.state.Progress = snap.Progress
	s.state.HasActiveTorrents = snap.HasActiveTorrents
	seen := map[int]bool{}
	for i := range snap.Torrents {
		tp := snap.Torrents[i]
		ts := s.summary(tp.TorrentKey)
		if ts == nil {
			continue
		}
		seen[ts.TorrentKey] = true
		ts.Progress = &tp
	}
	for _, ts := range s.state.Saved.Torrents {
		if !seen[ts.TorrentKey] {
			ts.Progress = nil
		}
	}
}
