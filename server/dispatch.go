package server

import (
	"context"
	"errors"
	"fmt"
	neturl "net/url"
	"path/filepath"
	"reflect"
	"slices"
	"strings"

	"github.com/boypt/torrentdesk/engine"
	"github.com/boypt/torrentdesk/ipc"
	"github.com/boypt/torrentdesk/metrics"
	"github.com/boypt/torrentdesk/playback"
	"github.com/boypt/torrentdesk/storage"
	"github.com/boypt/torrentdesk/store"
	"github.com/spf13/afero"
)

// dispatch applies a on the UI loop.
func (s *Server) dispatch(a Action) error {
	metrics.UIDispatchTotal.WithLabelValues(a.ActionName()).Inc()
	switch a := a.(type) {
	case AddTorrent:
		return s.addTorrent(a.TorrentID, a.Path)
	case CreateTorrent:
		return s.createTorrent(a)
	case ToggleTorrent:
		ts := s.state.TorrentByInfoHash(a.InfoHash)
		if ts == nil {
			return ErrNotFound
		}
		if ts.Status == store.StatusPaused {
			s.resumeTorrent(ts)
		} else {
			s.pauseTorrent(ts)
		}
		s.save()
	case PauseAll:
		for _, ts := range s.state.Saved.Torrents {
			if ts.Status != store.StatusPaused {
				s.pauseTorrent(ts)
			}
		}
		s.save()
	case ResumeAll:
		for _, ts := range s.state.Saved.Torrents {
			if ts.Status == store.StatusPaused {
				s.resumeTorrent(ts)
			}
		}
		s.save()
	case DeleteTorrent:
		return s.deleteTorrent(a.InfoHash, a.DeleteData)
	case SelectFiles:
		ts := s.state.TorrentByInfoHash(a.InfoHash)
		if ts == nil {
			return ErrNotFound
		}
		if len(a.Selections) != len(ts.Files) {
			return fmt.Errorf("%w: got %d selections for %d files", engine.ErrSelectionLength, len(a.Selections), len(ts.Files))
		}
		s.applySelections(ts, slices.Clone(a.Selections))
	case ToggleFileSelected:
		ts := s.state.TorrentByInfoHash(a.InfoHash)
		if ts == nil {
			return ErrNotFound
		}
		if a.Index < 0 || a.Index >= len(ts.Selections) {
			return fmt.Errorf("no file %d", a.Index)
		}
		sel := slices.Clone(ts.Selections)
		sel[a.Index] = !sel[a.Index]
		s.applySelections(ts, sel)
	case PlayFile:
		return s.playFile(a.InfoHash, a.Index)
	case StopPlayback:
		s.stopPlayback()
	case PlayPause:
		return s.coord.PlayPause()
	case Seek:
		return s.coord.Seek(a.Time)
	case TimeUpdate:
		s.coord.TimeUpdate(a.Time)
	case ToggleCastMenu:
		return s.coord.ToggleCastMenu(a.DeviceType)
	case SelectCastDevice:
		return s.coord.SelectDevice(a.Index)
	case StopCasting:
		s.coord.Stop()
	case OpenExternalPlayer:
		return s.coord.StartExternal(s.state.Saved.Prefs.ExternalPlayerPath)
	case GetAudioMetadata:
		ts := s.state.TorrentByInfoHash(a.InfoHash)
		if ts == nil {
			return ErrNotFound
		}
		s.send(ipc.GetAudioMetadata{InfoHash: ts.InfoHash, Key: ts.TorrentKey, Index: a.Index})
	case UpdatePrefs:
		return s.updatePrefs(a.Prefs)
	case FetchTrackers:
		s.fetchTrackers(a.URL)
	case RefreshRSS:
		go s.updateRSS(s.ctx)
	case DismissErrors:
		s.state.Errors = s.state.Errors[:0]
	case ClearNotifications:
		s.state.Notifications = s.state.Notifications[:0]
	case MediaMouseMoved:
		s.skipPush = true
	default:
		log.Errorf("no handler for action %s (%T)", a.ActionName(), a)
		return fmt.Errorf("%w: %s", ErrUnknownAction, a.ActionName())
	}
	return nil
}

func (s *Server) addTorrent(torrentID, path string) error {
	torrentID = strings.TrimSpace(torrentID)
	if torrentID == "" {
		return errors.New("empty torrent id")
	}
	if path == "" {
		path = s.state.Saved.Prefs.DownloadPath
	}
	ts := s.state.AddTorrent(&store.TorrentSummary{
		TorrentID: torrentID,
		Path:      path,
		AddedAt:   s.now(),
	})
	log.Infof("[%d] adding %s", ts.TorrentKey, torrentID)
	s.startTorrenting(ts)
	return nil
}

func (s *Server) createTorrent(a CreateTorrent) error {
	if a.Path == "" {
		return errors.New("create torrent: empty path")
	}
	p := filepath.Clean(a.Path)
	ts := s.state.AddTorrent(&store.TorrentSummary{
		Name:    filepath.Base(p),
		Path:    filepath.Dir(p),
		AddedAt: s.now(),
	})
	s.send(ipc.CreateTorrent{
		Key: ts.TorrentKey,
		Options: ipc.CreateOptions{
			Path:    p,
			Comment: a.Comment,
			Private: a.Private,
		},
	})
	return nil
}

func (s *Server) pauseTorrent(ts *store.TorrentSummary) {
	s.stopTorrenting(ts)
	ts.Status = store.StatusPaused
}

func (s *Server) resumeTorrent(ts *store.TorrentSummary) {
	ts.Status = store.StatusNew
	s.startTorrenting(ts)
}

func (s *Server) applySelections(ts *store.TorrentSummary, sel []bool) {
	ts.Selections = sel
	if ts.Status != store.StatusPaused {
		s.send(ipc.SelectFiles{InfoHash: ts.InfoHash, Key: ts.TorrentKey, Selections: sel})
	}
	s.save()
}

func (s *Server) deleteTorrent(infoHash string, deleteData bool) error {
	ts := s.state.TorrentByInfoHash(infoHash)
	if ts == nil {
		return ErrNotFound
	}
	if ts.Status != store.StatusPaused {
		s.stopTorrenting(ts)
	}
	s.state.RemoveTorrent(ts.TorrentKey)
	s.save()
	if !deleteData || ts.Name == "" {
		return nil
	}
	st := storage.New(afero.NewBasePathFs(s.fs, ts.Path))
	name, key := ts.Name, ts.TorrentKey
	go func() {
		if err := st.RemoveAll(name); err != nil {
			log.Errorf("delete %s: %v", name, err)
			s.post(func() {
				s.state.AddError(s.now(), fmt.Sprintf("Could not delete %s: %v", name, err), key)
			})
			return
		}
		log.Infof("deleted data of %s", name)
	}()
	return nil
}

func (s *Server) updatePrefs(p store.Prefs) error {
	if p.DownloadPath == "" {
		return errors.New("download path is required")
	}
	dl, err := filepath.Abs(p.DownloadPath)
	if err != nil {
		return fmt.Errorf("invalid download path: %w", err)
	}
	p.DownloadPath = dl
	old := s.state.Saved.Prefs
	if reflect.DeepEqual(old, p) {
		log.Info("prefs unchanged")
		return nil
	}
	s.state.Saved.Prefs = p
	if p.DownloadLimit != old.DownloadLimit {
		s.send(ipc.SetDownloadLimit{BytesPerSec: p.DownloadLimit})
	}
	if p.UploadLimit != old.UploadLimit {
		s.send(ipc.SetUploadLimit{BytesPerSec: p.UploadLimit})
	}
	if !slices.Equal(p.GlobalTrackers, old.GlobalTrackers) {
		s.send(ipc.SetGlobalTrackers{Trackers: p.GlobalTrackers})
	}
	if p.DownloadPath != old.DownloadPath {
		s.storage = storage.New(afero.NewBasePathFs(s.fs, p.DownloadPath))
	}
	if p.WatchDirectory != old.WatchDirectory {
		s.restartWatcher(p.WatchDirectory)
	}
	if !slices.Equal(p.RSSURLs, old.RSSURLs) {
		go s.updateRSS(s.ctx)
	}
	log.Info("prefs saved")
	s.save()
	return nil
}

func (s *Server) fetchTrackers(url string) {
	ctx := s.ctx
	go func() {
		trackers, err := engine.FetchTrackers(ctx, url)
		s.post(func() {
			if err != nil {
				s.state.AddError(s.now(), fmt.Sprintf("Fetch trackers: %v", err), 0)
				return
			}
			log.Infof("fetched %d trackers", len(trackers))
			s.state.Saved.Prefs.GlobalTrackers = trackers
			s.send(ipc.SetGlobalTrackers{Trackers: trackers})
			s.save()
		})
	}()
}

// playFile starts the streaming server for infoHash and opens index once
// it runs. The wait is abandoned after PlaybackTimeout.
func (s *Server) playFile(infoHash string, index int) error {
	ts := s.state.TorrentByInfoHash(infoHash)
	if ts == nil {
		return ErrNotFound
	}
	if index < 0 {
		index = playback.PickFileToPlay(ts.PlaybackFiles())
	}
	if index < 0 || index >= len(ts.Files) {
		return fmt.Errorf("nothing to play in %s", ts.Name)
	}
	if ts.Status == store.StatusPaused {
		s.resumeTorrent(ts)
	}
	hadAttempt := s.cancelPlay != nil
	if hadAttempt {
		s.cancelPlay()
	}
	s.coord.Close()

	ctx, cancel := context.WithCancel(s.ctx)
	s.cancelPlay = cancel
	key := ts.TorrentKey
	stop := s.afterFunc(PlaybackTimeout, func() {
		s.post(func() {
			if ctx.Err() != nil {
				return
			}
			cancel()
			log.Warnf("[%d] playback timed out", key)
			s.state.AddError(s.now(), "Playback timed out", key)
		})
	})
	openFile := func(info ipc.ServerInfo) {
		stop()
		cancel()
		f := ts.Files[index]
		url := fmt.Sprintf("%s/%d/%s", info.LocalURL, index, neturl.PathEscape(f.Name))
		s.coord.Open(ts.InfoHash, index, url, playback.TypeOf(f.Name))
		if s.state.Saved.Prefs.OpenExternalPlayer {
			if err := s.coord.StartExternal(s.state.Saved.Prefs.ExternalPlayerPath); err != nil {
				s.state.AddError(s.now(), err.Error(), key)
			}
		}
	}

	if cur := s.state.Server; cur != nil && strings.EqualFold(cur.InfoHash, ts.InfoHash) {
		openFile(*cur)
		return nil
	}
	// the worker ignores a start while another server runs or is pending
	if s.state.Server != nil || hadAttempt {
		s.send(ipc.StopServer{})
		s.state.Server = nil
	}
	s.waiters.add(ctx, ipc.ServerTopic(ts.InfoHash), func(ev ipc.Event) {
		openFile(ev.(ipc.ServerRunningEvent).Info)
	})
	s.send(ipc.StartServer{InfoHash: ts.InfoHash, Key: ts.TorrentKey})
	return nil
}

func (s *Server) stopPlayback() {
	hadAttempt := s.cancelPlay != nil
	if hadAttempt {
		s.cancelPlay()
		s.cancelPlay = nil
	}
	s.coord.Close()
	if s.state.Server != nil || hadAttempt {
		s.send(ipc.StopServer{})
		s.state.Server = nil
	}
}
