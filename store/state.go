// Package store holds the UI process state tree. The tree is synced to
// browsers with velox and the saved subset is persisted as JSON.
package store

import (
	"strings"
	"sync"
	"time"

	"github.com/boypt/torrentdesk/ipc"
	"github.com/boypt/torrentdesk/playback"
	"github.com/boypt/torrentdesk/storage"
	"github.com/jpillora/velox"
)

type Status string

const (
	StatusNew         Status = "new"
	StatusDownloading Status = "downloading"
	StatusSeeding     Status = "seeding"
	StatusPaused      Status = "paused"
)

type FileSummary struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Length int64  `json:"length"`
	//ephemeral
	AudioInfo *ipc.AudioMetadata `json:"audioInfo,omitempty"`
}

// TorrentSummary is the UI's record of one torrent. Fields marked
// ephemeral are cleared before saving.
type TorrentSummary struct {
	TorrentKey      int              `json:"torrentKey"`
	InfoHash        string           `json:"infoHash,omitempty"`
	Name            string           `json:"name,omitempty"`
	Path            string           `json:"path"`
	MagnetURI       string           `json:"magnetURI,omitempty"`
	TorrentID       string           `json:"torrentID,omitempty"`
	TorrentFileName string           `json:"torrentFileName,omitempty"`
	PosterFileName  string           `json:"posterFileName,omitempty"`
	Status          Status           `json:"status"`
	Files           []FileSummary    `json:"files,omitempty"`
	Selections      []bool           `json:"selections,omitempty"`
	FileModtimes    map[string]int64 `json:"fileModtimes,omitempty"`
	AddedAt         time.Time        `json:"addedAt"`
	//ephemeral
	Progress *ipc.TorrentProgress `json:"progress,omitempty"`
	Ready    bool                 `json:"ready,omitempty"`
	Error    string               `json:"error,omitempty"`
}

// StartID is what the worker should be asked to open when resuming t.
func (t *TorrentSummary) StartID() string {
	switch {
	case t.MagnetURI != "":
		return t.MagnetURI
	case t.InfoHash != "":
		return t.InfoHash
	}
	return t.TorrentID
}

// MergeFiles extends t.Files with files. Known entries keep their
// ephemeral data and are never dropped.
func (t *TorrentSummary) MergeFiles(files []ipc.FileInfo) {
	for i, f := range files {
		if i < len(t.Files) {
			t.Files[i].Name = f.Name
			t.Files[i].Path = f.Path
			t.Files[i].Length = f.Length
			continue
		}
		t.Files = append(t.Files, FileSummary{Name: f.Name, Path: f.Path, Length: f.Length})
	}
}

func (t *TorrentSummary) PlaybackFiles() []playback.File {
	out := make([]playback.File, len(t.Files))
	for i, f := range t.Files {
		out[i] = playback.File{Name: f.Name, Length: f.Length}
	}
	return out
}

type Prefs struct {
	DownloadPath       string   `json:"downloadPath"`
	IsFileHandler      bool     `json:"isFileHandler"`
	OpenExternalPlayer bool     `json:"openExternalPlayer"`
	ExternalPlayerPath string   `json:"externalPlayerPath"`
	DownloadLimit      int64    `json:"downloadLimit"`
	UploadLimit        int64    `json:"uploadLimit"`
	GlobalTrackers     []string `json:"globalTrackers,omitempty"`
	RSSURLs            []string `json:"rssURLs,omitempty"`
	WatchDirectory     string   `json:"watchDirectory,omitempty"`
}

// Saved is the persisted part of the state tree.
type Saved struct {
	Version  string            `json:"version"`
	Prefs    Prefs             `json:"prefs"`
	Torrents []*TorrentSummary `json:"torrents"`
}

type Notification struct {
	Time  time.Time `json:"time"`
	Title string    `json:"title"`
	Body  string    `json:"body"`
}

type RSSItem struct {
	Feed      string `json:"feed"`
	Name      string `json:"name"`
	Link      string `json:"link"`
	Published string `json:"published,omitempty"`
}

type SystemStats struct {
	Set         bool    `json:"set"`
	CPU         float64 `json:"cpu"`
	DiskUsed    int64   `json:"diskUsed"`
	DiskTotal   int64   `json:"diskTotal"`
	MemoryUsed  int64   `json:"memoryUsed"`
	MemoryTotal int64   `json:"memoryTotal"`
	GoMemory    int64   `json:"goMemory"`
	GoRoutines  int     `json:"goRoutines"`
}

type Stats struct {
	Title   string      `json:"title"`
	Version string      `json:"version"`
	Runtime string      `json:"runtime"`
	Uptime  time.Time   `json:"uptime"`
	System  SystemStats `json:"system"`
}

// State is the whole UI tree. Hold the mutex while mutating it.
type State struct {
	velox.State
	sync.Mutex
	Saved             Saved             `json:"saved"`
	Playing           playback.Playing  `json:"playing"`
	Server            *ipc.ServerInfo   `json:"server,omitempty"`
	Progress          float64           `json:"progress"`
	HasActiveTorrents bool              `json:"hasActiveTorrents"`
	Errors            []UIError         `json:"errors"`
	Notifications     []Notification    `json:"notifications"`
	RSS               []RSSItem         `json:"rss"`
	Stats             Stats             `json:"stats"`
	Downloads         *storage.Node     `json:"downloads,omitempty"`
	Users             map[string]string `json:"users"`

	nextKey int
}

// FrameInterval is the minimum gap between two pushes to browsers.
const FrameInterval = 16 * time.Millisecond

func New(saved Saved) *State {
	s := &State{
		Saved:         saved,
		Progress:      -1,
		Errors:        []UIError{},
		Notifications: []Notification{},
		Users:         map[string]string{},
	}
	// bursts of pushes collapse into one frame
	s.Throttle = FrameInterval
	s.Playing.Reset()
	if s.Saved.Torrents == nil {
		s.Saved.Torrents = []*TorrentSummary{}
	}
	// keys are only meaningful within one run
	for _, t := range s.Saved.Torrents {
		t.TorrentKey = s.NextKey()
	}
	return s
}

func (s *State) NextKey() int {
	s.nextKey++
	return s.nextKey
}

func (s *State) TorrentByKey(key int) *TorrentSummary {
	for _, t := range s.Saved.Torrents {
		if t.TorrentKey == key {
			return t
		}
	}
	return nil
}

func (s *State) TorrentByInfoHash(infoHash string) *TorrentSummary {
	if infoHash == "" {
		return nil
	}
	for _, t := range s.Saved.Torrents {
		if strings.EqualFold(t.InfoHash, infoHash) {
			return t
		}
	}
	return nil
}

// AddTorrent assigns t a fresh key and puts it at the top of the list.
func (s *State) AddTorrent(t *TorrentSummary) *TorrentSummary {
	t.TorrentKey = s.NextKey()
	if t.Status == "" {
		t.Status = StatusNew
	}
	s.Saved.Torrents = append([]*TorrentSummary{t}, s.Saved.Torrents...)
	return t
}

func (s *State) RemoveTorrent(key int) *TorrentSummary {
	for i, t := range s.Saved.Torrents {
		if t.TorrentKey == key {
			s.Saved.Torrents = append(s.Saved.Torrents[:i], s.Saved.Torrents[i+1:]...)
			return t
		}
	}
	return nil
}

const maxNotifications = 20

func (s *State) Notify(now time.Time, title, body string) {
	s.Notifications = append(s.Notifications, Notification{Time: now, Title: title, Body: body})
	if n := len(s.Notifications); n > maxNotifications {
		s.Notifications = s.Notifications[n-maxNotifications:]
	}
}
