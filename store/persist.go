package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/boypt/torrentdesk/common"
	"github.com/boypt/torrentdesk/metrics"
	"github.com/spf13/afero"
)

var log = common.Logger("store")

// PersistedCopy returns the saved tree with ephemeral fields cleared.
// Torrents whose info-hash never resolved are dropped.
func (s Saved) PersistedCopy() Saved {
	out := Saved{Version: s.Version, Prefs: s.Prefs, Torrents: []*TorrentSummary{}}
	for _, t := range s.Torrents {
		if t.InfoHash == "" {
			continue
		}
		c := *t
		c.TorrentKey = 0
		c.Progress = nil
		c.Ready = false
		c.Error = ""
		if t.Files != nil {
			c.Files = make([]FileSummary, len(t.Files))
			for i, f := range t.Files {
				f.AudioInfo = nil
				c.Files[i] = f
			}
		}
		out.Torrents = append(out.Torrents, &c)
	}
	return out
}

// Saver writes the saved tree to a JSON file. Saves within Window of a
// pending one are coalesced into a single trailing write.
type Saver struct {
	Window time.Duration

	fs   afero.Fs
	path string

	mu      sync.Mutex
	pending []byte
	timer   *time.Timer
	writeMu sync.Mutex
	writes  int
}

func NewSaver(fs afero.Fs, path string) *Saver {
	return &Saver{Window: time.Second, fs: fs, path: path}
}

// Save snapshots saved now and schedules the write.
func (s *Saver) Save(saved Saved) error {
	b, err := json.MarshalIndent(saved.PersistedCopy(), "", "  ")
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = b
	if s.timer == nil {
		s.timer = time.AfterFunc(s.Window, s.flushPending)
	}
	return nil
}

func (s *Saver) takePending() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	b := s.pending
	s.pending = nil
	return b
}

func (s *Saver) flushPending() {
	if err := s.write(s.takePending()); err != nil {
		log.Errorf("save state: %v", err)
	}
}

// Flush writes any pending save immediately.
func (s *Saver) Flush() error {
	return s.write(s.takePending())
}

func (s *Saver) write(b []byte) error {
	if b == nil {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, b, 0644); err != nil {
		return err
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		return err
	}
	s.writes++
	metrics.StateSaves.Inc()
	return nil
}

// Load reads the state file, migrating it to appVersion. A missing file
// yields defaults.
func Load(fs afero.Fs, path, appVersion string, defaults Prefs) (Saved, error) {
	saved := Saved{Version: appVersion, Prefs: defaults, Torrents: []*TorrentSummary{}}
	b, err := afero.ReadFile(fs, path)
	if os.IsNotExist(err) {
		return saved, nil
	}
	if err != nil {
		return saved, err
	}
	if len(b) == 0 {
		return saved, nil
	}
	raw := map[string]any{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return saved, fmt.Errorf("malformed state file %s: %w", path, err)
	}
	from, _ := raw["version"].(string)
	raw = Migrate(raw, appVersion)
	if b, err = json.Marshal(raw); err != nil {
		return saved, err
	}
	if err := json.Unmarshal(b, &saved); err != nil {
		return saved, fmt.Errorf("malformed state file %s: %w", path, err)
	}
	if saved.Torrents == nil {
		saved.Torrents = []*TorrentSummary{}
	}
	if saved.Prefs.DownloadPath == "" {
		saved.Prefs.DownloadPath = defaults.DownloadPath
	}
	if from != appVersion {
		log.Infof("migrated state file from %q to %q", from, appVersion)
	}
	return saved, nil
}
