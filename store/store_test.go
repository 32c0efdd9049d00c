package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/boypt/torrentdesk/ipc"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHash = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

func sampleSaved() Saved {
	return Saved{
		Version: "0.5.0",
		Prefs: Prefs{
			DownloadPath:       "/data/downloads",
			OpenExternalPlayer: true,
			ExternalPlayerPath: "/usr/bin/mpv",
			DownloadLimit:      1 << 20,
			GlobalTrackers:     []string{"udp://tracker.example:80"},
			RSSURLs:            []string{"https://feeds.example/rss"},
		},
		Torrents: []*TorrentSummary{
			{
				TorrentKey: 1,
				InfoHash:   testHash,
				Name:       "a",
				Path:       "/data/downloads",
				MagnetURI:  "magnet:?xt=urn:btih:" + testHash,
				Status:     StatusSeeding,
				Files:      []FileSummary{{Name: "a.mp4", Path: "a/a.mp4", Length: 1000, AudioInfo: &ipc.AudioMetadata{Title: "x"}}},
				Selections: []bool{true},
				FileModtimes: map[string]int64{
					"a/a.mp4": 1700000000000,
				},
				Progress: &ipc.TorrentProgress{Progress: 1},
				Ready:    true,
				Error:    "boom",
			},
			{TorrentKey: 2, Name: "unresolved", Status: StatusNew},
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	sv := NewSaver(fs, "/state/state.json")
	in := sampleSaved()
	require.NoError(t, sv.Save(in))
	require.NoError(t, sv.Flush())

	out, err := Load(fs, "/state/state.json", "0.5.0", Prefs{})
	require.NoError(t, err)
	assert.Equal(t, in.Prefs, out.Prefs)
	require.Len(t, out.Torrents, 1)

	got := out.Torrents[0]
	assert.Equal(t, testHash, got.InfoHash)
	assert.Equal(t, StatusSeeding, got.Status)
	assert.Equal(t, []bool{true}, got.Selections)
	assert.Equal(t, in.Torrents[0].FileModtimes, got.FileModtimes)
	// ephemeral fields never reach disk
	assert.Nil(t, got.Progress)
	assert.False(t, got.Ready)
	assert.Empty(t, got.Error)
	assert.Nil(t, got.Files[0].AudioInfo)
	assert.Zero(t, got.TorrentKey)

	// the in-memory tree is untouched
	assert.NotNil(t, in.Torrents[0].Progress)
	assert.NotNil(t, in.Torrents[0].Files[0].AudioInfo)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	out, err := Load(afero.NewMemMapFs(), "/nope.json", "1.0.0", Prefs{DownloadPath: "/dl"})
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", out.Version)
	assert.Equal(t, "/dl", out.Prefs.DownloadPath)
	assert.NotNil(t, out.Torrents)
}

func TestSaverCoalesces(t *testing.T) {
	fs := afero.NewMemMapFs()
	sv := NewSaver(fs, "/state.json")
	sv.Window = 50 * time.Millisecond
	for i := 0; i < 5; i++ {
		s := sampleSaved()
		s.Prefs.UploadLimit = int64(i)
		require.NoError(t, sv.Save(s))
	}
	require.Eventually(t, func() bool {
		sv.writeMu.Lock()
		defer sv.writeMu.Unlock()
		return sv.writes == 1
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	sv.writeMu.Lock()
	assert.Equal(t, 1, sv.writes)
	sv.writeMu.Unlock()

	out, err := Load(fs, "/state.json", "0.5.0", Prefs{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), out.Prefs.UploadLimit)
}

func TestFlushWithNothingPending(t *testing.T) {
	fs := afero.NewMemMapFs()
	sv := NewSaver(fs, "/state.json")
	require.NoError(t, sv.Flush())
	ok, _ := afero.Exists(fs, "/state.json")
	assert.False(t, ok)
}

const legacyState = `{
  "version": "0.1.0",
  "prefs": {"downloadDir": "/old", "playerPath": "/usr/bin/vlc", "rssURL": "https://a.example/rss\nhttps://b.example/rss\n"},
  "torrents": [{"infoHash": "` + testHash + `", "name": "legacy"}]
}`

func TestLoadMigrates(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/state.json", []byte(legacyState), 0644))
	out, err := Load(fs, "/state.json", "0.5.0", Prefs{})
	require.NoError(t, err)
	assert.Equal(t, "0.5.0", out.Version)
	assert.Equal(t, "/old", out.Prefs.DownloadPath)
	assert.Equal(t, "/usr/bin/vlc", out.Prefs.ExternalPlayerPath)
	assert.Equal(t, []string{"https://a.example/rss", "https://b.example/rss"}, out.Prefs.RSSURLs)
	require.Len(t, out.Torrents, 1)
	assert.Equal(t, StatusPaused, out.Torrents[0].Status)
}

func TestMigrationsIdempotent(t *testing.T) {
	raw := map[string]any{}
	require.NoError(t, json.Unmarshal([]byte(legacyState), &raw))
	once := Migrate(raw, "0.5.0")
	first, err := json.Marshal(once)
	require.NoError(t, err)

	once["version"] = "0.1.0"
	twice := Migrate(once, "0.5.0")
	second, err := json.Marshal(twice)
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(second))
}

func TestMigrateSkipsOlderAndNewer(t *testing.T) {
	raw := map[string]any{"version": "0.3.0", "prefs": map[string]any{"downloadDir": "/keep", "rssURL": "https://x.example"}}
	out := Migrate(raw, "0.3.5")
	prefs := out["prefs"].(map[string]any)
	// 0.2.0 already applied, 0.4.0 not yet released for this build
	assert.Equal(t, "/keep", prefs["downloadDir"])
	assert.Equal(t, "https://x.example", prefs["rssURL"])
	assert.Equal(t, "0.3.5", out["version"])
}

func TestErrorsWindowed(t *testing.T) {
	s := New(Saved{})
	t0 := time.Unix(1000, 0)
	s.AddError(t0, "old", 0)
	for i := 0; i < 12; i++ {
		s.AddError(t0.Add(4*time.Second), "new", 1)
	}
	require.Len(t, s.Errors, MaxErrors)
	for _, e := range s.Errors {
		assert.Equal(t, "new", e.Message)
	}
	s.PruneErrors(t0.Add(10 * time.Second))
	assert.Empty(t, s.Errors)
}

func TestTorrentsAndKeys(t *testing.T) {
	saved := sampleSaved()
	s := New(saved)
	assert.Equal(t, 1, s.Saved.Torrents[0].TorrentKey)
	assert.Equal(t, 2, s.Saved.Torrents[1].TorrentKey)

	added := s.AddTorrent(&TorrentSummary{TorrentID: "magnet:?xt=urn:btih:bbbb"})
	assert.Equal(t, 3, added.TorrentKey)
	assert.Equal(t, StatusNew, added.Status)
	assert.Same(t, added, s.Saved.Torrents[0])

	assert.Same(t, s.Saved.Torrents[1], s.TorrentByInfoHash("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"))
	assert.Nil(t, s.TorrentByInfoHash(""))
	assert.NotNil(t, s.RemoveTorrent(3))
	assert.Nil(t, s.TorrentByKey(3))
	assert.Nil(t, s.RemoveTorrent(3))
}

func TestMergeFilesExtends(t *testing.T) {
	ts := &TorrentSummary{Files: []FileSummary{{Name: "a", AudioInfo: &ipc.AudioMetadata{Title: "t"}}}}
	ts.MergeFiles([]ipc.FileInfo{{Name: "a", Path: "x/a", Length: 1}, {Name: "b", Path: "x/b", Length: 2}})
	require.Len(t, ts.Files, 2)
	assert.NotNil(t, ts.Files[0].AudioInfo)
	assert.Equal(t, "x/b", ts.Files[1].Path)
	ts.MergeFiles(nil)
	assert.Len(t, ts.Files, 2)
}
