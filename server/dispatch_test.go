package server

import (
	"testing"
	"time"

	"github.com/boypt/torrentdesk/ipc"
	"github.com/boypt/torrentdesk/store"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	hashB   = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	magnetB = "magnet:?xt=urn:btih:" + hashB
)

func TestPlayPausedTorrent(t *testing.T) {
	r := newRig(t, nil)
	r.addResolved()
	require.NoError(t, r.dispatch(ToggleTorrent{InfoHash: hashA}))
	_, ok := r.nextCmd().(ipc.StopTorrenting)
	require.True(t, ok)

	require.NoError(t, r.dispatch(PlayFile{InfoHash: hashA, Index: -1}))
	start, ok := r.nextCmd().(ipc.StartTorrenting)
	require.True(t, ok)
	assert.Equal(t, 1, start.Key)
	// the worker may not know the hash yet, the key reaches the session
	assert.Equal(t, ipc.StartServer{InfoHash: hashA, Key: 1}, r.nextCmd())

	r.emit(ipc.ServerRunningEvent{Info: ipc.ServerInfo{TorrentKey: 1, InfoHash: hashA, LocalURL: "http://localhost:1234"}})
	r.eventually(func(st *store.State) bool { return st.Playing.URL != "" })
	r.read(func(st *store.State) {
		assert.Equal(t, "http://localhost:1234/0/a.mp4", st.Playing.URL)
		assert.NotEqual(t, store.StatusPaused, st.Saved.Torrents[0].Status)
	})
}

func TestCreateTorrentAction(t *testing.T) {
	r := newRig(t, nil)
	require.NoError(t, r.dispatch(CreateTorrent{Path: "/data/movie/", Comment: "home video", Private: true}))

	cmd, ok := r.nextCmd().(ipc.CreateTorrent)
	require.True(t, ok)
	assert.Equal(t, 1, cmd.Key)
	assert.Equal(t, ipc.CreateOptions{Path: "/data/movie", Comment: "home video", Private: true}, cmd.Options)

	r.read(func(st *store.State) {
		require.Len(t, st.Saved.Torrents, 1)
		ts := st.Saved.Torrents[0]
		assert.Equal(t, "movie", ts.Name)
		assert.Equal(t, "/data", ts.Path)
	})

	assert.Error(t, r.dispatch(CreateTorrent{}))
}

func TestDeleteTorrent(t *testing.T) {
	seed := func(fs afero.Fs) {
		require.NoError(t, afero.WriteFile(fs, "/dl/a/a.mp4", []byte("data"), 0644))
	}

	t.Run("keep data", func(t *testing.T) {
		r := newRig(t, seed)
		r.addResolved()
		require.NoError(t, r.dispatch(DeleteTorrent{InfoHash: hashA}))
		assert.Equal(t, ipc.StopTorrenting{InfoHash: hashA, Key: 1}, r.nextCmd())
		r.read(func(st *store.State) {
			assert.Empty(t, st.Saved.Torrents)
		})
		ok, err := afero.Exists(r.s.fs, "/dl/a/a.mp4")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("delete data", func(t *testing.T) {
		r := newRig(t, seed)
		r.addResolved()
		require.NoError(t, r.dispatch(DeleteTorrent{InfoHash: hashA, DeleteData: true}))
		assert.Equal(t, ipc.StopTorrenting{InfoHash: hashA, Key: 1}, r.nextCmd())
		require.Eventually(t, func() bool {
			ok, _ := afero.Exists(r.s.fs, "/dl/a")
			return !ok
		}, 3*time.Second, 10*time.Millisecond)
		ok, _ := afero.Exists(r.s.fs, "/dl")
		assert.True(t, ok)
	})

	t.Run("paused torrent", func(t *testing.T) {
		r := newRig(t, nil)
		r.addResolved()
		require.NoError(t, r.dispatch(ToggleTorrent{InfoHash: hashA}))
		r.nextCmd()
		require.NoError(t, r.dispatch(DeleteTorrent{InfoHash: hashA}))
		r.read(func(st *store.State) {
			assert.Empty(t, st.Saved.Torrents)
		})
	})

	t.Run("unknown", func(t *testing.T) {
		r := newRig(t, nil)
		assert.ErrorIs(t, r.dispatch(DeleteTorrent{InfoHash: hashB}), ErrNotFound)
	})
}

func TestPauseAndResumeAll(t *testing.T) {
	r := newRig(t, nil)
	r.addResolved()
	require.NoError(t, r.dispatch(AddTorrent{TorrentID: magnetB}))
	r.nextCmd()
	r.emit(ipc.InfoHashEvent{Key: 2, InfoHash: hashB, MagnetURI: magnetB})
	r.sync()

	require.NoError(t, r.dispatch(PauseAll{}))
	var stopped []int
	for i := 0; i < 2; i++ {
		stop, ok := r.nextCmd().(ipc.StopTorrenting)
		require.True(t, ok)
		stopped = append(stopped, stop.Key)
	}
	assert.ElementsMatch(t, []int{1, 2}, stopped)
	r.read(func(st *store.State) {
		for _, ts := range st.Saved.Torrents {
			assert.Equal(t, store.StatusPaused, ts.Status)
		}
	})

	// already paused torrents are left alone
	require.NoError(t, r.dispatch(PauseAll{}))

	require.NoError(t, r.dispatch(ResumeAll{}))
	var started []string
	for i := 0; i < 2; i++ {
		start, ok := r.nextCmd().(ipc.StartTorrenting)
		require.True(t, ok)
		started = append(started, start.TorrentID)
	}
	assert.ElementsMatch(t, []string{magnetA, magnetB}, started)
	r.read(func(st *store.State) {
		for _, ts := range st.Saved.Torrents {
			assert.Equal(t, store.StatusNew, ts.Status)
		}
	})
}
