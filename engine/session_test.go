package engine

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/boypt/torrentdesk/ipc"
)

func TestLookup(t *testing.T) {
	e := New(testConfig(t), newFakeClient())
	pending := &Session{Key: 1}
	resolved := &Session{Key: 2, InfoHash: ihA}
	e.sessions[1] = pending
	e.sessions[2] = resolved

	tests := []struct {
		name     string
		infoHash string
		key      int
		want     *Session
	}{
		{"key only", "", 1, pending},
		{"hash unknown to worker yet", ihB, 1, pending},
		{"hash only", ihA, 0, resolved},
		{"hash upper case", "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", 0, resolved},
		{"key and matching hash", ihA, 2, resolved},
		{"stale key, hash wins", ihA, 7, resolved},
		{"nothing", "", 0, nil},
		{"unknown", ihB, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.lookup(tt.infoHash, tt.key); got != tt.want {
				t.Errorf("lookup(%q, %d) = %+v, want %+v", tt.infoHash, tt.key, got, tt.want)
			}
		})
	}
}

func TestStopByHashBeforeAddReturns(t *testing.T) {
	fh := twoFiles(ihA)
	close(fh.gotInfo)
	fc := newFakeClient(fh)
	fc.block = make(chan struct{})
	h := newHarness(t, testConfig(t), fc)

	// a resumed torrent: the UI knows the hash, the worker does not yet
	h.do(ipc.StartTorrenting{Key: 1, TorrentID: ihA})
	h.do(ipc.StopTorrenting{InfoHash: ihA, Key: 1})
	close(fc.block)

	deadline := time.Now().Add(3 * time.Second)
	for !fh.isDropped() {
		if time.Now().After(deadline) {
			t.Fatal("handle not dropped")
		}
		time.Sleep(5 * time.Millisecond)
	}
	h.expectQuiet()
	h.e.call(func() {
		if n := len(h.e.sessions); n != 0 {
			t.Errorf("%d sessions live after stop", n)
		}
	})
}

func TestStartServerBeforeAddReturns(t *testing.T) {
	fh := twoFiles(ihA)
	close(fh.gotInfo)
	fc := newFakeClient(fh)
	fc.block = make(chan struct{})
	h := newHarness(t, testConfig(t), fc)

	h.do(ipc.StartTorrenting{Key: 1, TorrentID: ihA})
	h.do(ipc.StartServer{InfoHash: ihA, Key: 1})
	h.e.call(func() {
		if h.e.pending == nil {
			t.Error("start-server not queued on the session")
		}
	})
	close(fc.block)

	evs := h.until(ipc.EvServerRunning)
	info := evs[len(evs)-1].(ipc.ServerRunningEvent).Info
	if info.TorrentKey != 1 || info.InfoHash != ihA {
		t.Fatalf("unexpected server info %+v", info)
	}
	h.do(ipc.StopServer{})
}

func TestAudioMetadataBeforeAddReturns(t *testing.T) {
	fh := newFakeHandle(ihA, fakeFile{path: "fake/a.mp3", data: []byte("not really audio")})
	close(fh.gotInfo)
	fc := newFakeClient(fh)
	fc.block = make(chan struct{})
	h := newHarness(t, testConfig(t), fc)

	h.do(ipc.StartTorrenting{Key: 1, TorrentID: ihA})
	h.do(ipc.GetAudioMetadata{InfoHash: ihA, Key: 1, Index: 0})
	h.e.call(func() {
		if n := h.e.sessions[1].queue.lst.Len(); n != 1 {
			t.Errorf("queued operations = %d, want 1", n)
		}
	})
	close(fc.block)
	h.until(ipc.EvReady)
}

func TestCreateTorrent(t *testing.T) {
	tests := []struct {
		name     string
		announce [][]string
		want     [][]string
	}{
		{"global trackers fill the announce list", nil, [][]string{{"udp://t1", "udp://t2"}}},
		{"explicit announce list kept", [][]string{{"udp://mine"}}, [][]string{{"udp://mine"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fh := twoFiles(ihA)
			close(fh.gotInfo)
			fc := newFakeClient()
			fc.handles["/data/movie"] = fh
			h := newHarness(t, testConfig(t), fc)

			h.do(ipc.SetGlobalTrackers{Trackers: []string{"udp://t1", "udp://t2"}})
			h.do(ipc.CreateTorrent{Key: 4, Options: ipc.CreateOptions{
				Path:         "/data/movie",
				Comment:      "home video",
				AnnounceList: tt.announce,
			}})
			got := names(h.until(ipc.EvReady))
			want := []string{ipc.EvInfoHash, ipc.EvMetadata, ipc.EvFileSaved, ipc.EvReady}
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("events = %v, want %v", got, want)
			}

			fc.mu.Lock()
			defer fc.mu.Unlock()
			if len(fc.seeded) != 1 {
				t.Fatalf("Seed called %d times", len(fc.seeded))
			}
			opts := fc.seeded[0]
			if opts.Comment != "home video" || !reflect.DeepEqual(opts.AnnounceList, tt.want) {
				t.Errorf("seeded with %+v, want announce %v", opts, tt.want)
			}
			h.e.call(func() {
				if s := h.e.sessions[4]; s == nil || s.Path != "/data" {
					t.Errorf("session = %+v", s)
				}
			})
		})
	}
}

func TestBootTrackerList(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "udp://t1:80\n\n# comment\nudp://t2:80\n")
	}))
	defer srv.Close()
	old := trackerClient
	trackerClient = srv.Client()
	t.Cleanup(func() { trackerClient = old })

	c := testConfig(t)
	c.TrackerListURL = srv.URL
	h := newHarness(t, c, newFakeClient())

	want := []string{"udp://t1:80", "udp://t2:80"}
	deadline := time.Now().Add(3 * time.Second)
	for {
		var got []string
		h.e.call(func() { got = append([]string(nil), h.e.trackers...) })
		if reflect.DeepEqual(got, want) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("trackers = %v, want %v", got, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBootTrackerListLosesToUI(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		fmt.Fprint(w, "udp://boot:80\n")
	}))
	defer srv.Close()
	old := trackerClient
	trackerClient = srv.Client()
	t.Cleanup(func() { trackerClient = old })

	c := testConfig(t)
	c.TrackerListURL = srv.URL
	h := newHarness(t, c, newFakeClient())
	h.do(ipc.SetGlobalTrackers{Trackers: []string{"udp://ui:80"}})
	close(release)

	// the fetch result is posted after the response; give it time to land
	time.Sleep(100 * time.Millisecond)
	h.e.call(func() {
		if !reflect.DeepEqual(h.e.trackers, []string{"udp://ui:80"}) {
			t.Errorf("trackers = %v", h.e.trackers)
		}
	})
}
