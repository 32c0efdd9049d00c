package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/boypt/torrentdesk/ipc"
)

type fakeFile struct {
	path string
	data []byte
}

type fakeHandle struct {
	mu        sync.Mutex
	infohash  string
	name      string
	files     []fakeFile
	pieceLen  int64
	complete  []bool
	completed int64
	stats     Stats
	gotInfo   chan struct{}
	selected  []bool
	trackers  []string
	dropped   bool
}

func newFakeHandle(infohash string, files ...fakeFile) *fakeHandle {
	var length int64
	for _, f := range files {
		length += int64(len(f.data))
	}
	pl := int64(4)
	n := int((length + pl - 1) / pl)
	return &fakeHandle{
		infohash: infohash,
		name:     "fake",
		files:    files,
		pieceLen: pl,
		complete: make([]bool, n),
		gotInfo:  make(chan struct{}),
	}
}

func (h *fakeHandle) InfoHash() string         { return h.infohash }
func (h *fakeHandle) MagnetURI() string        { return "magnet:?xt=urn:btih:" + h.infohash }
func (h *fakeHandle) GotInfo() <-chan struct{} { return h.gotInfo }
func (h *fakeHandle) Name() string             { return h.name }
func (h *fakeHandle) PieceLength() int64       { return h.pieceLen }

func (h *fakeHandle) Files() []FileEntry {
	var off int64
	out := make([]FileEntry, 0, len(h.files))
	for _, f := range h.files {
		out = append(out, FileEntry{Path: f.path, Offset: off, Length: int64(len(f.data))})
		off += int64(len(f.data))
	}
	return out
}

func (h *fakeHandle) PieceComplete(i int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.complete[i]
}

func (h *fakeHandle) BytesCompleted() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.completed
}

func (h *fakeHandle) Length() int64 {
	var n int64
	for _, f := range h.files {
		n += int64(len(f.data))
	}
	return n
}

func (h *fakeHandle) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

func (h *fakeHandle) SetFileSelected(i int, selected bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.selected == nil {
		h.selected = make([]bool, len(h.files))
	}
	h.selected[i] = selected
}

func (h *fakeHandle) getSelected() []bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]bool(nil), h.selected...)
}

type nopCloser struct{ *bytes.Reader }

func (nopCloser) Close() error { return nil }

func (h *fakeHandle) NewFileReader(i int) (io.ReadSeekCloser, error) {
	if i < 0 || i >= len(h.files) {
		return nil, errors.New("out of range")
	}
	return nopCloser{bytes.NewReader(h.files[i].data)}, nil
}

func (h *fakeHandle) WriteMetainfo(w io.Writer) error {
	_, err := io.WriteString(w, "d4:infod4:name4:fakeee")
	return err
}

func (h *fakeHandle) AddTrackers(trackers []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.trackers = append(h.trackers, trackers...)
}

func (h *fakeHandle) Drop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropped = true
}

func (h *fakeHandle) isDropped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

func (h *fakeHandle) setProgress(completed int64, pieces ...int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.completed = completed
	for _, p := range pieces {
		h.complete[p] = true
	}
}

type fakeClient struct {
	mu      sync.Mutex
	handles map[string]*fakeHandle
	adds    int
	block   chan struct{}
	err     error
	seeded  []ipc.CreateOptions
	down    int64
	up      int64
}

func newFakeClient(handles ...*fakeHandle) *fakeClient {
	fc := &fakeClient{handles: map[string]*fakeHandle{}}
	for _, h := range handles {
		fc.handles[h.infohash] = h
	}
	return fc
}

func (c *fakeClient) AddTorrent(torrentID, dir string) (Handle, error) {
	c.mu.Lock()
	c.adds++
	block := c.block
	c.mu.Unlock()
	if block != nil {
		<-block
	}
	if c.err != nil {
		return nil, c.err
	}
	h, ok := c.handles[torrentID]
	if !ok {
		return nil, errors.New("unknown torrent " + torrentID)
	}
	return h, nil
}

func (c *fakeClient) Seed(opts ipc.CreateOptions) (Handle, error) {
	c.mu.Lock()
	c.seeded = append(c.seeded, opts)
	c.mu.Unlock()
	return c.AddTorrent(opts.Path, "")
}

func (c *fakeClient) SetDownloadLimit(bytesPerSec int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.down = bytesPerSec
}

func (c *fakeClient) SetUploadLimit(bytesPerSec int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.up = bytesPerSec
}

func (c *fakeClient) Close() error { return nil }

func (c *fakeClient) addCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.adds
}

// harness runs an Engine over an in-memory pipe. ui is the UI side.
type harness struct {
	t  *testing.T
	e  *Engine
	ui ipc.Conn
}

func testConfig(t *testing.T) Config {
	dir := t.TempDir()
	return Config{
		DownloadDirectory: dir + "/downloads",
		TorrentDirectory:  dir + "/torrents",
		PosterDirectory:   dir + "/posters",
		StreamHost:        "127.0.0.1",
		ProgressInterval:  time.Hour,
		MetadataWarnAfter: time.Hour,
	}
}

func newHarness(t *testing.T, c Config, client Client) *harness {
	t.Helper()
	e := New(c, client)
	ui, worker := ipc.Pipe(64)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, worker) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &harness{t: t, e: e, ui: ui}
}

// do dispatches cmd on the event loop and waits for the handler to return.
func (h *harness) do(cmd ipc.Command) {
	h.e.call(func() { h.e.dispatch(cmd) })
}

func (h *harness) next() ipc.Event {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	m, err := h.ui.Recv(ctx)
	if err != nil {
		h.t.Fatalf("waiting for event: %v", err)
	}
	ev, err := ipc.DecodeEvent(m)
	if err != nil {
		h.t.Fatalf("decode event: %v", err)
	}
	return ev
}

// until reads events until one named name arrives and returns the ones
// skipped plus the match.
func (h *harness) until(name string) []ipc.Event {
	h.t.Helper()
	var seen []ipc.Event
	for {
		ev := h.next()
		seen = append(seen, ev)
		if ev.EventName() == name {
			return seen
		}
	}
}

func (h *harness) expectQuiet() {
	h.t.Helper()
	// flush anything the loop still has queued
	h.e.call(func() {})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if m, err := h.ui.Recv(ctx); err == nil {
		h.t.Fatalf("unexpected event %s %s", m.Name, m.Args)
	}
}

func names(evs []ipc.Event) []string {
	out := make([]string, len(evs))
	for i, ev := range evs {
		out[i] = ev.EventName()
	}
	return out
}
