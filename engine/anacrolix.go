package engine

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	alog "github.com/anacrolix/log"
	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/anacrolix/torrent/storage"
	"golang.org/x/time/rate"

	"github.com/boypt/torrentdesk/ipc"
)

const (
	defaultPieceLength = 256 << 10
	createdBy          = "torrentdesk"
)

type anacrolixClient struct {
	client   *torrent.Client
	download *rate.Limiter
	upload   *rate.Limiter
	httpc    *http.Client

	// storage opened per torrent, shared by duplicate adds
	mu       sync.Mutex
	storages map[metainfo.Hash]storage.ClientImplCloser
}

// NewAnacrolixClient starts an anacrolix/torrent client from c.
func NewAnacrolixClient(c *Config) (Client, error) {
	if c.IncomingPort <= 0 {
		return nil, fmt.Errorf("invalid incoming port (%d)", c.IncomingPort)
	}
	if err := mkdir(c.DownloadDirectory); err != nil {
		return nil, err
	}
	tc := torrent.NewDefaultClientConfig()
	tc.ListenPort = c.IncomingPort
	tc.DataDir = c.DownloadDirectory
	tc.Debug = c.EngineDebug
	tc.Logger = alog.Default.WithNames("torrent")
	if c.MuteEngineLog {
		tc.Logger = tc.Logger.WithFilterLevel(alog.Critical)
	}
	tc.NoUpload = !c.EnableUpload
	tc.Seed = c.EnableSeeding
	tc.HeaderObfuscationPolicy = torrent.HeaderObfuscationPolicy{
		Preferred:        c.ObfsPreferred,
		RequirePreferred: c.ObfsRequirePreferred,
	}
	tc.DisableTrackers = c.DisableTrackers
	tc.DisableIPv6 = c.DisableIPv6

	a := &anacrolixClient{
		download: c.DownloadLimiter(),
		upload:   c.UploadLimiter(),
		httpc:    &http.Client{Timeout: 30 * time.Second},
	}
	tc.DownloadRateLimiter = a.download
	tc.UploadRateLimiter = a.upload

	client, err := torrent.NewClient(tc)
	if err != nil {
		return nil, err
	}
	a.client = client
	return a, nil
}

func (a *anacrolixClient) spec(torrentID string) (*torrent.TorrentSpec, error) {
	switch {
	case strings.HasPrefix(torrentID, "magnet:"):
		return torrent.TorrentSpecFromMagnetUri(torrentID)
	case isInfoHash(torrentID):
		return torrent.TorrentSpecFromMagnetUri("magnet:?xt=urn:btih:" + torrentID)
	case strings.HasPrefix(torrentID, "http://"), strings.HasPrefix(torrentID, "https://"):
		resp, err := a.httpc.Get(torrentID)
		if err != nil {
			return nil, fmt.Errorf("fetch torrent: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch torrent: %s", resp.Status)
		}
		mi, err := metainfo.Load(io.LimitReader(resp.Body, 32<<20))
		if err != nil {
			return nil, err
		}
		return torrent.TorrentSpecFromMetaInfoErr(mi)
	default:
		mi, err := metainfo.LoadFromFile(torrentID)
		if err != nil {
			return nil, err
		}
		return torrent.TorrentSpecFromMetaInfoErr(mi)
	}
}

func (a *anacrolixClient) add(spec *torrent.TorrentSpec, dir string) (Handle, error) {
	var st storage.ClientImplCloser
	if dir != "" {
		st = storage.NewFile(dir)
		spec.Storage = st
	}
	t, isNew, err := a.client.AddTorrentSpec(spec)
	if st != nil && (err != nil || !isNew) {
		// an existing torrent keeps the storage it was opened with
		st.Close()
		st = nil
	}
	if err != nil {
		return nil, err
	}
	if st != nil {
		a.mu.Lock()
		if a.storages == nil {
			a.storages = map[metainfo.Hash]storage.ClientImplCloser{}
		}
		a.storages[t.InfoHash()] = st
		a.mu.Unlock()
	}
	return &anacrolixHandle{t: t, owner: a}, nil
}

func (a *anacrolixClient) AddTorrent(torrentID, dir string) (Handle, error) {
	spec, err := a.spec(torrentID)
	if err != nil {
		return nil, err
	}
	return a.add(spec, dir)
}

func (a *anacrolixClient) Seed(opts ipc.CreateOptions) (Handle, error) {
	if opts.Path == "" {
		return nil, errors.New("create torrent: empty path")
	}
	root, err := filepath.Abs(opts.Path)
	if err != nil {
		return nil, err
	}
	info := metainfo.Info{PieceLength: opts.PieceLength}
	if info.PieceLength <= 0 {
		info.PieceLength = defaultPieceLength
	}
	if opts.Private {
		private := true
		info.Private = &private
	}
	if err := info.BuildFromFilePath(root); err != nil {
		return nil, fmt.Errorf("create torrent: %w", err)
	}
	mi := metainfo.MetaInfo{
		Comment:      opts.Comment,
		CreatedBy:    createdBy,
		CreationDate: time.Now().Unix(),
		AnnounceList: opts.AnnounceList,
	}
	if len(opts.AnnounceList) > 0 && len(opts.AnnounceList[0]) > 0 {
		mi.Announce = opts.AnnounceList[0][0]
	}
	if mi.InfoBytes, err = bencode.Marshal(info); err != nil {
		return nil, err
	}
	spec, err := torrent.TorrentSpecFromMetaInfoErr(&mi)
	if err != nil {
		return nil, err
	}
	return a.add(spec, filepath.Dir(root))
}

func (a *anacrolixClient) SetDownloadLimit(bytesPerSec int64) {
	applyLimit(a.download, bytesPerSec)
}

func (a *anacrolixClient) SetUploadLimit(bytesPerSec int64) {
	applyLimit(a.upload, bytesPerSec)
}

func (a *anacrolixClient) Close() error {
	return errors.Join(a.client.Close()...)
}

type anacrolixHandle struct {
	t     *torrent.Torrent
	owner *anacrolixClient
}

func (h *anacrolixHandle) InfoHash() string         { return h.t.InfoHash().HexString() }
func (h *anacrolixHandle) GotInfo() <-chan struct{} { return h.t.GotInfo() }
func (h *anacrolixHandle) Name() string             { return h.t.Name() }
func (h *anacrolixHandle) BytesCompleted() int64    { return h.t.BytesCompleted() }
func (h *anacrolixHandle) Length() int64            { return h.t.Length() }

func (h *anacrolixHandle) MagnetURI() string {
	m := metainfo.Magnet{
		InfoHash:    h.t.InfoHash(),
		DisplayName: h.t.Name(),
	}
	mi := h.t.Metainfo()
	for _, tier := range mi.UpvertedAnnounceList() {
		m.Trackers = append(m.Trackers, tier...)
	}
	return m.String()
}

func (h *anacrolixHandle) Files() []FileEntry {
	files := h.t.Files()
	out := make([]FileEntry, 0, len(files))
	for _, f := range files {
		out = append(out, FileEntry{Path: f.Path(), Offset: f.Offset(), Length: f.Length()})
	}
	return out
}

func (h *anacrolixHandle) PieceLength() int64 {
	if info := h.t.Info(); info != nil {
		return info.PieceLength
	}
	return 0
}

func (h *anacrolixHandle) PieceComplete(i int) bool {
	return h.t.PieceState(i).Complete
}

func (h *anacrolixHandle) Stats() Stats {
	st := h.t.Stats()
	return Stats{
		BytesRead:    st.BytesReadUsefulData.Int64(),
		BytesWritten: st.BytesWrittenData.Int64(),
		Peers:        st.ActivePeers,
	}
}

func (h *anacrolixHandle) SetFileSelected(i int, selected bool) {
	files := h.t.Files()
	if i < 0 || i >= len(files) {
		return
	}
	if selected {
		files[i].SetPriority(torrent.PiecePriorityNormal)
	} else {
		files[i].SetPriority(torrent.PiecePriorityNone)
	}
}

func (h *anacrolixHandle) NewFileReader(i int) (io.ReadSeekCloser, error) {
	files := h.t.Files()
	if i < 0 || i >= len(files) {
		return nil, fmt.Errorf("file index %d out of range", i)
	}
	r := files[i].NewReader()
	r.SetResponsive()
	return r, nil
}

func (h *anacrolixHandle) WriteMetainfo(w io.Writer) error {
	mi := h.t.Metainfo()
	return mi.Write(w)
}

func (h *anacrolixHandle) AddTrackers(trackers []string) {
	if len(trackers) == 0 {
		return
	}
	h.t.AddTrackers([][]string{trackers})
}

func (h *anacrolixHandle) Drop() {
	ih := h.t.InfoHash()
	h.t.Drop()
	h.owner.mu.Lock()
	st := h.owner.storages[ih]
	delete(h.owner.storages, ih)
	h.owner.mu.Unlock()
	if st != nil {
		st.Close()
	}
}
