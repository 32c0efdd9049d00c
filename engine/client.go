package engine

import (
	"io"

	"github.com/boypt/torrentdesk/ipc"
)

// Client is the torrent protocol engine the worker drives. Every method may
// block on network or disk I/O and is never called from the event loop.
type Client interface {
	// AddTorrent resolves a magnet URI, info-hash, http(s) URL or .torrent
	// path and starts fetching it into dir.
	AddTorrent(torrentID, dir string) (Handle, error)
	// Seed builds metainfo for a local file or directory and seeds it.
	Seed(opts ipc.CreateOptions) (Handle, error)
	SetDownloadLimit(bytesPerSec int64)
	SetUploadLimit(bytesPerSec int64)
	Close() error
}

// Handle is one torrent inside the Client. Only the session registry holds
// handles.
type Handle interface {
	InfoHash() string
	MagnetURI() string
	GotInfo() <-chan struct{}
	Name() string
	Files() []FileEntry
	PieceLength() int64
	PieceComplete(i int) bool
	BytesCompleted() int64
	Length() int64
	Stats() Stats
	SetFileSelected(i int, selected bool)
	NewFileReader(i int) (io.ReadSeekCloser, error)
	WriteMetainfo(w io.Writer) error
	AddTrackers(trackers []string)
	Drop()
}

type FileEntry struct {
	Path   string
	Offset int64
	Length int64
}

type Stats struct {
	BytesRead    int64
	BytesWritten int64
	Peers        int
}
