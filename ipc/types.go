package ipc

// FileInfo describes one file of a torrent once metadata is known.
type FileInfo struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Length int64  `json:"length"`
}

// TorrentInfo is the worker's description of a session, attached to
// metadata, ready and done events.
type TorrentInfo struct {
	InfoHash      string     `json:"infoHash"`
	MagnetURI     string     `json:"magnetURI,omitempty"`
	Name          string     `json:"name"`
	Length        int64      `json:"length"`
	PieceLength   int64      `json:"pieceLength,omitempty"`
	BytesReceived int64      `json:"bytesReceived"`
	Files         []FileInfo `json:"files"`
}

// ServerInfo locates the single running streaming server.
type ServerInfo struct {
	TorrentKey     int    `json:"torrentKey"`
	InfoHash       string `json:"infoHash"`
	Port           int    `json:"port"`
	LocalURL       string `json:"localURL"`
	NetworkURL     string `json:"networkURL"`
	NetworkAddress string `json:"networkAddress"`
}

type AudioMetadata struct {
	Title       string `json:"title,omitempty"`
	Artist      string `json:"artist,omitempty"`
	Album       string `json:"album,omitempty"`
	AlbumArtist string `json:"albumArtist,omitempty"`
	Genre       string `json:"genre,omitempty"`
	Year        int    `json:"year,omitempty"`
	Track       int    `json:"track,omitempty"`
	TrackTotal  int    `json:"trackTotal,omitempty"`
	Format      string `json:"format,omitempty"`
	HasPicture  bool   `json:"hasPicture,omitempty"`
}

// Snapshot is one progress sample over every live session, ordered by key.
type Snapshot struct {
	Progress          float64           `json:"progress"`
	HasActiveTorrents bool              `json:"hasActiveTorrents"`
	Torrents          []TorrentProgress `json:"torrents"`
}

type TorrentProgress struct {
	TorrentKey    int            `json:"torrentKey"`
	InfoHash      string         `json:"infoHash"`
	Ready         bool           `json:"ready"`
	Progress      float64        `json:"progress"`
	Downloaded    int64          `json:"downloaded"`
	Length        int64          `json:"length"`
	DownloadSpeed int64          `json:"downloadSpeed"`
	UploadSpeed   int64          `json:"uploadSpeed"`
	NumPeers      int            `json:"numPeers"`
	Files         []FileProgress `json:"files,omitempty"`
}

type FileProgress struct {
	StartPiece       int `json:"startPiece"`
	EndPiece         int `json:"endPiece"`
	NumPieces        int `json:"numPieces"`
	NumPiecesPresent int `json:"numPiecesPresent"`
}
