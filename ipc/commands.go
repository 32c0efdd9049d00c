package ipc

import "fmt"

// Command names understood by the worker.
const (
	CmdStartTorrenting   = "start-torrenting"
	CmdStopTorrenting    = "stop-torrenting"
	CmdCreateTorrent     = "create-torrent"
	CmdSelectFiles       = "select-files"
	CmdSetGlobalTrackers = "set-global-trackers"
	CmdSetDownloadLimit  = "set-download-limit"
	CmdSetUploadLimit    = "set-upload-limit"
	CmdStartServer       = "start-server"
	CmdStopServer        = "stop-server"
	CmdGetAudioMetadata  = "get-audio-metadata"
)

// Command is a message sent from the UI process to the worker.
type Command interface {
	CommandName() string
}

type StartTorrenting struct {
	Key          int              `json:"key"`
	TorrentID    string           `json:"torrentId"`
	Path         string           `json:"path"`
	FileModtimes map[string]int64 `json:"fileModtimes,omitempty"`
	Selections   []bool           `json:"selections,omitempty"`
}

// StopTorrenting targets a session by info-hash, falling back to Key when the
// hash has not been resolved yet.
type StopTorrenting struct {
	InfoHash string `json:"infoHash,omitempty"`
	Key      int    `json:"key,omitempty"`
}

type CreateOptions struct {
	Path         string     `json:"path"`
	Comment      string     `json:"comment,omitempty"`
	Private      bool       `json:"private,omitempty"`
	AnnounceList [][]string `json:"announceList,omitempty"`
	PieceLength  int64      `json:"pieceLength,omitempty"`
}

type CreateTorrent struct {
	Key     int           `json:"key"`
	Options CreateOptions `json:"options"`
}

// SelectFiles with nil Selections selects every file.
type SelectFiles struct {
	InfoHash   string `json:"infoHash,omitempty"`
	Key        int    `json:"key,omitempty"`
	Selections []bool `json:"selections,omitempty"`
}

type SetGlobalTrackers struct {
	Trackers []string `json:"trackers"`
}

// SetDownloadLimit sets the client wide limit, <= 0 means unlimited.
type SetDownloadLimit struct {
	BytesPerSec int64 `json:"bytesPerSec"`
}

type SetUploadLimit struct {
	BytesPerSec int64 `json:"bytesPerSec"`
}

// StartServer names the torrent by hash and key; the key reaches a session
// whose hash is not known to the worker yet.
type StartServer struct {
	InfoHash string `json:"infoHash"`
	Key      int    `json:"key,omitempty"`
}

type StopServer struct{}

type GetAudioMetadata struct {
	InfoHash string `json:"infoHash"`
	Key      int    `json:"key,omitempty"`
	Index    int    `json:"index"`
}

func (StartTorrenting) CommandName() string   { return CmdStartTorrenting }
func (StopTorrenting) CommandName() string    { return CmdStopTorrenting }
func (CreateTorrent) CommandName() string     { return CmdCreateTorrent }
func (SelectFiles) CommandName() string       { return CmdSelectFiles }
func (SetGlobalTrackers) CommandName() string { return CmdSetGlobalTrackers }
func (SetDownloadLimit) CommandName() string  { return CmdSetDownloadLimit }
func (SetUploadLimit) CommandName() string    { return CmdSetUploadLimit }
func (StartServer) CommandName() string       { return CmdStartServer }
func (StopServer) CommandName() string        { return CmdStopServer }
func (GetAudioMetadata) CommandName() string  { return CmdGetAudioMetadata }

func EncodeCommand(c Command) (Message, error) {
	return encode(c.CommandName(), c)
}

// DecodeCommand turns an envelope back into its concrete command type.
func DecodeCommand(m Message) (Command, error) {
	if err := checkVersion(m); err != nil {
		return nil, err
	}
	switch m.Name {
	case CmdStartTorrenting:
		return decodeAs[StartTorrenting](m)
	case CmdStopTorrenting:
		return decodeAs[StopTorrenting](m)
	case CmdCreateTorrent:
		return decodeAs[CreateTorrent](m)
	case CmdSelectFiles:
		return decodeAs[SelectFiles](m)
	case CmdSetGlobalTrackers:
		return decodeAs[SetGlobalTrackers](m)
	case CmdSetDownloadLimit:
		return decodeAs[SetDownloadLimit](m)
	case CmdSetUploadLimit:
		return decodeAs[SetUploadLimit](m)
	case CmdStartServer:
		return decodeAs[StartServer](m)
	case CmdStopServer:
		return StopServer{}, nil
	case CmdGetAudioMetadata:
		return decodeAs[GetAudioMetadata](m)
	}
	return nil, fmt.Errorf("%w: command %q", ErrUnknownMessage, m.Name)
}
