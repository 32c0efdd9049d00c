package ipc

import "fmt"

// Event names emitted by the worker.
const (
	EvInfoHash      = "infoHash"
	EvMetadata      = "metadata"
	EvReady         = "ready"
	EvDone          = "done"
	EvWarning       = "warning"
	EvError         = "error"
	EvProgress      = "progress"
	EvFileModtimes  = "file-modtimes"
	EvFileSaved     = "file-saved"
	EvPoster        = "poster"
	EvAudioMetadata = "audio-metadata"
	EvServerRunning = "server-running"
	EvUncaughtError = "uncaught-error"
)

// ReadyTopic is the info-hash specific variant of the ready event that
// playback waits on.
func ReadyTopic(infoHash string) string { return EvReady + "-" + infoHash }

// ServerTopic is the info-hash specific variant of server-running.
func ServerTopic(infoHash string) string { return "server-" + infoHash }

// Event is a message sent from the worker to the UI process.
type Event interface {
	EventName() string
}

type InfoHashEvent struct {
	Key       int    `json:"key"`
	InfoHash  string `json:"infoHash"`
	MagnetURI string `json:"magnetURI"`
}

type MetadataEvent struct {
	Key  int         `json:"key"`
	Info TorrentInfo `json:"info"`
}

type ReadyEvent struct {
	Key  int         `json:"key"`
	Info TorrentInfo `json:"info"`
}

type DoneEvent struct {
	Key  int         `json:"key"`
	Info TorrentInfo `json:"info"`
}

type WarningEvent struct {
	Key     int    `json:"key"`
	Message string `json:"message"`
}

type ErrorEvent struct {
	Key     int    `json:"key"`
	Message string `json:"message"`
}

type ProgressEvent struct {
	Snapshot Snapshot `json:"snapshot"`
}

// FileModtimesEvent carries unix millisecond modification times keyed by the
// file path inside the torrent.
type FileModtimesEvent struct {
	Key      int              `json:"key"`
	Modtimes map[string]int64 `json:"modtimes"`
}

type FileSavedEvent struct {
	Key      int    `json:"key"`
	FileName string `json:"fileName"`
}

type PosterEvent struct {
	Key      int    `json:"key"`
	FileName string `json:"fileName"`
}

type AudioMetadataEvent struct {
	InfoHash string        `json:"infoHash"`
	Index    int           `json:"index"`
	Metadata AudioMetadata `json:"metadata"`
}

type ServerRunningEvent struct {
	Info ServerInfo `json:"info"`
}

// UncaughtErrorEvent reports a recovered panic or a transport failure.
type UncaughtErrorEvent struct {
	Process string `json:"process"`
	Message string `json:"message"`
}

func (InfoHashEvent) EventName() string      { return EvInfoHash }
func (MetadataEvent) EventName() string      { return EvMetadata }
func (ReadyEvent) EventName() string         { return EvReady }
func (DoneEvent) EventName() string          { return EvDone }
func (WarningEvent) EventName() string       { return EvWarning }
func (ErrorEvent) EventName() string         { return EvError }
func (ProgressEvent) EventName() string      { return EvProgress }
func (FileModtimesEvent) EventName() string  { return EvFileModtimes }
func (FileSavedEvent) EventName() string     { return EvFileSaved }
func (PosterEvent) EventName() string        { return EvPoster }
func (AudioMetadataEvent) EventName() string { return EvAudioMetadata }
func (ServerRunningEvent) EventName() string { return EvServerRunning }
func (UncaughtErrorEvent) EventName() string { return EvUncaughtError }

func EncodeEvent(e Event) (Message, error) {
	return encode(e.EventName(), e)
}

func DecodeEvent(m Message) (Event, error) {
	if err := checkVersion(m); err != nil {
		return nil, err
	}
	switch m.Name {
	case EvInfoHash:
		return decodeAs[InfoHashEvent](m)
	case EvMetadata:
		return decodeAs[MetadataEvent](m)
	case EvReady:
		return decodeAs[ReadyEvent](m)
	case EvDone:
		return decodeAs[DoneEvent](m)
	case EvWarning:
		return decodeAs[WarningEvent](m)
	case EvError:
		return decodeAs[ErrorEvent](m)
	case EvProgress:
		return decodeAs[ProgressEvent](m)
	case EvFileModtimes:
		return decodeAs[FileModtimesEvent](m)
	case EvFileSaved:
		return decodeAs[FileSavedEvent](m)
	case EvPoster:
		return decodeAs[PosterEvent](m)
	case EvAudioMetadata:
		return decodeAs[AudioMetadataEvent](m)
	case EvServerRunning:
		return decodeAs[ServerRunningEvent](m)
	case EvUncaughtError:
		return decodeAs[UncaughtErrorEvent](m)
	}
	return nil, fmt.Errorf("%w: event %q", ErrUnknownMessage, m.Name)
}
