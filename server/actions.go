package server

import (
	"encoding/json"
	"fmt"

	"github.com/boypt/torrentdesk/playback"
	"github.com/boypt/torrentdesk/store"
)

// Action is a user intent dispatched from the browser.
type Action interface {
	ActionName() string
}

type AddTorrent struct {
	TorrentID string `json:"torrentId"`
	Path      string `json:"path,omitempty"`
}

type CreateTorrent struct {
	Path    string `json:"path"`
	Comment string `json:"comment,omitempty"`
	Private bool   `json:"private,omitempty"`
}

// ToggleTorrent pauses a running torrent or resumes a paused one.
type ToggleTorrent struct {
	InfoHash string `json:"infoHash"`
}

type PauseAll struct{}
type ResumeAll struct{}

type DeleteTorrent struct {
	InfoHash   string `json:"infoHash"`
	DeleteData bool   `json:"deleteData,omitempty"`
}

type SelectFiles struct {
	InfoHash   string `json:"infoHash"`
	Selections []bool `json:"selections"`
}

type ToggleFileSelected struct {
	InfoHash string `json:"infoHash"`
	Index    int    `json:"index"`
}

// PlayFile with a negative Index plays the default file.
type PlayFile struct {
	InfoHash string `json:"infoHash"`
	Index    int    `json:"index"`
}

type StopPlayback struct{}
type PlayPause struct{}

type Seek struct {
	Time float64 `json:"time"`
}

// TimeUpdate reports the browser player's position.
type TimeUpdate struct {
	Time float64 `json:"time"`
}

type ToggleCastMenu struct {
	DeviceType playback.DeviceType `json:"deviceType"`
}

type SelectCastDevice struct {
	Index int `json:"index"`
}

type StopCasting struct{}
type OpenExternalPlayer struct{}

type GetAudioMetadata struct {
	InfoHash string `json:"infoHash"`
	Index    int    `json:"index"`
}

type UpdatePrefs struct {
	Prefs store.Prefs `json:"prefs"`
}

type FetchTrackers struct {
	URL string `json:"url"`
}

type RefreshRSS struct{}
type DismissErrors struct{}
type ClearNotifications struct{}

// MediaMouseMoved only keeps the player controls alive, it changes nothing
// worth a redraw.
type MediaMouseMoved struct{}

func (AddTorrent) ActionName() string         { return "add-torrent" }
func (CreateTorrent) ActionName() string      { return "create-torrent" }
func (ToggleTorrent) ActionName() string      { return "toggle-torrent" }
func (PauseAll) ActionName() string           { return "pause-all" }
func (ResumeAll) ActionName() string          { return "resume-all" }
func (DeleteTorrent) ActionName() string      { return "delete-torrent" }
func (SelectFiles) ActionName() string        { return "select-files" }
func (ToggleFileSelected) ActionName() string { return "toggle-file-selected" }
func (PlayFile) ActionName() string           { return "play-file" }
func (StopPlayback) ActionName() string       { return "stop-playback" }
func (PlayPause) ActionName() string          { return "play-pause" }
func (Seek) ActionName() string               { return "seek" }
func (TimeUpdate) ActionName() string         { return "time-update" }
func (ToggleCastMenu) ActionName() string     { return "toggle-cast-menu" }
func (SelectCastDevice) ActionName() string   { return "select-cast-device" }
func (StopCasting) ActionName() string        { return "stop-casting" }
func (OpenExternalPlayer) ActionName() string { return "open-external-player" }
func (GetAudioMetadata) ActionName() string   { return "get-audio-metadata" }
func (UpdatePrefs) ActionName() string        { return "update-prefs" }
func (FetchTrackers) ActionName() string      { return "fetch-trackers" }
func (RefreshRSS) ActionName() string         { return "refresh-rss" }
func (DismissErrors) ActionName() string      { return "dismiss-errors" }
func (ClearNotifications) ActionName() string { return "clear-notifications" }
func (MediaMouseMoved) ActionName() string    { return "media-mouse-moved" }

func decodeArgs[T Action](args json.RawMessage) (Action, error) {
	var a T
	if len(args) == 0 || string(args) == "null" {
		return a, nil
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("bad args for %s: %w", a.ActionName(), err)
	}
	return a, nil
}

// decodeAction maps a dispatched name and its JSON args to an Action.
func decodeAction(name string, args json.RawMessage) (Action, error) {
	switch name {
	case "add-torrent":
		return decodeArgs[AddTorrent](args)
	case "create-torrent":
		return decodeArgs[CreateTorrent](args)
	case "toggle-torrent":
		return decodeArgs[ToggleTorrent](args)
	case "pause-all":
		return PauseAll{}, nil
	case "resume-all":
		return ResumeAll{}, nil
	case "delete-torrent":
		return decodeArgs[DeleteTorrent](args)
	case "select-files":
		return decodeArgs[SelectFiles](args)
	case "toggle-file-selected":
		return decodeArgs[ToggleFileSelected](args)
	case "play-file":
		return decodeArgs[PlayFile](args)
	case "stop-playback":
		return StopPlayback{}, nil
	case "play-pause":
		return PlayPause{}, nil
	case "seek":
		return decodeArgs[Seek](args)
	case "time-update":
		return decodeArgs[TimeUpdate](args)
	case "toggle-cast-menu":
		return decodeArgs[ToggleCastMenu](args)
	case "select-cast-device":
		return decodeArgs[SelectCastDevice](args)
	case "stop-casting":
		return StopCasting{}, nil
	case "open-external-player":
		return OpenExternalPlayer{}, nil
	case "get-audio-metadata":
		return decodeArgs[GetAudioMetadata](args)
	case "update-prefs":
		return decodeArgs[UpdatePrefs](args)
	case "fetch-trackers":
		return decodeArgs[FetchTrackers](args)
	case "refresh-rss":
		return RefreshRSS{}, nil
	case "dismiss-errors":
		return DismissErrors{}, nil
	case "clear-notifications":
		return ClearNotifications{}, nil
	case "media-mouse-moved":
		return MediaMouseMoved{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAction, name)
}
