// Package playback coordinates local, external-player and cast playback.
// Exactly one backend is active at a time and every transition is made on
// the caller's event loop.
package playback

import (
	"fmt"
	"path"
	"strings"
)

type Location string

const (
	Local             Location = "local"
	External          Location = "external"
	Chromecast        Location = "chromecast"
	ChromecastPending Location = "chromecast-pending"
	Airplay           Location = "airplay"
	AirplayPending    Location = "airplay-pending"
	DLNA              Location = "dlna"
	DLNAPending       Location = "dlna-pending"
	Error             Location = "error"
)

// DeviceType names a family of cast devices.
type DeviceType string

const (
	TypeChromecast DeviceType = "chromecast"
	TypeAirplay    DeviceType = "airplay"
	TypeDLNA       DeviceType = "dlna"
)

func (t DeviceType) Connected() Location { return Location(t) }
func (t DeviceType) Pending() Location   { return Location(string(t) + "-pending") }

// IsCasting reports whether l is a connected or connecting device.
func (l Location) IsCasting() bool {
	switch l {
	case Local, External, Error, "":
		return false
	}
	return true
}

func (l Location) IsPending() bool {
	return strings.HasSuffix(string(l), "-pending")
}

// CastingError is returned when a cast operation is not allowed in the
// current location.
type CastingError struct {
	Op       string
	Location Location
}

func (e *CastingError) Error() string {
	return fmt.Sprintf("cannot %s while playing on %s", e.Op, e.Location)
}

type CastMenu struct {
	Type    DeviceType `json:"type"`
	Devices []string   `json:"devices"`
}

// Playing is the playback part of the UI state tree.
type Playing struct {
	InfoHash    string    `json:"infoHash,omitempty"`
	FileIndex   int       `json:"fileIndex"`
	URL         string    `json:"url,omitempty"`
	Type        MediaType `json:"type,omitempty"`
	Location    Location  `json:"location"`
	IsPaused    bool      `json:"isPaused"`
	CurrentTime float64   `json:"currentTime"`
	// LastTimeUpdate is the last position reported by whichever backend is
	// active. Leaving a device restores CurrentTime to it.
	LastTimeUpdate float64   `json:"lastTimeUpdate"`
	CastMenu       *CastMenu `json:"castMenu,omitempty"`
}

// Reset returns p to the idle state.
func (p *Playing) Reset() {
	*p = Playing{Location: Local, IsPaused: true}
}

type MediaType string

const (
	Video MediaType = "video"
	Audio MediaType = "audio"
	Other MediaType = "other"
)

var (
	videoExts = map[string]bool{".mp4": true, ".m4v": true, ".mkv": true, ".webm": true, ".avi": true, ".mov": true, ".mpg": true, ".mpeg": true, ".ogv": true, ".wmv": true}
	audioExts = map[string]bool{".mp3": true, ".m4a": true, ".m4b": true, ".aac": true, ".flac": true, ".ogg": true, ".oga": true, ".opus": true, ".wav": true}
)

func TypeOf(name string) MediaType {
	ext := strings.ToLower(path.Ext(name))
	switch {
	case videoExts[ext]:
		return Video
	case audioExts[ext]:
		return Audio
	}
	return Other
}

type File struct {
	Name   string
	Length int64
}

// PickFileToPlay returns the index of the default file to play: the largest
// video, else the largest audio file, else -1.
func PickFileToPlay(files []File) int {
	best := -1
	var bestType MediaType
	for i, f := range files {
		t := TypeOf(f.Name)
		if t == Other {
			continue
		}
		switch {
		case best < 0,
			t == Video && bestType == Audio,
			t == bestType && f.Length > files[best].Length:
			best, bestType = i, t
		}
	}
	return best
}
