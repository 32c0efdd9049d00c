package store

import "time"

const (
	// ErrorWindow is how long an error stays on screen.
	ErrorWindow = 5 * time.Second
	MaxErrors   = 10
)

type UIError struct {
	Time       time.Time `json:"time"`
	Message    string    `json:"message"`
	TorrentKey int       `json:"torrentKey,omitempty"`
}

// AddError appends msg and prunes the list. key is 0 for errors not tied
// to a torrent.
func (s *State) AddError(now time.Time, msg string, key int) {
	s.Errors = append(s.Errors, UIError{Time: now, Message: msg, TorrentKey: key})
	s.PruneErrors(now)
}

// PruneErrors drops entries older than ErrorWindow and keeps at most
// MaxErrors of the newest.
func (s *State) PruneErrors(now time.Time) {
	kept := s.Errors[:0]
	for _, e := range s.Errors {
		if now.Sub(e.Time) < ErrorWindow {
			kept = append(kept, e)
		}
	}
	if len(kept) > MaxErrors {
		kept = kept[len(kept)-MaxErrors:]
	}
	s.Errors = kept
}
