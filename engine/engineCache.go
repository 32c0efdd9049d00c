package engine

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/boypt/torrentdesk/ipc"
)

func torrentFileName(infohash string) string {
	return infohash + ".torrent"
}

// saveTorrentFile caches the session's metainfo as TorrentDirectory/<ih>.torrent
// and reports the file name. An existing cache file is kept as is.
func (e *Engine) saveTorrentFile(s *Session) {
	dir := e.config.TorrentDirectory
	if dir == "" {
		return
	}
	name := torrentFileName(s.InfoHash)
	p := filepath.Join(dir, name)
	if _, err := os.Stat(p); err == nil {
		e.emit(ipc.FileSavedEvent{Key: s.Key, FileName: name})
		return
	}
	if err := writeMetainfo(s.handle, dir, p); err != nil {
		log.Warnf("[%d] failed to cache torrent file %s: %v", s.Key, s.InfoHash, err)
		return
	}
	log.Printf("[%d] created torrent cache file %s", s.Key, s.InfoHash)
	e.emit(ipc.FileSavedEvent{Key: s.Key, FileName: name})
}

func writeMetainfo(h Handle, dir, p string) error {
	if err := mkdir(dir); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".torrent-*")
	if err != nil {
		return err
	}
	werr := h.WriteMetainfo(tmp)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), p)
}
