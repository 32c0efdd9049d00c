package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/dhowden/tag"

	"github.com/boypt/torrentdesk/ipc"
)

func audioCacheKey(infohash string, index int) string {
	return fmt.Sprintf("%s:%d", infohash, index)
}

func (e *Engine) getAudioMetadata(c ipc.GetAudioMetadata) {
	s := e.lookup(c.InfoHash, c.Key)
	if s == nil {
		log.Printf("get-audio-metadata: no session for %s/%d", c.InfoHash, c.Key)
		return
	}
	if !s.ready {
		s.queue.Push(func() { e.getAudioMetadata(c) })
		return
	}
	if c.Index < 0 || c.Index >= len(s.handle.Files()) {
		e.warn(s.Key, "audio metadata: file index %d out of range", c.Index)
		return
	}
	ck := audioCacheKey(s.InfoHash, c.Index)
	if v, ok := e.audio.Get(ck); ok {
		e.emit(ipc.AudioMetadataEvent{InfoHash: s.InfoHash, Index: c.Index, Metadata: v.(ipc.AudioMetadata)})
		return
	}

	h := s.handle
	go func() {
		md, err := readAudioTags(s.ctx, h, c.Index)
		e.post(func() {
			if !e.live(s) {
				return
			}
			if err != nil {
				e.warn(s.Key, "audio metadata for file %d: %v", c.Index, err)
				return
			}
			e.audio.SetDefault(ck, md)
			e.emit(ipc.AudioMetadataEvent{InfoHash: s.InfoHash, Index: c.Index, Metadata: md})
		})
	}()
}

// openTags reads the tags of file index, giving up when ctx is cancelled.
func openTags(ctx context.Context, h Handle, index int) (tag.Metadata, error) {
	rd, err := h.NewFileReader(index)
	if err != nil {
		return nil, err
	}
	closeReader := sync.OnceFunc(func() { rd.Close() })
	defer closeReader()
	stop := context.AfterFunc(ctx, closeReader)
	defer stop()
	return tag.ReadFrom(rd)
}

func readAudioTags(ctx context.Context, h Handle, index int) (ipc.AudioMetadata, error) {
	m, err := openTags(ctx, h, index)
	if err != nil {
		return ipc.AudioMetadata{}, err
	}
	md := ipc.AudioMetadata{
		Title:       m.Title(),
		Artist:      m.Artist(),
		Album:       m.Album(),
		AlbumArtist: m.AlbumArtist(),
		Genre:       m.Genre(),
		Year:        m.Year(),
		Format:      string(m.Format()),
		HasPicture:  m.Picture() != nil,
	}
	md.Track, md.TrackTotal = m.Track()
	return md, nil
}
