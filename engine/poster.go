package engine

import (
	"context"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/boypt/torrentdesk/ipc"
)

var (
	imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true, ".webp": true}
	audioExts = map[string]bool{".mp3": true, ".m4a": true, ".m4b": true, ".flac": true, ".ogg": true, ".aac": true}

	posterHints = []string{"poster", "cover", "folder", "front"}

	errNoPoster = errors.New("no poster candidate")
)

func extOf(p string) string {
	return strings.ToLower(path.Ext(p))
}

// pickPosterImage returns the index of the best image file, preferring
// names that hint at cover art, then the largest image. -1 if none.
func pickPosterImage(files []FileEntry) int {
	best, bestScore := -1, -1
	var bestLen int64
	for i, f := range files {
		if !imageExts[extOf(f.Path)] {
			continue
		}
		score := 0
		base := strings.ToLower(path.Base(f.Path))
		for _, hint := range posterHints {
			if strings.Contains(base, hint) {
				score = 1
				break
			}
		}
		if score > bestScore || (score == bestScore && f.Length > bestLen) {
			best, bestScore, bestLen = i, score, f.Length
		}
	}
	return best
}

func firstAudio(files []FileEntry) int {
	for i, f := range files {
		if audioExts[extOf(f.Path)] {
			return i
		}
	}
	return -1
}

// makePoster writes PosterDirectory/<ih><ext> off the loop and reports it.
func (e *Engine) makePoster(s *Session) {
	dir := e.config.PosterDirectory
	if dir == "" {
		return
	}
	h := s.handle
	go func() {
		name, err := writePoster(s.ctx, h, dir, s.InfoHash)
		if err != nil {
			if !errors.Is(err, errNoPoster) && s.ctx.Err() == nil {
				log.Debugf("[%d] poster: %v", s.Key, err)
			}
			return
		}
		e.post(func() {
			if e.live(s) {
				e.emit(ipc.PosterEvent{Key: s.Key, FileName: name})
			}
		})
	}()
}

func writePoster(ctx context.Context, h Handle, dir, infohash string) (string, error) {
	if err := mkdir(dir); err != nil {
		return "", err
	}
	files := h.Files()
	if i := pickPosterImage(files); i >= 0 {
		name := infohash + extOf(files[i].Path)
		return name, copyFileTo(ctx, h, i, filepath.Join(dir, name))
	}
	i := firstAudio(files)
	if i < 0 {
		return "", errNoPoster
	}
	m, err := openTags(ctx, h, i)
	if err != nil {
		return "", err
	}
	pic := m.Picture()
	if pic == nil || len(pic.Data) == 0 {
		return "", errNoPoster
	}
	ext := "." + strings.TrimPrefix(strings.ToLower(pic.Ext), ".")
	if ext == "." {
		ext = ".jpg"
	}
	name := infohash + ext
	return name, os.WriteFile(filepath.Join(dir, name), pic.Data, 0644)
}

func copyFileTo(ctx context.Context, h Handle, index int, dst string) error {
	rd, err := h.NewFileReader(index)
	if err != nil {
		return err
	}
	closeReader := sync.OnceFunc(func() { rd.Close() })
	defer closeReader()
	stop := context.AfterFunc(ctx, closeReader)
	defer stop()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rd); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
