package server

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/NYTimes/gziphandler"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/boypt/torrentdesk/server/httpmiddleware"
	"github.com/boypt/torrentdesk/static"
	"github.com/jpillora/archive"
	"github.com/jpillora/cookieauth"
	"github.com/jpillora/requestlog"
	"github.com/jpillora/velox"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
)

const maxTorrentFileSize = 32 << 20

var errRedirect = errors.New("redirect to home")

// handler builds the chain, from last to first.
func (s *Server) handler() http.Handler {
	h := http.Handler(http.HandlerFunc(s.webHandle))
	gzipWrap, _ := gziphandler.NewGzipLevelAndMinSize(gzip.DefaultCompression, 0)
	h = gzipWrap(h)
	if s.Auth != "" {
		user, pass, _ := strings.Cut(s.Auth, ":")
		h = cookieauth.Wrap(h, user, pass)
		log.Info("Enabled HTTP authentication")
	}
	h = httpmiddleware.Liveness(h)
	if s.Log {
		h = requestlog.Wrap(h)
	}
	return h
}

func (s *Server) webHandle(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/sync":
		//avoid the gzip buffer
		w.Header().Set("Content-Encoding", "identity")
		conn, err := velox.Sync(s.state, w, r)
		if err != nil {
			log.Errorf("sync failed: %s", err)
			return
		}
		select {
		case s.syncConnected <- struct{}{}:
		default:
		}
		s.call(func() { s.state.Users[conn.ID()] = r.RemoteAddr })
		conn.Wait()
		s.call(func() { delete(s.state.Users, conn.ID()) })
		return
	case "/js/velox.js":
		velox.JS.ServeHTTP(w, r)
		return
	case "/rss":
		s.serveRSS(w, r)
		return
	case "/metrics":
		promhttp.Handler().ServeHTTP(w, r)
		return
	}

	dir, rest, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	switch dir {
	case "api":
		s.restAPIhandle(w, r, rest)
	case "download":
		s.serveArchive(w, r, rest)
	default:
		static.FileSystemHandler().ServeHTTP(w, r)
	}
}

type dispatchRequest struct {
	Action string          `json:"action"`
	Args   json.RawMessage `json:"args"`
}

func (s *Server) restAPIhandle(w http.ResponseWriter, r *http.Request, action string) {
	defer r.Body.Close()
	var err error
	switch {
	case action == "dispatch" && r.Method == http.MethodPost:
		err = s.apiDispatch(r)
	case action == "magnet" && r.Method == http.MethodGet:
		m := r.URL.Query().Get("m")
		if !strings.HasPrefix(m, "magnet:?") {
			err = fmt.Errorf("invalid magnet link: %s", m)
			break
		}
		err = s.dispatchOnLoop(AddTorrent{TorrentID: m})
		if err == nil {
			err = errRedirect
		}
	case action == "torrentfile" && r.Method == http.MethodPost:
		var data []byte
		data, err = io.ReadAll(io.LimitReader(r.Body, maxTorrentFileSize))
		if err == nil {
			err = s.addTorrentFile(data)
		}
	default:
		http.Error(w, fmt.Sprintf("%s:%s:Not Found", r.Method, r.URL), http.StatusNotFound)
		return
	}
	switch {
	case errors.Is(err, errRedirect):
		http.Redirect(w, r, "/", http.StatusFound)
	case err != nil:
		http.Error(w, fmt.Sprintf("%s:%s:%v", r.Method, r.URL, err), http.StatusBadRequest)
	default:
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}

func (s *Server) apiDispatch(r *http.Request) error {
	var req dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return fmt.Errorf("malformed dispatch: %w", err)
	}
	a, err := decodeAction(req.Action, req.Args)
	if err != nil {
		log.Errorf("dispatch: %v", err)
		return err
	}
	return s.dispatchOnLoop(a)
}

func (s *Server) dispatchOnLoop(a Action) error {
	var err error
	s.call(func() { err = s.dispatch(a) })
	return err
}

// addTorrentFile validates a .torrent, keeps a copy next to the state file
// and adds it.
func (s *Server) addTorrentFile(data []byte) error {
	mi, err := metainfo.Load(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("invalid torrent file: %w", err)
	}
	ih := mi.HashInfoBytes().HexString()
	dir := filepath.Join(filepath.Dir(s.StatePath), "incoming")
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return err
	}
	p, err := filepath.Abs(filepath.Join(dir, ih+".torrent"))
	if err != nil {
		return err
	}
	if err := afero.WriteFile(s.fs, p, data, 0644); err != nil {
		return err
	}
	return s.dispatchOnLoop(AddTorrent{TorrentID: p})
}

// serveArchive streams a torrent's data as a zip: /download/<infohash>.zip
func (s *Server) serveArchive(w http.ResponseWriter, r *http.Request, name string) {
	ih, ok := strings.CutSuffix(name, ".zip")
	if !ok || !isHexHash(ih) {
		http.NotFound(w, r)
		return
	}
	var root, title string
	s.call(func() {
		if ts := s.state.TorrentByInfoHash(ih); ts != nil && ts.Name != "" {
			root = filepath.Join(ts.Path, ts.Name)
			title = ts.Name
		}
	})
	if root == "" {
		http.NotFound(w, r)
		return
	}
	info, err := os.Stat(root)
	if err != nil {
		http.Error(w, "File stat error: "+err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", title+".zip"))
	a := archive.NewZipWriter(w)
	if info.IsDir() {
		err = a.AddDir(root)
	} else {
		var f *os.File
		if f, err = os.Open(root); err == nil {
			err = a.AddFile(info.Name(), f)
			f.Close()
		}
	}
	if err != nil {
		log.Errorf("archive %s: %v", title, err)
	}
	if err := a.Close(); err != nil {
		log.Errorf("archive %s: %v", title, err)
	}
}

func isHexHash(s string) bool {
	if len(s) != 40 {
		return false
	}
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}
