package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/boypt/torrentdesk/ipc"
	"github.com/boypt/torrentdesk/metrics"
)

// streamServer serves the files of one torrent over HTTP.
type streamServer struct {
	info     ipc.ServerInfo
	listener net.Listener
	srv      *http.Server
}

// serverRequest is a start-server waiting for its session to become ready.
type serverRequest struct {
	session *Session
	ctx     context.Context
	cancel  context.CancelFunc
}

func (e *Engine) startServer(c ipc.StartServer) {
	if e.server != nil || e.pending != nil {
		log.Printf("start-server %s ignored, a server is already running or starting", c.InfoHash)
		return
	}
	s := e.lookup(c.InfoHash, c.Key)
	if s == nil {
		log.Printf("start-server: no session for %s/%d", c.InfoHash, c.Key)
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	req := &serverRequest{session: s, ctx: ctx, cancel: cancel}
	e.pending = req
	if s.ready {
		e.bindServer(req)
		return
	}
	s.queue.Push(func() { e.bindServer(req) })
}

func (e *Engine) bindServer(req *serverRequest) {
	if e.pending != req || req.ctx.Err() != nil || !e.live(req.session) {
		return
	}
	e.pending = nil
	req.cancel()
	s := req.session

	l, err := net.Listen("tcp", net.JoinHostPort(e.config.StreamHost, "0"))
	if err != nil {
		e.warn(s.Key, "streaming server: %v", err)
		return
	}
	port := l.Addr().(*net.TCPAddr).Port
	info := ipc.ServerInfo{
		TorrentKey: s.Key,
		InfoHash:   s.InfoHash,
		Port:       port,
		LocalURL:   fmt.Sprintf("http://localhost:%d", port),
	}
	if lan := lanAddress(); lan != "" {
		info.NetworkAddress = lan
		info.NetworkURL = fmt.Sprintf("http://%s:%d", lan, port)
	}
	ss := &streamServer{
		info:     info,
		listener: l,
		srv: &http.Server{
			Handler:           fileHandler(s.handle),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	e.server = ss
	go func() {
		if err := ss.srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warnf("streaming server: %v", err)
		}
	}()
	metrics.StreamingServers.Set(1)
	log.Printf("[%d] streaming %s at %s", s.Key, s.InfoHash, info.LocalURL)
	e.emit(ipc.ServerRunningEvent{Info: info})
}

func (e *Engine) stopServer() {
	if e.pending != nil {
		e.pending.cancel()
		e.pending = nil
	}
	if e.server == nil {
		return
	}
	if err := e.server.srv.Close(); err != nil {
		log.Debugf("streaming server close: %v", err)
	}
	log.Printf("[%d] streaming server stopped", e.server.info.TorrentKey)
	e.server = nil
	metrics.StreamingServers.Set(0)
}

type fileListing struct {
	Index  int    `json:"index"`
	Path   string `json:"path"`
	Length int64  `json:"length"`
	URL    string `json:"url"`
}

// fileHandler serves "/" as a JSON listing and "/<index>[/<name>]" as the
// file content with range support.
func fileHandler(h Handle) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "Not allowed", http.StatusMethodNotAllowed)
			return
		}
		files := h.Files()
		p := strings.Trim(r.URL.Path, "/")
		if p == "" {
			list := make([]fileListing, 0, len(files))
			for i, f := range files {
				list = append(list, fileListing{
					Index:  i,
					Path:   f.Path,
					Length: f.Length,
					URL:    "/" + strconv.Itoa(i) + "/" + path.Base(f.Path),
				})
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(list)
			return
		}
		idxStr, _, _ := strings.Cut(p, "/")
		idx, err := strconv.Atoi(idxStr)
		if err != nil || idx < 0 || idx >= len(files) {
			http.NotFound(w, r)
			return
		}
		rd, err := h.NewFileReader(idx)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer rd.Close()
		name := path.Base(files[idx].Path)
		if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
			w.Header().Set("Content-Type", ct)
		}
		w.Header().Set("Access-Control-Allow-Origin", "*")
		http.ServeContent(w, r, name, time.Time{}, rd)
	})
}
