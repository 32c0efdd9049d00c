package server

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/boypt/torrentdesk/store"
	"github.com/mmcdole/gofeed"
)

const rssInterval = 30 * time.Minute

func (s *Server) rssLoop(ctx context.Context) {
	s.updateRSS(ctx)
	tk := time.NewTicker(rssInterval)
	defer tk.Stop()
	for {
		select {
		case <-tk.C:
			s.updateRSS(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// updateRSS fetches every configured feed and merges new items into the
// cache on the UI loop.
func (s *Server) updateRSS(ctx context.Context) {
	var urls []string
	s.call(func() { urls = slices.Clone(s.state.Saved.Prefs.RSSURLs) })
	if len(urls) == 0 {
		return
	}
	fp := gofeed.NewParser()
	fp.Client = &http.Client{
		Timeout: 10 * time.Second,
	}
	fetched := map[string][]*gofeed.Item{}
	for _, rss := range urls {
		rss = strings.TrimSpace(rss)
		if !strings.HasPrefix(rss, "http://") && !strings.HasPrefix(rss, "https://") {
			log.Warnf("parse feed addr invalid %s", rss)
			continue
		}
		feed, err := fp.ParseURLWithContext(rss, ctx)
		if err != nil {
			log.Warnf("parse feed err %s", err.Error())
			continue
		}
		log.Debugf("retrieved feed %s from %s", feed.Title, rss)
		fetched[rss] = feed.Items
	}
	s.post(func() {
		for rss, items := range fetched {
			s.rssCache[rss] = mergeFeed(s.rssCache[rss], items)
		}
		s.state.RSS = s.rssItems()
	})
}

// mergeFeed puts items newer than the first cached one in front of the
// cache.
func mergeFeed(old, items []*gofeed.Item) []*gofeed.Item {
	if len(old) == 0 || len(items) == 0 {
		if len(items) == 0 {
			return old
		}
		return items
	}
	if old[0].GUID == items[0].GUID {
		return old
	}
	var fresh []*gofeed.Item
	for _, i := range items {
		if i.GUID == old[0].GUID {
			break
		}
		fresh = append(fresh, i)
	}
	log.Infof("feed updated %d new items", len(fresh))
	return append(fresh, old...)
}

func (s *Server) rssItems() []store.RSSItem {
	results := []store.RSSItem{}
	for _, rss := range s.state.Saved.Prefs.RSSURLs {
		rss = strings.TrimSpace(rss)
		for _, i := range s.rssCache[rss] {
			results = append(results, store.RSSItem{Feed: rss, Name: i.Title, Link: i.Link, Published: i.Published})
		}
	}
	return results
}

func (s *Server) serveRSS(w http.ResponseWriter, r *http.Request) {
	if _, ok := r.URL.Query()["update"]; ok {
		s.updateRSS(r.Context())
	}
	var results []store.RSSItem
	s.call(func() { results = s.rssItems() })
	b, err := json.Marshal(results)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}
