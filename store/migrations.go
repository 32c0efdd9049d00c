package store

import (
	"sort"
	"strings"

	"golang.org/x/mod/semver"
)

type migration struct {
	version string
	apply   func(raw map[string]any)
}

// migrations rewrite older state files. Each one must leave an already
// migrated document unchanged.
var migrations = []migration{
	{"v0.2.0", func(raw map[string]any) {
		prefs := prefsOf(raw)
		if v, ok := prefs["downloadDir"]; ok {
			if _, exists := prefs["downloadPath"]; !exists {
				prefs["downloadPath"] = v
			}
			delete(prefs, "downloadDir")
		}
	}},
	{"v0.3.0", func(raw map[string]any) {
		prefs := prefsOf(raw)
		if v, ok := prefs["playerPath"]; ok {
			if _, exists := prefs["externalPlayerPath"]; !exists {
				prefs["externalPlayerPath"] = v
			}
			delete(prefs, "playerPath")
		}
		torrents, _ := raw["torrents"].([]any)
		for _, t := range torrents {
			if tm, ok := t.(map[string]any); ok {
				if s, _ := tm["status"].(string); s == "" {
					tm["status"] = string(StatusPaused)
				}
			}
		}
	}},
	{"v0.4.0", func(raw map[string]any) {
		prefs := prefsOf(raw)
		old, ok := prefs["rssURL"].(string)
		if !ok {
			return
		}
		var urls []any
		if existing, ok := prefs["rssURLs"].([]any); ok {
			urls = existing
		}
		for _, u := range strings.Split(old, "\n") {
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, u)
			}
		}
		prefs["rssURLs"] = urls
		delete(prefs, "rssURL")
	}},
}

func prefsOf(raw map[string]any) map[string]any {
	prefs, ok := raw["prefs"].(map[string]any)
	if !ok {
		prefs = map[string]any{}
		raw["prefs"] = prefs
	}
	return prefs
}

func canonical(v string) string {
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return v
}

// Migrate applies every migration newer than the document's version, in
// version order, then stamps it with appVersion. An unparseable app
// version (development builds) runs them all.
func Migrate(raw map[string]any, appVersion string) map[string]any {
	from, _ := raw["version"].(string)
	from = canonical(from)
	to := canonical(appVersion)

	ordered := make([]migration, len(migrations))
	copy(ordered, migrations)
	sort.SliceStable(ordered, func(i, j int) bool {
		return semver.Compare(ordered[i].version, ordered[j].version) < 0
	})
	for _, m := range ordered {
		if from != "" && semver.Compare(m.version, from) <= 0 {
			continue
		}
		if to != "" && semver.Compare(m.version, to) > 0 {
			continue
		}
		m.apply(raw)
	}
	raw["version"] = appVersion
	return raw
}
