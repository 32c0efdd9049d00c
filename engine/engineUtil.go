package engine

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var trackerClient = &http.Client{Timeout: 30 * time.Second}

// FetchTrackers loads a newline separated tracker list. Only https URLs are
// accepted.
func FetchTrackers(ctx context.Context, url string) ([]string, error) {
	if !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("trackers url invalid: %s (only https:// supported)", url)
	}
	log.Printf("loading trackers from %s", url)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := trackerClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("trackers url %s: %s", url, resp.Status)
	}

	var lines []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	log.Printf("loaded %d trackers", len(lines))
	return lines, nil
}
