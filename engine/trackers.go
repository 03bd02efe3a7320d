package engine

import (
	"cmp"
	"slices"
	"strings"

	"github.com/s0up4200/seedkeeper/qbittorrent"
)

// otherTracker is the tracker entry used when no keyword matches
const otherTracker = "other"

// trackerRule is the tracker configuration that applies to a torrent
type trackerRule struct {
	Keyword  string
	URL      string
	Tags     []string
	Category string
}

// trackerURLs returns the announce URLs of a torrent, falling back to the
// current tracker reported in the torrent list
func (p *pass) trackerURLs(t *qbittorrent.TorrentInfo) []string {
	var urls []string
	for _, tr := range p.trackers[t.Hash] {
		if qbittorrent.IsAnnounceURL(tr.URL) {
			urls = append(urls, tr.URL)
		}
	}
	if len(urls) == 0 && t.Tracker != "" {
		urls = append(urls, t.Tracker)
	}
	return urls
}

// trackerRule finds the configured tracker whose keyword occurs in one of
// the torrent's announce URLs. Longer keywords are tried first so the most
// specific entry wins.
func (e *Engine) trackerRule(urls []string) (trackerRule, bool) {
	keywords := make([]string, 0, len(e.cfg.Trackers))
	for k := range e.cfg.Trackers {
		if k != otherTracker {
			keywords = append(keywords, k)
		}
	}
	slices.SortFunc(keywords, func(a, b string) int {
		if c := cmp.Compare(len(b), len(a)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})

	for _, u := range urls {
		lower := strings.ToLower(u)
		for _, k := range keywords {
			if strings.Contains(lower, strings.ToLower(k)) {
				return e.newTrackerRule(k, u), true
			}
		}
	}

	if _, ok := e.cfg.Trackers[otherTracker]; ok {
		url := ""
		if len(urls) > 0 {
			url = urls[0]
		}
		return e.newTrackerRule(otherTracker, url), true
	}
	return trackerRule{}, false
}

func (e *Engine) newTrackerRule(keyword, url string) trackerRule {
	tc := e.cfg.Trackers[keyword]
	tags := tc.Tags
	if len(tags) == 0 {
		tags = []string{keyword}
	}
	return trackerRule{Keyword: keyword, URL: url, Tags: tags, Category: tc.Category}
}
