package qbittorrent

import (
	"net/url"
	"strings"

	"github.com/autobrr/go-qbittorrent"
)

// TrackerStatus mirrors the announce status reported by qBittorrent
type TrackerStatus int

const (
	TrackerDisabled TrackerStatus = iota
	TrackerNotContacted
	TrackerWorking
	TrackerUpdating
	TrackerNotWorking
)

func (s TrackerStatus) String() string {
	switch s {
	case TrackerDisabled:
		return "disabled"
	case TrackerNotContacted:
		return "not contacted"
	case TrackerWorking:
		return "working"
	case TrackerUpdating:
		return "updating"
	case TrackerNotWorking:
		return "not working"
	default:
		return "unknown"
	}
}

func convertTrackerStatus(s qbittorrent.TrackerStatus) TrackerStatus {
	switch s {
	case qbittorrent.TrackerStatusDisabled:
		return TrackerDisabled
	case qbittorrent.TrackerStatusNotContacted:
		return TrackerNotContacted
	case qbittorrent.TrackerStatusOK:
		return TrackerWorking
	case qbittorrent.TrackerStatusUpdating:
		return TrackerUpdating
	default:
		return TrackerNotWorking
	}
}

// Messages trackers send for torrents they no longer know about.
var unregisteredMessages = []string{
	"UNREGISTERED",
	"TORRENT NOT FOUND",
	"TORRENT IS NOT FOUND",
	"NOT REGISTERED",
	"NOT EXIST",
	"UNKNOWN TORRENT",
	"TRUMP",
	"RETITLED",
	"TRUNCATED",
	"TORRENT IS NOT AUTHORIZED FOR USE ON THIS TRACKER",
	"INFOHASH NOT FOUND.",
	"TORRENT HAS BEEN DELETED",
}

// Messages that look like failures but are transient or client side.
var ignoredMessages = []string{
	"YOU HAVE REACHED THE CLIENT LIMIT FOR THIS TORRENT",
	"PASSKEY",
	"MISSING INFO_HASH",
	"EXPECTED VALUE (LIST, DICT, INT OR STRING) IN BENCODED STRING",
	"COULD NOT PARSE BENCODED DATA",
	"STREAM TRUNCATED",
	"GATEWAY TIMEOUT",
	"ANNOUNCE IS CURRENTLY UNAVAILABLE",
	"TORRENT HAS BEEN POSTPONED",
	"520 (UNKNOWN HTTP ERROR)",
}

var announceSchemes = map[string]bool{
	"http":  true,
	"https": true,
	"udp":   true,
	"ws":    true,
	"wss":   true,
}

func containsAny(msg string, needles []string) bool {
	upper := strings.ToUpper(msg)
	for _, n := range needles {
		if strings.Contains(upper, n) {
			return true
		}
	}
	return false
}

// IsIgnoredMessage reports a tracker message that never signals removal
func IsIgnoredMessage(msg string) bool {
	return containsAny(msg, ignoredMessages)
}

// IsUnregisteredMessage reports a tracker message saying the torrent is gone
func IsUnregisteredMessage(msg string) bool {
	if msg == "" || IsIgnoredMessage(msg) {
		return false
	}
	return containsAny(msg, unregisteredMessages)
}

// IsAnnounceURL reports whether u is a real announce URL
func IsAnnounceURL(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	return announceSchemes[strings.ToLower(parsed.Scheme)]
}

// HasWorkingTracker reports whether any real tracker currently works
func HasWorkingTracker(trackers []TrackerInfo) bool {
	for _, tr := range trackers {
		if tr.Status == TrackerWorking && IsAnnounceURL(tr.URL) {
			return true
		}
	}
	return false
}

// UnregisteredMessage returns the first unregistered message among the
// non-working trackers, or "" when none says the torrent is gone
func UnregisteredMessage(trackers []TrackerInfo) string {
	for _, tr := range trackers {
		if tr.Status != TrackerNotWorking || !IsAnnounceURL(tr.URL) {
			continue
		}
		if IsUnregisteredMessage(tr.Message) {
			return tr.Message
		}
	}
	return ""
}

// TrackerError returns the message of the first failing tracker when no
// tracker works, or "" otherwise
func TrackerError(trackers []TrackerInfo) string {
	if HasWorkingTracker(trackers) {
		return ""
	}
	for _, tr := range trackers {
		if tr.Status != TrackerNotWorking || !IsAnnounceURL(tr.URL) {
			continue
		}
		if IsIgnoredMessage(tr.Message) {
			continue
		}
		if tr.Message == "" {
			return tr.Status.String()
		}
		return tr.Message
	}
	return ""
}

// TrackerHost returns the host of an announce URL, or "" when unparsable
func TrackerHost(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}
