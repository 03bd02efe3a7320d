package sharelimits

import (
	"fmt"

	"github.com/s0up4200/seedkeeper/qbittorrent"
)

// Resolve returns the highest precedence group matching t. groups must be
// ordered as BuildGroups returns them.
func Resolve(t *qbittorrent.TorrentInfo, groups []*Group) (*Group, bool) {
	g, _ := resolve(t, groups)
	return g, g != nil
}

// resolve is Resolve reporting the groups whose filter failed on t. Those
// groups are skipped.
func resolve(t *qbittorrent.TorrentInfo, groups []*Group) (*Group, []error) {
	var errs []error
	for _, g := range groups {
		ok, err := g.Matches(t)
		if err != nil {
			errs = append(errs, fmt.Errorf("group %q: %w", g.Name, err))
			continue
		}
		if ok {
			return g, errs
		}
	}
	return nil, errs
}

// Assignment records the resolved group of each torrent in one pass
type Assignment struct {
	byHash map[string]*Group
	sizes  map[string]int
}

// Assign resolves every torrent, returning the assignment and the
// per-torrent evaluation errors
func Assign(torrents []*qbittorrent.TorrentInfo, groups []*Group) (*Assignment, []error) {
	a := &Assignment{
		byHash: make(map[string]*Group, len(torrents)),
		sizes:  make(map[string]int),
	}

	var errs []error
	for _, t := range torrents {
		g, gerrs := resolve(t, groups)
		for _, err := range gerrs {
			errs = append(errs, fmt.Errorf("torrent %s: %w", t.Hash, err))
		}
		if g == nil {
			continue
		}
		a.byHash[t.Hash] = g
		a.sizes[g.Name]++
	}
	return a, errs
}

// Group returns the group of a torrent, or nil when it matched none
func (a *Assignment) Group(hash string) *Group {
	return a.byHash[hash]
}

// Size returns the number of torrents assigned to the named group
func (a *Assignment) Size(name string) int {
	return a.sizes[name]
}
