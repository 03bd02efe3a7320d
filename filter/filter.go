package filter

import (
	"github.com/rs/zerolog"

	"github.com/s0up4200/seedkeeper/qbittorrent"
)

// defaultCacheSize bounds the shared compiler cache
const defaultCacheSize = 128

var defaultCompiler = NewExprCompiler(WithCache(defaultCacheSize))

// CompileFilter compiles an expression with the shared caching compiler
func CompileFilter(expression string) (CompiledFilter, error) {
	return defaultCompiler.Compile(expression)
}

// Select returns the torrents f matches. Torrents the filter fails on are
// logged and left out.
func Select(f Filter, torrents []*qbittorrent.TorrentInfo, logger zerolog.Logger) []*qbittorrent.TorrentInfo {
	var out []*qbittorrent.TorrentInfo
	for _, t := range torrents {
		ok, err := f.Match(t)
		if err != nil {
			logger.Warn().Err(err).Str("hash", t.Hash).Msg("Filter evaluation failed")
			continue
		}
		if ok {
			out = append(out, t)
		}
	}
	return out
}
