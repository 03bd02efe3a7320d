package filter

import "github.com/s0up4200/seedkeeper/qbittorrent"

// Filter defines the basic interface for torrent filters
type Filter interface {
	// Match checks if a torrent matches the filter criteria. A runtime
	// failure (for example a type mismatch) is returned as an error.
	Match(torrent *qbittorrent.TorrentInfo) (bool, error)
}

// CompiledFilter represents a pre-compiled filter ready for evaluation
type CompiledFilter interface {
	Filter

	// Expression returns the original filter expression
	Expression() string
}

// Compiler compiles filter expressions into executable filters
type Compiler interface {
	// Compile parses and compiles a filter expression
	Compile(expression string) (CompiledFilter, error)
}

// CachingCompiler provides caching for compiled filters
type CachingCompiler interface {
	Compiler

	// Clear removes all cached filters
	Clear()

	// Size returns the number of cached filters
	Size() int
}
