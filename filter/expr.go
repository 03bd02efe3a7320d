package filter

import (
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/s0up4200/seedkeeper/qbittorrent"
)

// exprFilter implements CompiledFilter using the expr language
type exprFilter struct {
	expression string
	program    *vm.Program
	now        func() time.Time
}

// ExprCompilerOption configures an expr compiler
type ExprCompilerOption func(*exprCompiler)

// WithCache enables filter caching with the specified size
func WithCache(size int) ExprCompilerOption {
	return func(c *exprCompiler) {
		if size > 0 {
			c.cache = newLRUCache[CompiledFilter](size)
		}
	}
}

// WithCustomFunctions adds custom helper functions
func WithCustomFunctions(funcs map[string]any) ExprCompilerOption {
	return func(c *exprCompiler) {
		maps.Copy(c.helperFuncs, funcs)
	}
}

// WithClock overrides the time source used by date helpers
func WithClock(now func() time.Time) ExprCompilerOption {
	return func(c *exprCompiler) {
		c.now = now
	}
}

// NewExprCompiler creates a new expr-based filter compiler
func NewExprCompiler(opts ...ExprCompilerOption) CachingCompiler {
	c := &exprCompiler{
		helperFuncs: make(map[string]any, 32),
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}
	addHelperFunctions(c.helperFuncs, c.now)

	return c
}

// exprCompiler implements Compiler for expr-based filters
type exprCompiler struct {
	helperFuncs map[string]any
	cache       *lruCache[CompiledFilter]
	now         func() time.Time
}

// Compile compiles an expression into an executable filter
func (c *exprCompiler) Compile(expression string) (CompiledFilter, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, &CompilationError{
			Expression: expression,
			Reason:     "empty expression",
		}
	}

	// Check cache if enabled
	if c.cache != nil {
		if cached, ok := c.cache.Get(expression); ok {
			return cached, nil
		}
	}

	// Compile against a sample environment so unknown fields fail early
	program, err := expr.Compile(expression,
		expr.Env(createRuntimeEnvironment(&qbittorrent.TorrentInfo{}, c.now)),
		expr.AsBool(),
	)
	if err != nil {
		return nil, &CompilationError{
			Expression: expression,
			Reason:     "failed to compile expression",
			Err:        err,
		}
	}

	filter := &exprFilter{
		expression: expression,
		program:    program,
		now:        c.now,
	}

	if c.cache != nil {
		c.cache.Put(expression, filter)
	}

	return filter, nil
}

// Clear removes all cached filters
func (c *exprCompiler) Clear() {
	if c.cache != nil {
		c.cache.Clear()
	}
}

// Size returns the number of cached filters
func (c *exprCompiler) Size() int {
	if c.cache != nil {
		return c.cache.Size()
	}
	return 0
}

// Match evaluates the filter against a torrent
func (f *exprFilter) Match(torrent *qbittorrent.TorrentInfo) (bool, error) {
	env := createRuntimeEnvironment(torrent, f.now)

	result, err := expr.Run(f.program, env)
	if err != nil {
		return false, &EvaluationError{
			Expression: f.expression,
			Torrent:    torrent.Name,
			Err:        err,
		}
	}

	// Result is guaranteed to be bool due to AsBool() option during compilation
	return result.(bool), nil
}

// Expression returns the original expression
func (f *exprFilter) Expression() string {
	return f.expression
}

// addHelperFunctions adds the torrent independent helpers to env
func addHelperFunctions(env map[string]any, now func() time.Time) {
	// Date helpers
	env["daysSince"] = func(t time.Time) int {
		if t.IsZero() {
			return 0
		}
		return int(now().Sub(t).Hours() / 24)
	}
	env["daysAgo"] = func(days int) time.Time {
		return now().AddDate(0, 0, -days)
	}
	env["hoursAgo"] = func(hours int) time.Time {
		return now().Add(-time.Duration(hours) * time.Hour)
	}
	env["parseDate"] = func(dateStr string) time.Time {
		t, _ := time.Parse("2006-01-02", dateStr)
		return t
	}
	// Size helpers
	env["bytes"] = func(s string) int64 {
		n, err := humanize.ParseBytes(s)
		if err != nil {
			return 0
		}
		return int64(n)
	}
	env["gb"] = func(n float64) int64 {
		return int64(n * humanize.GByte)
	}
	env["gib"] = func(n float64) int64 {
		return int64(n * humanize.GiByte)
	}
	// String helpers
	env["contains"] = func(str, substr string) bool {
		return strings.Contains(strings.ToLower(str), strings.ToLower(substr))
	}
	env["startsWith"] = func(str, prefix string) bool {
		return strings.HasPrefix(strings.ToLower(str), strings.ToLower(prefix))
	}
	env["endsWith"] = func(str, suffix string) bool {
		return strings.HasSuffix(strings.ToLower(str), strings.ToLower(suffix))
	}
	env["lower"] = strings.ToLower
	env["upper"] = strings.ToUpper
	// Current time
	env["now"] = now
}

// createRuntimeEnvironment creates the runtime environment for filter evaluation
func createRuntimeEnvironment(t *qbittorrent.TorrentInfo, now func() time.Time) map[string]any {
	env := make(map[string]any, 48)

	addHelperFunctions(env, now)

	// Torrent-specific helpers using closures
	env["hasTag"] = createHasTagFunc(t.Tags)
	env["trackerContains"] = func(s string) bool {
		return strings.Contains(strings.ToLower(t.Tracker), strings.ToLower(s))
	}

	// Direct torrent properties
	env["Hash"] = t.Hash
	env["Name"] = t.Name
	env["Category"] = t.Category
	env["Tags"] = t.Tags
	env["State"] = t.State
	env["Tracker"] = t.Tracker
	env["TrackerHost"] = qbittorrent.TrackerHost(t.Tracker)
	env["SavePath"] = t.SavePath
	env["ContentPath"] = t.ContentPath
	env["Size"] = t.Size
	env["Progress"] = t.Progress
	env["Ratio"] = t.Ratio
	env["Seeds"] = t.NumComplete
	env["AddedOn"] = t.AddedOn
	env["CompletionOn"] = t.CompletionOn
	env["LastActivity"] = t.LastActivity
	env["SeedingMinutes"] = int64(t.SeedingTime / time.Minute)
	env["SeedingDays"] = t.SeedingTime.Hours() / 24
	env["InactiveMinutes"] = int64(t.InactiveFor(now()) / time.Minute)
	env["Completed"] = t.IsComplete()
	env["Paused"] = t.IsPaused()

	return env
}

func createHasTagFunc(tags []string) func(string) bool {
	// Pre-convert to lowercase for case-insensitive comparison
	lowerTags := make([]string, len(tags))
	for i, tag := range tags {
		lowerTags[i] = strings.ToLower(tag)
	}
	return func(tag string) bool {
		return slices.Contains(lowerTags, strings.ToLower(tag))
	}
}
