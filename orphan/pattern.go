package orphan

import (
	"fmt"
	"regexp"
	"strings"
)

// Pattern is a shell-style exclude pattern matched against a whole path.
// As with fnmatch, `*` also crosses directory separators, so `**/.DS_Store`
// and `/data/temp/*` both behave as people write them in config files.
type Pattern struct {
	raw string
	re  *regexp.Regexp
}

// CompilePattern compiles a pattern supporting `*`, `?`, `[seq]` and `[!seq]`
func CompilePattern(pattern string) (*Pattern, error) {
	var b strings.Builder
	b.WriteString("^")

	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		switch c := runes[i]; c {
		case '*':
			// Runs of stars are a single wildcard
			for i+1 < len(runes) && runes[i+1] == '*' {
				i++
			}
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '[':
			end := i + 1
			if end < len(runes) && runes[end] == '!' {
				end++
			}
			if end < len(runes) && runes[end] == ']' {
				end++
			}
			for end < len(runes) && runes[end] != ']' {
				end++
			}
			if end >= len(runes) {
				b.WriteString(`\[`)
				continue
			}
			class := strings.ReplaceAll(string(runes[i+1:end]), `\`, `\\`)
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			} else if strings.HasPrefix(class, "^") {
				class = `\` + class
			}
			b.WriteString("[" + class + "]")
			i = end
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString("$")

	re, err := regexp.Compile("(?s)" + b.String())
	if err != nil {
		return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
	}
	return &Pattern{raw: pattern, re: re}, nil
}

// Match reports whether path matches the pattern
func (p *Pattern) Match(path string) bool {
	return p.re.MatchString(path)
}

func (p *Pattern) String() string {
	return p.raw
}

// CompilePatterns compiles every pattern, failing on the first invalid one
func CompilePatterns(patterns []string) ([]*Pattern, error) {
	out := make([]*Pattern, 0, len(patterns))
	for _, raw := range patterns {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		p, err := CompilePattern(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
