package config

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Sentinel limit values understood by qBittorrent.
const (
	LimitDisabled = -1
	LimitGlobal   = -2
)

var durationPart = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(weeks?|w|days?|d|hours?|h|minutes?|mins?|m)`)

var minutesPerUnit = map[byte]float64{
	'w': 7 * 24 * 60,
	'd': 24 * 60,
	'h': 60,
	'm': 1,
}

// ParseMinutes parses a duration such as "1d", "12h", "1d12h", "90m" or a
// bare number of minutes. The sentinels -1 and -2 are passed through and an
// empty value yields def.
func ParseMinutes(value string, def int64) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return def, nil
	}

	if n, err := strconv.ParseFloat(value, 64); err == nil {
		switch {
		case n == LimitDisabled || n == LimitGlobal:
			return int64(n), nil
		case n < 0:
			return 0, fmt.Errorf("negative duration %q", value)
		}
		return int64(math.Round(n)), nil
	}

	matches := durationPart.FindAllStringSubmatchIndex(value, -1)
	if len(matches) == 0 {
		return 0, fmt.Errorf("invalid duration %q", value)
	}

	var total float64
	consumed := 0
	for _, m := range matches {
		if strings.TrimSpace(value[consumed:m[0]]) != "" {
			return 0, fmt.Errorf("invalid duration %q", value)
		}
		n, err := strconv.ParseFloat(value[m[2]:m[3]], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", value, err)
		}
		unit := strings.ToLower(value[m[4]:m[5]])
		total += n * minutesPerUnit[unit[0]]
		consumed = m[1]
	}
	if strings.TrimSpace(value[consumed:]) != "" {
		return 0, fmt.Errorf("invalid duration %q", value)
	}

	return int64(math.Round(total)), nil
}

// ParseSize parses a human readable size such as "10GiB" or "500 MB".
// An empty value returns 0.
func ParseSize(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}

	n, err := humanize.ParseBytes(value)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", value, err)
	}
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("size %q out of range", value)
	}
	return int64(n), nil
}
