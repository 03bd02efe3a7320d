package config

import "strings"

// Command names a unit of work a pass can perform
type Command string

// Recognized commands, in the order a pass executes them.
const (
	CommandCategoryUpdate     Command = "cat_update"
	CommandTagUpdate          Command = "tag_update"
	CommandRemoveUnregistered Command = "rem_unregistered"
	CommandTagTrackerError    Command = "tag_tracker_error"
	CommandRecheck            Command = "recheck"
	CommandTagNoHardlinks     Command = "tag_nohardlinks"
	CommandShareLimits        Command = "share_limits"
	CommandRemoveOrphaned     Command = "rem_orphaned"
	CommandSkipCleanup        Command = "skip_cleanup"
)

// CommandOrder is the execution order of a pass
var CommandOrder = []Command{
	CommandCategoryUpdate,
	CommandTagUpdate,
	CommandRemoveUnregistered,
	CommandTagTrackerError,
	CommandRecheck,
	CommandTagNoHardlinks,
	CommandShareLimits,
	CommandRemoveOrphaned,
}

var commandAliases = map[string]Command{
	"category-update":     CommandCategoryUpdate,
	"tag-update":          CommandTagUpdate,
	"remove-unregistered": CommandRemoveUnregistered,
	"tag-tracker-error":   CommandTagTrackerError,
	"remove-orphaned":     CommandRemoveOrphaned,
	"tag-no-hardlinks":    CommandTagNoHardlinks,
	"apply-share-limits":  CommandShareLimits,
	"skip-cleanup":        CommandSkipCleanup,
}

// ParseCommand resolves a command name or one of its hyphenated aliases
func ParseCommand(name string) (Command, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if cmd, ok := commandAliases[name]; ok {
		return cmd, true
	}

	cmd := Command(name)
	if cmd == CommandSkipCleanup {
		return cmd, true
	}
	for _, known := range CommandOrder {
		if cmd == known {
			return cmd, true
		}
	}
	return "", false
}

// IsKnownCommand reports whether name is a recognized command
func IsKnownCommand(name string) bool {
	_, ok := ParseCommand(name)
	return ok
}
