package reconcile

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

// knownBotNames are exact bot names observed in the wild across the three
// variants, stored as a hashed set for fast membership checks.
var knownBotNames = func() map[uint64]struct{} {
	names := []string{
		"AI Soldier",
		"Bot",
		"CPU Player",
	}

	set := make(map[uint64]struct{}, len(names))
	for _, n := range names {
		set[xxhash.Sum64String(n)] = struct{}{}
	}
	return set
}()

// botPrefixes mark machine-generated names the feeds use for AI fillers.
var botPrefixes = []string{"BOT_", "AI_"}

// IsBotName reports whether a player name matches a known bot pattern.
// The explicit AI flag on the snapshot is checked separately by the caller.
func IsBotName(name string) bool {
	if _, ok := knownBotNames[xxhash.Sum64String(name)]; ok {
		return true
	}

	for _, prefix := range botPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}

	return false
}
