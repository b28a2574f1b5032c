package domain

import "strings"

// KeyPrefix namespaces every key docdex writes to the shared KV store.
const KeyPrefix = "docdex:"

// Key joins parts under KeyPrefix: Key("budget", "openai") is
// "docdex:budget:openai".
func Key(parts ...string) string {
	return KeyPrefix + strings.Join(parts, ":")
}
