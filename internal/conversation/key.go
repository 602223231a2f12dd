// Package conversation owns the private-message history between pairs of
// connections: the deterministic pair key, the immutable message record, and
// the append-only in-memory history store.
package conversation

// KeySeparator joins the two sorted participant IDs. Connection IDs are UUIDs
// and can never contain it, so keys are collision-free.
const KeySeparator = "--"

// KeyOf derives the conversation key for an unordered pair of connection IDs.
// It is symmetric: KeyOf(a, b) == KeyOf(b, a) for all a, b, so the send path
// and the history-lookup path always resolve to the same bucket.
func KeyOf(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + KeySeparator + b
}
