package engine

import "strings"

// Dedupe merges discovered entries that refer to the same handle. The first
// occurrence keeps its position; a later non-empty filename fills an empty
// one, and sources are merged into a comma-separated list without repeats.
func Dedupe(entries []Discovered) []Discovered {
	out := make([]Discovered, 0, len(entries))
	index := make(map[string]int, len(entries))

	for _, entry := range entries {
		if entry.Handle == nil {
			continue
		}
		id := entry.Handle.ID()
		pos, seen := index[id]
		if !seen {
			index[id] = len(out)
			out = append(out, entry)
			continue
		}

		cur := &out[pos]
		if strings.TrimSpace(cur.Filename) == "" && strings.TrimSpace(entry.Filename) != "" {
			cur.Filename = strings.TrimSpace(entry.Filename)
			cur.Repr = cur.Filename
		}
		cur.Source = mergeSource(cur.Source, entry.Source)
	}

	return out
}

func mergeSource(current, next string) string {
	next = strings.TrimSpace(next)
	if next == "" {
		return current
	}
	var parts []string
	for _, p := range strings.Split(strings.TrimSpace(current), ",") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	for _, p := range parts {
		if p == next {
			return strings.Join(parts, ",")
		}
	}
	return strings.Join(append(parts, next), ",")
}

// Named drops entries without a filename
func Named(entries []Discovered) []Discovered {
	out := make([]Discovered, 0, len(entries))
	for _, entry := range entries {
		if strings.TrimSpace(entry.Filename) != "" {
			out = append(out, entry)
		}
	}
	return out
}

// Match returns the indices of entries whose filename or repr contains
// needle, case-insensitively.
func Match(entries []Discovered, needle string) []int {
	needle = strings.ToLower(needle)
	var matches []int
	for i, entry := range entries {
		if strings.Contains(strings.ToLower(entry.Filename), needle) ||
			strings.Contains(strings.ToLower(entry.Repr), needle) {
			matches = append(matches, i)
		}
	}
	return matches
}
