package timeline

import "strings"

// Match is one message whose text contains the query, with the byte offsets
// of every occurrence for highlighting.
type Match struct {
	Entry   Entry
	Offsets []int
}

// Search filters the current sequence by case-insensitive substring match
// against message text. Image-only messages never match. The canonical
// sequence is untouched; an empty query returns nil so callers restore the
// full view.
func (s *Synchronizer) Search(query string) []Match {
	if query == "" {
		return nil
	}
	needle := strings.ToLower(query)

	s.mu.Lock()
	seq := make([]Entry, len(s.seq))
	copy(seq, s.seq)
	s.mu.Unlock()

	var out []Match
	for _, e := range seq {
		if e.Message.IsImage() {
			continue
		}
		offsets := findAll(strings.ToLower(e.Message.Content), needle)
		if len(offsets) > 0 {
			out = append(out, Match{Entry: e, Offsets: offsets})
		}
	}
	return out
}

// findAll returns the offset of every non-overlapping occurrence of needle.
func findAll(haystack, needle string) []int {
	var offsets []int
	for start := 0; ; {
		i := strings.Index(haystack[start:], needle)
		if i < 0 {
			return offsets
		}
		offsets = append(offsets, start+i)
		start += i + len(needle)
	}
}
