package personality

import "sort"

func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F3FB && r <= 0x1F3FF:
		return false
	case r >= 0x1F300 && r <= 0x1FAFF:
		return true
	case r >= 0x2600 && r <= 0x27BF:
		return true
	case r >= 0x1F100 && r <= 0x1F2FF:
		return true
	case r == 0x2B50 || r == 0x2B55 || r == 0x2764:
		return true
	}
	return false
}

// Emojis returns the emoji runes of s in order of appearance.
func Emojis(s string) []string {
	var out []string
	for _, r := range s {
		if isEmoji(r) {
			out = append(out, string(r))
		}
	}
	return out
}

// topEmojis ranks by count; ties keep first-seen order.
func topEmojis(counts map[string]int, firstSeen map[string]int, n int) []string {
	out := make([]string, 0, len(counts))
	for e := range counts {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if counts[out[i]] != counts[out[j]] {
			return counts[out[i]] > counts[out[j]]
		}
		return firstSeen[out[i]] < firstSeen[out[j]]
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
