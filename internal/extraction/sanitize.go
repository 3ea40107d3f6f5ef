package extraction

import "strings"

const fence = "```"

// Sanitize trims raw model text and removes a leading ``` (or ```json) fence
// and a trailing ``` fence. Interior content is left untouched and applying it
// twice gives the same result as applying it once.
func Sanitize(raw string) string {
	s := strings.TrimSpace(raw)
	for {
		next := stripFence(s)
		if next == s {
			return s
		}
		s = next
	}
}

func stripFence(s string) string {
	switch {
	case strings.HasPrefix(s, fence+"json"):
		s = s[len(fence+"json"):]
	case strings.HasPrefix(s, fence):
		s = s[len(fence):]
	}
	if strings.HasSuffix(s, fence) {
		s = s[:len(s)-len(fence)]
	}
	return strings.TrimSpace(s)
}
