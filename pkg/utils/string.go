package utils

// Truncate cuts s to at most maxLen runes and appends "..." when it cut.
func Truncate(s string, maxLen int) string {
	return TruncateWith(s, maxLen, "...")
}

// TruncateWith cuts s to at most maxLen runes and appends suffix when it cut.
func TruncateWith(s string, maxLen int, suffix string) string {
	if maxLen < 0 {
		maxLen = 0
	}
	if len(s) <= maxLen {
		return s
	}

	n := 0
	for i := range s {
		if n == maxLen {
			return s[:i] + suffix
		}
		n++
	}
	return s
}
