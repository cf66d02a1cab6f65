package prompt

import (
	"regexp"
	"strings"

	"github.com/Harshitk-cp/verdict/internal/domain"
)

var (
	verdictRe = regexp.MustCompile(`(?i)VERDICT:\s*(.+?)(?:\n|$)`)

	// leadingSideRe matches the side named first on the verdict line.
	leadingSideRe = regexp.MustCompile(`^(?:side |person )?(a|b|tie|draw)\b`)

	tieRe   = regexp.MustCompile(`\b(?:tie|draw)\b`)
	sideARe = regexp.MustCompile(`\b(?:side a|person a|first person)\b`)
	sideBRe = regexp.MustCompile(`\b(?:side b|person b|second person)\b`)
)

// ParseWinner reads the side named on the first VERDICT line. Anything it
// cannot attribute to a side counts as a tie.
func ParseWinner(verdict string) domain.Winner {
	m := verdictRe.FindStringSubmatch(verdict)
	if len(m) < 2 {
		return domain.WinnerTie
	}
	v := strings.ToLower(strings.Trim(strings.TrimSpace(m[1]), ".!*\"'[]() "))

	if lead := leadingSideRe.FindStringSubmatch(v); lead != nil {
		switch lead[1] {
		case "a":
			return domain.WinnerA
		case "b":
			return domain.WinnerB
		default:
			return domain.WinnerTie
		}
	}

	switch {
	case tieRe.MatchString(v):
		return domain.WinnerTie
	case sideARe.MatchString(v):
		return domain.WinnerA
	case sideBRe.MatchString(v):
		return domain.WinnerB
	}
	return domain.WinnerTie
}

// Reasoning returns the verdict text with its first VERDICT line removed.
func Reasoning(verdict string) string {
	loc := verdictRe.FindStringIndex(verdict)
	if loc == nil {
		return strings.TrimSpace(verdict)
	}
	start := strings.LastIndex(verdict[:loc[0]], "\n") + 1
	end := len(verdict)
	if i := strings.Index(verdict[loc[0]:], "\n"); i >= 0 {
		end = loc[0] + i + 1
	}
	return strings.TrimSpace(verdict[:start] + verdict[end:])
}
