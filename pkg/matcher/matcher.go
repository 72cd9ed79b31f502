// Package matcher finds configured keywords inside text and URLs.
package matcher

import "strings"

// Keywords is an ordered, case-folded, duplicate-free keyword set.
type Keywords []string

// NewKeywords trims and case-folds raw, dropping blanks and repeats while
// keeping the caller's order.
func NewKeywords(raw []string) Keywords {
	seen := make(map[string]struct{}, len(raw))
	out := make(Keywords, 0, len(raw))
	for _, k := range raw {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// ParseList splits a comma-separated keyword list.
func ParseList(s string) Keywords {
	return NewKeywords(strings.Split(s, ","))
}

// Match returns the keywords contained in text, in set order.
func (k Keywords) Match(text string) []string {
	if text == "" || len(k) == 0 {
		return nil
	}
	lower := strings.ToLower(text)
	var matched []string
	for _, kw := range k {
		if strings.Contains(lower, kw) {
			matched = append(matched, kw)
		}
	}
	return matched
}

// Match is the stateless form of Keywords.Match for callers holding a plain
// slice. Keywords are compared case-insensitively and returned as given.
func Match(text string, keywords []string) []string {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)
	var matched []string
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			matched = append(matched, kw)
		}
	}
	return matched
}
