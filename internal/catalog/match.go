package catalog

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Exclusion terms prefixed with "re:" are treated as case-insensitive
// regular expressions; everything else is a plain substring match.
const regexPrefix = "re:"

// TitleMatches reports whether every whitespace-separated token of the
// keyword appears in the title, case-insensitively. Marketplace search
// results can be noisy, so the winning listing must still carry the full
// keyword.
func TitleMatches(title, keyword string) bool {
	lower := strings.ToLower(title)
	for _, tok := range strings.Fields(strings.ToLower(keyword)) {
		if !strings.Contains(lower, tok) {
			return false
		}
	}
	return true
}

// Excluded reports whether the title matches any exclusion term.
// Invalid regex terms never match.
func Excluded(title string, terms []string) bool {
	lower := strings.ToLower(title)
	for _, term := range terms {
		if pat, ok := strings.CutPrefix(term, regexPrefix); ok {
			re, err := regexp.Compile("(?i)" + pat)
			if err != nil {
				continue
			}
			if re.MatchString(title) {
				return true
			}
			continue
		}
		if strings.Contains(lower, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

// ValidateExcludeTerm checks that an exclusion term is storable and
// usable: terms must be non-empty and free of whitespace (the stored
// form is whitespace-delimited), and regex terms must compile.
func ValidateExcludeTerm(term string) error {
	if term == "" {
		return fmt.Errorf("empty exclusion term")
	}
	if strings.IndexFunc(term, unicode.IsSpace) >= 0 {
		return fmt.Errorf("exclusion term %q contains whitespace", term)
	}
	pat, ok := strings.CutPrefix(term, regexPrefix)
	if !ok {
		return nil
	}
	if _, err := regexp.Compile("(?i)" + pat); err != nil {
		return fmt.Errorf("invalid regex %q: %w", pat, err)
	}
	return nil
}
