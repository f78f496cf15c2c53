package viewport

import (
	"regexp"
	"strings"
)

// Filter matches event labels against a user supplied pattern. Patterns are
// case-insensitive regular expressions; a pattern that does not compile is
// matched as a plain substring instead.
type Filter struct {
	pattern string
	re      *regexp.Regexp
	substr  string
}

func NewFilter(pattern string) Filter {
	f := Filter{pattern: pattern}
	if pattern == "" {
		return f
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		f.substr = strings.ToLower(pattern)
		return f
	}
	f.re = re
	return f
}

func (f Filter) Pattern() string { return f.pattern }

func (f Filter) Active() bool { return f.pattern != "" }

// IsRegexp reports whether the pattern compiled as a regular expression.
func (f Filter) IsRegexp() bool { return f.re != nil }

// Match reports whether any of the given strings matches. An inactive filter matches everything.
func (f Filter) Match(candidates ...string) bool {
	if !f.Active() {
		return true
	}
	for _, s := range candidates {
		if s == "" {
			continue
		}
		if f.re != nil {
			if f.re.MatchString(s) {
				return true
			}
			continue
		}
		if strings.Contains(strings.ToLower(s), f.substr) {
			return true
		}
	}
	return false
}
