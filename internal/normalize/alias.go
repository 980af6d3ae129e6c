package normalize

import (
	"strings"

	"github.com/woozymasta/mapalign/internal/geo"
)

// AliasSeparator joins alias lists.
const AliasSeparator = ", "

// aliasSet is an insertion ordered set of alternate names.
type aliasSet struct {
	seen  map[string]struct{}
	items []string
}

func newAliasSet() *aliasSet {
	return &aliasSet{seen: make(map[string]struct{})}
}

// add splits a comma separated list and keeps new, non-empty entries.
// Entries equal to exclude (the feature name) are dropped.
func (s *aliasSet) add(list, exclude string) {
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" || part == exclude {
			continue
		}
		if _, ok := s.seen[part]; ok {
			continue
		}
		s.seen[part] = struct{}{}
		s.items = append(s.items, part)
	}
}

// addValue adds a property value that is either a comma separated string,
// a number, or a list of those. It reports false for any other shape.
func (s *aliasSet) addValue(v any, exclude string) bool {
	switch v := v.(type) {
	case nil:
		return true
	case []any:
		for _, item := range v {
			if !s.addValue(item, exclude) {
				return false
			}
		}
		return true
	case []string:
		for _, item := range v {
			s.add(item, exclude)
		}
		return true
	}

	str := geo.PropertyString(v)
	if str == "" {
		if _, ok := v.(string); !ok {
			return false
		}
	}
	s.add(str, exclude)

	return true
}

func (s *aliasSet) String() string {
	return strings.Join(s.items, AliasSeparator)
}

// MergeAliases returns the ordered union of alias lists.
func MergeAliases(name string, lists ...string) string {
	set := newAliasSet()
	for _, l := range lists {
		set.add(l, name)
	}

	return set.String()
}
