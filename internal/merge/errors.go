package merge

import (
	"fmt"
	"strings"
)

// Markers printed with merge failures so they are easy to grep for.
const (
	MarkerInvalid     = "INVALID_FEATURES"
	MarkerSetMismatch = "NAME_SET_MISMATCH"
	MarkerCardinality = "CARDINALITY_MISMATCH"
)

// Side names one of the two merge inputs.
type Side string

// Merge inputs.
const (
	SideGeometry   Side = "geometry"
	SideAttributes Side = "attributes"
)

// FeatureIssue locates an input feature that cannot take part in a merge.
type FeatureIssue struct {
	Side   Side
	ID     string
	Reason string
	Index  int
}

func (i FeatureIssue) String() string {
	return fmt.Sprintf("side=%s feature=%d id=%q: %s", i.Side, i.Index, i.ID, i.Reason)
}

// FeatureError lists every invalid input feature.
type FeatureError struct {
	Issues []FeatureIssue
}

func (e *FeatureError) Error() string {
	return fmt.Sprintf("%s: %d invalid features", MarkerInvalid, len(e.Issues))
}

// SetMismatchError reports names present on only one side.
type SetMismatchError struct {
	OnlyGeometry   []string
	OnlyAttributes []string
	// Cap limits how many names Lines prints per side.
	Cap int
}

func (e *SetMismatchError) Error() string {
	return fmt.Sprintf("%s: %d names only in geometry input, %d names only in attributes input",
		MarkerSetMismatch, len(e.OnlyGeometry), len(e.OnlyAttributes))
}

// Lines renders the capped listing of both directions.
func (e *SetMismatchError) Lines() []string {
	var lines []string
	lines = append(lines, capped("only in geometry", e.OnlyGeometry, e.Cap)...)
	lines = append(lines, capped("only in attributes", e.OnlyAttributes, e.Cap)...)

	return lines
}

func capped(label string, names []string, limit int) []string {
	if len(names) == 0 {
		return nil
	}
	if limit <= 0 || limit > len(names) {
		limit = len(names)
	}

	lines := make([]string, 0, limit+1)
	for _, n := range names[:limit] {
		lines = append(lines, fmt.Sprintf("%s: %q", label, n))
	}
	if rest := len(names) - limit; rest > 0 {
		lines = append(lines, fmt.Sprintf("%s: ... and %d more", label, rest))
	}

	return lines
}

// Cardinality is a name whose occurrence counts differ between inputs.
type Cardinality struct {
	Name       string
	Geometry   int
	Attributes int
}

func (c Cardinality) String() string {
	return fmt.Sprintf("name=%q geometry=%d attributes=%d", c.Name, c.Geometry, c.Attributes)
}

// CardinalityError lists every mismatched duplicate group.
type CardinalityError struct {
	Mismatches []Cardinality
}

func (e *CardinalityError) Error() string {
	names := make([]string, 0, len(e.Mismatches))
	for _, m := range e.Mismatches {
		names = append(names, fmt.Sprintf("%q", m.Name))
	}

	return fmt.Sprintf("%s: duplicate counts differ for %s", MarkerCardinality, strings.Join(names, ", "))
}
