// Package labels defines the ownership labels docprov stamps on every
// manifest parsed from a project.
package labels

import (
	"fmt"
	"sort"
)

// Reserved label keys. A manifest may not set them to anything other than
// what the project says.
const (
	LabelProject   = "docprov.io/project"
	LabelVersion   = "docprov.io/version"
	LabelManagedBy = "docprov.io/managed-by"

	ManagedByValue = "docprov"
)

// Standard returns the reserved labels of a project release
func Standard(project, version string) map[string]string {
	return map[string]string{
		LabelProject:   project,
		LabelVersion:   version,
		LabelManagedBy: ManagedByValue,
	}
}

// Apply returns declared with the reserved labels of standard on top.
// Declared labels outside the reserved keys are kept.
func Apply(declared, standard map[string]string) map[string]string {
	out := make(map[string]string, len(declared)+len(standard))
	for k, v := range declared {
		out[k] = v
	}
	for k, v := range standard {
		out[k] = v
	}
	return out
}

// Conflict is a reserved label a manifest sets to a foreign value
type Conflict struct {
	Key      string
	Declared string
	Expected string
}

func (c Conflict) String() string {
	return fmt.Sprintf("label %s=%q is reserved, expected %q", c.Key, c.Declared, c.Expected)
}

// Conflicts lists, sorted by key, the reserved labels declared with a value
// Apply would replace
func Conflicts(declared, standard map[string]string) []Conflict {
	var conflicts []Conflict
	for k, expected := range standard {
		if v, ok := declared[k]; ok && v != expected {
			conflicts = append(conflicts, Conflict{Key: k, Declared: v, Expected: expected})
		}
	}
	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].Key < conflicts[j].Key })
	return conflicts
}
