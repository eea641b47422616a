// Package smell defines the closed vocabulary of test-smell kinds and the
// normalized, order-preserving shape of a detector report.
package smell

import "sort"

// ID is the short stable code for one smell kind.
type ID string

const (
	NARV ID = "NARV" // Not asserted return values
	NASE ID = "NASE" // Not asserted side effects
	ARPM ID = "ARPM" // Assertion with not related parent class method
	OIMT ID = "OIMT" // Asserting object initialization multiple times
	DS   ID = "DS"   // Duplicated Setup
	TSES ID = "TSES" // Testing the same exception scenario
	TSVM ID = "TSVM" // Multiple calls to the same void method
	NNA  ID = "NNA"  // Not null assertion
	ENET ID = "ENET" // Exceptions due to null arguments
	EDIS ID = "EDIS" // Exceptions due to incomplete setup
	EDED ID = "EDED" // Exceptions due to external dependencies
	TOFA ID = "TOFA" // Testing only field accesors
	AC   ID = "AC"   // Asserting Constants
)

func (id ID) String() string { return string(id) }

// Deterministic reports whether the smell is repaired by a pure text rule
// instead of the completion loop.
func (id ID) Deterministic() bool {
	return id == NNA || id == DS
}

// Catalog maps detector labels to smell ids. It is immutable after
// construction and handed explicitly to every consumer; nothing in this
// module consults a package-level table.
type Catalog struct {
	byLabel map[string]ID
}

// NewCatalog builds a catalog from a label table. The table is copied.
func NewCatalog(byLabel map[string]ID) Catalog {
	m := make(map[string]ID, len(byLabel))
	for label, id := range byLabel {
		m[label] = id
	}
	return Catalog{byLabel: m}
}

// DefaultCatalog returns the catalog of the 13 labels emitted by the Smelly
// detector.
func DefaultCatalog() Catalog {
	return NewCatalog(map[string]ID{
		"Not asserted side effects":                       NASE,
		"Not asserted return values":                      NARV,
		"Assertion with not related parent class method":  ARPM,
		"Asserting object initialization multiple times":  OIMT,
		"Duplicated Setup":                                DS,
		"Testing the same exception scenario":             TSES,
		"Multiple calls to the same void method":          TSVM,
		"Not null assertion":                              NNA,
		"Exceptions due to null arguments":                ENET,
		"Exceptions due to incomplete setup":              EDIS,
		"Exceptions due to external dependencies":         EDED,
		"Testing only field accesors":                     TOFA,
		"Asserting Constants":                             AC,
	})
}

// IDFor resolves a detector label. Unknown labels return ok=false; callers
// skip them rather than fail.
func (c Catalog) IDFor(label string) (ID, bool) {
	id, ok := c.byLabel[label]
	return id, ok
}

// Labels returns the known labels in sorted order.
func (c Catalog) Labels() []string {
	out := make([]string, 0, len(c.byLabel))
	for label := range c.byLabel {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

// Len reports how many labels the catalog knows.
func (c Catalog) Len() int {
	return len(c.byLabel)
}
