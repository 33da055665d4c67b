// Package schema holds the static configuration the pipeline is driven by:
// derivative-type field sets, the alias table used for classification, and
// the section template used for document extraction.
package schema

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/termsheet-validation/backend/internal/keys"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// DerivativeType is one classification target. Field sets are stored
// normalized.
type DerivativeType struct {
	Name      string
	Expected  []string
	Mandatory []string

	expected  map[string]struct{}
	mandatory map[string]struct{}
}

// Expects reports whether the normalized field belongs to the all-expected set.
func (d *DerivativeType) Expects(field string) bool {
	_, ok := d.expected[field]
	return ok
}

// Requires reports whether the normalized field is mandatory.
func (d *DerivativeType) Requires(field string) bool {
	_, ok := d.mandatory[field]
	return ok
}

// Section is a heading of a termsheet with the labels expected under it.
type Section struct {
	Heading string   `yaml:"heading" json:"heading"`
	Fields  []string `yaml:"fields" json:"fields"`
}

// Catalog is immutable once built.
type Catalog struct {
	types    []*DerivativeType
	byName   map[string]*DerivativeType
	aliases  map[string]string
	sections []Section
	resolver *keys.Resolver
}

type catalogFile struct {
	Derivatives map[string]struct {
		Expected  []string `yaml:"expected"`
		Mandatory []string `yaml:"mandatory"`
	} `yaml:"derivatives"`
	Aliases  map[string]string `yaml:"aliases"`
	Sections []Section         `yaml:"sections"`
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
)

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(defaultCatalog)
		if err != nil {
			panic(fmt.Sprintf("schema: embedded catalog is invalid: %v", err))
		}
		defaultCat = c
	})
	return defaultCat
}

// Parse builds a catalog from YAML. Every mandatory field must also be an
// expected field of the same type.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if len(f.Derivatives) == 0 {
		return nil, fmt.Errorf("catalog defines no derivative types")
	}

	c := &Catalog{
		byName:   make(map[string]*DerivativeType, len(f.Derivatives)),
		aliases:  make(map[string]string, len(f.Aliases)),
		sections: f.Sections,
	}

	expectedSets := make([][]string, 0, len(f.Derivatives))
	for name, def := range f.Derivatives {
		dt := &DerivativeType{
			Name:      name,
			expected:  make(map[string]struct{}),
			mandatory: make(map[string]struct{}),
		}
		for _, field := range def.Expected {
			n := keys.Normalize(field)
			if _, dup := dt.expected[n]; dup || n == "" {
				continue
			}
			dt.expected[n] = struct{}{}
			dt.Expected = append(dt.Expected, n)
		}
		for _, field := range def.Mandatory {
			n := keys.Normalize(field)
			if _, ok := dt.expected[n]; !ok {
				return nil, fmt.Errorf("%s: mandatory field %q is not an expected field", name, field)
			}
			if _, dup := dt.mandatory[n]; dup {
				continue
			}
			dt.mandatory[n] = struct{}{}
			dt.Mandatory = append(dt.Mandatory, n)
		}
		sort.Strings(dt.Expected)
		sort.Strings(dt.Mandatory)

		c.types = append(c.types, dt)
		c.byName[keys.Normalize(name)] = dt
		expectedSets = append(expectedSets, dt.Expected)
	}
	sort.Slice(c.types, func(i, j int) bool { return c.types[i].Name < c.types[j].Name })

	for alias, canonical := range f.Aliases {
		c.aliases[keys.Normalize(alias)] = keys.Normalize(canonical)
	}
	c.resolver = keys.NewResolver(c.aliases, expectedSets...)

	return c, nil
}

// Types returns the derivative types sorted by name.
func (c *Catalog) Types() []*DerivativeType {
	return c.types
}

// Type finds a derivative type by name, case-insensitively.
func (c *Catalog) Type(name string) (*DerivativeType, bool) {
	dt, ok := c.byName[keys.Normalize(name)]
	return dt, ok
}

func (c *Catalog) Resolver() *keys.Resolver {
	return c.resolver
}

// Sections returns a copy of the extraction section template.
func (c *Catalog) Sections() []Section {
	out := make([]Section, len(c.sections))
	for i, s := range c.sections {
		out[i] = Section{Heading: s.Heading, Fields: append([]string(nil), s.Fields...)}
	}
	return out
}

// LoadSections reads a section template from a YAML file holding a top-level
// "sections" list, as in the embedded catalog.
func LoadSections(path string) ([]Section, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read section template: %w", err)
	}

	var f struct {
		Sections []Section `yaml:"sections"`
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse section template: %w", err)
	}
	if len(f.Sections) == 0 {
		return nil, fmt.Errorf("section template %s defines no sections", path)
	}
	return f.Sections, nil
}
