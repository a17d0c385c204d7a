// Package catalog holds the built-in example diagrams.
package catalog

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed examples.yaml
var examplesYAML []byte

type ChartExample struct {
	Name     string `yaml:"name" json:"name"`
	Category string `yaml:"category" json:"category"`
	Code     string `yaml:"code" json:"code"`
}

// Group is one category with its examples in catalog order.
type Group struct {
	Category string         `json:"category"`
	Examples []ChartExample `json:"examples"`
}

type Catalog struct {
	examples []ChartExample
}

// Load parses the embedded examples.
func Load() (*Catalog, error) {
	return Parse(examplesYAML)
}

// Parse builds a catalog from YAML. Every entry needs a unique name and a
// category.
func Parse(data []byte) (*Catalog, error) {
	var examples []ChartExample
	if err := yaml.Unmarshal(data, &examples); err != nil {
		return nil, fmt.Errorf("failed to parse examples: %w", err)
	}
	seen := make(map[string]bool, len(examples))
	for i, ex := range examples {
		if ex.Name == "" || ex.Category == "" {
			return nil, fmt.Errorf("example %d is missing a name or category", i)
		}
		if seen[ex.Name] {
			return nil, fmt.Errorf("duplicate example %q", ex.Name)
		}
		seen[ex.Name] = true
	}
	return &Catalog{examples: examples}, nil
}

// MustLoad is Load for callers that treat a broken embedded catalog as a
// programming error, such as tests.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) All() []ChartExample {
	out := make([]ChartExample, len(c.examples))
	copy(out, c.examples)
	return out
}

// Categories lists categories in order of first appearance.
func (c *Catalog) Categories() []string {
	return categoriesOf(c.examples)
}

func (c *Catalog) Grouped() []Group {
	return group(c.examples)
}

// SearchGrouped is Search with the matches grouped by category.
func (c *Catalog) SearchGrouped(term string) []Group {
	return group(c.Search(term))
}

func (c *Catalog) Find(name string) (ChartExample, bool) {
	for _, ex := range c.examples {
		if ex.Name == name {
			return ex, true
		}
	}
	return ChartExample{}, false
}

// Search matches term case-insensitively against name, category and code.
// A blank term matches everything.
func (c *Catalog) Search(term string) []ChartExample {
	term = strings.ToLower(strings.TrimSpace(term))
	var out []ChartExample
	for _, ex := range c.examples {
		if term == "" ||
			strings.Contains(strings.ToLower(ex.Name), term) ||
			strings.Contains(strings.ToLower(ex.Category), term) ||
			strings.Contains(strings.ToLower(ex.Code), term) {
			out = append(out, ex)
		}
	}
	return out
}

func categoriesOf(examples []ChartExample) []string {
	var cats []string
	seen := map[string]bool{}
	for _, ex := range examples {
		if !seen[ex.Category] {
			seen[ex.Category] = true
			cats = append(cats, ex.Category)
		}
	}
	return cats
}

func group(examples []ChartExample) []Group {
	categories := categoriesOf(examples)
	groups := make([]Group, 0, len(categories))
	for _, cat := range categories {
		g := Group{Category: cat}
		for _, ex := range examples {
			if ex.Category == cat {
				g.Examples = append(g.Examples, ex)
			}
		}
		groups = append(groups, g)
	}
	return groups
}
