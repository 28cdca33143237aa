package standard

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/dshills/logcheck/internal/rule"
)

//go:embed builtin.yaml
var builtinYAML []byte

var builtin = mustBuiltin()

func mustBuiltin() *Catalog {
	stds, err := Parse(builtinYAML)
	if err != nil {
		panic(fmt.Sprintf("standard: built-in definitions: %v", err))
	}
	c, err := NewCatalog(stds...)
	if err != nil {
		panic(err)
	}
	return c
}

// Catalog is an ordered, immutable set of standards keyed by id.
type Catalog struct {
	standards []rule.Standard
	index     map[string]int
}

// NewCatalog returns a catalog of stds in the given order. Standard ids must
// be unique.
func NewCatalog(stds ...rule.Standard) (*Catalog, error) {
	c := &Catalog{index: make(map[string]int, len(stds))}
	for _, s := range stds {
		if _, dup := c.index[s.ID]; dup {
			return nil, fmt.Errorf("standard: duplicate standard id %q", s.ID)
		}
		c.index[s.ID] = len(c.standards)
		c.standards = append(c.standards, s)
	}
	return c, nil
}

// Builtin returns the catalog of standards shipped with logcheck.
func Builtin() *Catalog { return builtin }

// Load reads and builds the standards in a YAML file.
func Load(path string) ([]rule.Standard, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("standard: read %s: %w", path, err)
	}
	stds, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return stds, nil
}

// Merge returns a new catalog with extra standards added. A standard whose id
// already exists replaces the existing one in place.
func (c *Catalog) Merge(extra ...rule.Standard) *Catalog {
	out := &Catalog{
		standards: append([]rule.Standard(nil), c.standards...),
		index:     make(map[string]int, len(c.index)+len(extra)),
	}
	for id, i := range c.index {
		out.index[id] = i
	}
	for _, s := range extra {
		if i, ok := out.index[s.ID]; ok {
			out.standards[i] = s
			continue
		}
		out.index[s.ID] = len(out.standards)
		out.standards = append(out.standards, s)
	}
	return out
}

// Get returns the standard with the given id.
func (c *Catalog) Get(id string) (rule.Standard, error) {
	i, ok := c.index[id]
	if !ok {
		return rule.Standard{}, fmt.Errorf("standard: unknown standard %q (available: %s)", id, strings.Join(c.IDs(), ", "))
	}
	return c.standards[i], nil
}

// List returns every standard in catalog order.
func (c *Catalog) List() []rule.Standard {
	return append([]rule.Standard(nil), c.standards...)
}

// IDs returns every standard id in catalog order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.standards))
	for i, s := range c.standards {
		ids[i] = s.ID
	}
	return ids
}

// Select returns the named standards in catalog order. An empty ids list
// selects everything.
func (c *Catalog) Select(ids []string) ([]rule.Standard, error) {
	if len(ids) == 0 {
		return c.List(), nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, err := c.Get(id); err != nil {
			return nil, err
		}
		want[id] = true
	}
	var out []rule.Standard
	for _, s := range c.standards {
		if want[s.ID] {
			out = append(out, s)
		}
	}
	return out, nil
}
