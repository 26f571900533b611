package rules

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/crimson-sun/nocdash/internal/model"
)

// Profile is one metric set with its rule table. Features is the ordered
// input vector of the classifier trained for this profile; empty when no
// model exists for it.
type Profile struct {
	Name     string
	Title    string
	Fields   []string
	Features []string
	Rules    []Rule
}

// FieldSpecs resolves the profile's field names against the registry.
func (p *Profile) FieldSpecs() []model.Field {
	out := make([]model.Field, 0, len(p.Fields))
	for _, name := range p.Fields {
		if f, ok := model.LookupField(name); ok {
			out = append(out, f)
		}
	}
	return out
}

// Has reports whether the profile collects the named field.
func (p *Profile) Has(field string) bool {
	for _, name := range p.Fields {
		if name == field {
			return true
		}
	}
	return false
}

// Evaluate runs the profile's rule table against r.
func (p *Profile) Evaluate(r model.Reading) (model.Verdict, []Rule, error) {
	return Evaluate(p.Rules, r)
}

// Catalog holds the available profiles by name.
type Catalog struct {
	profiles map[string]*Profile
}

// NewCatalog builds a catalog after validating every profile.
func NewCatalog(profiles []*Profile) (*Catalog, error) {
	c := &Catalog{profiles: make(map[string]*Profile, len(profiles))}
	var errs []error
	for _, p := range profiles {
		if err := validateProfile(p); err != nil {
			errs = append(errs, err)
			continue
		}
		c.profiles[p.Name] = p
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

// Lookup returns the named profile.
func (c *Catalog) Lookup(name string) (*Profile, bool) {
	p, ok := c.profiles[name]
	return p, ok
}

// Names returns profile names sorted alphabetically.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.profiles))
	for name := range c.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func validateProfile(p *Profile) error {
	if p.Name == "" {
		return errors.New("rules: profile with empty name")
	}
	var errs []error
	for _, name := range p.Fields {
		if _, ok := model.LookupField(name); !ok {
			errs = append(errs, fmt.Errorf("rules: profile %s: unknown field %q", p.Name, name))
		}
	}
	for _, name := range p.Features {
		if !p.Has(name) {
			errs = append(errs, fmt.Errorf("rules: profile %s: feature %q is not a collected field", p.Name, name))
		}
	}
	for i, r := range p.Rules {
		if !p.Has(r.Field) {
			errs = append(errs, fmt.Errorf("rules: profile %s: rule %d uses uncollected field %q", p.Name, i, r.Field))
		}
		if !r.Op.Valid() {
			errs = append(errs, fmt.Errorf("rules: profile %s: rule %d has invalid comparator %q", p.Name, i, r.Op))
		}
		if r.Diagnosis == "" {
			errs = append(errs, fmt.Errorf("rules: profile %s: rule %d has no diagnosis", p.Name, i))
		}
	}
	return errors.Join(errs...)
}

// overrideFile is the YAML layout accepted by LoadOverrides.
type overrideFile struct {
	Profiles map[string]struct {
		Rules []Rule `yaml:"rules"`
	} `yaml:"profiles"`
}

// LoadOverrides reads a YAML file that replaces the rule tables of the named
// profiles. Profiles not mentioned keep their rules; unknown profile names are
// an error.
func LoadOverrides(path string, profiles []*Profile) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("rules: read overrides: %w", err)
	}
	var file overrideFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("rules: parse overrides %s: %w", path, err)
	}

	index := make(map[string]*Profile, len(profiles))
	for _, p := range profiles {
		index[p.Name] = p
	}
	for name, o := range file.Profiles {
		p, ok := index[name]
		if !ok {
			return fmt.Errorf("rules: overrides reference unknown profile %q", name)
		}
		p.Rules = o.Rules
	}
	return nil
}
