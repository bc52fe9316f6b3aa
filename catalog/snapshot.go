// Package catalog holds the versioned, weighted rule catalog. A Snapshot is
// an immutable view of one catalog version; a Store swaps snapshots
// atomically on reload so in-flight validations keep the view they started
// with.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/c360studio/defcheck/rules"
)

// ErrUnknownProfile is returned when a requested profile is not defined.
var ErrUnknownProfile = errors.New("unknown profile")

// Profile selects a subset of rule codes by glob.
type Profile struct {
	// Include lists code globs to select. Empty selects every rule.
	Include []string `json:"include,omitempty" yaml:"include,omitempty"`

	// Exclude lists code globs removed after Include.
	Exclude []string `json:"exclude,omitempty" yaml:"exclude,omitempty"`
}

// Matches reports whether code is selected by the profile.
func (p Profile) Matches(code string) bool {
	included := len(p.Include) == 0
	for _, pattern := range p.Include {
		if ok, _ := doublestar.Match(pattern, code); ok {
			included = true
			break
		}
	}
	if !included {
		return false
	}
	for _, pattern := range p.Exclude {
		if ok, _ := doublestar.Match(pattern, code); ok {
			return false
		}
	}
	return true
}

func (p Profile) validate() error {
	for _, pattern := range append(append([]string{}, p.Include...), p.Exclude...) {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid glob %q", pattern)
		}
	}
	return nil
}

// Snapshot is one immutable catalog version.
type Snapshot struct {
	version  string
	source   string
	loadedAt time.Time
	rules    []rules.Definition
	index    map[string]int
	profiles map[string]Profile
}

// NewSnapshot validates defs and profiles and builds a snapshot. Rules are
// ordered by category, then code.
func NewSnapshot(version string, defs []rules.Definition, profiles map[string]Profile) (*Snapshot, error) {
	sorted := make([]rules.Definition, len(defs))
	copy(sorted, defs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Category != sorted[j].Category {
			return sorted[i].Category < sorted[j].Category
		}
		return sorted[i].Code < sorted[j].Code
	})

	index := make(map[string]int, len(sorted))
	for i, def := range sorted {
		if err := def.Validate(); err != nil {
			return nil, err
		}
		if _, dup := index[def.Code]; dup {
			return nil, fmt.Errorf("duplicate rule code %s", def.Code)
		}
		index[def.Code] = i
	}

	profs := make(map[string]Profile, len(profiles))
	for name, p := range profiles {
		if name == "" {
			return nil, fmt.Errorf("profile name is required")
		}
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("profile %s: %w", name, err)
		}
		profs[name] = p
	}

	return &Snapshot{
		version:  version,
		loadedAt: time.Now(),
		rules:    sorted,
		index:    index,
		profiles: profs,
	}, nil
}

// Version returns the catalog version.
func (s *Snapshot) Version() string { return s.version }

// Source describes where the snapshot was loaded from.
func (s *Snapshot) Source() string { return s.source }

// LoadedAt returns when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// Len returns the number of rules, enabled or not.
func (s *Snapshot) Len() int { return len(s.rules) }

// Rules returns a copy of every rule in catalog order.
func (s *Snapshot) Rules() []rules.Definition {
	out := make([]rules.Definition, len(s.rules))
	copy(out, s.rules)
	return out
}

// Lookup returns the definition for code.
func (s *Snapshot) Lookup(code string) (rules.Definition, bool) {
	i, ok := s.index[code]
	if !ok {
		return rules.Definition{}, false
	}
	return s.rules[i], true
}

// Profiles returns the profile names, sorted.
func (s *Snapshot) Profiles() []string {
	names := make([]string, 0, len(s.profiles))
	for name := range s.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Profile returns the named profile.
func (s *Snapshot) Profile(name string) (Profile, bool) {
	p, ok := s.profiles[name]
	return p, ok
}

// RulesFor returns the enabled rules selected by profile, in catalog order.
// An empty profile selects every enabled rule.
func (s *Snapshot) RulesFor(profile string) ([]rules.Definition, error) {
	var sel Profile
	if profile != "" {
		p, ok := s.profiles[profile]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, profile)
		}
		sel = p
	}

	out := make([]rules.Definition, 0, len(s.rules))
	for _, def := range s.rules {
		if def.Enabled && sel.Matches(def.Code) {
			out = append(out, def)
		}
	}
	return out, nil
}

// ByCategory partitions the enabled rules by category. Each partition keeps
// catalog order.
func (s *Snapshot) ByCategory() map[rules.Category][]rules.Definition {
	out := make(map[rules.Category][]rules.Definition)
	for _, def := range s.rules {
		if def.Enabled {
			out[def.Category] = append(out[def.Category], def)
		}
	}
	return out
}
