// Package params loads the dependency description document (deps-description,
// a TOML file) into typed Package/Option/Dependency/Parameters records and
// evaluates their `when` predicates against a (bundle, machine) scope.
//
// Grounded on bitswalk/ldf's declarative-config loading conventions; uses
// github.com/pelletier/go-toml/v2 as the TOML decoder.
package params

import (
	"fmt"
	"os"
	"sort"

	"github.com/bitswalk/releng/internal/errs"
	"github.com/bitswalk/releng/internal/machinespec"
	"github.com/pelletier/go-toml/v2"
)

// Bundle identifies which archive kind is being operated on.
type Bundle int

const (
	BundleToolchain Bundle = iota
	BundleSDK
)

func (b Bundle) String() string {
	if b == BundleToolchain {
		return "toolchain"
	}
	return "sdk"
}

// ForMachine tags which machine a dependency is required for.
type ForMachine string

const (
	ForMachineHost  ForMachine = "host"
	ForMachineBuild ForMachine = "build"
)

// Scope is the evaluation context for a Predicate.
type Scope struct {
	Bundle  Bundle
	Machine machinespec.Spec
}

// Option is a single build-driver option string, conditionally included.
type Option struct {
	Value string
	When  *Predicate
}

// Dependency references another package, optionally scoped to a machine
// and conditionally included.
type Dependency struct {
	Identifier string
	ForMachine ForMachine
	When       *Predicate
}

// Package is a single buildable unit.
type Package struct {
	Identifier   string
	Name         string
	DisplayURL   string
	Version      string
	Options      []Option
	Dependencies []Dependency
	Scope        string
	When         *Predicate
}

// ResolvedOptions returns the Value of every option whose When predicate
// (if any) is satisfied by scope.
func (p Package) ResolvedOptions(scope Scope) []string {
	var out []string
	for _, opt := range p.Options {
		if opt.When == nil || opt.When.Eval(scope) {
			out = append(out, opt.Value)
		}
	}
	return out
}

// ResolvedDependencies returns the dependencies whose When predicate (if
// any) is satisfied by scope.
func (p Package) ResolvedDependencies(scope Scope) []Dependency {
	var out []Dependency
	for _, dep := range p.Dependencies {
		if dep.When == nil || dep.When.Eval(scope) {
			out = append(out, dep)
		}
	}
	return out
}

// Parameters is the parsed deps-description document.
type Parameters struct {
	DepsVersion      string
	BootstrapVersion string
	Packages         map[string]Package
}

type rawDependencies struct {
	Version          string `toml:"version"`
	BootstrapVersion string `toml:"bootstrap_version"`
}

type rawPackage struct {
	Name         string        `toml:"name"`
	Version      string        `toml:"version"`
	URL          string        `toml:"url"`
	Options      []rawOption   `toml:"options"`
	Dependencies []rawDepEntry `toml:"dependencies"`
	Scope        string        `toml:"scope"`
	When         string        `toml:"when"`
}

// rawOption accepts either a bare string or {value, when} via a custom
// unmarshaler since go-toml/v2 does not support sum-typed fields natively.
type rawOption struct {
	Value string
	When  string
}

func (o *rawOption) UnmarshalTOML(v interface{}) error {
	switch val := v.(type) {
	case string:
		o.Value = val
		return nil
	case map[string]interface{}:
		if s, ok := val["value"].(string); ok {
			o.Value = s
		}
		if s, ok := val["when"].(string); ok {
			o.When = s
		}
		return nil
	default:
		return fmt.Errorf("params: option entry has unsupported shape %T", v)
	}
}

type rawDepEntry struct {
	ID         string
	ForMachine string
	When       string
}

func (d *rawDepEntry) UnmarshalTOML(v interface{}) error {
	switch val := v.(type) {
	case string:
		d.ID = val
		d.ForMachine = string(ForMachineHost)
		return nil
	case map[string]interface{}:
		if s, ok := val["id"].(string); ok {
			d.ID = s
		}
		if s, ok := val["for_machine"].(string); ok {
			d.ForMachine = s
		} else {
			d.ForMachine = string(ForMachineHost)
		}
		if s, ok := val["when"].(string); ok {
			d.When = s
		}
		return nil
	default:
		return fmt.Errorf("params: dependency entry has unsupported shape %T", v)
	}
}

// Load reads and parses a deps-description document from path.
func Load(path string) (*Parameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.ErrConfig.WithCause(err).WithMessagef("reading %s", path)
	}
	return Parse(data)
}

// Parse decodes raw TOML bytes into Parameters. Top-level keys other than
// "dependencies" are treated as package identifiers.
func Parse(data []byte) (*Parameters, error) {
	var generic map[string]interface{}
	if err := toml.Unmarshal(data, &generic); err != nil {
		return nil, errs.ErrConfig.WithCause(err).WithMessage("decoding deps-description")
	}

	var depsBlock rawDependencies
	if raw, ok := generic["dependencies"]; ok {
		encoded, err := toml.Marshal(raw)
		if err != nil {
			return nil, errs.ErrConfig.WithCause(err).WithMessage("re-encoding [dependencies] block")
		}
		if err := toml.Unmarshal(encoded, &depsBlock); err != nil {
			return nil, errs.ErrConfig.WithCause(err).WithMessage("decoding [dependencies] block")
		}
	}

	out := &Parameters{
		DepsVersion:      depsBlock.Version,
		BootstrapVersion: depsBlock.BootstrapVersion,
		Packages:         make(map[string]Package),
	}

	ids := make([]string, 0, len(generic))
	for id := range generic {
		if id == "dependencies" {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		encoded, err := toml.Marshal(generic[id])
		if err != nil {
			return nil, errs.ErrConfig.WithCause(err).WithMessagef("re-encoding package %q", id)
		}
		var raw rawPackage
		if err := toml.Unmarshal(encoded, &raw); err != nil {
			return nil, errs.ErrConfig.WithCause(err).WithMessagef("decoding package %q", id)
		}

		pkg := Package{
			Identifier: id,
			Name:       raw.Name,
			DisplayURL: raw.URL,
			Version:    raw.Version,
			Scope:      raw.Scope,
		}
		if raw.When != "" {
			pred, err := ParsePredicate(raw.When)
			if err != nil {
				return nil, errs.ErrConfig.WithCause(err).WithMessagef("package %q: when clause", id)
			}
			pkg.When = pred
		}
		for _, ro := range raw.Options {
			opt := Option{Value: ro.Value}
			if ro.When != "" {
				pred, err := ParsePredicate(ro.When)
				if err != nil {
					return nil, errs.ErrConfig.WithCause(err).WithMessagef("package %q: option when clause", id)
				}
				opt.When = pred
			}
			pkg.Options = append(pkg.Options, opt)
		}
		for _, rd := range raw.Dependencies {
			if rd.ID == "" {
				return nil, errs.ErrConfig.WithMessagef("package %q: dependency entry missing id", id)
			}
			fm := ForMachine(rd.ForMachine)
			if fm == "" {
				fm = ForMachineHost
			}
			dep := Dependency{Identifier: rd.ID, ForMachine: fm}
			if rd.When != "" {
				pred, err := ParsePredicate(rd.When)
				if err != nil {
					return nil, errs.ErrConfig.WithCause(err).WithMessagef("package %q: dependency %q when clause", id, rd.ID)
				}
				dep.When = pred
			}
			pkg.Dependencies = append(pkg.Dependencies, dep)
		}

		out.Packages[id] = pkg
	}

	return out, nil
}

// Validate checks that every dependency identifier refers to a known
// package.
func (p *Parameters) Validate() error {
	for id, pkg := range p.Packages {
		for _, dep := range pkg.Dependencies {
			if _, ok := p.Packages[dep.Identifier]; !ok {
				return errs.ErrMissingDependency.WithMessagef(
					"package %q depends on unknown package %q", id, dep.Identifier)
			}
		}
	}
	return nil
}
