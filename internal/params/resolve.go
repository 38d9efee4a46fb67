package params

import (
	"sort"

	"github.com/bitswalk/releng/internal/errs"
)

// ResolveResult is the output of Resolve: a topological build order plus
// the subset of dependencies that must additionally be built for the
// build machine.
type ResolveResult struct {
	Order        []string
	AlsoForBuild map[string]bool
}

// Resolve computes a topological order over the given package subset
// using Kahn's algorithm. pkgs must already be filtered to the
// candidate/selected set; every dependency identifier must be present
// as a key, or ErrMissingDependency is returned.
func Resolve(pkgs map[string]Package, scope Scope) (*ResolveResult, error) {
	inDegree := make(map[string]int, len(pkgs))
	adj := make(map[string][]string, len(pkgs))
	alsoForBuild := make(map[string]bool)

	for id := range pkgs {
		inDegree[id] = 0
	}

	for id, pkg := range pkgs {
		for _, dep := range pkg.ResolvedDependencies(scope) {
			if _, ok := pkgs[dep.Identifier]; !ok {
				return nil, errs.ErrMissingDependency.WithMessagef(
					"package %q depends on %q, which is not in the selected set", id, dep.Identifier)
			}
			adj[dep.Identifier] = append(adj[dep.Identifier], id)
			inDegree[id]++
			if dep.ForMachine == ForMachineBuild {
				alsoForBuild[dep.Identifier] = true
			}
		}
	}

	var ready []string
	for id, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	var order []string
	for len(ready) > 0 {
		sort.Strings(ready)
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		var unlocked []string
		for _, next := range adj[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				unlocked = append(unlocked, next)
			}
		}
		sort.Strings(unlocked)
		ready = append(ready, unlocked...)
	}

	if len(order) != len(pkgs) {
		remaining := make([]string, 0, len(pkgs)-len(order))
		seen := make(map[string]bool, len(order))
		for _, id := range order {
			seen[id] = true
		}
		for id := range pkgs {
			if !seen[id] {
				remaining = append(remaining, id)
			}
		}
		sort.Strings(remaining)
		return nil, errs.ErrDependencyCycle.WithMessagef(
			"dependency cycle among packages: %v", remaining)
	}

	return &ResolveResult{Order: order, AlsoForBuild: alsoForBuild}, nil
}

// CandidateSet filters pkgs down to those whose When predicate (if any) is
// satisfied by scope.
func CandidateSet(pkgs map[string]Package, scope Scope) map[string]Package {
	out := make(map[string]Package)
	for id, pkg := range pkgs {
		if pkg.When == nil || pkg.When.Eval(scope) {
			out[id] = pkg
		}
	}
	return out
}

// SelectForToolchain seeds the selection with every scope=="toolchain"
// package and transitively closes over dependencies.
func SelectForToolchain(candidates map[string]Package, scope Scope) map[string]Package {
	var seeds []string
	for id, pkg := range candidates {
		if pkg.Scope == "toolchain" {
			seeds = append(seeds, id)
		}
	}
	return TransitiveClose(candidates, seeds, scope)
}

// SelectForSDK selects every package with an empty scope.
func SelectForSDK(candidates map[string]Package) map[string]Package {
	out := make(map[string]Package)
	for id, pkg := range candidates {
		if pkg.Scope == "" {
			out[id] = pkg
		}
	}
	return out
}

// TransitiveClose starts from seedIDs and transitively closes over
// dependencies, backing both the "explicit ids" and "toolchain scope"
// selection modes.
func TransitiveClose(candidates map[string]Package, seedIDs []string, scope Scope) map[string]Package {
	out := make(map[string]Package)
	var walk func(id string)
	walk = func(id string) {
		if _, done := out[id]; done {
			return
		}
		pkg, ok := candidates[id]
		if !ok {
			return
		}
		out[id] = pkg
		for _, dep := range pkg.ResolvedDependencies(scope) {
			walk(dep.Identifier)
		}
	}
	for _, id := range seedIDs {
		walk(id)
	}
	return out
}

// ExcludeIDs removes the given identifiers from selected.
func ExcludeIDs(selected map[string]Package, excluded map[string]bool) map[string]Package {
	if len(excluded) == 0 {
		return selected
	}
	out := make(map[string]Package, len(selected))
	for id, pkg := range selected {
		if !excluded[id] {
			out[id] = pkg
		}
	}
	return out
}
