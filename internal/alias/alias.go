// Package alias implements tag-alias expansion and cycle validation (spec
// §9 "Alias graph"), grounded on the cycle-guarded expansion in
// _examples/original_source/src/model/parser.rs
// (collect_alias_expansions / validate_alias_integrity). Alias storage
// itself lives in config.toml's tag_aliases map (spec §6); this package is
// the pure graph algorithm over that map.
package alias

import "fmt"

// ErrCycle is returned when an alias graph traversal or validation
// encounters a cycle.
type ErrCycle struct {
	Chain []string
}

func (e *ErrCycle) Error() string {
	return fmt.Sprintf("cfait: alias: cycle detected: %v", e.Chain)
}

// Expand recursively resolves tag into the set of tags it ultimately
// stands for, using aliases (lhs -> list of rhs tags). A visited set stops
// traversal at a cycle rather than looping forever; cyclic entries are
// dropped from the result rather than erroring, since expansion happens at
// use time on data that may already be stored (spec §9: "guarded by a
// visited-set to stop at cycles").
func Expand(tag string, aliases map[string][]string) []string {
	visited := map[string]bool{}
	out := []string{}
	var walk func(t string)
	walk = func(t string) {
		if visited[t] {
			return
		}
		visited[t] = true
		rhs, ok := aliases[t]
		if !ok {
			out = append(out, t)
			return
		}
		for _, r := range rhs {
			walk(r)
		}
	}
	walk(tag)
	return dedup(out)
}

// ValidateNewAlias rejects a new alias whose right-hand side reaches back
// to lhs, directly or transitively, through the existing alias map (spec
// §9: "The validator rejects new aliases whose RHS reaches the LHS").
func ValidateNewAlias(lhs string, rhs []string, existing map[string][]string) error {
	if containsStr(rhs, lhs) {
		return &ErrCycle{Chain: []string{lhs, lhs}}
	}
	visited := map[string]bool{lhs: true}
	var walk func(t string, chain []string) error
	walk = func(t string, chain []string) error {
		next, ok := existing[t]
		if !ok {
			return nil
		}
		for _, n := range next {
			if n == lhs {
				return &ErrCycle{Chain: append(append([]string{}, chain...), n)}
			}
			if visited[n] {
				continue
			}
			visited[n] = true
			if err := walk(n, append(chain, n)); err != nil {
				return err
			}
		}
		return nil
	}
	for _, r := range rhs {
		if err := walk(r, []string{lhs, r}); err != nil {
			return err
		}
	}
	return nil
}

func containsStr(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func dedup(s []string) []string {
	seen := map[string]bool{}
	out := s[:0:0]
	for _, v := range s {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
