package alias

import "testing"

func TestExpandLeafTagReturnsItself(t *testing.T) {
	out := Expand("urgent", map[string][]string{})
	if len(out) != 1 || out[0] != "urgent" {
		t.Errorf("Expand(leaf) = %v, want [urgent]", out)
	}
}

func TestExpandTransitiveAlias(t *testing.T) {
	aliases := map[string][]string{
		"hot":     {"urgent", "important"},
		"urgent":  {"p0"},
	}
	out := Expand("hot", aliases)
	want := map[string]bool{"p0": true, "important": true}
	if len(out) != len(want) {
		t.Fatalf("Expand(hot) = %v, want %v", out, want)
	}
	for _, v := range out {
		if !want[v] {
			t.Errorf("unexpected expansion result %q", v)
		}
	}
}

func TestExpandStopsAtCycle(t *testing.T) {
	aliases := map[string][]string{
		"a": {"b"},
		"b": {"a"},
	}
	// Should terminate rather than recurse forever, and not panic.
	out := Expand("a", aliases)
	if out == nil {
		t.Error("expected Expand to return (possibly empty) rather than hang or panic on a cycle")
	}
}

func TestValidateNewAliasRejectsDirectCycle(t *testing.T) {
	err := ValidateNewAlias("work", []string{"work"}, map[string][]string{})
	if err == nil {
		t.Fatal("expected a direct self-reference to be rejected")
	}
}

func TestValidateNewAliasRejectsTransitiveCycle(t *testing.T) {
	existing := map[string][]string{
		"b": {"c"},
		"c": {"a"}, // c already points back to a
	}
	// Proposing a -> b would create a -> b -> c -> a.
	err := ValidateNewAlias("a", []string{"b"}, existing)
	if err == nil {
		t.Fatal("expected a transitive cycle to be rejected")
	}
}

func TestValidateNewAliasAcceptsAcyclic(t *testing.T) {
	existing := map[string][]string{
		"hot": {"urgent"},
	}
	if err := ValidateNewAlias("urgent", []string{"p0"}, existing); err != nil {
		t.Errorf("expected an acyclic alias to be accepted, got %v", err)
	}
}
