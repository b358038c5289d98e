package state

import "testing"

type fakePartDesc struct {
	id     string
	digest Digest
}

func (p fakePartDesc) PartID() string        { return p.id }
func (p fakePartDesc) ContentDigest() Digest { return p.digest }
func (p fakePartDesc) Equal(other PartDescription) bool {
	o, ok := other.(fakePartDesc)
	return ok && o.id == p.id && o.digest.Equal(p.digest)
}

func part(id string, content string) PartDescription {
	return fakePartDesc{id: id, digest: DigestOf([]byte(content))}
}

func TestDiffPartsReportsMissingAndChangedParts(t *testing.T) {
	target := []PartDescription{part("a", "one"), part("b", "two"), part("c", "three")}
	base := []PartDescription{part("a", "one"), part("b", "stale")}

	changed := DiffParts(target, base)
	if len(changed) != 2 {
		t.Fatalf("expected 2 changed parts, got %d", len(changed))
	}
	if changed[0].PartID() != "b" || changed[1].PartID() != "c" {
		t.Fatalf("unexpected diff: %s, %s", changed[0].PartID(), changed[1].PartID())
	}
}

// The diff is one-directional: parts only the base holds are not reported.
// A caller that cares about the reverse direction swaps the operands.
func TestDiffPartsIsOneDirectional(t *testing.T) {
	target := []PartDescription{part("a", "one")}
	base := []PartDescription{part("a", "one"), part("b", "extra")}

	if changed := DiffParts(target, base); len(changed) != 0 {
		t.Fatalf("expected no forward diff, got %d parts", len(changed))
	}

	reverse := DiffParts(base, target)
	if len(reverse) != 1 || reverse[0].PartID() != "b" {
		t.Fatalf("expected the reverse diff to report the extra part, got %+v", reverse)
	}
}

func TestDiffPartsAgainstEmptyBaseReturnsEverything(t *testing.T) {
	target := []PartDescription{part("a", "one"), part("b", "two")}
	if changed := DiffParts(target, nil); len(changed) != len(target) {
		t.Fatalf("expected the full part set, got %d parts", len(changed))
	}
}
