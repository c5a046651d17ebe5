package tierset

import (
	"testing"

	"github.com/bwmarrin/snowflake"
)

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new snowflake node: %v", err)
	}
	return node
}

func TestAddTierFromEmpty(t *testing.T) {
	set := New(mustNode(t))

	first := set.AddTier()
	if first.FromAmount != 0 {
		t.Fatalf("first tier must start at 0, got %v", first.FromAmount)
	}
	if !first.Unbounded() {
		t.Fatalf("new tier must be unbounded")
	}
	if first.Identity == 0 {
		t.Fatalf("new tier must carry an identity")
	}
}

func TestAddTierClosesPreviousTail(t *testing.T) {
	set := New(mustNode(t))
	set.AddTier()
	set.AddTier()

	tiers := set.Tiers()
	if len(tiers) != 2 {
		t.Fatalf("expected 2 tiers, got %d", len(tiers))
	}
	if tiers[0].ToAmount == nil || *tiers[0].ToAmount != 0 {
		t.Fatalf("previous tail should close at 0, got %v", tiers[0].ToAmount)
	}
	if tiers[1].FromAmount != 1 || !tiers[1].Unbounded() {
		t.Fatalf("new tail should start at 1 and be unbounded, got %+v", tiers[1])
	}

	unbounded := 0
	for _, tr := range tiers {
		if tr.Unbounded() {
			unbounded++
		}
	}
	if unbounded != 1 {
		t.Fatalf("exactly one tier must be unbounded, got %d", unbounded)
	}
}

func TestAddTierDerivesFromBoundedTail(t *testing.T) {
	set := New(mustNode(t))
	first := set.AddTier()
	set.EditTierField(first.Identity, FieldToAmount, "99")

	added := set.AddTier()
	if added.FromAmount != 100 {
		t.Fatalf("expected new tier to start at 100, got %v", added.FromAmount)
	}
}

func TestAddRemoveRoundTrip(t *testing.T) {
	set := New(mustNode(t))
	first := set.AddTier()

	added := set.AddTier()
	if !set.RemoveTier(added.Identity) {
		t.Fatalf("remove should succeed")
	}

	tiers := set.Tiers()
	if len(tiers) != 1 {
		t.Fatalf("expected 1 tier, got %d", len(tiers))
	}
	if tiers[0].FromAmount != first.FromAmount {
		t.Fatalf("from amount changed: got %v, want %v", tiers[0].FromAmount, first.FromAmount)
	}
	if !tiers[0].Unbounded() {
		t.Fatalf("remaining tier must be re-opened to unbounded, got %v", tiers[0].ToAmount)
	}
}

func TestRemoveTierReopensNewTail(t *testing.T) {
	set := New(mustNode(t))
	set.AddTier()
	middle := set.AddTier()
	tail := set.AddTier()

	if !set.RemoveTier(tail.Identity) {
		t.Fatalf("remove should succeed")
	}
	tiers := set.Tiers()
	if tiers[len(tiers)-1].Identity != middle.Identity {
		t.Fatalf("middle tier should now be the tail")
	}
	if !tiers[len(tiers)-1].Unbounded() {
		t.Fatalf("new tail must be unbounded even if it had a bound")
	}
}

func TestRemoveLastRemainingTierRefused(t *testing.T) {
	set := New(mustNode(t))
	only := set.AddTier()

	if set.RemoveTier(only.Identity) {
		t.Fatalf("removing the last remaining tier must be refused")
	}
	if set.Len() != 1 {
		t.Fatalf("tier set changed: %d tiers", set.Len())
	}
}

func TestEditTierFieldFirstLowerBoundPinned(t *testing.T) {
	set := New(mustNode(t))
	first := set.AddTier()
	set.AddTier()

	for _, raw := range []string{"5", "42.5", "-3", "0"} {
		if !set.EditTierField(first.Identity, FieldFromAmount, raw) {
			t.Fatalf("edit %q should be accepted", raw)
		}
		if got := set.Tiers()[0].FromAmount; got != 0 {
			t.Fatalf("first tier lower bound must stay 0, got %v after %q", got, raw)
		}
	}
}

func TestEditTierFieldRejectsNonNumeric(t *testing.T) {
	set := New(mustNode(t))
	first := set.AddTier()
	set.EditTierField(first.Identity, FieldRate, "7")

	if set.EditTierField(first.Identity, FieldRate, "abc") {
		t.Fatalf("non-numeric input must be rejected")
	}
	if got := set.Tiers()[0].Rate; got != 7 {
		t.Fatalf("rate changed on rejected input: %v", got)
	}
}

func TestEditTierFieldEmptyToAmountMeansUnbounded(t *testing.T) {
	set := New(mustNode(t))
	first := set.AddTier()
	set.EditTierField(first.Identity, FieldToAmount, "99")
	if set.Tiers()[0].Unbounded() {
		t.Fatalf("bound not applied")
	}

	if !set.EditTierField(first.Identity, FieldToAmount, "") {
		t.Fatalf("clearing to_amount should be accepted")
	}
	if !set.Tiers()[0].Unbounded() {
		t.Fatalf("empty to_amount must mean unbounded")
	}
}

func TestEditTierFieldResorts(t *testing.T) {
	set := New(mustNode(t))
	set.AddTier()
	second := set.AddTier()
	third := set.AddTier()

	// Move the middle tier past the tail; sorted order must follow.
	set.EditTierField(second.Identity, FieldFromAmount, "500")
	tiers := set.Tiers()
	if tiers[len(tiers)-1].Identity != second.Identity {
		t.Fatalf("edited tier should sort last, order: %+v", tiers)
	}
	if tiers[1].Identity != third.Identity {
		t.Fatalf("previous tail should sort before the moved tier")
	}
}

func TestPrepareForSaveStripsIdentityAndSorts(t *testing.T) {
	set := New(mustNode(t))
	to := 99.0
	set.Load([]Tier{
		{FromAmount: 100, Rate: 8},
		{FromAmount: 0, ToAmount: &to, Rate: 10},
	})

	out := set.PrepareForSave()
	if len(out) != 2 {
		t.Fatalf("expected 2 tiers, got %d", len(out))
	}
	for i, tr := range out {
		if tr.Identity != 0 {
			t.Fatalf("tier %d identity not stripped: %v", i, tr.Identity)
		}
	}
	if out[0].FromAmount != 0 || out[1].FromAmount != 100 {
		t.Fatalf("output not sorted: %+v", out)
	}

	// The editor keeps its identities; only the payload is stripped.
	for _, tr := range set.Tiers() {
		if tr.Identity == 0 {
			t.Fatalf("editor lost its identities")
		}
	}
}

func TestLoadAssignsDistinctIdentities(t *testing.T) {
	set := New(mustNode(t))
	set.Load([]Tier{{FromAmount: 0, Rate: 1}, {FromAmount: 10, Rate: 2}, {FromAmount: 20, Rate: 3}})

	seen := map[snowflake.ID]bool{}
	for _, tr := range set.Tiers() {
		if tr.Identity == 0 {
			t.Fatalf("loaded tier missing identity")
		}
		if seen[tr.Identity] {
			t.Fatalf("duplicate identity %v", tr.Identity)
		}
		seen[tr.Identity] = true
	}
}

func TestTieringToggleKeepsTiers(t *testing.T) {
	set := New(mustNode(t))
	set.SetTieringEnabled(true)
	set.AddTier()
	set.AddTier()

	set.SetTieringEnabled(false)
	if set.TieringEnabled() {
		t.Fatalf("expected flat mode")
	}
	if set.Len() != 2 {
		t.Fatalf("tiers must survive the flat toggle, got %d", set.Len())
	}

	set.SetTieringEnabled(true)
	if set.Len() != 2 {
		t.Fatalf("tiers must be restored when re-enabled, got %d", set.Len())
	}
}

func TestTiersCopyDoesNotAliasBounds(t *testing.T) {
	set := New(mustNode(t))
	set.AddTier()
	set.AddTier() // closes the first tier's upper bound

	out := set.Tiers()
	if out[0].ToAmount == nil {
		t.Fatalf("first tier must be bounded after second AddTier")
	}
	*out[0].ToAmount = 999

	if got := *set.Tiers()[0].ToAmount; got == 999 {
		t.Fatalf("writing through a returned tier's bound must not mutate the set")
	}

	saved := set.PrepareForSave()
	*saved[0].ToAmount = 123
	if got := *set.Tiers()[0].ToAmount; got == 123 {
		t.Fatalf("writing through a save payload bound must not mutate the set")
	}
}
