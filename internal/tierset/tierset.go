package tierset

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// Editable tier fields accepted by EditTierField.
const (
	FieldFromAmount = "from_amount"
	FieldToAmount   = "to_amount"
	FieldRate       = "rate"
)

// Tier is one pricing band of a usage-based billing plan. Identity is a
// client-local list key; it is assigned on load and stripped before save.
type Tier struct {
	Identity   snowflake.ID `json:"identity,omitempty"`
	FromAmount float64      `json:"from_amount"`
	ToAmount   *float64     `json:"to_amount,omitempty"`
	Rate       float64      `json:"rate"`
}

// Unbounded reports whether the tier has no upper limit.
func (t Tier) Unbounded() bool { return t.ToAmount == nil }

// TierSet owns the in-memory tier collection of a single plan and keeps it
// in the "sorted ascending, one open-ended tail" shape. It is not safe for
// concurrent use; each plan edit session owns its own TierSet.
type TierSet struct {
	genID   *snowflake.Node
	tiers   []Tier
	enabled bool
}

func New(genID *snowflake.Node) *TierSet {
	return &TierSet{genID: genID}
}

// Load replaces the set with tiers fetched from storage, assigning a fresh
// synthetic identity to each.
func (s *TierSet) Load(tiers []Tier) {
	s.tiers = make([]Tier, len(tiers))
	copy(s.tiers, tiers)
	for i := range s.tiers {
		s.tiers[i].Identity = s.genID.Generate()
		if s.tiers[i].ToAmount != nil {
			bound := *s.tiers[i].ToAmount
			s.tiers[i].ToAmount = &bound
		}
	}
	s.sort()
}

// Tiers returns a sorted copy of the current set. Bounds are copied too,
// so writing through a returned tier's ToAmount cannot touch the set.
func (s *TierSet) Tiers() []Tier {
	s.sort()
	out := make([]Tier, len(s.tiers))
	copy(out, s.tiers)
	for i := range out {
		if out[i].ToAmount != nil {
			bound := *out[i].ToAmount
			out[i].ToAmount = &bound
		}
	}
	return out
}

func (s *TierSet) Len() int { return len(s.tiers) }

// SetTieringEnabled toggles between flat and tiered mode. Disabling keeps
// the tiers in memory; the save payload is what omits them.
func (s *TierSet) SetTieringEnabled(enabled bool) { s.enabled = enabled }

func (s *TierSet) TieringEnabled() bool { return s.enabled }

// AddTier appends a new unbounded tail tier. The new lower bound follows
// the previous tail; a previously unbounded tail is closed one unit below
// the new bound. After this call exactly one tier, the new one, is
// unbounded.
func (s *TierSet) AddTier() Tier {
	s.sort()

	from := 0.0
	if n := len(s.tiers); n > 0 {
		last := &s.tiers[n-1]
		if last.ToAmount != nil {
			from = *last.ToAmount + 1
		} else {
			from = last.FromAmount + 1
			bound := math.Max(0, from-1)
			last.ToAmount = &bound
		}
	}

	tier := Tier{Identity: s.genID.Generate(), FromAmount: from}
	s.tiers = append(s.tiers, tier)
	return tier
}

// RemoveTier drops the tier with the given identity and re-opens the new
// tail to unbounded. Removing the last remaining tier is not a defined
// operation; the call is refused.
func (s *TierSet) RemoveTier(identity snowflake.ID) bool {
	if len(s.tiers) <= 1 {
		return false
	}
	idx := s.indexOf(identity)
	if idx < 0 {
		return false
	}

	s.tiers = append(s.tiers[:idx], s.tiers[idx+1:]...)
	s.sort()
	if n := len(s.tiers); n > 0 {
		s.tiers[n-1].ToAmount = nil
	}
	return true
}

// EditTierField parses raw and applies it to one field of the identified
// tier. Non-numeric input leaves the set unchanged; an empty to_amount
// means unbounded. The first sorted tier's lower bound is pinned to 0.
func (s *TierSet) EditTierField(identity snowflake.ID, field, raw string) bool {
	s.sort()
	idx := s.indexOf(identity)
	if idx < 0 {
		return false
	}

	raw = strings.TrimSpace(raw)
	switch field {
	case FieldFromAmount:
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return false
		}
		if idx == 0 {
			value = 0
		}
		s.tiers[idx].FromAmount = value
		s.sort()
	case FieldToAmount:
		if raw == "" {
			s.tiers[idx].ToAmount = nil
			return true
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return false
		}
		s.tiers[idx].ToAmount = &value
	case FieldRate:
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return false
		}
		s.tiers[idx].Rate = value
	default:
		return false
	}
	return true
}

// PrepareForSave returns the tiers sorted ascending by lower bound with
// identities stripped, ready for the persistence layer.
func (s *TierSet) PrepareForSave() []Tier {
	out := s.Tiers()
	for i := range out {
		out[i].Identity = 0
	}
	return out
}

func (s *TierSet) indexOf(identity snowflake.ID) int {
	for i := range s.tiers {
		if s.tiers[i].Identity == identity {
			return i
		}
	}
	return -1
}

func (s *TierSet) sort() {
	sort.SliceStable(s.tiers, func(i, j int) bool {
		return s.tiers[i].FromAmount < s.tiers[j].FromAmount
	})
}
