package models

type Tier string

const (
	TierSmall  Tier = "small"
	TierMedium Tier = "medium"
	TierLarge  Tier = "large"
)

// tierLadder orders tiers by capacity, smallest first.
var tierLadder = []Tier{TierSmall, TierMedium, TierLarge}

func Tiers() []Tier {
	ladder := make([]Tier, len(tierLadder))
	copy(ladder, tierLadder)
	return ladder
}

func (t Tier) IsValid() bool {
	return t.rank() >= 0
}

func (t Tier) rank() int {
	for i, tier := range tierLadder {
		if tier == t {
			return i
		}
	}
	return -1
}

// Above returns the next larger tier and false if t is already the largest.
func (t Tier) Above() (Tier, bool) {
	r := t.rank()
	if r < 0 || r == len(tierLadder)-1 {
		return t, false
	}
	return tierLadder[r+1], true
}

// Below returns the next smaller tier and false if t is already the smallest.
func (t Tier) Below() (Tier, bool) {
	r := t.rank()
	if r <= 0 {
		return t, false
	}
	return tierLadder[r-1], true
}

func (t Tier) LessThan(other Tier) bool {
	return t.rank() < other.rank()
}
