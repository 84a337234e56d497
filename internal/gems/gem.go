package gems

import "time"

// GemType is what a gem was awarded for.
type GemType string

const (
	GemStreak      GemType = "streak"
	GemSession     GemType = "session"
	GemPerfect     GemType = "perfect"
	GemCertificate GemType = "certificate"
)

var gemLabels = map[GemType]struct{ name, icon string }{
	GemStreak:      {"Streak", "⚡"},
	GemSession:     {"Quiz", "🏆"},
	GemPerfect:     {"Flawless", "💎"},
	GemCertificate: {"Certificate", "📜"},
}

// DisplayName is the label shown to learners.
func (t GemType) DisplayName() string {
	if l, ok := gemLabels[t]; ok {
		return l.name
	}
	return string(t)
}

// Icon is the glyph shown next to the label.
func (t GemType) Icon() string {
	if l, ok := gemLabels[t]; ok {
		return l.icon
	}
	return "✦"
}

// Rarity grades a gem.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// DisplayName is the capitalized rarity.
func (r Rarity) DisplayName() string {
	switch r {
	case RarityCommon:
		return "Common"
	case RarityRare:
		return "Rare"
	case RarityEpic:
		return "Epic"
	case RarityLegendary:
		return "Legendary"
	}
	return string(r)
}

// tier is the lowest value that earns a rarity. Tables run highest first.
type tier struct {
	min    float64
	rarity Rarity
}

var (
	streakTiers  = []tier{{20, RarityLegendary}, {15, RarityEpic}, {10, RarityRare}}
	sessionTiers = []tier{{90, RarityLegendary}, {75, RarityEpic}, {50, RarityRare}}
)

func rarityFor(v float64, tiers []tier) Rarity {
	for _, t := range tiers {
		if v >= t.min {
			return t.rarity
		}
	}
	return RarityCommon
}

// StreakRarity grades a streak gem by the answers covered by all streaks
// of the attempt so far.
func StreakRarity(covered int) Rarity { return rarityFor(float64(covered), streakTiers) }

// SessionRarity grades a completion by score in percent.
func SessionRarity(score float64) Rarity { return rarityFor(score, sessionTiers) }

// GemAward is one gem earned during an attempt.
type GemAward struct {
	Type      GemType   `json:"type"`
	Rarity    Rarity    `json:"rarity"`
	UserID    string    `json:"-"`
	AttemptID string    `json:"-"`
	Reason    string    `json:"reason"`
	AwardedAt time.Time `json:"-"`
}
