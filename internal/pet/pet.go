// Package pet holds the progression state machine. A pet advances through
// stages as experience accumulates and loses condition while its owner is
// inactive. All transitions are deterministic; the clock is always passed in.
package pet

import (
	"fmt"
	"time"
)

// Stage is a pet's growth stage. Stages are derived from level and never
// regress.
type Stage string

const (
	StageEgg       Stage = "egg"
	StageHatchling Stage = "hatchling"
	StageJuvenile  Stage = "juvenile"
	StageAdult     Stage = "adult"
	StageLegendary Stage = "legendary"
)

// Species values form a closed set.
const (
	SpeciesCommitCat   = "commit_cat"
	SpeciesCommitCorgi = "commit_corgi"
)

// DefaultName is used when a pet is created without a name.
const DefaultName = "Pixel"

// xpPerLevel is the flat experience cost of each level.
const xpPerLevel = 100

// PreconditionError reports a state mutation rejected because its
// precondition does not hold. The state is unchanged when one is returned.
type PreconditionError struct {
	Op     string
	Reason string
}

// Error implements the error interface.
func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// Pet is one creature's full progression state.
type Pet struct {
	Species      string    `json:"species"`
	Name         string    `json:"name"`
	Level        int       `json:"level"`
	XP           int       `json:"xp"`
	Stage        Stage     `json:"stage"`
	Health       int       `json:"health"`
	Happiness    int       `json:"happiness"`
	Streak       int       `json:"streak"`
	LastCommitAt time.Time `json:"last_commit_at,omitzero"`
	CreatedAt    time.Time `json:"created_at"`
}

// New creates a fresh pet in the egg stage. An unknown species falls back to
// the commit cat and an empty name falls back to DefaultName.
func New(species, name string, now time.Time) *Pet {
	if species != SpeciesCommitCat && species != SpeciesCommitCorgi {
		species = SpeciesCommitCat
	}
	if name == "" {
		name = DefaultName
	}
	return &Pet{
		Species:   species,
		Name:      name,
		Level:     1,
		XP:        0,
		Stage:     StageEgg,
		Health:    100,
		Happiness: 100,
		Streak:    0,
		CreatedAt: now,
	}
}

// LevelForXP maps total experience to a level. Level 1 starts at zero
// experience and every level costs the same amount.
func LevelForXP(totalXP int) int {
	if totalXP < 0 {
		return 1
	}
	return totalXP/xpPerLevel + 1
}

// StageForLevel maps a level to its growth stage.
func StageForLevel(level int) Stage {
	switch {
	case level >= 50:
		return StageLegendary
	case level >= 20:
		return StageAdult
	case level >= 10:
		return StageJuvenile
	case level >= 5:
		return StageHatchling
	default:
		return StageEgg
	}
}

// Credit adds experience and recomputes level and stage. A negative amount
// is rejected without mutating the pet.
func (p *Pet) Credit(totalXP int) error {
	if totalXP < 0 {
		return &PreconditionError{Op: "credit xp", Reason: fmt.Sprintf("amount %d is negative", totalXP)}
	}
	p.XP += totalXP
	p.Level = LevelForXP(p.XP)
	p.Stage = StageForLevel(p.Level)
	return nil
}

// Boost rewards fresh commit activity with a small condition bump.
func (p *Pet) Boost() {
	p.AdjustHealth(5)
	p.AdjustHappiness(10)
}

// Decay lowers condition based on how long the owner has been inactive.
// A pet with no recorded activity counts as zero idle days, so only the
// low-health penalty can reach it.
func (p *Pet) Decay(now time.Time) {
	var idle time.Duration
	if !p.LastCommitAt.IsZero() {
		idle = now.Sub(p.LastCommitAt)
	}

	var healthLoss, happinessLoss int
	switch {
	case idle > 7*24*time.Hour:
		healthLoss, happinessLoss = 5, 8
	case idle > 3*24*time.Hour:
		healthLoss, happinessLoss = 3, 5
	case idle > 24*time.Hour:
		healthLoss, happinessLoss = 1, 2
	}

	// A pet that is already frail loses extra happiness regardless of the
	// idle band. Judged on health before this tick's loss is applied.
	if p.Health < 30 {
		happinessLoss += 2
	}

	p.AdjustHealth(-healthLoss)
	p.AdjustHappiness(-happinessLoss)
}

// AdjustHealth shifts health by delta and clamps it to [0, 100].
func (p *Pet) AdjustHealth(delta int) {
	p.Health = clamp(p.Health + delta)
}

// AdjustHappiness shifts happiness by delta and clamps it to [0, 100].
func (p *Pet) AdjustHappiness(delta int) {
	p.Happiness = clamp(p.Happiness + delta)
}

// XPToNext reports how much experience remains until the next level.
func (p *Pet) XPToNext() int {
	return xpPerLevel - p.XP%xpPerLevel
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
