package game

import "pixelpet/internal/pet"

type achievementRule struct {
	title string
	met   func(level, streak int) bool
}

var achievementRules = []achievementRule{
	{title: "Grand Master Achieved", met: func(level, _ int) bool { return level >= 100 }},
	{title: "Legendary Status", met: func(level, _ int) bool { return level >= 50 }},
	{title: "Adult Achievement", met: func(level, _ int) bool { return level >= 20 }},
	{title: "30 Day Streak Master", met: func(_, streak int) bool { return streak >= 30 }},
	{title: "Week Warrior", met: func(_, streak int) bool { return streak >= 7 }},
}

// achievementsFor derives the achievement titles a pet has earned so far.
// The list is computed once at memory capture time and stored with the
// snapshot.
func achievementsFor(p *pet.Pet) []string {
	var titles []string
	for _, rule := range achievementRules {
		if rule.met(p.Level, p.Streak) {
			titles = append(titles, rule.title)
		}
	}
	return titles
}
