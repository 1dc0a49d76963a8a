// Package xp converts commit activity into experience points. The rules are
// pure functions of a commit's diff size, touched files and message; no
// state is read or written here.
package xp

import (
	"strings"

	"pixelpet/internal/githubapi"
)

// DetailFreeEstimate is the flat award for a commit whose diff statistics
// could not be fetched.
const DetailFreeEstimate = 30

// MinPerCommit is the floor applied to every detailed commit award.
const MinPerCommit = 5

// ForCommit scores one commit with full detail. The caller must only pass
// commits that carry diff statistics; commits without detail get
// DetailFreeEstimate instead and never reach this function.
func ForCommit(c githubapi.Commit) int {
	total := 0
	if c.Stats != nil {
		total = sizeXP(c.Stats.Total)
	}
	for _, file := range c.Files {
		total += fileBonus(file)
	}
	total += messageBonus(c.Message)
	if total < MinPerCommit {
		total = MinPerCommit
	}
	return total
}

func sizeXP(changed int) int {
	switch {
	case changed <= 5:
		return 10
	case changed <= 20:
		return 25
	case changed <= 50:
		return 50
	case changed <= 100:
		return 75
	case changed <= 200:
		return 125
	default:
		return 200
	}
}

func fileBonus(file githubapi.CommitFile) int {
	bonus := 0
	path := strings.ToLower(file.Path)
	if strings.Contains(path, "readme") || strings.HasSuffix(path, ".md") {
		bonus += 20
	}
	if strings.Contains(path, "test") || strings.Contains(path, "spec") {
		bonus += 15
	}
	if strings.Contains(path, "package.json") || strings.Contains(path, "config") {
		bonus += 10
	}
	if file.Status == "added" {
		bonus += 10
	}
	return bonus
}

func messageBonus(message string) int {
	bonus := 0
	lowered := strings.ToLower(message)
	if strings.Contains(lowered, "initial") || strings.Contains(lowered, "first") {
		bonus += 50
	}
	if strings.Contains(lowered, "deploy") || strings.Contains(lowered, "release") {
		bonus += 100
	}
	if strings.Contains(lowered, "fix") || strings.Contains(lowered, "bug") {
		bonus += 25
	}
	if strings.Contains(lowered, "complete") || strings.Contains(lowered, "finish") {
		bonus += 40
	}
	return bonus
}
