package analyzer

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"pixelpet/internal/githubapi"
)

// Project classifications form a closed set. Learning is the fallback for
// repositories with no stronger signal.
const (
	ClassLearning   = "learning"
	ClassSideHustle = "side-hustle"
	ClassExperiment = "experiment"
	ClassPortfolio  = "portfolio"
	ClassGeneral    = "general"
)

// Keyword groups matched against the repository description (substring) and
// topics (exact).
var (
	learningKeywords   = []string{"learning", "tutorial", "practice", "course", "study", "beginner", "exercise"}
	businessKeywords   = []string{"startup", "business", "saas", "app", "product", "launch", "mvp"}
	experimentKeywords = []string{"experiment", "poc", "prototype", "try", "test"}
	portfolioKeywords  = []string{"portfolio", "showcase", "demo", "project"}
)

// Classification is what a repository looks like from its metadata.
type Classification struct {
	Class     string
	Languages []string
	Topics    []string
}

// ClassifyRepository labels a repository from its description, topics and
// root directory. Topic and root-listing failures downgrade the signal;
// failing to fetch the repository itself yields the learning default.
func (a *Analyzer) ClassifyRepository(ctx context.Context, ref githubapi.RepoRef) Classification {
	info, err := a.source.GetRepository(ctx, ref)
	if err != nil {
		a.logger.Debug("get repository failed", zap.String("repo", ref.String()), zap.Error(err))
		return Classification{Class: ClassLearning}
	}

	languages, err := a.source.ListLanguages(ctx, ref)
	if err != nil {
		languages = nil
	}
	topics, err := a.source.ListTopics(ctx, ref)
	if err != nil {
		topics = nil
	}

	hasReadme := false
	hasTests := false
	if entries, err := a.source.ListRootEntries(ctx, ref); err == nil {
		for _, entry := range entries {
			name := strings.ToLower(entry.Name)
			if strings.Contains(name, "readme") {
				hasReadme = true
			}
			if strings.Contains(name, "test") {
				hasTests = true
			}
		}
	}

	return Classification{
		Class:     classify(info.Description, topics, hasReadme, hasTests, info.Private),
		Languages: languages,
		Topics:    topics,
	}
}

func classify(description string, topics []string, hasReadme, hasTests, isPrivate bool) string {
	desc := strings.ToLower(description)
	topicSet := make(map[string]bool, len(topics))
	for _, topic := range topics {
		topicSet[strings.ToLower(topic)] = true
	}

	switch {
	case matchesKeywords(desc, topicSet, learningKeywords):
		return ClassLearning
	case matchesKeywords(desc, topicSet, businessKeywords) || (hasReadme && hasTests && !isPrivate):
		return ClassSideHustle
	case matchesKeywords(desc, topicSet, experimentKeywords):
		return ClassExperiment
	case matchesKeywords(desc, topicSet, portfolioKeywords) || (hasReadme && hasTests):
		return ClassPortfolio
	default:
		return ClassLearning
	}
}

func matchesKeywords(desc string, topicSet map[string]bool, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(desc, keyword) || topicSet[keyword] {
			return true
		}
	}
	return false
}
