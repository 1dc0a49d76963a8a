// Package metrics exposes progression and sync telemetry in Prometheus
// format. Counters track what the process did; each project pet's current
// state is rendered as gauges straight off a game state snapshot.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pixelpet/internal/game"
)

// StateReader supplies the game state snapshot rendered as gauges.
type StateReader interface {
	Snapshot() *game.State
}

// Set holds the process metrics on a private registry.
type Set struct {
	registry *prometheus.Registry

	SyncRuns        *prometheus.CounterVec
	CommitsCredited prometheus.Counter
	XPCredited      prometheus.Counter
	DecayTicks      prometheus.Counter
}

// NewSet creates the metric set and registers the pet state collector over
// reader.
func NewSet(reader StateReader) *Set {
	set := &Set{
		registry: prometheus.NewRegistry(),
		SyncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelpet_sync_runs_total",
			Help: "Sync runs by outcome.",
		}, []string{"outcome"}),
		CommitsCredited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelpet_commits_credited_total",
			Help: "Commits credited toward pet progression.",
		}),
		XPCredited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelpet_xp_credited_total",
			Help: "Experience points credited.",
		}),
		DecayTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelpet_decay_ticks_total",
			Help: "Completed decay passes.",
		}),
	}

	set.registry.MustRegister(
		set.SyncRuns,
		set.CommitsCredited,
		set.XPCredited,
		set.DecayTicks,
		&petCollector{reader: reader},
	)
	return set
}

// Handler renders the registry through the Prometheus OpenMetrics encoder.
func (s *Set) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

var (
	petLabels     = []string{"project"}
	descLevel     = prometheus.NewDesc("pixelpet_pet_level", "Current pet level.", petLabels, nil)
	descXP        = prometheus.NewDesc("pixelpet_pet_xp", "Total experience points.", petLabels, nil)
	descHealth    = prometheus.NewDesc("pixelpet_pet_health", "Current pet health.", petLabels, nil)
	descHappiness = prometheus.NewDesc("pixelpet_pet_happiness", "Current pet happiness.", petLabels, nil)
	descStreak    = prometheus.NewDesc("pixelpet_pet_streak_days", "Current commit streak in days.", petLabels, nil)
	descStage     = prometheus.NewDesc("pixelpet_pet_stage", "Pet stage as a labeled gauge.", []string{"project", "stage"}, nil)
	descProjects  = prometheus.NewDesc("pixelpet_projects_tracked", "Tracked projects.", nil, nil)
	descMemories  = prometheus.NewDesc("pixelpet_memories_total", "Captured pet memories.", nil, nil)
)

type petCollector struct {
	reader StateReader
}

func (c *petCollector) Describe(_ chan<- *prometheus.Desc) {}

func (c *petCollector) Collect(ch chan<- prometheus.Metric) {
	if c == nil || c.reader == nil {
		return
	}
	state := c.reader.Snapshot()
	if state == nil {
		return
	}

	for _, project := range state.Projects {
		p := project.Pet
		if p == nil {
			continue
		}
		name := project.Owner + "/" + project.Name
		ch <- prometheus.MustNewConstMetric(descLevel, prometheus.GaugeValue, float64(p.Level), name)
		ch <- prometheus.MustNewConstMetric(descXP, prometheus.GaugeValue, float64(p.XP), name)
		ch <- prometheus.MustNewConstMetric(descHealth, prometheus.GaugeValue, float64(p.Health), name)
		ch <- prometheus.MustNewConstMetric(descHappiness, prometheus.GaugeValue, float64(p.Happiness), name)
		ch <- prometheus.MustNewConstMetric(descStreak, prometheus.GaugeValue, float64(p.Streak), name)
		ch <- prometheus.MustNewConstMetric(descStage, prometheus.GaugeValue, 1, name, string(p.Stage))
	}
	ch <- prometheus.MustNewConstMetric(descProjects, prometheus.GaugeValue, float64(len(state.Projects)))
	ch <- prometheus.MustNewConstMetric(descMemories, prometheus.GaugeValue, float64(len(state.Memories)))
}
