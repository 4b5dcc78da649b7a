// Package metrics exposes prometheus collectors for the consensus engine.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	Members = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "swarm_consensus",
		Name:      "members_total",
		Help:      "Current number of simulated cluster members",
	})

	ProposalsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "swarm_consensus",
		Name:      "proposals_total",
		Help:      "Total proposals brokered by this engine",
	})

	Decided = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "swarm_consensus",
		Name:      "proposals_decided_total",
		Help:      "Awaited proposals by terminal status",
	}, []string{"status"})

	Achieved = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "swarm_consensus",
		Name:      "consensus_achieved_total",
		Help:      "Total consensus.achieved events observed",
	})

	LeaderChanges = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "swarm_consensus",
		Name:      "leader_changes_total",
		Help:      "Total leader.elected events observed",
	})
)

// Register registers the collectors into the default prometheus registry
// (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(Members)
		prometheus.MustRegister(ProposalsTotal)
		prometheus.MustRegister(Decided)
		prometheus.MustRegister(Achieved)
		prometheus.MustRegister(LeaderChanges)
	})
}
