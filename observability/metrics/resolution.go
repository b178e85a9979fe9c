package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"veritynet/core/events"
)

type ResolutionMetrics struct {
	assertionsSubmitted prometheus.Counter
	assertionsResolved  *prometheus.CounterVec
	disputesOpened      prometheus.Counter
	openDisputes        prometheus.Gauge
	challengesOpened    prometheus.Counter
	challengesResolved  *prometheus.CounterVec
	openChallenges      prometheus.Gauge
	claimsPaid          *prometheus.CounterVec
}

var (
	resolutionOnce     sync.Once
	resolutionRegistry *ResolutionMetrics
)

func Resolution() *ResolutionMetrics {
	resolutionOnce.Do(func() {
		resolutionRegistry = &ResolutionMetrics{
			assertionsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "resolution_assertions_submitted_total",
				Help: "Count of assertions accepted by the registry.",
			}),
			assertionsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "resolution_assertions_resolved_total",
				Help: "Count of finalized assertions by outcome.",
			}, []string{"outcome"}),
			disputesOpened: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "resolution_disputes_opened_total",
				Help: "Count of dispute rows opened against assertions.",
			}),
			openDisputes: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "resolution_open_disputes",
				Help: "Number of dispute rows awaiting resolution.",
			}),
			challengesOpened: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "resolution_challenges_opened_total",
				Help: "Count of reputation challenges opened.",
			}),
			challengesResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "resolution_challenges_resolved_total",
				Help: "Count of resolved reputation challenges by status.",
			}, []string{"status"}),
			openChallenges: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "resolution_open_challenges",
				Help: "Number of reputation challenges still collecting votes.",
			}),
			claimsPaid: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "resolution_stake_claims_total",
				Help: "Count of stake claims paid out by scope.",
			}, []string{"scope"}),
		}
		prometheus.MustRegister(
			resolutionRegistry.assertionsSubmitted,
			resolutionRegistry.assertionsResolved,
			resolutionRegistry.disputesOpened,
			resolutionRegistry.openDisputes,
			resolutionRegistry.challengesOpened,
			resolutionRegistry.challengesResolved,
			resolutionRegistry.openChallenges,
			resolutionRegistry.claimsPaid,
		)
	})
	return resolutionRegistry
}

// ObserveEvent updates the collectors for a committed engine event. Events
// carrying no engine-level signal (votes, delegations, topic changes) are
// ignored.
func (m *ResolutionMetrics) ObserveEvent(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	switch e := evt.(type) {
	case events.AssertionSubmitted:
		m.ObserveAssertionSubmitted()
	case events.AssertionDisputed:
		m.ObserveDisputeOpened()
	case events.AssertionResolved:
		m.ObserveAssertionResolved(e.Outcome, e.DisputeCount)
	case events.ChallengeOpened:
		m.ObserveChallengeOpened()
	case events.ChallengeResolved:
		m.ObserveChallengeResolved(e.Status)
	case events.StakeClaimed:
		m.ObserveClaimPaid(e.Scope)
	}
}

func (m *ResolutionMetrics) ObserveAssertionSubmitted() {
	if m == nil {
		return
	}
	m.assertionsSubmitted.Inc()
}

func (m *ResolutionMetrics) ObserveDisputeOpened() {
	if m == nil {
		return
	}
	m.disputesOpened.Inc()
	m.openDisputes.Inc()
}

// ObserveAssertionResolved records a finalized assertion and retires its
// dispute rows from the open-disputes gauge.
func (m *ResolutionMetrics) ObserveAssertionResolved(outcome string, disputeCount uint64) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.assertionsResolved.WithLabelValues(outcome).Inc()
	m.openDisputes.Sub(float64(disputeCount))
}

func (m *ResolutionMetrics) ObserveChallengeOpened() {
	if m == nil {
		return
	}
	m.challengesOpened.Inc()
	m.openChallenges.Inc()
}

func (m *ResolutionMetrics) ObserveChallengeResolved(status string) {
	if m == nil {
		return
	}
	if status == "" {
		status = "unknown"
	}
	m.challengesResolved.WithLabelValues(status).Inc()
	m.openChallenges.Dec()
}

func (m *ResolutionMetrics) ObserveClaimPaid(scope string) {
	if m == nil {
		return
	}
	if scope == "" {
		scope = "unknown"
	}
	m.claimsPaid.WithLabelValues(scope).Inc()
}
