package scheduler

import "sync/atomic"

// Metrics holds atomic counters describing scheduler activity.
type Metrics struct {
	// SubmittedCount is the number of accepted requests.
	SubmittedCount atomic.Uint64
	// MatchedCount is the number of requests that ended Matched.
	MatchedCount atomic.Uint64
	// ExhaustedCount is the number of requests that ran out of attempts.
	ExhaustedCount atomic.Uint64
	// TransportFailureCount is the number of requests ended by a transport error.
	TransportFailureCount atomic.Uint64
	// CanceledCount is the number of requests failed by Close or by cancellation
	// of the scheduler context.
	CanceledCount atomic.Uint64
	// AttemptCount is the total number of transmissions.
	AttemptCount atomic.Uint64
	// RetryCount is the number of attempts beyond the first.
	RetryCount atomic.Uint64
	// EvictedCount is the number of unclaimed results removed by the sweeper.
	EvictedCount atomic.Uint64
	// InflightCount is the number of submitted requests without a result yet.
	InflightCount atomic.Int64
}

func (m *Metrics) incSubmitted() {
	m.SubmittedCount.Add(1)
	m.InflightCount.Add(1)
}

func (m *Metrics) incAttempt(attempt int) {
	m.AttemptCount.Add(1)
	if attempt > 1 {
		m.RetryCount.Add(1)
	}
}

func (m *Metrics) finish(o Outcome) {
	m.InflightCount.Add(-1)
	switch o {
	case OutcomeMatched:
		m.MatchedCount.Add(1)
	case OutcomeExhausted:
		m.ExhaustedCount.Add(1)
	case OutcomeTransportFailure:
		m.TransportFailureCount.Add(1)
	case OutcomeCanceled:
		m.CanceledCount.Add(1)
	}
}

func (m *Metrics) incEvicted() {
	m.EvictedCount.Add(1)
}
