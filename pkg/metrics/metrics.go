package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// Metrics exposes a small in-memory counter set for the dispatch service.
type Metrics struct {
	dispatches     atomic.Int64
	delivered      atomic.Int64
	failed         atomic.Int64
	retried        atomic.Int64
	invalidRemoved atomic.Int64
}

// New returns a zeroed Metrics collector.
func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncDispatches()          { m.dispatches.Add(1) }
func (m *Metrics) AddDelivered(n int)      { m.delivered.Add(int64(n)) }
func (m *Metrics) AddFailed(n int)         { m.failed.Add(int64(n)) }
func (m *Metrics) IncRetried()             { m.retried.Add(1) }
func (m *Metrics) AddInvalidRemoved(n int) { m.invalidRemoved.Add(int64(n)) }

// Handler exposes the counters as JSON so the service can be monitored
// without pulling in a heavy metrics dependency.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int64{
			"dispatches":       m.dispatches.Load(),
			"tokens_delivered": m.delivered.Load(),
			"tokens_failed":    m.failed.Load(),
			"sends_retried":    m.retried.Load(),
			"invalid_removed":  m.invalidRemoved.Load(),
		})
	})
}
