package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/pgflex/pgflex/internal/logger"
)

type Metrics struct {
	mu sync.RWMutex

	// Counters
	samplesTotal      map[string]int64
	sampleErrors      map[string]int64
	scaleEventsTotal  map[string]map[string]int64 // pool -> action -> count
	decisionsTotal    map[string]map[string]int64 // pool -> action -> count
	provisionFailures map[string]int64
	drainsDegraded    map[string]int64
	connectionResets  map[string]int64

	// Gauges
	poolTier            map[string]int            // tier ladder rank
	poolUnits           map[string]map[string]int // pool -> state -> count
	poolRoutedConns     map[string]int
	poolAvgCPU          map[string]float64
	circuitBreakerState map[string]int // 0=closed, 1=open, 2=half-open

	// Histograms (simplified - just track last values)
	sampleLatency   map[string]time.Duration
	decisionLatency map[string]time.Duration
}

var (
	instance *Metrics
	once     sync.Once
)

func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			samplesTotal:        make(map[string]int64),
			sampleErrors:        make(map[string]int64),
			scaleEventsTotal:    make(map[string]map[string]int64),
			decisionsTotal:      make(map[string]map[string]int64),
			provisionFailures:   make(map[string]int64),
			drainsDegraded:      make(map[string]int64),
			connectionResets:    make(map[string]int64),
			poolTier:            make(map[string]int),
			poolUnits:           make(map[string]map[string]int),
			poolRoutedConns:     make(map[string]int),
			poolAvgCPU:          make(map[string]float64),
			circuitBreakerState: make(map[string]int),
			sampleLatency:       make(map[string]time.Duration),
			decisionLatency:     make(map[string]time.Duration),
		}
	})
	return instance
}

func (m *Metrics) IncSamples(poolID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samplesTotal[poolID]++
}

func (m *Metrics) IncSampleErrors(poolID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sampleErrors[poolID]++
}

func (m *Metrics) IncScaleEvent(poolID, action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scaleEventsTotal[poolID] == nil {
		m.scaleEventsTotal[poolID] = make(map[string]int64)
	}
	m.scaleEventsTotal[poolID][action]++
}

func (m *Metrics) IncDecision(poolID, action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.decisionsTotal[poolID] == nil {
		m.decisionsTotal[poolID] = make(map[string]int64)
	}
	m.decisionsTotal[poolID][action]++
}

func (m *Metrics) IncProvisionFailures(poolID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.provisionFailures[poolID]++
}

func (m *Metrics) IncDrainsDegraded(poolID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drainsDegraded[poolID]++
}

func (m *Metrics) AddConnectionResets(poolID string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectionResets[poolID] += int64(n)
}

func (m *Metrics) SetTier(poolID string, rank int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.poolTier[poolID] = rank
}

func (m *Metrics) SetUnitCount(poolID, state string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.poolUnits[poolID] == nil {
		m.poolUnits[poolID] = make(map[string]int)
	}
	m.poolUnits[poolID][state] = count
}

func (m *Metrics) SetRoutedConns(poolID string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.poolRoutedConns[poolID] = count
}

func (m *Metrics) SetAvgCPU(poolID string, cpu float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.poolAvgCPU[poolID] = cpu
}

func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.circuitBreakerState[name] = state
}

func (m *Metrics) SetSampleLatency(poolID string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sampleLatency[poolID] = d
}

func (m *Metrics) SetDecisionLatency(poolID string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisionLatency[poolID] = d
}

func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		defer m.mu.RUnlock()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		for pool, count := range m.samplesTotal {
			writeMetric(w, "pgflex_samples_total", map[string]string{"pool_id": pool}, float64(count))
		}

		for pool, count := range m.sampleErrors {
			writeMetric(w, "pgflex_sample_errors_total", map[string]string{"pool_id": pool}, float64(count))
		}

		for pool, actions := range m.scaleEventsTotal {
			for action, count := range actions {
				writeMetric(w, "pgflex_scale_events_total", map[string]string{"pool_id": pool, "action": action}, float64(count))
			}
		}

		for pool, actions := range m.decisionsTotal {
			for action, count := range actions {
				writeMetric(w, "pgflex_decisions_total", map[string]string{"pool_id": pool, "action": action}, float64(count))
			}
		}

		for pool, count := range m.provisionFailures {
			writeMetric(w, "pgflex_provision_failures_total", map[string]string{"pool_id": pool}, float64(count))
		}

		for pool, count := range m.drainsDegraded {
			writeMetric(w, "pgflex_drains_degraded_total", map[string]string{"pool_id": pool}, float64(count))
		}

		for pool, count := range m.connectionResets {
			writeMetric(w, "pgflex_connection_resets_total", map[string]string{"pool_id": pool}, float64(count))
		}

		for pool, rank := range m.poolTier {
			writeMetric(w, "pgflex_pool_tier", map[string]string{"pool_id": pool}, float64(rank))
		}

		for pool, states := range m.poolUnits {
			for state, count := range states {
				writeMetric(w, "pgflex_pool_units", map[string]string{"pool_id": pool, "state": state}, float64(count))
			}
		}

		for pool, count := range m.poolRoutedConns {
			writeMetric(w, "pgflex_pool_routed_conns", map[string]string{"pool_id": pool}, float64(count))
		}

		for pool, cpu := range m.poolAvgCPU {
			writeMetric(w, "pgflex_pool_cpu_percent", map[string]string{"pool_id": pool}, cpu)
		}

		for name, state := range m.circuitBreakerState {
			writeMetric(w, "pgflex_circuit_breaker_state", map[string]string{"name": name}, float64(state))
		}

		for pool, latency := range m.sampleLatency {
			writeMetric(w, "pgflex_sample_latency_ms", map[string]string{"pool_id": pool}, float64(latency.Milliseconds()))
		}

		for pool, latency := range m.decisionLatency {
			writeMetric(w, "pgflex_decision_latency_ms", map[string]string{"pool_id": pool}, float64(latency.Milliseconds()))
		}
	})
}

func writeMetric(w http.ResponseWriter, name string, labels map[string]string, value float64) {
	labelStr := ""
	if len(labels) > 0 {
		labelStr = "{"
		first := true
		for k, v := range labels {
			if !first {
				labelStr += ","
			}
			labelStr += k + `="` + v + `"`
			first = false
		}
		labelStr += "}"
	}
	w.Write([]byte(name + labelStr + " " + strconv.FormatFloat(value, 'f', -1, 64) + "\n"))
}

func StartServer(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Get().Handler())

	addr := ":" + strconv.Itoa(port)
	logger.Infof("Prometheus metrics server listening on %s", addr)

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Errorf("Prometheus server error: %v", err)
		}
	}()
}
