package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pgflex/pgflex/internal/logger"
)

type Config struct {
	Port int
}

// Simulator serves fake fleet telemetry so the controller can be run without
// a real compute fabric. Load shape is adjustable at runtime through the
// /spike and /pattern endpoints.
type Simulator struct {
	config     Config
	pools      map[string]*PoolSim
	mu         sync.RWMutex
	httpServer *http.Server
}

func New(cfg Config) *Simulator {
	if cfg.Port == 0 {
		cfg.Port = 9000
	}

	return &Simulator{
		config: cfg,
		pools:  make(map[string]*PoolSim),
	}
}

func cors(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func (s *Simulator) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", cors(s.healthHandler))
	mux.HandleFunc("/telemetry/", cors(s.telemetryHandler))
	mux.HandleFunc("/pools", cors(s.listPoolsHandler))
	mux.HandleFunc("/pools/", cors(s.poolHandler))
	mux.HandleFunc("/spike", cors(s.spikeHandler))
	mux.HandleFunc("/pattern", cors(s.patternHandler))

	addr := fmt.Sprintf(":%d", s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	logger.Infof("Telemetry simulator listening on %s", addr)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("Simulator server error: %v", err)
		}
	}()

	return nil
}

func (s *Simulator) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Simulator) GetOrCreatePool(poolID string) *PoolSim {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pool, exists := s.pools[poolID]; exists {
		return pool
	}

	pool := NewPoolSim(poolID, PoolSimConfig{
		BaseCPU:   50.0,
		BaseConns: 40,
		BaseIOPS:  500.0,
		Variance:  10.0,
	})
	s.pools[poolID] = pool

	logger.Infof("Created new simulated pool: %s", poolID)
	return pool
}

func (s *Simulator) GetPool(poolID string) (*PoolSim, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pool, exists := s.pools[poolID]
	return pool, exists
}

// HTTP Handlers

func (s *Simulator) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "telemetry-simulator",
	})
}

func (s *Simulator) telemetryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Extract pool ID from path: /telemetry/{poolID}
	poolID := r.URL.Path[len("/telemetry/"):]
	if poolID == "" {
		http.Error(w, "pool ID required", http.StatusBadRequest)
		return
	}

	pool := s.GetOrCreatePool(poolID)
	telemetry := pool.Collect()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(telemetry)
}

func (s *Simulator) listPoolsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	pools := make([]map[string]interface{}, 0, len(s.pools))
	for id, pool := range s.pools {
		pools = append(pools, map[string]interface{}{
			"id":      id,
			"pattern": pool.GetPattern(),
		})
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"pools": pools,
		"count": len(pools),
	})
}

func (s *Simulator) poolHandler(w http.ResponseWriter, r *http.Request) {
	// Extract pool ID from path: /pools/{poolID}
	poolID := r.URL.Path[len("/pools/"):]
	if poolID == "" {
		http.Error(w, "pool ID required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.getPoolHandler(w, r, poolID)
	case http.MethodPut:
		s.updatePoolHandler(w, r, poolID)
	case http.MethodDelete:
		s.deletePoolHandler(w, r, poolID)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Simulator) getPoolHandler(w http.ResponseWriter, r *http.Request, poolID string) {
	pool, exists := s.GetPool(poolID)
	if !exists {
		http.Error(w, "pool not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pool.Status())
}

type UpdatePoolRequest struct {
	BaseCPU   *float64 `json:"base_cpu"`
	BaseConns *int     `json:"base_conns"`
	Variance  *float64 `json:"variance"`
}

func (s *Simulator) updatePoolHandler(w http.ResponseWriter, r *http.Request, poolID string) {
	pool, exists := s.GetPool(poolID)
	if !exists {
		http.Error(w, "pool not found", http.StatusNotFound)
		return
	}

	var req UpdatePoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.BaseCPU != nil {
		pool.SetBaseCPU(*req.BaseCPU)
	}
	if req.BaseConns != nil {
		pool.SetBaseConns(*req.BaseConns)
	}
	if req.Variance != nil {
		pool.SetVariance(*req.Variance)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pool.Status())
}

func (s *Simulator) deletePoolHandler(w http.ResponseWriter, r *http.Request, poolID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pools[poolID]; !exists {
		http.Error(w, "pool not found", http.StatusNotFound)
		return
	}

	delete(s.pools, poolID)
	logger.Infof("Deleted pool %s", poolID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "pool deleted"})
}

type SpikeRequest struct {
	PoolID    string  `json:"pool_id"`
	CPUTarget float64 `json:"cpu_target"`
	Duration  string  `json:"duration"`
	RampUp    string  `json:"ramp_up"`
}

func (s *Simulator) spikeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SpikeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	pool := s.GetOrCreatePool(req.PoolID)

	duration, err := time.ParseDuration(req.Duration)
	if err != nil {
		duration = 5 * time.Minute
	}

	rampUp, err := time.ParseDuration(req.RampUp)
	if err != nil {
		rampUp = 30 * time.Second
	}

	pool.InjectSpike(req.CPUTarget, duration, rampUp)

	logger.Infof("Injected spike on pool %s: target=%.1f%%, duration=%s",
		req.PoolID, req.CPUTarget, duration)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":    "spike injected",
		"pool_id":    req.PoolID,
		"cpu_target": req.CPUTarget,
		"duration":   duration.String(),
		"ramp_up":    rampUp.String(),
	})
}

type PatternRequest struct {
	PoolID  string `json:"pool_id"`
	Pattern string `json:"pattern"` // "steady", "daily", "random", "gradual_rise", "sine_wave"
}

func (s *Simulator) patternHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req PatternRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	pool := s.GetOrCreatePool(req.PoolID)
	pool.SetPattern(ParsePattern(req.Pattern))

	logger.Infof("Set pattern %s on pool %s", req.Pattern, req.PoolID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "pattern set",
		"pool_id": req.PoolID,
		"pattern": req.Pattern,
	})
}
