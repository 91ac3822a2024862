package simulator

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

type PoolSimConfig struct {
	BaseCPU   float64
	BaseConns int
	BaseIOPS  float64
	Variance  float64
}

// PoolSim generates telemetry for one simulated compute pool. Connection
// counts and IOPS loosely follow the CPU curve so the feed looks like a real
// OLTP workload.
type PoolSim struct {
	id        string
	baseCPU   float64
	baseConns int
	baseIOPS  float64
	variance  float64
	pattern   Pattern
	spike     *Spike
	mu        sync.RWMutex
}

type Spike struct {
	TargetCPU   float64
	StartTime   time.Time
	Duration    time.Duration
	RampUp      time.Duration
	OriginalCPU float64
}

func NewPoolSim(id string, cfg PoolSimConfig) *PoolSim {
	return &PoolSim{
		id:        id,
		baseCPU:   cfg.BaseCPU,
		baseConns: cfg.BaseConns,
		baseIOPS:  cfg.BaseIOPS,
		variance:  cfg.Variance,
		pattern:   PatternSteady,
	}
}

// TelemetryResponse matches the payload the controller's load monitor scrapes.
type TelemetryResponse struct {
	PoolID      string  `json:"pool_id"`
	Timestamp   string  `json:"timestamp"`
	ActiveConns int     `json:"active_conns"`
	CPUPercent  float64 `json:"cpu_percent"`
	IOPS        float64 `json:"iops"`
	QueueDepth  int     `json:"queue_depth"`
}

func (p *PoolSim) Collect() *TelemetryResponse {
	p.mu.Lock()
	defer p.mu.Unlock()

	currentCPU := p.calculateCurrentCPU()
	cpu := p.randomValue(currentCPU, p.variance)

	// Connections and IOPS scale with the CPU curve
	loadFactor := cpu / math.Max(p.baseCPU, 1)
	conns := int(p.randomValue(float64(p.baseConns)*loadFactor, p.variance))
	iops := p.randomValue(p.baseIOPS*loadFactor, p.baseIOPS/5)

	queueDepth := 0
	if cpu > 80 {
		queueDepth = rand.Intn(int(cpu-75)) + 1
	}

	return &TelemetryResponse{
		PoolID:      p.id,
		Timestamp:   time.Now().Format(time.RFC3339),
		ActiveConns: conns,
		CPUPercent:  cpu,
		IOPS:        iops,
		QueueDepth:  queueDepth,
	}
}

func (p *PoolSim) calculateCurrentCPU() float64 {
	baseCPU := p.pattern.Apply(p.baseCPU)

	if p.spike != nil {
		elapsed := time.Since(p.spike.StartTime)

		if elapsed > p.spike.Duration {
			p.spike = nil
		} else if elapsed < p.spike.RampUp {
			progress := float64(elapsed) / float64(p.spike.RampUp)
			baseCPU = p.spike.OriginalCPU + (p.spike.TargetCPU-p.spike.OriginalCPU)*progress
		} else {
			baseCPU = p.spike.TargetCPU
		}
	}

	return baseCPU
}

func (p *PoolSim) randomValue(base, variance float64) float64 {
	value := base + (rand.Float64()*2-1)*variance
	if value < 0 {
		value = 0
	}
	return math.Round(value*100) / 100
}

func (p *PoolSim) SetBaseCPU(cpu float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.baseCPU = cpu
}

func (p *PoolSim) SetBaseConns(conns int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.baseConns = conns
}

func (p *PoolSim) SetVariance(variance float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.variance = variance
}

func (p *PoolSim) SetPattern(pattern Pattern) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pattern = pattern
}

func (p *PoolSim) GetPattern() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pattern.Name()
}

func (p *PoolSim) InjectSpike(targetCPU float64, duration, rampUp time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.spike = &Spike{
		TargetCPU:   targetCPU,
		StartTime:   time.Now(),
		Duration:    duration,
		RampUp:      rampUp,
		OriginalCPU: p.baseCPU,
	}
}

func (p *PoolSim) Status() map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()

	spikeInfo := map[string]interface{}{"active": false}
	if p.spike != nil {
		elapsed := time.Since(p.spike.StartTime)
		remaining := p.spike.Duration - elapsed
		if remaining < 0 {
			remaining = 0
		}
		spikeInfo = map[string]interface{}{
			"active":     true,
			"target_cpu": p.spike.TargetCPU,
			"remaining":  remaining.String(),
		}
	}

	return map[string]interface{}{
		"id":         p.id,
		"base_cpu":   p.baseCPU,
		"base_conns": p.baseConns,
		"base_iops":  p.baseIOPS,
		"variance":   p.variance,
		"pattern":    p.pattern.Name(),
		"spike":      spikeInfo,
	}
}
