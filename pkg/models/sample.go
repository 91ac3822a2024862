package models

import "time"

// LoadSample is one immutable observation of backend load, produced by the
// load monitor and consumed through the rolling window.
type LoadSample struct {
	PoolID      string    `json:"pool_id"`
	Timestamp   time.Time `json:"timestamp"`
	ActiveConns int       `json:"active_conns"`
	CPUPercent  float64   `json:"cpu_percent"`
	IOPS        float64   `json:"iops"`
	QueueDepth  int       `json:"queue_depth"`
}

// LoadAggregate summarizes the rolling window: moving averages plus peaks.
// Stale is set when no sample has landed within the staleness bound; the
// decision engine treats a stale aggregate as a freeze, never as an error.
type LoadAggregate struct {
	PoolID        string    `json:"pool_id"`
	SampleCount   int       `json:"sample_count"`
	AvgCPU        float64   `json:"avg_cpu"`
	PeakCPU       float64   `json:"peak_cpu"`
	AvgConns      float64   `json:"avg_conns"`
	PeakConns     int       `json:"peak_conns"`
	AvgIOPS       float64   `json:"avg_iops"`
	AvgQueueDepth float64   `json:"avg_queue_depth"`
	LastSampleAt  time.Time `json:"last_sample_at"`
	Stale         bool      `json:"stale"`
}
