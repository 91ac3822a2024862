package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pgflex/pgflex/internal/logger"
	"github.com/pgflex/pgflex/pkg/models"
)

// HTTPSource scrapes a fleet telemetry endpoint exposing per-pool load.
type HTTPSource struct {
	client   *http.Client
	endpoint string
	timeout  time.Duration
}

type HTTPSourceConfig struct {
	Endpoint string
	Timeout  time.Duration
}

func NewHTTPSource(cfg HTTPSourceConfig) *HTTPSource {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 1 * time.Second
	}

	return &HTTPSource{
		client: &http.Client{
			Timeout: timeout,
		},
		endpoint: cfg.Endpoint,
		timeout:  timeout,
	}
}

// telemetryResponse matches the payload served by the fleet telemetry endpoint
type telemetryResponse struct {
	PoolID      string  `json:"pool_id"`
	Timestamp   string  `json:"timestamp"`
	ActiveConns int     `json:"active_conns"`
	CPUPercent  float64 `json:"cpu_percent"`
	IOPS        float64 `json:"iops"`
	QueueDepth  int     `json:"queue_depth"`
}

func (s *HTTPSource) Sample(ctx context.Context, poolID string) (*models.LoadSample, error) {
	url := fmt.Sprintf("%s/%s", s.endpoint, poolID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrSampleFailed, err)
	}

	req.Header.Set("Accept", "application/json")

	logger.WithPool(poolID).Debugf("Sampling load from %s", url)

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrSampleFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrPoolNotFound
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status code %d", ErrSampleFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", ErrSampleFailed, err)
	}

	var tr telemetryResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	return s.convertResponse(poolID, &tr), nil
}

func (s *HTTPSource) convertResponse(poolID string, tr *telemetryResponse) *models.LoadSample {
	timestamp := time.Now()
	if tr.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, tr.Timestamp); err == nil {
			timestamp = parsed
		}
	}

	return &models.LoadSample{
		PoolID:      poolID,
		Timestamp:   timestamp,
		ActiveConns: tr.ActiveConns,
		CPUPercent:  tr.CPUPercent,
		IOPS:        tr.IOPS,
		QueueDepth:  tr.QueueDepth,
	}
}

func (s *HTTPSource) HealthCheck(ctx context.Context) error {
	url := fmt.Sprintf("%s/health", s.endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

func (s *HTTPSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
