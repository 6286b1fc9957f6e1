// Package predictor provides a client for the external churn prediction
// service.
package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/merchlens-io/merchlens-engine/pkg/retry"
)

// Client calls the churn prediction service over HTTP. The model behind
// it is a black box; the engine only supplies features and reads back a
// risk score.
type Client struct {
	baseURL  string
	http     *http.Client
	retryCfg *retry.Config
	logger   *zap.Logger
}

// Config holds configuration for creating a predictor client.
type Config struct {
	BaseURL string        // Base URL, e.g., "http://localhost:8500"
	Timeout time.Duration // Per-request budget; defaults to 10s
}

// ChurnFeatures are the per-customer inputs the prediction service
// expects.
type ChurnFeatures struct {
	AvgOrderValue         float64 `json:"avg_order_value"`
	PurchaseFrequency     float64 `json:"purchase_frequency"`
	DaysSinceLastPurchase float64 `json:"days_since_last_purchase"`
	TotalSpent            float64 `json:"total_spent"`
}

// ChurnPrediction is the service's answer: a risk bucket from 0 (safe)
// to 2 (high risk) and the model's confidence in it.
type ChurnPrediction struct {
	ChurnRisk  int     `json:"churn_risk"`
	Confidence float64 `json:"confidence"`
}

// NewClient creates a new predictor client.
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		// Scoring loops call this once per row, so keep the backoff
		// short; a dead predictor should not stall a batch for long.
		retryCfg: &retry.Config{
			MaxRetries:   2,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		},
		logger: logger.Named("predictor"),
	}, nil
}

// PredictChurn scores one customer's churn risk.
func (c *Client) PredictChurn(ctx context.Context, features ChurnFeatures) (*ChurnPrediction, error) {
	payload, err := json.Marshal(features)
	if err != nil {
		return nil, fmt.Errorf("marshal features: %w", err)
	}

	c.logger.Debug("Churn prediction request",
		zap.Float64("avg_order_value", features.AvgOrderValue),
		zap.Float64("days_since_last_purchase", features.DaysSinceLastPurchase))

	start := time.Now()

	// Transient failures (connection drops, 5xx) retry with backoff;
	// rejections like a 422 fail fast.
	var prediction ChurnPrediction
	err = retry.DoIfRetryable(ctx, c.retryCfg, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict-churn", bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("predictor request: %w", err)
		}
		defer resp.Body.Close() //nolint:errcheck // response body close is best-effort

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("predictor returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(excerpt)))
		}

		if err := json.NewDecoder(resp.Body).Decode(&prediction); err != nil {
			return fmt.Errorf("decode prediction: %w", err)
		}
		return nil
	})
	if err != nil {
		c.logger.Error("Churn prediction failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, err
	}

	c.logger.Info("Churn prediction completed",
		zap.Int("churn_risk", prediction.ChurnRisk),
		zap.Float64("confidence", prediction.Confidence),
		zap.Duration("elapsed", time.Since(start)))

	return &prediction, nil
}

// BaseURL returns the configured service URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}
