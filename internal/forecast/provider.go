package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Provider produces a fresh forecast run from an external source, typically
// the balance forecasting service.
type Provider interface {
	Fetch(ctx context.Context) (Run, error)
}

// HTTPProvider pulls forecast runs from an HTTP endpoint that responds with
// the same payload shape the register endpoint accepts.
type HTTPProvider struct {
	url    string
	client *http.Client
}

func NewHTTPProvider(url string) *HTTPProvider {
	return &HTTPProvider{
		url:    strings.TrimRight(url, "/"),
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

type providerPayload struct {
	RunDate     *time.Time                 `json:"run_date"`
	HorizonDays int                        `json:"horizon_days"`
	Balances    map[string]decimal.Decimal `json:"balances"`
}

func (p *HTTPProvider) Fetch(ctx context.Context) (Run, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return Run{}, fmt.Errorf("forecast: build provider request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Run{}, fmt.Errorf("forecast: fetch from provider: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Run{}, fmt.Errorf("forecast: provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload providerPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Run{}, fmt.Errorf("forecast: decode provider payload: %w", err)
	}
	run := Run{HorizonDays: payload.HorizonDays, Balances: payload.Balances}
	if payload.RunDate != nil {
		run.RunDate = *payload.RunDate
	}
	return run, nil
}
