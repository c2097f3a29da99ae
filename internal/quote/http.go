package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openfolio/ledger-engine/internal/model"
)

// HTTPProvider fetches quotes from an IEX-style REST API:
//
//	GET {base}/stock/{symbol}/quote?token={apiKey}
//
// Any non-200 response, transport error, or timeout is reported as
// ErrUnavailable — the caller cannot distinguish "unknown symbol" from
// "provider down", and does not need to.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPProvider creates a quote provider against the given API base URL.
func NewHTTPProvider(baseURL, apiKey string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// quoteResponse is the subset of the provider's quote payload we consume.
type quoteResponse struct {
	Symbol      string          `json:"symbol"`
	CompanyName string          `json:"companyName"`
	LatestPrice decimal.Decimal `json:"latestPrice"`
}

func (p *HTTPProvider) Lookup(ctx context.Context, sym string) (*model.Quote, error) {
	u := fmt.Sprintf("%s/stock/%s/quote?token=%s",
		p.baseURL, url.PathEscape(sym), url.QueryEscape(p.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, sym, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, sym, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: status %d", ErrUnavailable, sym, resp.StatusCode)
	}

	var qr quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, sym, err)
	}
	if qr.LatestPrice.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: %s: non-positive price", ErrUnavailable, sym)
	}

	return &model.Quote{
		Symbol: sym,
		Name:   qr.CompanyName,
		Price:  qr.LatestPrice,
	}, nil
}
