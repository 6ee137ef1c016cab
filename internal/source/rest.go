package source

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"StockSentry/internal/model"
)

// RESTFetcher implements Fetcher against the quote provider's REST API.
type RESTFetcher struct {
	client *resty.Client
}

// NewRESTFetcher creates a fetcher for the given base URL and API key.
func NewRESTFetcher(baseURL, apiKey string, timeout time.Duration) *RESTFetcher {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(timeout)
	if apiKey != "" {
		client.SetHeader("Authorization", "Bearer "+apiKey)
	}
	return &RESTFetcher{client: client}
}

func (f *RESTFetcher) Name() string { return "rest" }

// restBar is the expected JSON shape of a daily bar payload.
type restBar struct {
	Symbol   string  `json:"symbol"`
	Date     string  `json:"date"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
	Turnover float64 `json:"turnover"`
}

type restIndex struct {
	Code   string  `json:"code"`
	Date   string  `json:"date"`
	Value  float64 `json:"value"`
	Change float64 `json:"change"`
}

type restSymbol struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Market   string `json:"market"`
	Industry string `json:"industry"`
	Delisted bool   `json:"delisted"`
}

func (f *RESTFetcher) FetchDailyBar(ctx context.Context, symbol, date string) (*model.DailyBar, error) {
	body, err := f.get(ctx, "/api/v1/bars/daily", map[string]string{
		"symbol": symbol,
		"date":   date,
	})
	if err != nil {
		return nil, err
	}

	var raw restBar
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode daily bar for %s: %v", ErrMalformed, symbol, err)
	}
	if raw.Close <= 0 || raw.High < raw.Low || raw.Date == "" {
		return nil, fmt.Errorf("%w: implausible bar for %s on %s", ErrMalformed, symbol, date)
	}

	return &model.DailyBar{
		Symbol:   symbol,
		Date:     raw.Date,
		Open:     raw.Open,
		High:     raw.High,
		Low:      raw.Low,
		Close:    raw.Close,
		Volume:   raw.Volume,
		Turnover: raw.Turnover,
	}, nil
}

func (f *RESTFetcher) FetchIndex(ctx context.Context, code, date string) (*model.IndexBar, error) {
	body, err := f.get(ctx, "/api/v1/index", map[string]string{
		"code": code,
		"date": date,
	})
	if err != nil {
		return nil, err
	}

	var raw restIndex
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode index %s: %v", ErrMalformed, code, err)
	}
	if raw.Value <= 0 || raw.Date == "" {
		return nil, fmt.Errorf("%w: implausible index value for %s on %s", ErrMalformed, code, date)
	}

	return &model.IndexBar{Code: code, Date: raw.Date, Value: raw.Value, Change: raw.Change}, nil
}

func (f *RESTFetcher) FetchUniverse(ctx context.Context) ([]model.Symbol, error) {
	body, err := f.get(ctx, "/api/v1/symbols", nil)
	if err != nil {
		return nil, err
	}

	var raw []restSymbol
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode symbol list: %v", ErrMalformed, err)
	}

	symbols := make([]model.Symbol, 0, len(raw))
	for _, s := range raw {
		if s.Code == "" {
			return nil, fmt.Errorf("%w: symbol entry without code", ErrMalformed)
		}
		status := model.StatusActive
		if s.Delisted {
			status = model.StatusDelisted
		}
		symbols = append(symbols, model.Symbol{
			Code:     s.Code,
			Name:     s.Name,
			Market:   s.Market,
			Industry: s.Industry,
			Status:   status,
		})
	}
	return symbols, nil
}

// get performs one request and classifies the failure mode: transport and
// upstream 5xx errors are transient, any other non-2xx is a data error.
func (f *RESTFetcher) get(ctx context.Context, path string, params map[string]string) ([]byte, error) {
	req := f.client.R().SetContext(ctx)
	if params != nil {
		req.SetQueryParams(params)
	}

	resp, err := req.Get(path)
	if err != nil {
		return nil, Transient(path, err)
	}
	if resp.StatusCode() >= 500 {
		return nil, Transient(path, fmt.Errorf("upstream status %d", resp.StatusCode()))
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: status %d from %s", ErrMalformed, resp.StatusCode(), path)
	}
	return resp.Body(), nil
}
