// Package seoul implements a live arrival provider backed by the Seoul Metropolitan
// realtime subway arrival API.
package seoul

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/commutepulse/commutepulse/internal/provider/resilience"
	"github.com/commutepulse/commutepulse/internal/transit"
)

const (
	// ProviderName identifies this transit provider.
	ProviderName = "seoul"

	// DefaultBaseURL is the Seoul realtime subway API base URL.
	DefaultBaseURL = "http://swopenapi.seoul.go.kr/api/subway"

	// DefaultPageSize is the number of arrivals requested per station.
	DefaultPageSize = 20

	codeOK     = "INFO-000"
	codeNoData = "INFO-200"
)

// ClientConfig holds configuration for the Seoul client.
type ClientConfig struct {
	// APIKey is the Seoul open data API key (required).
	APIKey string

	// BaseURL is the API base URL (optional, defaults to the public endpoint).
	BaseURL string

	// PageSize bounds how many arrivals are requested (optional).
	PageSize int

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient *resilience.Client

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is a Seoul realtime arrival API client.
type Client struct {
	apiKey     string
	baseURL    string
	pageSize   int
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewClient creates a new Seoul client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(ProviderName))
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		pageSize:   pageSize,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// GetArrivals fetches live arrivals for a station.
func (c *Client) GetArrivals(ctx context.Context, station string) ([]transit.Arrival, error) {
	station = transit.StripStationSuffix(station)

	reqURL := fmt.Sprintf("%s/%s/json/realtimeStationArrival/0/%d/%s",
		c.baseURL, url.PathEscape(c.apiKey), c.pageSize, url.PathEscape(station))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var apiResp arrivalResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	// The API reports "no data" either at the top level or inside errorMessage.
	code := apiResp.Code
	if apiResp.ErrorMessage != nil {
		code = apiResp.ErrorMessage.Code
	}
	switch code {
	case "", codeOK:
	case codeNoData:
		return []transit.Arrival{}, nil
	default:
		msg := apiResp.Message
		if apiResp.ErrorMessage != nil {
			msg = apiResp.ErrorMessage.Message
		}
		return nil, fmt.Errorf("api error %s: %s", code, msg)
	}

	arrivals := make([]transit.Arrival, 0, len(apiResp.RealtimeArrivalList))
	for i := range apiResp.RealtimeArrivalList {
		a, ok := c.toArrival(&apiResp.RealtimeArrivalList[i])
		if !ok {
			continue
		}
		arrivals = append(arrivals, a)
	}

	c.logger.Debug().
		Str("station", station).
		Int("arrivals", len(arrivals)).
		Msg("fetched seoul arrivals")

	return arrivals, nil
}

// toArrival converts an API arrival to the domain model.
func (c *Client) toArrival(a *apiArrival) (transit.Arrival, bool) {
	seconds, err := strconv.Atoi(strings.TrimSpace(a.BarvlDt))
	if err != nil {
		c.logger.Debug().
			Str("subway_id", a.SubwayID).
			Str("barvl_dt", a.BarvlDt).
			Msg("skipping arrival with unparseable eta")
		return transit.Arrival{}, false
	}
	if seconds < 0 {
		seconds = 0
	}

	return transit.Arrival{
		LineID:         a.SubwayID,
		Direction:      a.UpdnLine,
		ArrivalSeconds: seconds,
		Destination:    a.BstatnNm,
	}, true
}

// Seoul API response structures.

type arrivalResponse struct {
	ErrorMessage        *apiStatus   `json:"errorMessage"`
	Code                string       `json:"code"`
	Message             string       `json:"message"`
	RealtimeArrivalList []apiArrival `json:"realtimeArrivalList"`
}

type apiStatus struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiArrival struct {
	SubwayID    string `json:"subwayId"`
	UpdnLine    string `json:"updnLine"`
	TrainLineNm string `json:"trainLineNm"`
	StatnNm     string `json:"statnNm"`
	BstatnNm    string `json:"bstatnNm"`
	BarvlDt     string `json:"barvlDt"`
	RecptnDt    string `json:"recptnDt"`
}

// Ensure Client implements transit.ArrivalProvider.
var _ transit.ArrivalProvider = (*Client)(nil)
