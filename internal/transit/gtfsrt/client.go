// Package gtfsrt implements a live arrival provider backed by a GTFS-Realtime
// TripUpdates feed.
package gtfsrt

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/rs/zerolog"
	"google.golang.org/protobuf/proto"

	"github.com/commutepulse/commutepulse/internal/provider/resilience"
	"github.com/commutepulse/commutepulse/internal/transit"
)

// ProviderName identifies this transit provider.
const ProviderName = "gtfsrt"

// ClientConfig holds configuration for the GTFS-Realtime client.
type ClientConfig struct {
	// FeedURL is the TripUpdates feed URL (required).
	FeedURL string

	// APIKey is sent in APIKeyHeader when set.
	APIKey string

	// APIKeyHeader is the header carrying APIKey (default: "x-api-key").
	APIKeyHeader string

	// Stops maps a station name (without the "역" suffix) to its GTFS stop ids.
	Stops map[string][]string

	// FeedTTL is how long a decoded feed is reused across stations (default: 15 seconds).
	FeedTTL time.Duration

	// HTTPClient is the HTTP client to use (optional).
	HTTPClient *resilience.Client

	// Logger for client operations.
	Logger zerolog.Logger

	// Now overrides the clock used to compute arrival seconds.
	Now func() time.Time
}

// Client reads live arrivals from a GTFS-Realtime TripUpdates feed.
type Client struct {
	feedURL      string
	apiKey       string
	apiKeyHeader string
	stops        map[string][]string
	feedTTL      time.Duration
	httpClient   *resilience.Client
	logger       zerolog.Logger
	now          func() time.Time

	mu        sync.Mutex
	feed      *gtfsrtpb.FeedMessage
	fetchedAt time.Time
}

// NewClient creates a new GTFS-Realtime client.
func NewClient(cfg ClientConfig) *Client {
	header := cfg.APIKeyHeader
	if header == "" {
		header = "x-api-key"
	}

	feedTTL := cfg.FeedTTL
	if feedTTL == 0 {
		feedTTL = 15 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(ProviderName))
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	stops := make(map[string][]string, len(cfg.Stops))
	for name, ids := range cfg.Stops {
		stops[transit.StripStationSuffix(name)] = ids
	}

	return &Client{
		feedURL:      cfg.FeedURL,
		apiKey:       cfg.APIKey,
		apiKeyHeader: header,
		stops:        stops,
		feedTTL:      feedTTL,
		httpClient:   httpClient,
		logger:       cfg.Logger,
		now:          now,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// GetArrivals returns upcoming arrivals at the stops mapped to station.
// Stations without a stop mapping return an empty slice.
func (c *Client) GetArrivals(ctx context.Context, station string) ([]transit.Arrival, error) {
	stopIDs, ok := c.stops[transit.StripStationSuffix(station)]
	if !ok || len(stopIDs) == 0 {
		return []transit.Arrival{}, nil
	}

	feed, err := c.loadFeed(ctx)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(stopIDs))
	for _, id := range stopIDs {
		wanted[id] = true
	}

	now := c.now().Unix()
	arrivals := make([]transit.Arrival, 0)

	for _, entity := range feed.GetEntity() {
		tu := entity.GetTripUpdate()
		if tu == nil || entity.GetIsDeleted() {
			continue
		}
		trip := tu.GetTrip()
		if trip.GetScheduleRelationship() == gtfsrtpb.TripDescriptor_CANCELED {
			continue
		}

		updates := tu.GetStopTimeUpdate()
		destination := ""
		if len(updates) > 0 {
			destination = updates[len(updates)-1].GetStopId()
		}

		for _, stu := range updates {
			if !wanted[stu.GetStopId()] {
				continue
			}
			if stu.GetScheduleRelationship() == gtfsrtpb.TripUpdate_StopTimeUpdate_SKIPPED {
				continue
			}

			at := eventTime(stu)
			if at == 0 || at < now {
				continue
			}

			arrivals = append(arrivals, transit.Arrival{
				LineID:         trip.GetRouteId(),
				Direction:      strconv.FormatUint(uint64(trip.GetDirectionId()), 10),
				ArrivalSeconds: int(at - now),
				Destination:    destination,
			})
		}
	}

	return arrivals, nil
}

// eventTime returns the arrival time of a stop update, falling back to departure.
func eventTime(stu *gtfsrtpb.TripUpdate_StopTimeUpdate) int64 {
	if t := stu.GetArrival().GetTime(); t != 0 {
		return t
	}
	return stu.GetDeparture().GetTime()
}

// loadFeed returns the cached feed or fetches a new one.
func (c *Client) loadFeed(ctx context.Context) (*gtfsrtpb.FeedMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.feed != nil && c.now().Sub(c.fetchedAt) < c.feedTTL {
		return c.feed, nil
	}

	feed, err := c.fetchFeed(ctx)
	if err != nil {
		return nil, err
	}

	c.feed = feed
	c.fetchedAt = c.now()

	c.logger.Debug().
		Int("entities", len(feed.GetEntity())).
		Uint64("header_timestamp", feed.GetHeader().GetTimestamp()).
		Msg("gtfs-rt feed refreshed")

	return feed, nil
}

func (c *Client) fetchFeed(ctx context.Context) (*gtfsrtpb.FeedMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.feedURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/x-protobuf")
	if c.apiKey != "" {
		req.Header.Set(c.apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var feed gtfsrtpb.FeedMessage
	if err := proto.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("decoding feed: %w", err)
	}

	return &feed, nil
}

// Ensure Client implements transit.ArrivalProvider.
var _ transit.ArrivalProvider = (*Client)(nil)
