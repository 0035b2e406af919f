package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// GammaClient is the REST client for the Gamma API, which provides market
// discovery and metadata. Up/down window markets are found by slug.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGammaClient creates a new Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string) *GammaClient {
	return &GammaClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WindowSlug computes the slug of the up/down market whose window contains
// now, e.g. "btc-updown-15m-1725004800". Window starts are aligned to
// 15-minute boundaries, encoded as the unix start time.
func WindowSlug(stem string, now time.Time) string {
	start := now.Unix() - now.Unix()%int64(domain.WindowDuration.Seconds())
	return fmt.Sprintf("%s-%d", stem, start)
}

// GetWindowBySlug looks up an up/down market by slug and maps it into a
// MarketWindow. The two clob token IDs are ordered UP first; the window
// bounds are decoded from the trailing unix timestamp of the slug.
func (g *GammaClient) GetWindowBySlug(ctx context.Context, slug string) (domain.MarketWindow, error) {
	params := url.Values{}
	params.Set("slug", slug)

	body, err := g.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return domain.MarketWindow{}, fmt.Errorf("polymarket/gamma: get market by slug %s: %w", slug, err)
	}

	var apiMarkets []APIMarket
	if err := json.Unmarshal(body, &apiMarkets); err != nil {
		return domain.MarketWindow{}, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}
	if len(apiMarkets) == 0 {
		return domain.MarketWindow{}, fmt.Errorf("polymarket/gamma: %w: slug=%s", domain.ErrNotFound, slug)
	}

	return marketToWindow(&apiMarkets[0])
}

// GetCurrentWindow discovers the market for the 15-minute window containing
// now.
func (g *GammaClient) GetCurrentWindow(ctx context.Context, stem string, now time.Time) (domain.MarketWindow, error) {
	return g.GetWindowBySlug(ctx, WindowSlug(stem, now))
}

// marketToWindow validates and converts a Gamma market into a MarketWindow.
func marketToWindow(m *APIMarket) (domain.MarketWindow, error) {
	ids, err := m.TokenIDs()
	if err != nil {
		return domain.MarketWindow{}, fmt.Errorf("polymarket/gamma: decode token ids for %s: %w", m.Slug, err)
	}
	if len(ids) != 2 {
		return domain.MarketWindow{}, fmt.Errorf("polymarket/gamma: market %s has %d tokens, want 2", m.Slug, len(ids))
	}
	if m.Closed {
		return domain.MarketWindow{}, fmt.Errorf("polymarket/gamma: %w: %s", domain.ErrWindowClosed, m.Slug)
	}

	w := domain.MarketWindow{
		Slug:        m.Slug,
		ConditionID: m.ConditionID,
		UpAssetID:   ids[0],
		DownAssetID: ids[1],
	}

	// Outcomes normally list Up first; swap if the API orders them the
	// other way around.
	var outcomes []string
	if m.Outcomes != "" {
		_ = json.Unmarshal([]byte(m.Outcomes), &outcomes)
	}
	if len(outcomes) == 2 && strings.EqualFold(outcomes[0], "Down") {
		w.UpAssetID, w.DownAssetID = ids[1], ids[0]
	}

	// The slug ends in the unix start time of the window.
	if i := strings.LastIndexByte(m.Slug, '-'); i >= 0 {
		if ts, err := strconv.ParseInt(m.Slug[i+1:], 10, 64); err == nil {
			w.WindowStart = time.Unix(ts, 0)
			w.WindowEnd = w.WindowStart.Add(domain.WindowDuration)
		}
	}
	if w.WindowEnd.IsZero() {
		if t, err := time.Parse(time.RFC3339, m.EndDateISO); err == nil {
			w.WindowEnd = t
			w.WindowStart = t.Add(-domain.WindowDuration)
		} else {
			return domain.MarketWindow{}, fmt.Errorf("polymarket/gamma: cannot determine window end for %s", m.Slug)
		}
	}

	return w, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doGet sends an unauthenticated GET request to the Gamma API.
func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}
