package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/updownbot/internal/crypto"
	"github.com/alanyoungcy/updownbot/internal/domain"
)

const (
	// usdcDecimals scales human prices and sizes to on-chain integer amounts.
	usdcDecimals = 1e6

	// bookFetchAttempts is how many times the REST orderbook endpoint is
	// retried before giving up.
	bookFetchAttempts = 3
)

// ClobClient is the REST client for the CLOB (Central Limit Order Book)
// API. It handles order signing, placement, cancellation, and queries.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client
	signer     *crypto.Signer
	hmacAuth   *crypto.APIAuth
}

// NewClobClient creates a new CLOB REST client.
//
// baseURL is the CLOB API root, e.g. "https://clob.polymarket.com".
// signer is the EIP-712 signer for order signatures and auth messages.
// hmac may be nil; DeriveAPIKey populates it.
func NewClobClient(baseURL string, signer *crypto.Signer, hmac *crypto.APIAuth) *ClobClient {
	return &ClobClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		signer:   signer,
		hmacAuth: hmac,
	}
}

// buildSignedOrder converts an OrderRequest into the signed CLOB payload.
// Amounts are integer microunits: a BUY makes USDC (price*size) and takes
// shares (size); a SELL is the reverse.
func (c *ClobClient) buildSignedOrder(req domain.OrderRequest) (map[string]any, error) {
	maker := c.signer.Address()

	tokenID, ok := new(big.Int).SetString(req.AssetID, 10)
	if !ok {
		return nil, fmt.Errorf("invalid asset id %q", req.AssetID)
	}

	sizeUnits := int64(math.Round(req.Size * usdcDecimals))
	costUnits := int64(math.Round(req.Price * req.Size * usdcDecimals))

	var side uint8
	sideStr := "BUY"
	makerAmt, takerAmt := costUnits, sizeUnits
	if req.Side != domain.SideBuy {
		side = 1
		sideStr = "SELL"
		makerAmt, takerAmt = sizeUnits, costUnits
	}

	saltUUID := uuid.New()
	payload := crypto.OrderPayload{
		Salt:        new(big.Int).SetBytes(saltUUID[:8]),
		Maker:       maker,
		Signer:      maker,
		TokenID:     tokenID,
		MakerAmount: big.NewInt(makerAmt),
		TakerAmount: big.NewInt(takerAmt),
		Expiration:  big.NewInt(0),
		Nonce:       big.NewInt(0),
		FeeRateBps:  big.NewInt(0),
		Side:        side,
	}

	sig, err := c.signer.SignOrder(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
	}

	return map[string]any{
		"order": map[string]any{
			"salt":          payload.Salt.String(),
			"tokenID":       req.AssetID,
			"makerAmount":   strconv.FormatInt(makerAmt, 10),
			"takerAmount":   strconv.FormatInt(takerAmt, 10),
			"side":          sideStr,
			"feeRateBps":    "0",
			"nonce":         "0",
			"expiration":    "0",
			"signatureType": int(payload.SignatureType),
			"signature":     sig,
			"maker":         maker.Hex(),
			"signer":        maker.Hex(),
			"taker":         payload.Taker.Hex(),
		},
		"owner":     maker.Hex(),
		"orderType": string(req.Type),
	}, nil
}

// PostOrder signs and submits a single order.
func (c *ClobClient) PostOrder(ctx context.Context, req domain.OrderRequest) (domain.SubmitResult, error) {
	body, err := c.buildSignedOrder(req)
	if err != nil {
		return domain.SubmitResult{}, fmt.Errorf("polymarket/clob: build order: %w", err)
	}

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodPost, "/order", body)
	if err != nil {
		return domain.SubmitResult{}, fmt.Errorf("polymarket/clob: post order: %w", err)
	}

	var apiResult APIOrderResult
	if err := json.Unmarshal(respBody, &apiResult); err != nil {
		return domain.SubmitResult{}, fmt.Errorf("polymarket/clob: decode order result: %w", err)
	}
	return apiResult.ToDomainSubmitResult(), nil
}

// PostOrders signs and submits a batch of orders in one request. Results
// are returned positionally. A transport error fails the whole batch; the
// caller falls back to sequential PostOrder calls.
func (c *ClobClient) PostOrders(ctx context.Context, reqs []domain.OrderRequest) ([]domain.SubmitResult, error) {
	batch := make([]map[string]any, 0, len(reqs))
	for _, req := range reqs {
		body, err := c.buildSignedOrder(req)
		if err != nil {
			return nil, fmt.Errorf("polymarket/clob: build batch order: %w", err)
		}
		batch = append(batch, body)
	}

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodPost, "/orders", batch)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: post orders: %w", err)
	}

	var apiResults []APIOrderResult
	if err := json.Unmarshal(respBody, &apiResults); err != nil {
		return nil, fmt.Errorf("polymarket/clob: decode batch result: %w", err)
	}

	results := make([]domain.SubmitResult, len(reqs))
	for i := range results {
		if i < len(apiResults) {
			results[i] = apiResults[i].ToDomainSubmitResult()
		} else {
			results[i] = domain.SubmitResult{ErrorMsg: "missing batch result"}
		}
	}
	return results, nil
}

// CancelOrders cancels the given order IDs.
func (c *ClobClient) CancelOrders(ctx context.Context, orderIDs []string) error {
	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodDelete, "/orders", orderIDs)
	if err != nil {
		return fmt.Errorf("polymarket/clob: cancel orders: %w", err)
	}

	var result struct {
		Canceled    []string          `json:"canceled"`
		NotCanceled map[string]string `json:"not_canceled"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("polymarket/clob: decode cancel response: %w", err)
	}
	if len(result.NotCanceled) > 0 {
		return fmt.Errorf("polymarket/clob: %d orders not canceled", len(result.NotCanceled))
	}
	return nil
}

// GetOrder retrieves the current state of a single order by ID.
func (c *ClobClient) GetOrder(ctx context.Context, orderID string) (domain.OrderState, error) {
	path := fmt.Sprintf("/data/order/%s", orderID)

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return domain.OrderState{}, fmt.Errorf("polymarket/clob: get order %s: %w", orderID, err)
	}

	var apiOrder APIOrder
	if err := json.Unmarshal(respBody, &apiOrder); err != nil {
		return domain.OrderState{}, fmt.Errorf("polymarket/clob: decode order: %w", err)
	}
	return apiOrder.ToDomainOrderState(), nil
}

// GetBalance returns the available USDC collateral balance in whole units.
func (c *ClobClient) GetBalance(ctx context.Context) (float64, error) {
	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodGet,
		"/balance-allowance?asset_type=COLLATERAL", nil)
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: get balance: %w", err)
	}

	var bal APIBalance
	if err := json.Unmarshal(respBody, &bal); err != nil {
		return 0, fmt.Errorf("polymarket/clob: decode balance: %w", err)
	}
	units, err := strconv.ParseFloat(bal.Balance, 64)
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: parse balance %q: %w", bal.Balance, err)
	}
	return units / usdcDecimals, nil
}

// GetOrderBook fetches a point-in-time orderbook snapshot over REST. Used
// when pricing unwind orders so the sell price reflects the live book even
// if the websocket replica is briefly stale. Retries transient failures.
func (c *ClobClient) GetOrderBook(ctx context.Context, assetID string) (domain.OrderbookSnapshot, error) {
	path := "/book?token_id=" + assetID

	var lastErr error
	for attempt := 0; attempt < bookFetchAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return domain.OrderbookSnapshot{}, ctx.Err()
			case <-time.After(300 * time.Millisecond):
			}
		}

		respBody, err := c.doAuthenticatedRequest(ctx, http.MethodGet, path, nil)
		if err != nil {
			lastErr = err
			continue
		}

		var book BookMessage
		if err := json.Unmarshal(respBody, &book); err != nil {
			lastErr = err
			continue
		}
		if book.AssetID == "" {
			book.AssetID = assetID
		}
		return BookToDomainSnapshot(&book), nil
	}
	return domain.OrderbookSnapshot{}, fmt.Errorf("polymarket/clob: get book %s: %w", assetID, lastErr)
}

// DeriveAPIKey performs the CLOB auth flow to obtain an HMAC API key. It
// signs a ClobAuth EIP-712 message and sends it with L1 headers to the
// derive-api-key endpoint. On success it populates the client's hmacAuth.
func (c *ClobClient) DeriveAPIKey(ctx context.Context) error {
	address := c.signer.Address().Hex()
	timestamp := time.Now().Unix()
	nonce := int64(0)

	sig, err := c.signer.SignAuthMessage(address, timestamp, nonce)
	if err != nil {
		return fmt.Errorf("polymarket/clob: sign auth message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/derive-api-key", nil)
	if err != nil {
		return fmt.Errorf("polymarket/clob: create auth request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", address)
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", fmt.Sprintf("%d", timestamp))
	req.Header.Set("POLY_NONCE", fmt.Sprintf("%d", nonce))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("polymarket/clob: auth request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("polymarket/clob: read auth response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("polymarket/clob: auth failed (HTTP %d): %s", resp.StatusCode, string(respBody))
	}

	var authResp struct {
		APIKey     string `json:"apiKey"`
		Secret     string `json:"secret"`
		Passphrase string `json:"passphrase"`
	}
	if err := json.Unmarshal(respBody, &authResp); err != nil {
		return fmt.Errorf("polymarket/clob: decode auth response: %w", err)
	}

	c.hmacAuth = &crypto.APIAuth{
		Key:        authResp.APIKey,
		Secret:     authResp.Secret,
		Passphrase: authResp.Passphrase,
	}

	return nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doAuthenticatedRequest builds, signs (HMAC), sends, and reads an HTTP
// request against the CLOB API. It returns the raw response body.
func (c *ClobClient) doAuthenticatedRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	var bodyStr string

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// Apply HMAC authentication headers. The signed path excludes the query.
	if c.hmacAuth != nil {
		address := c.signer.Address().Hex()
		signPath := path
		if i := strings.IndexByte(signPath, '?'); i >= 0 {
			signPath = signPath[:i]
		}
		headers := c.hmacAuth.Headers(address, method, signPath, bodyStr)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
// An invalid-signature rejection is surfaced as its own sentinel because it
// can never succeed on retry.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	if strings.Contains(strings.ToLower(bodyStr), "invalid signature") {
		return fmt.Errorf("%w: %s", domain.ErrInvalidSignature, bodyStr)
	}

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
