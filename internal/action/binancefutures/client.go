// Package binancefutures is the optional production QUOTE execution
// path: a minimal signed-REST client against the Binance USDT-M futures
// testnet. No websockets, no order-sync loop — a single limit/IOC order
// per quote, matching the local deterministic path's one-shot shape.
package binancefutures

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultBase = "https://testnet.binancefuture.com"

// Client is a minimal Binance USDT-M futures testnet executor.
type Client struct {
	base       string
	apiKey     string
	apiSecret  string
	recvWindow int
	httpClient *http.Client
}

// Config holds the client's credentials and endpoint override.
type Config struct {
	Base       string
	APIKey     string
	APISecret  string
	RecvWindow int
}

func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("BINANCE_API_KEY/BINANCE_API_SECRET missing")
	}
	base := cfg.Base
	if base == "" {
		base = defaultBase
	}
	recvWindow := cfg.RecvWindow
	if recvWindow == 0 {
		recvWindow = 5000
	}
	return &Client{
		base:       strings.TrimRight(base, "/"),
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		recvWindow: recvWindow,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (c *Client) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) request(ctx context.Context, method, path string, params url.Values) (map[string]any, error) {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", strconv.Itoa(c.recvWindow))

	query := params.Encode()
	sig := c.sign(query)
	reqURL := fmt.Sprintf("%s%s?%s&signature=%s", c.base, path, query, sig)

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("BINANCE_REQ_FAILED:%v", err)
	}
	req.Header.Set("X-MBX-APIKEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("BINANCE_REQ_FAILED:%v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("BINANCE_REQ_FAILED:%v", err)
	}

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("BINANCE_HTTP_%d:%s", resp.StatusCode, string(body))
	}

	if len(body) == 0 {
		return map[string]any{}, nil
	}
	out := map[string]any{}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("BINANCE_REQ_FAILED:%v", err)
	}
	return out, nil
}

// GetMarkPrice fetches the current mark price for symbol.
func (c *Client) GetMarkPrice(ctx context.Context, symbol string) (float64, error) {
	out, err := c.request(ctx, http.MethodGet, "/fapi/v1/premiumIndex", url.Values{"symbol": {symbol}})
	if err != nil {
		return 0, err
	}
	mp, ok := out["markPrice"]
	if !ok || mp == nil {
		return 0, fmt.Errorf("BINANCE_NO_MARK_PRICE:%v", out)
	}
	switch v := mp.(type) {
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("BINANCE_NO_MARK_PRICE:%v", out)
		}
		return f, nil
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("BINANCE_NO_MARK_PRICE:%v", out)
	}
}

// PlaceLimitIOC places a LIMIT/IOC order, returning the raw response.
func (c *Client) PlaceLimitIOC(ctx context.Context, symbol, side string, quantity, price float64) (map[string]any, error) {
	params := url.Values{
		"symbol":          {symbol},
		"side":            {side},
		"type":            {"LIMIT"},
		"timeInForce":     {"IOC"},
		"quantity":        {formatQty(quantity)},
		"price":           {formatPrice(price)},
		"newOrderRespType": {"RESULT"},
	}
	out, err := c.request(ctx, http.MethodPost, "/fapi/v1/order", params)
	if err != nil {
		return nil, err
	}
	if status, _ := out["status"].(string); status != "" && status != "FILLED" && status != "PARTIALLY_FILLED" {
		return out, fmt.Errorf("BINANCE_ORDER_NOT_FILLED:%v", status)
	}
	return out, nil
}

func formatQty(q float64) string {
	return strings.TrimRight(strings.TrimRight(strconv.FormatFloat(q, 'f', 3, 64), "0"), ".")
}

func formatPrice(p float64) string {
	return strings.TrimRight(strings.TrimRight(strconv.FormatFloat(p, 'f', 1, 64), "0"), ".")
}

// NotionalToQty converts a USD notional to a quantity, enforcing
// Binance's 100 USDT minimum notional.
func NotionalToQty(notionalUSD, markPrice float64) float64 {
	if markPrice <= 0 {
		return 0.002
	}
	raw := notionalUSD / markPrice
	minQtyFor100 := 100.0 / markPrice
	q := raw
	if minQtyFor100 > q {
		q = minQtyFor100
	}
	q = round4(q)
	if q <= 0 {
		q = 0.002
	}
	return q
}

func round4(v float64) float64 {
	const f = 1e4
	return float64(int64(v*f+0.5)) / f
}
