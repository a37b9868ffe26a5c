package reseller

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"topup-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	PathCreateOrder = "order/create_order"
	PathOrderDetail = "order/order_detail"
)

// HTTPStatusError is returned alongside the parsed body when the reseller answers non-2xx
type HTTPStatusError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("reseller %s returned HTTP %d: %s", e.Path, e.StatusCode, e.Body)
}

// Client performs signed calls against the MooGold partner API
type Client struct {
	baseURL    string
	partnerID  string
	secretKey  string
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// NewClient creates a new reseller client. timeout bounds a whole request.
func NewClient(baseURL, partnerID, secretKey string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		partnerID:  partnerID,
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		now:        time.Now,
	}
}

// Sign computes hex(HMAC-SHA256(secret, body + timestamp + path))
func Sign(body []byte, timestamp, path, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	mac.Write([]byte(timestamp))
	mac.Write([]byte(path))
	return hex.EncodeToString(mac.Sum(nil))
}

// Call posts payload to path. The payload is serialized once and the same bytes are
// signed and sent. There is no retry; the caller decides what a failure means.
func (c *Client) Call(ctx context.Context, path string, payload interface{}) (Result, error) {
	ctx, span := util.StartSpan(ctx, "reseller.Call", attribute.String("reseller.path", path))
	defer span.End()

	body, err := json.Marshal(payload)
	if err != nil {
		util.FailSpan(span, err)
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	timestamp := strconv.FormatInt(c.now().Unix(), 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+path, bytes.NewReader(body))
	if err != nil {
		util.FailSpan(span, err)
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	credentials := base64.StdEncoding.EncodeToString([]byte(c.partnerID + ":" + c.secretKey))
	req.Header.Set("timestamp", timestamp)
	req.Header.Set("auth", Sign(body, timestamp, path, c.secretKey))
	req.Header.Set("Authorization", "Basic "+credentials)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	util.ResellerRequestLatency.WithLabelValues(path).Observe(time.Since(start).Seconds())
	if err != nil {
		util.ResellerRequestsTotal.WithLabelValues(path, "network_error").Inc()
		util.FailSpan(span, err)
		c.logger.Warn("Reseller request failed", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("reseller request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		util.ResellerRequestsTotal.WithLabelValues(path, "network_error").Inc()
		util.FailSpan(span, err)
		return nil, fmt.Errorf("failed to read reseller response: %w", err)
	}

	result := parseResult(raw)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		util.ResellerRequestsTotal.WithLabelValues(path, "http_error").Inc()
		statusErr := &HTTPStatusError{Path: path, StatusCode: resp.StatusCode, Body: string(raw)}
		util.FailSpan(span, statusErr)
		c.logger.Warn("Reseller returned error status",
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode))
		return result, statusErr
	}

	util.ResellerRequestsTotal.WithLabelValues(path, "ok").Inc()
	c.logger.Debug("Reseller request completed", zap.String("path", path), zap.Int("status_code", resp.StatusCode))
	return result, nil
}
