// Package receipt verifies mobile in-app purchase receipts against the
// external verification service and resolves product ids to membership tiers.
package receipt

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/fanbase/internal/cache"
	"github.com/smallbiznis/fanbase/internal/config"
	obsmetrics "github.com/smallbiznis/fanbase/internal/observability/metrics"
	"go.uber.org/zap"
)

// Verification service status codes.
const (
	StatusOK = 0
	// StatusSandboxReceipt means the receipt was produced in the sandbox
	// environment and must be re-verified against the sandbox endpoint.
	StatusSandboxReceipt = 21007
)

type Verifier interface {
	Verify(ctx context.Context, receiptData string) (*Result, error)
}

// Result is the outcome of one verification. Tier is empty when the product
// id did not resolve; that is a manual-follow-up signal, not an error.
type Result struct {
	Status                int    `json:"status"`
	Environment           string `json:"environment"`
	ProductID             string `json:"product_id"`
	OriginalTransactionID string `json:"original_transaction_id"`
	Tier                  string `json:"tier"`
}

// Verified reports whether the service accepted the receipt.
func (r *Result) Verified() bool {
	return r != nil && r.Status == StatusOK
}

type Client struct {
	productionURL string
	sandboxURL    string
	sharedSecret  string
	client        *http.Client
	log           *zap.Logger
	metrics       *obsmetrics.Metrics
	tiers         map[string]string
	tierKeywords  []string
	verified      *cache.TTLCache[string, Result]
}

// verifiedTTL bounds how long an accepted verification is reused before the
// store is consulted again.
const verifiedTTL = 5 * time.Minute

// DefaultTiers maps known store product ids to membership tiers.
var DefaultTiers = map[string]string{
	"com.fanbase.membership.basic":    "basic",
	"com.fanbase.membership.standard": "standard",
	"com.fanbase.membership.premium":  "premium",
}

var defaultTierKeywords = []string{"premium", "standard", "basic"}

func NewClient(cfg config.Config, log *zap.Logger, metrics *obsmetrics.Metrics) *Client {
	timeout := cfg.ReceiptTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		productionURL: cfg.ReceiptProductionURL,
		sandboxURL:    cfg.ReceiptSandboxURL,
		sharedSecret:  cfg.ReceiptSharedSecret,
		client:        &http.Client{Timeout: timeout},
		log:           log.Named("payment.receipt"),
		metrics:       metrics,
		tiers:         DefaultTiers,
		tierKeywords:  defaultTierKeywords,
		verified:      cache.NewTTLCache[string, Result](),
	}
}

type verifyRequest struct {
	ReceiptData            string `json:"receipt-data"`
	Password               string `json:"password"`
	ExcludeOldTransactions bool   `json:"exclude-old-transactions"`
}

type verifyResponse struct {
	Status      int    `json:"status"`
	Environment string `json:"environment"`
	Receipt     struct {
		InApp []struct {
			ProductID             string `json:"product_id"`
			OriginalTransactionID string `json:"original_transaction_id"`
		} `json:"in_app"`
	} `json:"receipt"`
}

// Verify checks the receipt against production first and retries once against
// the sandbox endpoint when production reports a sandbox receipt.
func (c *Client) Verify(ctx context.Context, receiptData string) (*Result, error) {
	if cached, ok := c.verified.Get(receiptData); ok {
		return &cached, nil
	}

	resp, err := c.post(ctx, c.productionURL, receiptData)
	if err != nil {
		return nil, err
	}

	if resp.Status == StatusSandboxReceipt {
		c.metrics.RecordReceiptSandboxRetry()
		c.log.Debug("receipt belongs to sandbox, retrying")
		resp, err = c.post(ctx, c.sandboxURL, receiptData)
		if err != nil {
			return nil, err
		}
	}

	result := &Result{
		Status:      resp.Status,
		Environment: resp.Environment,
	}
	if len(resp.Receipt.InApp) > 0 {
		latest := resp.Receipt.InApp[len(resp.Receipt.InApp)-1]
		result.ProductID = latest.ProductID
		result.OriginalTransactionID = latest.OriginalTransactionID
		result.Tier = c.ResolveTier(latest.ProductID)
	}
	if result.Verified() {
		c.verified.Set(receiptData, *result, verifiedTTL)
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, url, receiptData string) (*verifyResponse, error) {
	payload, err := json.Marshal(verifyRequest{
		ReceiptData:            receiptData,
		Password:               c.sharedSecret,
		ExcludeOldTransactions: true,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var decoded verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	return &decoded, nil
}

// ResolveTier maps a store product id to a membership tier: exact match
// first, then a normalized substring match against tier keywords. An empty
// result means no tier could be resolved.
func (c *Client) ResolveTier(productID string) string {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return ""
	}

	if tier, ok := c.tiers[productID]; ok {
		return tier
	}

	normalized := normalizeProductID(productID)
	for _, keyword := range c.tierKeywords {
		if strings.Contains(normalized, keyword) {
			return keyword
		}
	}
	return ""
}

func normalizeProductID(productID string) string {
	normalized := strings.ToLower(productID)
	for _, sep := range []string{".", "_", "-", " "} {
		normalized = strings.ReplaceAll(normalized, sep, "")
	}
	return normalized
}
