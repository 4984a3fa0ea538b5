package analysis

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligun0805/lurantis-go/internal/errors"
	"github.com/ligun0805/lurantis-go/internal/logger"
)

type recorded struct {
	method string
	path   string
	body   map[string]any
}

func newServer(t *testing.T, status int, response string) (*Client, *recorded) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.body = nil
		if r.Body != nil {
			b, _ := io.ReadAll(r.Body)
			if len(b) > 0 {
				assert.NoError(t, json.Unmarshal(b, &rec.body))
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			}
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", WithLogger(logger.Discard())), rec
}

func TestAnalyzeCriticalScore(t *testing.T) {
	c, rec := newServer(t, http.StatusOK,
		`{"threat_score": 85, "similarity_score": 0.9, "detected_patterns": ["fake support"], "recommendation": "Do not respond", "credits_used": 1}`)

	res, err := c.Analyze(context.Background(), Request{Content: "Your wallet is compromised, send your seed phrase"})
	require.NoError(t, err)
	assert.Equal(t, 85.0, res.ThreatScore)
	assert.Equal(t, 0.9, res.SimilarityScore)
	assert.Equal(t, []string{"fake support"}, res.DetectedPatterns)
	assert.Equal(t, LevelCritical, LevelFor(res.ThreatScore))

	assert.Equal(t, http.MethodPost, rec.method)
	assert.Equal(t, "/analyze", rec.path)
	assert.Equal(t, map[string]any{"content": "Your wallet is compromised, send your seed phrase"}, rec.body,
		"user_address is omitted when empty")
}

func TestAnalyzeEnhancedSendsKnownAddresses(t *testing.T) {
	c, rec := newServer(t, http.StatusOK, `{
		"overall_threat_score": 72.5,
		"threat_level": "HIGH",
		"detected_attacks": [{"type": "address_spoofing", "severity": "high", "confidence": 0.8}],
		"recommendations": ["Verify the full address"],
		"address_analysis": {"is_spoofed": true, "recommendation": "Mismatch in middle characters"},
		"detailed_analysis": {"threat_breakdown": {"pattern_similarity": 40, "address_spoofing": 90, "sim_swapping": 0, "wallet_stalking": 0, "red_flags": 10}}
	}`)

	res, err := c.AnalyzeEnhanced(context.Background(), EnhancedRequest{
		Content:        "send to 0xabc",
		UserAddress:    "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		KnownAddresses: []string{"0xabc"},
	})
	require.NoError(t, err)
	assert.Equal(t, 72.5, res.OverallThreatScore)
	require.Len(t, res.DetectedAttacks, 1)
	assert.Equal(t, "address_spoofing", res.DetectedAttacks[0].Type)
	require.NotNil(t, res.AddressAnalysis)
	assert.True(t, res.AddressAnalysis.IsSpoofed)
	assert.Nil(t, res.SimSwapAnalysis)
	assert.Equal(t, 90.0, res.DetailedAnalysis.ThreatBreakdown.AddressSpoofing)

	assert.Equal(t, "/analyze-enhanced", rec.path)
	assert.Equal(t, []any{"0xabc"}, rec.body["known_addresses"])
	assert.Equal(t, "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", rec.body["user_address"])
}

func TestAnalyzeWallet(t *testing.T) {
	c, rec := newServer(t, http.StatusOK, `{
		"wallet": "0xabc",
		"balance_eth": 1.23456,
		"transaction_patterns": {"tx_count": 4},
		"relationships": [],
		"anomalies": [{"kind": "burst"}],
		"risk_analysis": {"score": 45, "level": "MEDIUM", "factors": ["new wallet"]},
		"insights": ["Low activity"],
		"credits_used": 1
	}`)

	res, err := c.AnalyzeWallet(context.Background(), WalletRequest{WalletAddress: "  0xabc "})
	require.NoError(t, err)
	assert.Equal(t, "0xabc", res.Wallet)
	assert.Equal(t, "MEDIUM", res.RiskAnalysis.Level)
	assert.Equal(t, LevelMedium, LevelFor(res.RiskAnalysis.Score))
	assert.Len(t, res.Anomalies, 1)
	assert.JSONEq(t, `{"tx_count": 4}`, string(res.TransactionPatterns))

	assert.Equal(t, "/analyze-wallet", rec.path)
	assert.Equal(t, "0xabc", rec.body["wallet_address"])
	assert.Equal(t, true, rec.body["include_transactions"], "sent even when not set")

	include := false
	_, err = c.AnalyzeWallet(context.Background(), WalletRequest{WalletAddress: "0xabc", IncludeTransactions: &include})
	require.NoError(t, err)
	assert.Equal(t, false, rec.body["include_transactions"])
}

func TestSubmitDecodesTaggedUnion(t *testing.T) {
	c, _ := newServer(t, http.StatusOK, `{"overall_threat_score": 30, "threat_level": "LOW", "detected_attacks": [], "recommendations": [], "detailed_analysis": {"threat_breakdown": {}}}`)
	res, err := c.Submit(context.Background(), EndpointAnalyzeEnhanced, EnhancedRequest{Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, KindEnhanced, res.Kind)
	require.NotNil(t, res.Enhanced)
	assert.Nil(t, res.Basic)
	assert.Equal(t, 30.0, res.Score())
	assert.Equal(t, LevelLow, res.Level())

	c, _ = newServer(t, http.StatusOK, `{"threat_score": 61, "similarity_score": 0.2, "detected_patterns": [], "recommendation": "", "credits_used": 1}`)
	res, err = c.Submit(context.Background(), EndpointAnalyze, Request{Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, KindBasic, res.Kind)
	assert.Equal(t, LevelHigh, res.Level())
	assert.NotEmpty(t, res.Raw)
}

func TestErrorDetail(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"detail string", http.StatusPaymentRequired, `{"detail": "Insufficient credits. Please purchase more."}`, "Insufficient credits. Please purchase more."},
		{"not json", http.StatusBadGateway, `<html>bad gateway</html>`, "Unknown error"},
		{"no detail", http.StatusInternalServerError, `{"error": "x"}`, "HTTP error! status: 500"},
		{"empty detail", http.StatusBadRequest, `{"detail": ""}`, "HTTP error! status: 400"},
		{"validation list", http.StatusUnprocessableEntity, `{"detail": [{"loc": ["body", "content"], "msg": "field required"}]}`, `[{"loc":["body","content"],"msg":"field required"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newServer(t, tt.status, tt.body)
			_, err := c.Analyze(context.Background(), Request{Content: "x"})
			require.Error(t, err)
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.want, apiErr.Error())
		})
	}
}

func TestIsCreditExhausted(t *testing.T) {
	assert.True(t, IsCreditExhausted(&APIError{Status: 402, Detail: "Insufficient credits."}))
	assert.True(t, IsCreditExhausted(&APIError{Status: 403, Detail: "No credits left"}))
	assert.False(t, IsCreditExhausted(&APIError{Status: 500, Detail: "boom"}))
	assert.False(t, IsCreditExhausted(errors.New("credits")))
	assert.False(t, IsCreditExhausted(nil))
}

func TestSupplementalEndpoints(t *testing.T) {
	c, rec := newServer(t, http.StatusOK, `{"address": "0xabc", "balance": 7, "tier": "basic"}`)
	cr, err := c.Credits(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, 7, cr.Balance)
	assert.Equal(t, "basic", cr.Tier)
	assert.Equal(t, http.MethodGet, rec.method)
	assert.Equal(t, "/credits/0xabc", rec.path)

	c, rec = newServer(t, http.StatusOK, `{"status": "degraded", "qdrant": "disconnected", "collections": {}}`)
	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "degraded", h.Status)
	assert.Equal(t, "/health", rec.path)

	c, rec = newServer(t, http.StatusOK, `{"collections": {"attack_patterns": {"vectors_count": 12}}, "total_patterns": 12}`)
	p, err := c.Patterns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, p.TotalPatterns)
	assert.Contains(t, p.Collections, "attack_patterns")
	assert.Equal(t, "/patterns", rec.path)
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, WithLogger(logger.Discard()))
	_, err := c.Health(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNetwork))
	assert.Contains(t, errors.Humanize(err), "Network/DNS error")
}

func TestValidation(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", WithLogger(logger.Discard()))
	ctx := context.Background()
	_, err := c.Analyze(ctx, Request{Content: "  "})
	assert.Error(t, err)
	_, err = c.AnalyzeEnhanced(ctx, EnhancedRequest{})
	assert.Error(t, err)
	_, err = c.AnalyzeWallet(ctx, WalletRequest{WalletAddress: " "})
	assert.Error(t, err)
	_, err = c.Credits(ctx, "")
	assert.Error(t, err)
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		score float64
		want  Level
	}{
		{100, LevelCritical}, {80, LevelCritical}, {79.9, LevelHigh}, {60, LevelHigh},
		{59, LevelMedium}, {40, LevelMedium}, {39.99, LevelLow}, {0, LevelLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelFor(tt.score), "score %v", tt.score)
	}
}
