package analysis

import (
	"encoding/json"
	"fmt"
)

type Endpoint string

const (
	EndpointAnalyze         Endpoint = "/analyze"
	EndpointAnalyzeEnhanced Endpoint = "/analyze-enhanced"
	EndpointAnalyzeWallet   Endpoint = "/analyze-wallet"
)

type Request struct {
	Content     string `json:"content"`
	UserAddress string `json:"user_address,omitempty"`
}

type EnhancedRequest struct {
	Content        string         `json:"content"`
	UserAddress    string         `json:"user_address,omitempty"`
	KnownAddresses []string       `json:"known_addresses,omitempty"`
	Context        map[string]any `json:"context,omitempty"`
}

// WalletRequest always sends include_transactions; nil means true.
type WalletRequest struct {
	WalletAddress       string `json:"wallet_address"`
	UserAddress         string `json:"user_address,omitempty"`
	IncludeTransactions *bool  `json:"include_transactions,omitempty"`
}

func (r WalletRequest) MarshalJSON() ([]byte, error) {
	type plain WalletRequest
	return json.Marshal(struct {
		plain
		IncludeTransactions bool `json:"include_transactions"`
	}{plain(r), r.IncludeTransactions == nil || *r.IncludeTransactions})
}

type BasicResult struct {
	ThreatScore      float64  `json:"threat_score"`
	SimilarityScore  float64  `json:"similarity_score"`
	DetectedPatterns []string `json:"detected_patterns"`
	Recommendation   string   `json:"recommendation"`
	CreditsUsed      int      `json:"credits_used"`
}

type DetectedAttack struct {
	Type       string  `json:"type"`
	Severity   string  `json:"severity"`
	Confidence float64 `json:"confidence"`
}

type AddressAnalysis struct {
	IsSpoofed      bool   `json:"is_spoofed"`
	Recommendation string `json:"recommendation"`
}

type SimSwapAnalysis struct {
	IsSimSwap      bool   `json:"is_sim_swap"`
	Recommendation string `json:"recommendation"`
}

type WalletStalkingAnalysis struct {
	IsStalking     bool   `json:"is_stalking"`
	Recommendation string `json:"recommendation"`
}

type ThreatBreakdown struct {
	PatternSimilarity float64 `json:"pattern_similarity"`
	AddressSpoofing   float64 `json:"address_spoofing"`
	SimSwapping       float64 `json:"sim_swapping"`
	WalletStalking    float64 `json:"wallet_stalking"`
	RedFlags          float64 `json:"red_flags"`
}

type DetailedAnalysis struct {
	ThreatBreakdown ThreatBreakdown `json:"threat_breakdown"`
}

type EnhancedResult struct {
	OverallThreatScore     float64                 `json:"overall_threat_score"`
	ThreatLevel            string                  `json:"threat_level"`
	DetectedAttacks        []DetectedAttack        `json:"detected_attacks"`
	Recommendations        []string                `json:"recommendations"`
	AddressAnalysis        *AddressAnalysis        `json:"address_analysis,omitempty"`
	SimSwapAnalysis        *SimSwapAnalysis        `json:"sim_swap_analysis,omitempty"`
	WalletStalkingAnalysis *WalletStalkingAnalysis `json:"wallet_stalking_analysis,omitempty"`
	DetailedAnalysis       DetailedAnalysis        `json:"detailed_analysis"`
}

type RiskAnalysis struct {
	Score                float64  `json:"score"`
	Level                string   `json:"level"`
	Factors              []string `json:"factors"`
	PatternMatches       int      `json:"pattern_matches,omitempty"`
	MaxPatternSimilarity float64  `json:"max_pattern_similarity,omitempty"`
}

// WalletResult keeps the loosely shaped blocks raw.
type WalletResult struct {
	Wallet              string            `json:"wallet"`
	BalanceETH          float64           `json:"balance_eth"`
	TransactionPatterns json.RawMessage   `json:"transaction_patterns,omitempty"`
	BehavioralCluster   json.RawMessage   `json:"behavioral_cluster,omitempty"`
	Relationships       []json.RawMessage `json:"relationships,omitempty"`
	Anomalies           []json.RawMessage `json:"anomalies,omitempty"`
	RiskAnalysis        RiskAnalysis      `json:"risk_analysis"`
	Insights            []string          `json:"insights"`
	CreditsUsed         int               `json:"credits_used,omitempty"`
}

type CreditBalance struct {
	Address string `json:"address"`
	Balance int    `json:"balance"`
	Tier    string `json:"tier"`
}

type Health struct {
	Status      string                     `json:"status"`
	Qdrant      string                     `json:"qdrant"`
	Collections map[string]json.RawMessage `json:"collections"`
}

type Patterns struct {
	Collections   map[string]json.RawMessage `json:"collections"`
	TotalPatterns int                        `json:"total_patterns"`
}

type ResultKind int

const (
	KindBasic ResultKind = iota
	KindEnhanced
)

func (k ResultKind) String() string {
	if k == KindEnhanced {
		return "enhanced"
	}
	return "basic"
}

// Result is one of the two analysis response shapes. Enhanced responses are recognised by
// the overall_threat_score key.
type Result struct {
	Kind     ResultKind
	Basic    *BasicResult
	Enhanced *EnhancedResult
	Raw      json.RawMessage
}

// Score is the headline threat score of either shape.
func (r *Result) Score() float64 {
	switch {
	case r == nil:
		return 0
	case r.Kind == KindEnhanced && r.Enhanced != nil:
		return r.Enhanced.OverallThreatScore
	case r.Basic != nil:
		return r.Basic.ThreatScore
	}
	return 0
}

func (r *Result) Level() Level { return LevelFor(r.Score()) }

// DecodeResult inspects the JSON object and decodes it into the matching shape.
func DecodeResult(raw []byte) (*Result, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	res := &Result{Raw: append(json.RawMessage(nil), raw...)}
	if _, ok := probe["overall_threat_score"]; ok {
		res.Kind = KindEnhanced
		res.Enhanced = new(EnhancedResult)
		if err := json.Unmarshal(raw, res.Enhanced); err != nil {
			return nil, fmt.Errorf("decode enhanced result: %w", err)
		}
		return res, nil
	}
	res.Kind = KindBasic
	res.Basic = new(BasicResult)
	if err := json.Unmarshal(raw, res.Basic); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return res, nil
}
