package common

import (
	"time"

	"github.com/google/uuid"
)

// Asset identifies a fungible unit on a specific chain. Immutable once constructed.
type Asset struct {
	ChainID  ChainID       `json:"chainId"`
	Address  string        `json:"address"`
	Symbol   string        `json:"symbol"`
	Decimals uint8         `json:"decimals"`
	Standard AssetStandard `json:"standard"`
}

// OrderStatus is the lifecycle state of an order as tracked by the order store.
type OrderStatus string

const (
	StatusCreated         OrderStatus = "CREATED"
	StatusPending         OrderStatus = "PENDING"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusExecuted        OrderStatus = "EXECUTED"
	StatusCancelled       OrderStatus = "CANCELLED"
	StatusExpired         OrderStatus = "EXPIRED"
	StatusFailed          OrderStatus = "FAILED"
)

// Terminal reports whether the status ends an order's monitoring lifecycle.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusExecuted, StatusCancelled, StatusExpired, StatusFailed:
		return true
	}
	return false
}

// Fill records one accepted counter-fill of an order. Index matches the secret
// slot that was released for it. Append-only once recorded.
type Fill struct {
	Index     int       `json:"index"`
	Amount    string    `json:"amount"`
	TxHash    string    `json:"txHash"`
	Timestamp time.Time `json:"timestamp"`
	Resolver  string    `json:"resolver"`
}

// Order is the orchestrator's view of a cross-chain swap. OrderID is empty until
// the settlement service assigns one at placement. Secrets, SecretHashes and the
// hash-lock commitment are parallel to the fill slots the quote dictated.
type Order struct {
	OrderID      string      `json:"orderId"`
	SrcChain     ChainID     `json:"srcChain"`
	DstChain     ChainID     `json:"dstChain"`
	SrcAsset     Asset       `json:"srcAsset"`
	DstAsset     Asset       `json:"dstAsset"`
	Amount       string      `json:"amount"`
	MinReturn    string      `json:"minReturn"`
	Maker        string      `json:"maker"`
	Taker        string      `json:"taker,omitempty"`
	Deadline     int64       `json:"deadline"`
	Status       OrderStatus `json:"status"`
	Fills        []Fill      `json:"fills"`
	Secrets      []string    `json:"-"`
	SecretHashes []string    `json:"secretHashes"`
	HashLock     string      `json:"hashLock"`
}

// HasFill reports whether a fill for the given secret index is already recorded.
func (o *Order) HasFill(index int) bool {
	for i := range o.Fills {
		if o.Fills[i].Index == index {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand out as a read snapshot.
func (o *Order) Clone() *Order {
	cp := *o
	cp.Fills = append([]Fill(nil), o.Fills...)
	cp.Secrets = append([]string(nil), o.Secrets...)
	cp.SecretHashes = append([]string(nil), o.SecretHashes...)
	return &cp
}

// QuoteRequestParams are the query parameters of the settlement quote endpoint.
type QuoteRequestParams struct {
	SrcChain        string `schema:"srcChain"`
	DstChain        string `schema:"dstChain"`
	SrcTokenAddress string `schema:"srcTokenAddress"`
	DstTokenAddress string `schema:"dstTokenAddress"`
	Amount          string `schema:"amount"`
	WalletAddress   string `schema:"walletAddress"`
	EnableEstimate  bool   `schema:"enableEstimate"`
}

// PresetEnum names a fill-splitting preset offered by the quoter.
type PresetEnum string

const (
	PresetFast   PresetEnum = "fast"
	PresetMedium PresetEnum = "medium"
	PresetSlow   PresetEnum = "slow"
	PresetCustom PresetEnum = "custom"
)

// PresetData is one quoter preset; SecretsCount dictates how many hash-lock
// slots the placed order must commit to.
type PresetData struct {
	StartAmount        string `json:"startAmount"`
	AuctionStartAmount string `json:"auctionStartAmount"`
	AuctionEndAmount   string `json:"auctionEndAmount"`
	AuctionDuration    int64  `json:"auctionDuration"`
	AllowPartialFills  bool   `json:"allowPartialFills"`
	AllowMultipleFills bool   `json:"allowMultipleFills"`
	SecretsCount       int    `json:"secretsCount"`
}

// Cost carries USD price references for both legs of a quote.
type Cost struct {
	USD struct {
		SrcToken string `json:"srcToken"`
		DstToken string `json:"dstToken"`
	} `json:"usd"`
}

// Quote is the settlement service's pricing response.
type Quote struct {
	QuoteID           uuid.UUID                 `json:"quoteId"`
	SrcTokenAmount    string                    `json:"srcTokenAmount"`
	DstTokenAmount    string                    `json:"dstTokenAmount"`
	Presets           map[PresetEnum]PresetData `json:"presets"`
	RecommendedPreset PresetEnum                `json:"recommendedPreset"`
	Prices            Cost                      `json:"prices"`
	SrcSafetyDeposit  string                    `json:"srcSafetyDeposit"`
	DstSafetyDeposit  string                    `json:"dstSafetyDeposit"`
}

// SecretsCount returns the secret count of the recommended preset. A quote with
// no usable preset defaults to a single fill slot.
func (q *Quote) SecretsCount() int {
	preset, ok := q.Presets[q.RecommendedPreset]
	if !ok || preset.SecretsCount < 1 {
		return 1
	}
	return preset.SecretsCount
}

// PlaceOrderRequest is the payload submitted alongside a quote to place an order.
type PlaceOrderRequest struct {
	QuoteID       uuid.UUID `json:"quoteId"`
	WalletAddress string    `json:"walletAddress"`
	HashLock      string    `json:"hashLock"`
	SecretHashes  []string  `json:"secretHashes"`
}

// PlaceOrderResponse carries the settlement-assigned order id.
type PlaceOrderResponse struct {
	OrderID string `json:"orderId"`
}

// SettlementStatus is the raw status string the settlement service reports.
type SettlementStatus string

const (
	SettlementPending   SettlementStatus = "pending"
	SettlementExecuted  SettlementStatus = "executed"
	SettlementCancelled SettlementStatus = "cancelled"
	SettlementExpired   SettlementStatus = "expired"
)

// OrderStatusResponse is the settlement order-status payload.
type OrderStatusResponse struct {
	Status    SettlementStatus `json:"status"`
	CancelTx  *string          `json:"cancelTx"`
	CreatedAt string           `json:"createdAt"`
}

// ReadyToAcceptSecretFill describes one fill index whose resolver has committed
// on-chain and is waiting for the secret at that index.
type ReadyToAcceptSecretFill struct {
	Idx      int    `json:"idx"`
	Amount   string `json:"amount"`
	TxHash   string `json:"txHash"`
	Resolver string `json:"resolver"`
}

// ReadyToAcceptSecretFills is the fill-readiness response.
type ReadyToAcceptSecretFills struct {
	Fills []ReadyToAcceptSecretFill `json:"fills"`
}

// SecretSubmission releases one secret for an order to the settlement service.
type SecretSubmission struct {
	OrderID string `json:"orderId"`
	Secret  string `json:"secret"`
}
