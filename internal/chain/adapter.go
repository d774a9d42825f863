// Package chain defines the uniform adapter contract the orchestrator drives
// every supported chain through, plus one concrete adapter per chain
// architecture. The orchestrator never branches on architecture; everything
// chain-specific lives behind the Adapter interface.
package chain

import (
	"context"
	"math/big"
	"time"

	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/common"
)

// SignatureScheme is a compile-time-fixed identity fact of an adapter variant.
type SignatureScheme string

const (
	ECDSASecp256k1 SignatureScheme = "ECDSA_SECP256K1"
	EdDSAEd25519   SignatureScheme = "EDDSA_ED25519"
)

// Config is the opaque capability bundle handed to Connect. Which fields a
// variant reads is its own business: EVM adapters want PrivateKey and EVMChainID,
// the Move adapter wants Mnemonic, the Tezos adapter wants PrivateKey and Address.
type Config struct {
	RPCURL     string
	PrivateKey string
	Mnemonic   string
	Address    string
	EVMChainID int64
	Contracts  map[string]string
}

// Contract returns the named entry of the contract address table, or empty.
func (c Config) Contract(name string) string {
	if c.Contracts == nil {
		return ""
	}
	return c.Contracts[name]
}

// TxStatus is the lifecycle state of a broadcast transaction.
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxConfirmed TxStatus = "confirmed"
	TxFailed    TxStatus = "failed"
)

// TxResult is the outcome of a broadcast or contract-calling operation.
type TxResult struct {
	Hash   string
	Status TxStatus
}

// TxRequest is a chain-neutral transaction intent. Each adapter encodes it into
// its chain's native format; Data carries pre-encoded payload bytes when the
// caller has already built them.
type TxRequest struct {
	To       string
	Value    string
	Data     []byte
	GasLimit uint64
}

// Event is a chain event the adapter surfaced, normalized across architectures.
type Event struct {
	Type      string
	OrderID   string
	TxHash    string
	Payload   map[string]any
	Timestamp time.Time
}

// EventCallback is invoked once per matching event on the subscriber's behalf.
type EventCallback func(Event)

// Adapter is the capability set every chain variant implements. All operations
// other than Connect/IsConnected precondition-check connectivity and fail with
// common.ErrNotConnected when unmet.
type Adapter interface {
	// lifecycle
	Connect(ctx context.Context, cfg Config) error
	Disconnect() error
	IsConnected() bool

	// identity facts
	ChainID() common.ChainID
	SignatureScheme() SignatureScheme
	NativeAsset() common.Asset

	// account
	GetAddress() (string, error)
	GetBalance(ctx context.Context, asset common.Asset) (*big.Int, error)
	GetNonce(ctx context.Context) (uint64, error)

	// transaction
	SignTransaction(ctx context.Context, tx TxRequest) (string, error)
	SignMessage(ctx context.Context, message []byte) (string, error)
	BroadcastTransaction(ctx context.Context, signed string) (*TxResult, error)
	GetTransactionStatus(ctx context.Context, hash string) (TxStatus, error)

	// asset
	ApproveAsset(ctx context.Context, asset common.Asset, spender, amount string) (*TxResult, error)
	GetAssetAllowance(ctx context.Context, asset common.Asset, owner, spender string) (*big.Int, error)

	// order
	CreateOrder(ctx context.Context, order *common.Order) (*TxResult, error)
	CancelOrder(ctx context.Context, orderID string) (*TxResult, error)
	FillOrder(ctx context.Context, orderID, amount, secret string) (*TxResult, error)

	// hash-lock
	CreateHashLock(ctx context.Context, secret string, timelock int64) (*TxResult, error)
	RevealSecret(ctx context.Context, hashLock, secret string) (*TxResult, error)
	RefundHashLock(ctx context.Context, hashLock string) (*TxResult, error)

	// events
	SubscribeToEvents(ctx context.Context, eventTypes []string, callback EventCallback) (string, error)
	UnsubscribeFromEvents(subscriptionID string) error
	GetOrderEvents(ctx context.Context, orderID string) ([]Event, error)

	// chain facts
	EstimateGas(ctx context.Context, tx TxRequest) (uint64, error)
	GetCurrentBlockNumber(ctx context.Context) (uint64, error)
	GetBlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error)
}

// Factory constructs a fresh, unconnected-or-connected adapter for its chain.
type Factory func() (Adapter, error)
