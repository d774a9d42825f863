package chain

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/block-vision/sui-go-sdk/models"
	"github.com/block-vision/sui-go-sdk/signer"
	"github.com/block-vision/sui-go-sdk/sui"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/common"
	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/hashlock"
)

const (
	suiNativeCoinType = "0x2::sui::SUI"
	suiSwapModule     = "swap"
	suiGasBudget      = "100000000"
)

// maxAllowance stands in for "unlimited" on chains whose object-ownership model
// has no ERC20-style allowance concept.
var maxAllowance = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// MoveAdapter drives a Move-based chain (Sui) through the BlockVision SDK.
// Transactions are Move calls into the swap package named in the contract table.
type MoveAdapter struct {
	chain  common.ChainID
	logger zerolog.Logger

	mu        sync.RWMutex
	connected bool
	cfg       Config
	client    sui.ISuiAPI
	account   *signer.Signer

	subMu sync.Mutex
	subs  map[string]context.CancelFunc
}

func NewMoveAdapter(chain common.ChainID, logger zerolog.Logger) *MoveAdapter {
	return &MoveAdapter{
		chain:  chain,
		logger: logger.With().Str("adapter", string(chain)).Logger(),
		subs:   make(map[string]context.CancelFunc),
	}
}

func (a *MoveAdapter) Connect(_ context.Context, cfg Config) error {
	account, err := signer.NewSignertWithMnemonic(cfg.Mnemonic)
	if err != nil {
		return fmt.Errorf("invalid %s mnemonic: %w", a.chain, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg = cfg
	a.client = sui.NewSuiClient(cfg.RPCURL)
	a.account = account
	a.connected = true

	a.logger.Info().Str("address", account.Address).Msg("adapter connected")
	return nil
}

func (a *MoveAdapter) Disconnect() error {
	a.subMu.Lock()
	for id, cancel := range a.subs {
		cancel()
		delete(a.subs, id)
	}
	a.subMu.Unlock()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.client = nil
	a.account = nil
	a.connected = false
	return nil
}

func (a *MoveAdapter) IsConnected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.connected
}

func (a *MoveAdapter) ChainID() common.ChainID          { return a.chain }
func (a *MoveAdapter) SignatureScheme() SignatureScheme { return EdDSAEd25519 }

func (a *MoveAdapter) NativeAsset() common.Asset {
	return common.Asset{
		ChainID:  a.chain,
		Address:  suiNativeCoinType,
		Symbol:   "SUI",
		Decimals: 9,
		Standard: common.StandardNative,
	}
}

func (a *MoveAdapter) session() (sui.ISuiAPI, *signer.Signer, Config, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.connected {
		return nil, nil, Config{}, fmt.Errorf("%w: %s", common.ErrNotConnected, a.chain)
	}
	return a.client, a.account, a.cfg, nil
}

func (a *MoveAdapter) GetAddress() (string, error) {
	_, account, _, err := a.session()
	if err != nil {
		return "", err
	}
	return account.Address, nil
}

func (a *MoveAdapter) GetBalance(ctx context.Context, asset common.Asset) (*big.Int, error) {
	client, account, _, err := a.session()
	if err != nil {
		return nil, err
	}

	coinType := asset.Address
	if asset.Standard == common.StandardNative {
		coinType = suiNativeCoinType
	}

	rsp, err := client.SuiXGetBalance(ctx, models.SuiXGetBalanceRequest{
		Owner:    account.Address,
		CoinType: coinType,
	})
	if err != nil {
		return nil, fmt.Errorf("balance query failed: %w", err)
	}

	balance, ok := new(big.Int).SetString(rsp.TotalBalance, 10)
	if !ok {
		return nil, fmt.Errorf("invalid balance value: %s", rsp.TotalBalance)
	}
	return balance, nil
}

// GetNonce always reports zero: the object-ownership model has no account
// nonce, replay protection comes from object versions.
func (a *MoveAdapter) GetNonce(context.Context) (uint64, error) {
	if _, _, _, err := a.session(); err != nil {
		return 0, err
	}
	return 0, nil
}

// SignTransaction signs pre-built BCS transaction bytes carried in tx.Data.
func (a *MoveAdapter) SignTransaction(_ context.Context, tx TxRequest) (string, error) {
	_, account, _, err := a.session()
	if err != nil {
		return "", err
	}
	if len(tx.Data) == 0 {
		return "", fmt.Errorf("move transactions require pre-encoded bytes")
	}
	return "0x" + hex.EncodeToString(ed25519.Sign(account.PriKey, tx.Data)), nil
}

func (a *MoveAdapter) SignMessage(_ context.Context, message []byte) (string, error) {
	_, account, _, err := a.session()
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(ed25519.Sign(account.PriKey, message)), nil
}

// BroadcastTransaction is not meaningful standalone on Sui: Move calls are
// signed and executed in one RPC. Kept for contract completeness.
func (a *MoveAdapter) BroadcastTransaction(context.Context, string) (*TxResult, error) {
	if _, _, _, err := a.session(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("move transactions are executed via contract calls, not raw broadcast")
}

func (a *MoveAdapter) GetTransactionStatus(ctx context.Context, hash string) (TxStatus, error) {
	client, _, _, err := a.session()
	if err != nil {
		return "", err
	}

	rsp, err := client.SuiGetTransactionBlock(ctx, models.SuiGetTransactionBlockRequest{
		Digest:  hash,
		Options: models.SuiTransactionBlockOptions{ShowEffects: true},
	})
	if err != nil {
		// the node reports unknown digests as errors; treat as still pending
		return TxPending, nil
	}

	if strings.EqualFold(rsp.Effects.Status.Status, "success") {
		return TxConfirmed, nil
	}
	return TxFailed, nil
}

// ApproveAsset is a no-op on Sui: coins are owned objects passed by value into
// the Move call, there is no spender allowance to grant.
func (a *MoveAdapter) ApproveAsset(_ context.Context, asset common.Asset, spender, _ string) (*TxResult, error) {
	if _, _, _, err := a.session(); err != nil {
		return nil, err
	}
	a.logger.Debug().Str("asset", asset.Address).Str("spender", spender).Msg("approval implicit in object model")
	return &TxResult{Status: TxConfirmed}, nil
}

func (a *MoveAdapter) GetAssetAllowance(context.Context, common.Asset, string, string) (*big.Int, error) {
	if _, _, _, err := a.session(); err != nil {
		return nil, err
	}
	return new(big.Int).Set(maxAllowance), nil
}

func (a *MoveAdapter) CreateOrder(ctx context.Context, order *common.Order) (*TxResult, error) {
	return a.moveCall(ctx, "create_order", []interface{}{
		order.HashLock,
		order.Amount,
		order.MinReturn,
		strconv.FormatInt(order.Deadline, 10),
	})
}

func (a *MoveAdapter) CancelOrder(ctx context.Context, orderID string) (*TxResult, error) {
	return a.moveCall(ctx, "cancel_order", []interface{}{orderID})
}

func (a *MoveAdapter) FillOrder(ctx context.Context, orderID, amount, secret string) (*TxResult, error) {
	return a.moveCall(ctx, "fill_order", []interface{}{orderID, amount, secret})
}

func (a *MoveAdapter) CreateHashLock(ctx context.Context, secret string, timelock int64) (*TxResult, error) {
	hashed, err := hashlock.HashSecret(secret)
	if err != nil {
		return nil, err
	}
	return a.moveCall(ctx, "create_lock", []interface{}{hashed, strconv.FormatInt(timelock, 10)})
}

func (a *MoveAdapter) RevealSecret(ctx context.Context, hashLock, secret string) (*TxResult, error) {
	return a.moveCall(ctx, "reveal_secret", []interface{}{hashLock, secret})
}

func (a *MoveAdapter) RefundHashLock(ctx context.Context, hashLock string) (*TxResult, error) {
	return a.moveCall(ctx, "refund", []interface{}{hashLock})
}

func (a *MoveAdapter) SubscribeToEvents(ctx context.Context, eventTypes []string, callback EventCallback) (string, error) {
	_, _, cfg, err := a.session()
	if err != nil {
		return "", err
	}

	subCtx, cancel := context.WithCancel(ctx)
	subID := uuid.NewString()

	a.subMu.Lock()
	a.subs[subID] = cancel
	a.subMu.Unlock()

	wanted := make(map[string]struct{}, len(eventTypes))
	for _, t := range eventTypes {
		wanted[t] = struct{}{}
	}

	go func() {
		defer cancel()

		seen := make(map[string]struct{})
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-subCtx.Done():
				return
			case <-ticker.C:
			}

			events, err := a.querySwapEvents(subCtx, cfg)
			if err != nil {
				a.logger.Warn().Err(err).Msg("event poll failed")
				continue
			}

			for _, ev := range events {
				key := ev.TxHash + "/" + ev.Type
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}

				if len(wanted) > 0 {
					if _, keep := wanted[ev.Type]; !keep {
						continue
					}
				}
				callback(ev)
			}
		}
	}()

	return subID, nil
}

func (a *MoveAdapter) UnsubscribeFromEvents(subscriptionID string) error {
	a.subMu.Lock()
	defer a.subMu.Unlock()

	cancel, ok := a.subs[subscriptionID]
	if !ok {
		return fmt.Errorf("unknown subscription: %s", subscriptionID)
	}
	cancel()
	delete(a.subs, subscriptionID)
	return nil
}

func (a *MoveAdapter) GetOrderEvents(ctx context.Context, orderID string) ([]Event, error) {
	_, _, cfg, err := a.session()
	if err != nil {
		return nil, err
	}

	events, err := a.querySwapEvents(ctx, cfg)
	if err != nil {
		return nil, err
	}

	matched := make([]Event, 0, len(events))
	for _, ev := range events {
		if ev.OrderID == orderID {
			matched = append(matched, ev)
		}
	}
	return matched, nil
}

// EstimateGas returns the flat Move-call gas budget; Sui charges by reference
// gas price times computation units decided at execution.
func (a *MoveAdapter) EstimateGas(context.Context, TxRequest) (uint64, error) {
	if _, _, _, err := a.session(); err != nil {
		return 0, err
	}
	budget, err := strconv.ParseUint(suiGasBudget, 10, 64)
	if err != nil {
		return 0, err
	}
	return budget, nil
}

func (a *MoveAdapter) GetCurrentBlockNumber(ctx context.Context) (uint64, error) {
	client, _, _, err := a.session()
	if err != nil {
		return 0, err
	}
	return client.SuiGetLatestCheckpointSequenceNumber(ctx)
}

func (a *MoveAdapter) GetBlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error) {
	client, _, _, err := a.session()
	if err != nil {
		return time.Time{}, err
	}

	rsp, err := client.SuiGetCheckpoint(ctx, models.SuiGetCheckpointRequest{
		CheckpointID: strconv.FormatUint(blockNumber, 10),
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("checkpoint query failed: %w", err)
	}

	ms, err := strconv.ParseInt(rsp.TimestampMs, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid checkpoint timestamp: %w", err)
	}
	return time.UnixMilli(ms), nil
}

// moveCall builds, signs and executes one Move call against the swap package.
func (a *MoveAdapter) moveCall(ctx context.Context, function string, args []interface{}) (*TxResult, error) {
	client, account, cfg, err := a.session()
	if err != nil {
		return nil, err
	}

	meta, err := client.MoveCall(ctx, models.MoveCallRequest{
		Signer:          account.Address,
		PackageObjectId: cfg.Contract("swap"),
		Module:          suiSwapModule,
		Function:        function,
		TypeArguments:   []interface{}{},
		Arguments:       args,
		GasBudget:       suiGasBudget,
	})
	if err != nil {
		return nil, fmt.Errorf("move call %s failed to build: %w", function, err)
	}

	rsp, err := client.SignAndExecuteTransactionBlock(ctx, models.SignAndExecuteTransactionBlockRequest{
		TxnMetaData: meta,
		PriKey:      account.PriKey,
		Options:     models.SuiTransactionBlockOptions{ShowEffects: true},
		RequestType: "WaitForLocalExecution",
	})
	if err != nil {
		return nil, fmt.Errorf("move call %s failed to execute: %w", function, err)
	}

	status := TxPending
	if strings.EqualFold(rsp.Effects.Status.Status, "success") {
		status = TxConfirmed
	} else if rsp.Effects.Status.Status != "" {
		status = TxFailed
	}
	return &TxResult{Hash: rsp.Digest, Status: status}, nil
}

// querySwapEvents pulls the most recent swap-module events, newest first.
func (a *MoveAdapter) querySwapEvents(ctx context.Context, cfg Config) ([]Event, error) {
	client, _, _, err := a.session()
	if err != nil {
		return nil, err
	}

	rsp, err := client.SuiXQueryEvents(ctx, models.SuiXQueryEventsRequest{
		SuiEventFilter: map[string]interface{}{
			"MoveEventModule": map[string]interface{}{
				"package": cfg.Contract("swap"),
				"module":  suiSwapModule,
			},
		},
		Limit:           50,
		DescendingOrder: true,
	})
	if err != nil {
		return nil, fmt.Errorf("event query failed: %w", err)
	}

	events := make([]Event, 0, len(rsp.Data))
	for i := range rsp.Data {
		ev := rsp.Data[i]

		event := Event{
			Type:    shortEventType(ev.Type),
			TxHash:  ev.Id.TxDigest,
			Payload: map[string]any{},
		}

		// re-marshal ParsedJson to a map to stay agnostic of its concrete shape
		if raw, err := json.Marshal(ev.ParsedJson); err == nil {
			var fields map[string]any
			if err := json.Unmarshal(raw, &fields); err == nil {
				event.Payload = fields
				if id, ok := fields["order_id"].(string); ok {
					event.OrderID = id
				}
			}
		}
		if ms, err := strconv.ParseInt(ev.TimestampMs, 10, 64); err == nil {
			event.Timestamp = time.UnixMilli(ms)
		}
		events = append(events, event)
	}
	return events, nil
}

// shortEventType strips the package::module:: prefix from a Move event type.
func shortEventType(full string) string {
	if idx := strings.LastIndex(full, "::"); idx >= 0 {
		return full[idx+2:]
	}
	return full
}
