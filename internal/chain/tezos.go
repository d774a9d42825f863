package chain

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/blake2b"

	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/common"
	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/hashlock"
)

const (
	tezosDefaultFee          = "1500"  // mutez
	tezosDefaultGasLimit     = "10600" // hard gas limit default per operation
	tezosDefaultStorageLimit = "300"
	tezosRecentEventCap      = 256
)

// tezosGenericOpWatermark prefixes generic operation bytes before hashing, per
// the Tezos signing convention.
var tezosGenericOpWatermark = []byte{0x03}

// TezosAdapter drives a Michelson-based chain through the node's JSON/HTTP RPC.
// Contract interactions are entrypoint calls against the swap contract from the
// contract table; signing is ed25519 over blake2b-256 of watermarked bytes.
type TezosAdapter struct {
	chain  common.ChainID
	logger zerolog.Logger

	mu        sync.RWMutex
	connected bool
	cfg       Config
	http      *http.Client
	key       ed25519.PrivateKey
	address   string

	subMu sync.Mutex
	subs  map[string]context.CancelFunc

	eventMu sync.Mutex
	recent  []Event
}

func NewTezosAdapter(chain common.ChainID, logger zerolog.Logger) *TezosAdapter {
	return &TezosAdapter{
		chain:  chain,
		logger: logger.With().Str("adapter", string(chain)).Logger(),
		subs:   make(map[string]context.CancelFunc),
	}
}

func (a *TezosAdapter) Connect(_ context.Context, cfg Config) error {
	seed, err := hex.DecodeString(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil || len(seed) != ed25519.SeedSize {
		return fmt.Errorf("invalid %s signing seed: want %d hex bytes", a.chain, ed25519.SeedSize)
	}
	if cfg.Address == "" {
		return fmt.Errorf("%s adapter requires the account address in config", a.chain)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg = cfg
	a.http = &http.Client{Timeout: 30 * time.Second}
	a.key = ed25519.NewKeyFromSeed(seed)
	a.address = cfg.Address
	a.connected = true

	a.logger.Info().Str("address", a.address).Msg("adapter connected")
	return nil
}

func (a *TezosAdapter) Disconnect() error {
	a.subMu.Lock()
	for id, cancel := range a.subs {
		cancel()
		delete(a.subs, id)
	}
	a.subMu.Unlock()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.http = nil
	a.key = nil
	a.connected = false
	return nil
}

func (a *TezosAdapter) IsConnected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.connected
}

func (a *TezosAdapter) ChainID() common.ChainID          { return a.chain }
func (a *TezosAdapter) SignatureScheme() SignatureScheme { return EdDSAEd25519 }

func (a *TezosAdapter) NativeAsset() common.Asset {
	return common.Asset{
		ChainID:  a.chain,
		Address:  "",
		Symbol:   "XTZ",
		Decimals: 6,
		Standard: common.StandardNative,
	}
}

func (a *TezosAdapter) session() (*http.Client, ed25519.PrivateKey, string, Config, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.connected {
		return nil, nil, "", Config{}, fmt.Errorf("%w: %s", common.ErrNotConnected, a.chain)
	}
	return a.http, a.key, a.address, a.cfg, nil
}

func (a *TezosAdapter) GetAddress() (string, error) {
	_, _, address, _, err := a.session()
	if err != nil {
		return "", err
	}
	return address, nil
}

func (a *TezosAdapter) GetBalance(ctx context.Context, asset common.Asset) (*big.Int, error) {
	_, _, address, _, err := a.session()
	if err != nil {
		return nil, err
	}

	if asset.Standard == common.StandardNative {
		var mutez string
		if err := a.get(ctx, "/chains/main/blocks/head/context/contracts/"+address+"/balance", &mutez); err != nil {
			return nil, err
		}
		balance, ok := new(big.Int).SetString(mutez, 10)
		if !ok {
			return nil, fmt.Errorf("invalid balance value: %s", mutez)
		}
		return balance, nil
	}

	// FA2 balances come from the token contract's get_balance on-chain view
	input := mPair(mString(address), mInt("0"))
	var out struct {
		Data struct {
			Int string `json:"int"`
		} `json:"data"`
	}
	body := map[string]any{
		"contract":     asset.Address,
		"view":         "get_balance",
		"input":        input,
		"unlimited_gas": true,
	}
	if err := a.post(ctx, "/chains/main/blocks/head/helpers/scripts/run_script_view", body, &out); err != nil {
		return nil, fmt.Errorf("token balance view failed: %w", err)
	}

	balance, ok := new(big.Int).SetString(out.Data.Int, 10)
	if !ok {
		return nil, fmt.Errorf("invalid token balance value: %q", out.Data.Int)
	}
	return balance, nil
}

// GetNonce returns the account's operation counter.
func (a *TezosAdapter) GetNonce(ctx context.Context) (uint64, error) {
	_, _, address, _, err := a.session()
	if err != nil {
		return 0, err
	}

	var counter string
	if err := a.get(ctx, "/chains/main/blocks/head/context/contracts/"+address+"/counter", &counter); err != nil {
		return 0, err
	}
	return strconv.ParseUint(counter, 10, 64)
}

// SignTransaction signs forged operation bytes. When tx.Data is empty a plain
// transfer to tx.To is forged first. The result is hex(forged || signature),
// ready for injection.
func (a *TezosAdapter) SignTransaction(ctx context.Context, tx TxRequest) (string, error) {
	_, key, _, _, err := a.session()
	if err != nil {
		return "", err
	}

	forged := tx.Data
	if len(forged) == 0 {
		forged, err = a.forgeTransfer(ctx, tx.To, tx.Value, nil)
		if err != nil {
			return "", err
		}
	}

	digest := blake2b.Sum256(append(tezosGenericOpWatermark, forged...))
	signature := ed25519.Sign(key, digest[:])
	return hex.EncodeToString(append(forged, signature...)), nil
}

func (a *TezosAdapter) SignMessage(_ context.Context, message []byte) (string, error) {
	_, key, _, _, err := a.session()
	if err != nil {
		return "", err
	}

	digest := blake2b.Sum256(message)
	return "0x" + hex.EncodeToString(ed25519.Sign(key, digest[:])), nil
}

func (a *TezosAdapter) BroadcastTransaction(ctx context.Context, signed string) (*TxResult, error) {
	if _, _, _, _, err := a.session(); err != nil {
		return nil, err
	}

	var opHash string
	if err := a.post(ctx, "/injection/operation?chain=main", signed, &opHash); err != nil {
		return nil, fmt.Errorf("injection failed: %w", err)
	}
	return &TxResult{Hash: opHash, Status: TxPending}, nil
}

func (a *TezosAdapter) GetTransactionStatus(ctx context.Context, hash string) (TxStatus, error) {
	if _, _, _, _, err := a.session(); err != nil {
		return "", err
	}

	// included in head?
	var included [][]string
	if err := a.get(ctx, "/chains/main/blocks/head/operation_hashes", &included); err == nil {
		for _, group := range included {
			for _, h := range group {
				if h == hash {
					return TxConfirmed, nil
				}
			}
		}
	}
	return TxPending, nil
}

func (a *TezosAdapter) ApproveAsset(ctx context.Context, asset common.Asset, spender, amount string) (*TxResult, error) {
	// FA2 operator grant; amount is ignored, FA2 operators are all-or-nothing
	_, _, address, _, err := a.session()
	if err != nil {
		return nil, err
	}
	_ = amount

	args := mPair(mString(address), mPair(mString(spender), mInt("0")))
	return a.callContract(ctx, asset.Address, "update_operators", args)
}

// GetAssetAllowance reports the FA2 operator grant as unlimited or zero.
func (a *TezosAdapter) GetAssetAllowance(ctx context.Context, asset common.Asset, owner, spender string) (*big.Int, error) {
	if _, _, _, _, err := a.session(); err != nil {
		return nil, err
	}

	input := mPair(mString(owner), mPair(mString(spender), mInt("0")))
	var out struct {
		Data struct {
			Prim string `json:"prim"`
		} `json:"data"`
	}
	body := map[string]any{
		"contract": asset.Address,
		"view":     "is_operator",
		"input":    input,
	}
	if err := a.post(ctx, "/chains/main/blocks/head/helpers/scripts/run_script_view", body, &out); err != nil {
		return nil, fmt.Errorf("operator view failed: %w", err)
	}

	if out.Data.Prim == "True" {
		return new(big.Int).Set(maxAllowance), nil
	}
	return big.NewInt(0), nil
}

func (a *TezosAdapter) CreateOrder(ctx context.Context, order *common.Order) (*TxResult, error) {
	_, _, _, cfg, err := a.session()
	if err != nil {
		return nil, err
	}

	args := mPair(
		mBytes(order.HashLock),
		mPair(mInt(order.Amount), mPair(mInt(order.MinReturn), mInt(strconv.FormatInt(order.Deadline, 10)))),
	)
	return a.callContract(ctx, cfg.Contract("swap"), "create_order", args)
}

func (a *TezosAdapter) CancelOrder(ctx context.Context, orderID string) (*TxResult, error) {
	_, _, _, cfg, err := a.session()
	if err != nil {
		return nil, err
	}
	return a.callContract(ctx, cfg.Contract("swap"), "cancel_order", mBytes(orderID))
}

func (a *TezosAdapter) FillOrder(ctx context.Context, orderID, amount, secret string) (*TxResult, error) {
	_, _, _, cfg, err := a.session()
	if err != nil {
		return nil, err
	}

	args := mPair(mBytes(orderID), mPair(mInt(amount), mBytes(secret)))
	return a.callContract(ctx, cfg.Contract("swap"), "fill_order", args)
}

func (a *TezosAdapter) CreateHashLock(ctx context.Context, secret string, timelock int64) (*TxResult, error) {
	_, _, _, cfg, err := a.session()
	if err != nil {
		return nil, err
	}

	hashed, err := hashlock.HashSecret(secret)
	if err != nil {
		return nil, err
	}
	args := mPair(mBytes(hashed), mInt(strconv.FormatInt(timelock, 10)))
	return a.callContract(ctx, cfg.Contract("swap"), "create_lock", args)
}

func (a *TezosAdapter) RevealSecret(ctx context.Context, hashLock, secret string) (*TxResult, error) {
	_, _, _, cfg, err := a.session()
	if err != nil {
		return nil, err
	}
	return a.callContract(ctx, cfg.Contract("swap"), "reveal_secret", mPair(mBytes(hashLock), mBytes(secret)))
}

func (a *TezosAdapter) RefundHashLock(ctx context.Context, hashLock string) (*TxResult, error) {
	_, _, _, cfg, err := a.session()
	if err != nil {
		return nil, err
	}
	return a.callContract(ctx, cfg.Contract("swap"), "refund", mBytes(hashLock))
}

// SubscribeToEvents polls new head blocks for operations against the swap
// contract and surfaces them as events named after the called entrypoint.
func (a *TezosAdapter) SubscribeToEvents(ctx context.Context, eventTypes []string, callback EventCallback) (string, error) {
	_, _, _, cfg, err := a.session()
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

		var lastLevel uint64
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-subCtx.Done():
				return
			case <-ticker.C:
			}

			level, err := a.GetCurrentBlockNumber(subCtx)
			if err != nil || level == lastLevel {
				continue
			}
			lastLevel = level

			events, err := a.scanHeadBlock(subCtx, cfg.Contract("swap"))
			if err != nil {
				a.logger.Warn().Err(err).Msg("event poll failed")
				continue
			}

			for _, ev := range events {
				a.remember(ev)
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

func (a *TezosAdapter) UnsubscribeFromEvents(subscriptionID string) error {
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

// GetOrderEvents serves from the ring of events observed by subscriptions plus
// a fresh scan of the head block.
func (a *TezosAdapter) GetOrderEvents(ctx context.Context, orderID string) ([]Event, error) {
	_, _, _, cfg, err := a.session()
	if err != nil {
		return nil, err
	}

	if fresh, err := a.scanHeadBlock(ctx, cfg.Contract("swap")); err == nil {
		for _, ev := range fresh {
			a.remember(ev)
		}
	}

	a.eventMu.Lock()
	defer a.eventMu.Unlock()

	matched := make([]Event, 0)
	for _, ev := range a.recent {
		if ev.OrderID == orderID {
			matched = append(matched, ev)
		}
	}
	return matched, nil
}

// EstimateGas returns the node's default hard gas limit per operation; precise
// estimation would require a dry run the orchestrator never needs.
func (a *TezosAdapter) EstimateGas(context.Context, TxRequest) (uint64, error) {
	if _, _, _, _, err := a.session(); err != nil {
		return 0, err
	}
	return strconv.ParseUint(tezosDefaultGasLimit, 10, 64)
}

func (a *TezosAdapter) GetCurrentBlockNumber(ctx context.Context) (uint64, error) {
	if _, _, _, _, err := a.session(); err != nil {
		return 0, err
	}

	var header struct {
		Level uint64 `json:"level"`
	}
	if err := a.get(ctx, "/chains/main/blocks/head/header", &header); err != nil {
		return 0, err
	}
	return header.Level, nil
}

func (a *TezosAdapter) GetBlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error) {
	if _, _, _, _, err := a.session(); err != nil {
		return time.Time{}, err
	}

	var header struct {
		Timestamp time.Time `json:"timestamp"`
	}
	path := "/chains/main/blocks/" + strconv.FormatUint(blockNumber, 10) + "/header"
	if err := a.get(ctx, path, &header); err != nil {
		return time.Time{}, err
	}
	return header.Timestamp, nil
}

// callContract forges, signs and injects one entrypoint call.
func (a *TezosAdapter) callContract(ctx context.Context, contract, entrypoint string, value any) (*TxResult, error) {
	if contract == "" {
		return nil, fmt.Errorf("no contract address configured for %s", a.chain)
	}

	params := map[string]any{"entrypoint": entrypoint, "value": value}
	forged, err := a.forgeTransfer(ctx, contract, "0", params)
	if err != nil {
		return nil, err
	}

	signed, err := a.SignTransaction(ctx, TxRequest{Data: forged})
	if err != nil {
		return nil, err
	}
	return a.BroadcastTransaction(ctx, signed)
}

// forgeTransfer asks the node to forge a single transaction operation.
func (a *TezosAdapter) forgeTransfer(ctx context.Context, destination, amount string, params map[string]any) ([]byte, error) {
	_, _, address, _, err := a.session()
	if err != nil {
		return nil, err
	}

	var branch string
	if err := a.get(ctx, "/chains/main/blocks/head/hash", &branch); err != nil {
		return nil, err
	}
	counter, err := a.GetNonce(ctx)
	if err != nil {
		return nil, err
	}

	if amount == "" {
		amount = "0"
	}
	content := map[string]any{
		"kind":          "transaction",
		"source":        address,
		"fee":           tezosDefaultFee,
		"counter":       strconv.FormatUint(counter+1, 10),
		"gas_limit":     tezosDefaultGasLimit,
		"storage_limit": tezosDefaultStorageLimit,
		"amount":        amount,
		"destination":   destination,
	}
	if params != nil {
		content["parameters"] = params
	}

	body := map[string]any{
		"branch":   branch,
		"contents": []any{content},
	}

	var forgedHex string
	if err := a.post(ctx, "/chains/main/blocks/head/helpers/forge/operations", body, &forgedHex); err != nil {
		return nil, fmt.Errorf("forge failed: %w", err)
	}
	return hex.DecodeString(forgedHex)
}

// scanHeadBlock extracts swap-contract calls from the head block.
func (a *TezosAdapter) scanHeadBlock(ctx context.Context, contract string) ([]Event, error) {
	var block struct {
		Header struct {
			Level     uint64    `json:"level"`
			Timestamp time.Time `json:"timestamp"`
		} `json:"header"`
		Operations [][]struct {
			Hash     string `json:"hash"`
			Contents []struct {
				Kind        string `json:"kind"`
				Destination string `json:"destination"`
				Parameters  *struct {
					Entrypoint string          `json:"entrypoint"`
					Value      json.RawMessage `json:"value"`
				} `json:"parameters"`
			} `json:"contents"`
		} `json:"operations"`
	}
	if err := a.get(ctx, "/chains/main/blocks/head", &block); err != nil {
		return nil, err
	}

	var events []Event
	for _, group := range block.Operations {
		for _, op := range group {
			for _, content := range op.Contents {
				if content.Kind != "transaction" || content.Destination != contract || content.Parameters == nil {
					continue
				}
				events = append(events, Event{
					Type:      content.Parameters.Entrypoint,
					OrderID:   firstBytesArg(content.Parameters.Value),
					TxHash:    op.Hash,
					Payload:   map[string]any{"value": string(content.Parameters.Value)},
					Timestamp: block.Header.Timestamp,
				})
			}
		}
	}
	return events, nil
}

func (a *TezosAdapter) remember(ev Event) {
	a.eventMu.Lock()
	defer a.eventMu.Unlock()

	a.recent = append(a.recent, ev)
	if len(a.recent) > tezosRecentEventCap {
		a.recent = a.recent[len(a.recent)-tezosRecentEventCap:]
	}
}

func (a *TezosAdapter) get(ctx context.Context, path string, out any) error {
	client, _, _, cfg, err := a.session()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(cfg.RPCURL, "/")+path, nil)
	if err != nil {
		return err
	}
	return a.do(client, req, out)
}

func (a *TezosAdapter) post(ctx context.Context, path string, body, out any) error {
	client, _, _, cfg, err := a.session()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(cfg.RPCURL, "/")+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return a.do(client, req, out)
}

func (a *TezosAdapter) do(client *http.Client, req *http.Request, out any) error {
	rsp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer rsp.Body.Close()

	if rsp.StatusCode < 200 || rsp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(rsp.Body, 512))
		return fmt.Errorf("node rpc %s: status %d: %s", req.URL.Path, rsp.StatusCode, string(msg))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(rsp.Body).Decode(out)
}

// Micheline helpers for entrypoint arguments.

func mString(v string) map[string]any { return map[string]any{"string": v} }
func mInt(v string) map[string]any    { return map[string]any{"int": v} }

func mBytes(hexValue string) map[string]any {
	return map[string]any{"bytes": strings.TrimPrefix(hexValue, "0x")}
}

func mPair(left, right any) map[string]any {
	return map[string]any{"prim": "Pair", "args": []any{left, right}}
}

// firstBytesArg pulls the first "bytes" literal out of a Micheline value; swap
// entrypoints put the order id there.
func firstBytesArg(raw json.RawMessage) string {
	var node struct {
		Bytes string          `json:"bytes"`
		Args  []json.RawMessage `json:"args"`
	}
	if err := json.Unmarshal(raw, &node); err != nil {
		return ""
	}
	if node.Bytes != "" {
		return "0x" + node.Bytes
	}
	for _, arg := range node.Args {
		if v := firstBytesArg(arg); v != "" {
			return v
		}
	}
	return ""
}
