package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/common"
	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/eip712"
	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/hashlock"
)

const erc20ABI = `[
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

const swapABI = `[
	{"name":"createOrder","type":"function","stateMutability":"nonpayable","inputs":[{"name":"orderHash","type":"bytes32"},{"name":"hashLock","type":"bytes32"},{"name":"token","type":"address"},{"name":"amount","type":"uint256"},{"name":"deadline","type":"uint256"}],"outputs":[]},
	{"name":"cancelOrder","type":"function","stateMutability":"nonpayable","inputs":[{"name":"orderId","type":"bytes32"}],"outputs":[]},
	{"name":"fillOrder","type":"function","stateMutability":"nonpayable","inputs":[{"name":"orderId","type":"bytes32"},{"name":"amount","type":"uint256"},{"name":"secret","type":"bytes32"}],"outputs":[]},
	{"name":"createLock","type":"function","stateMutability":"payable","inputs":[{"name":"hashLock","type":"bytes32"},{"name":"timelock","type":"uint256"}],"outputs":[]},
	{"name":"revealSecret","type":"function","stateMutability":"nonpayable","inputs":[{"name":"hashLock","type":"bytes32"},{"name":"secret","type":"bytes32"}],"outputs":[]},
	{"name":"refund","type":"function","stateMutability":"nonpayable","inputs":[{"name":"hashLock","type":"bytes32"}],"outputs":[]},
	{"name":"OrderCreated","type":"event","anonymous":false,"inputs":[{"name":"orderId","type":"bytes32","indexed":true},{"name":"hashLock","type":"bytes32","indexed":false}]},
	{"name":"OrderFilled","type":"event","anonymous":false,"inputs":[{"name":"orderId","type":"bytes32","indexed":true},{"name":"amount","type":"uint256","indexed":false}]},
	{"name":"OrderCancelled","type":"event","anonymous":false,"inputs":[{"name":"orderId","type":"bytes32","indexed":true}]},
	{"name":"SecretRevealed","type":"event","anonymous":false,"inputs":[{"name":"orderId","type":"bytes32","indexed":true},{"name":"secret","type":"bytes32","indexed":false}]}
]`

// EVMAdapter drives any account-model EVM chain through go-ethereum. One
// instance serves one chain id; the registry caches it process-wide, so every
// method must be safe for concurrent use.
type EVMAdapter struct {
	chain  common.ChainID
	logger zerolog.Logger

	mu        sync.RWMutex
	connected bool
	cfg       Config
	client    *ethclient.Client
	key       *ecdsa.PrivateKey
	address   ethcommon.Address

	erc20 abi.ABI
	swap  abi.ABI

	subMu sync.Mutex
	subs  map[string]context.CancelFunc
}

func NewEVMAdapter(chain common.ChainID, logger zerolog.Logger) *EVMAdapter {
	erc20, _ := abi.JSON(strings.NewReader(erc20ABI))
	swap, _ := abi.JSON(strings.NewReader(swapABI))

	return &EVMAdapter{
		chain:  chain,
		logger: logger.With().Str("adapter", string(chain)).Logger(),
		erc20:  erc20,
		swap:   swap,
		subs:   make(map[string]context.CancelFunc),
	}
}

func (a *EVMAdapter) Connect(ctx context.Context, cfg Config) error {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("failed to dial %s rpc: %w", a.chain, err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		client.Close()
		return fmt.Errorf("invalid %s signing key: %w", a.chain, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg = cfg
	a.client = client
	a.key = key
	a.address = crypto.PubkeyToAddress(key.PublicKey)
	a.connected = true

	a.logger.Info().Str("address", a.address.Hex()).Msg("adapter connected")
	return nil
}

func (a *EVMAdapter) Disconnect() error {
	a.subMu.Lock()
	for id, cancel := range a.subs {
		cancel()
		delete(a.subs, id)
	}
	a.subMu.Unlock()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil {
		a.client.Close()
		a.client = nil
	}
	a.connected = false
	return nil
}

func (a *EVMAdapter) IsConnected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.connected
}

func (a *EVMAdapter) ChainID() common.ChainID          { return a.chain }
func (a *EVMAdapter) SignatureScheme() SignatureScheme { return ECDSASecp256k1 }

func (a *EVMAdapter) NativeAsset() common.Asset {
	return common.Asset{
		ChainID:  a.chain,
		Address:  ethcommon.Address{}.Hex(),
		Symbol:   "ETH",
		Decimals: 18,
		Standard: common.StandardNative,
	}
}

// session snapshots the live connection under the read lock.
func (a *EVMAdapter) session() (*ethclient.Client, *ecdsa.PrivateKey, ethcommon.Address, Config, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.connected {
		return nil, nil, ethcommon.Address{}, Config{}, fmt.Errorf("%w: %s", common.ErrNotConnected, a.chain)
	}
	return a.client, a.key, a.address, a.cfg, nil
}

func (a *EVMAdapter) GetAddress() (string, error) {
	_, _, address, _, err := a.session()
	if err != nil {
		return "", err
	}
	return address.Hex(), nil
}

func (a *EVMAdapter) GetBalance(ctx context.Context, asset common.Asset) (*big.Int, error) {
	client, _, address, _, err := a.session()
	if err != nil {
		return nil, err
	}

	if asset.Standard == common.StandardNative {
		return client.BalanceAt(ctx, address, nil)
	}

	data, err := a.erc20.Pack("balanceOf", address)
	if err != nil {
		return nil, err
	}
	token := ethcommon.HexToAddress(asset.Address)
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("balanceOf call failed: %w", err)
	}

	values, err := a.erc20.Unpack("balanceOf", out)
	if err != nil {
		return nil, err
	}
	return values[0].(*big.Int), nil
}

func (a *EVMAdapter) GetNonce(ctx context.Context) (uint64, error) {
	client, _, address, _, err := a.session()
	if err != nil {
		return 0, err
	}
	return client.PendingNonceAt(ctx, address)
}

func (a *EVMAdapter) SignTransaction(ctx context.Context, tx TxRequest) (string, error) {
	client, key, address, cfg, err := a.session()
	if err != nil {
		return "", err
	}

	nonce, err := client.PendingNonceAt(ctx, address)
	if err != nil {
		return "", err
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return "", err
	}

	value, err := parseAmount(tx.Value)
	if err != nil {
		return "", err
	}

	gasLimit := tx.GasLimit
	if gasLimit == 0 {
		gasLimit, err = a.EstimateGas(ctx, tx)
		if err != nil {
			return "", err
		}
	}

	to := ethcommon.HexToAddress(tx.To)
	unsigned := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &to,
		Value:    value,
		Data:     tx.Data,
	})

	signed, err := types.SignTx(unsigned, types.LatestSignerForChainID(big.NewInt(cfg.EVMChainID)), key)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return "", err
	}
	return hexutil.Encode(raw), nil
}

// SignMessage signs message per EIP-191 personal-message rules.
func (a *EVMAdapter) SignMessage(_ context.Context, message []byte) (string, error) {
	_, key, _, _, err := a.session()
	if err != nil {
		return "", err
	}

	sig, err := crypto.Sign(accounts.TextHash(message), key)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}

func (a *EVMAdapter) BroadcastTransaction(ctx context.Context, signed string) (*TxResult, error) {
	client, _, _, _, err := a.session()
	if err != nil {
		return nil, err
	}

	raw, err := hexutil.Decode(signed)
	if err != nil {
		return nil, fmt.Errorf("invalid signed transaction encoding: %w", err)
	}

	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("failed to decode signed transaction: %w", err)
	}

	if err := client.SendTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("broadcast failed: %w", err)
	}
	return &TxResult{Hash: tx.Hash().Hex(), Status: TxPending}, nil
}

func (a *EVMAdapter) GetTransactionStatus(ctx context.Context, hash string) (TxStatus, error) {
	client, _, _, _, err := a.session()
	if err != nil {
		return "", err
	}

	receipt, err := client.TransactionReceipt(ctx, ethcommon.HexToHash(hash))
	if err == ethereum.NotFound {
		return TxPending, nil
	}
	if err != nil {
		return "", err
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		return TxConfirmed, nil
	}
	return TxFailed, nil
}

func (a *EVMAdapter) ApproveAsset(ctx context.Context, asset common.Asset, spender, amount string) (*TxResult, error) {
	value, err := parseAmount(amount)
	if err != nil {
		return nil, err
	}

	data, err := a.erc20.Pack("approve", ethcommon.HexToAddress(spender), value)
	if err != nil {
		return nil, err
	}
	return a.sendContractCall(ctx, ethcommon.HexToAddress(asset.Address), data, nil)
}

func (a *EVMAdapter) GetAssetAllowance(ctx context.Context, asset common.Asset, owner, spender string) (*big.Int, error) {
	client, _, _, _, err := a.session()
	if err != nil {
		return nil, err
	}

	data, err := a.erc20.Pack("allowance", ethcommon.HexToAddress(owner), ethcommon.HexToAddress(spender))
	if err != nil {
		return nil, err
	}
	token := ethcommon.HexToAddress(asset.Address)
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("allowance call failed: %w", err)
	}

	values, err := a.erc20.Unpack("allowance", out)
	if err != nil {
		return nil, err
	}
	return values[0].(*big.Int), nil
}

func (a *EVMAdapter) CreateOrder(ctx context.Context, order *common.Order) (*TxResult, error) {
	_, _, _, cfg, err := a.session()
	if err != nil {
		return nil, err
	}

	swapContract := ethcommon.HexToAddress(cfg.Contract("swap"))
	digest, err := eip712.SwapOrderDigest(cfg.EVMChainID, swapContract, order)
	if err != nil {
		return nil, err
	}

	lock, err := hashlock.DecodeHex32(order.HashLock)
	if err != nil {
		return nil, fmt.Errorf("invalid hash lock: %w", err)
	}
	amount, err := parseAmount(order.Amount)
	if err != nil {
		return nil, err
	}

	data, err := a.swap.Pack("createOrder",
		[32]byte(digest),
		lock,
		ethcommon.HexToAddress(order.SrcAsset.Address),
		amount,
		big.NewInt(order.Deadline),
	)
	if err != nil {
		return nil, err
	}
	return a.sendContractCall(ctx, swapContract, data, nil)
}

func (a *EVMAdapter) CancelOrder(ctx context.Context, orderID string) (*TxResult, error) {
	_, _, _, cfg, err := a.session()
	if err != nil {
		return nil, err
	}

	data, err := a.swap.Pack("cancelOrder", orderHash32(orderID))
	if err != nil {
		return nil, err
	}
	return a.sendContractCall(ctx, ethcommon.HexToAddress(cfg.Contract("swap")), data, nil)
}

func (a *EVMAdapter) FillOrder(ctx context.Context, orderID, amount, secret string) (*TxResult, error) {
	_, _, _, cfg, err := a.session()
	if err != nil {
		return nil, err
	}

	value, err := parseAmount(amount)
	if err != nil {
		return nil, err
	}
	secretBytes, err := hashlock.DecodeHex32(secret)
	if err != nil {
		return nil, fmt.Errorf("invalid secret: %w", err)
	}

	data, err := a.swap.Pack("fillOrder", orderHash32(orderID), value, secretBytes)
	if err != nil {
		return nil, err
	}
	return a.sendContractCall(ctx, ethcommon.HexToAddress(cfg.Contract("swap")), data, nil)
}

func (a *EVMAdapter) CreateHashLock(ctx context.Context, secret string, timelock int64) (*TxResult, error) {
	_, _, _, cfg, err := a.session()
	if err != nil {
		return nil, err
	}

	hashed, err := hashlock.HashSecret(secret)
	if err != nil {
		return nil, err
	}
	lock, err := hashlock.DecodeHex32(hashed)
	if err != nil {
		return nil, err
	}

	data, err := a.swap.Pack("createLock", lock, big.NewInt(timelock))
	if err != nil {
		return nil, err
	}
	return a.sendContractCall(ctx, ethcommon.HexToAddress(cfg.Contract("swap")), data, nil)
}

func (a *EVMAdapter) RevealSecret(ctx context.Context, hashLock, secret string) (*TxResult, error) {
	_, _, _, cfg, err := a.session()
	if err != nil {
		return nil, err
	}

	lock, err := hashlock.DecodeHex32(hashLock)
	if err != nil {
		return nil, err
	}
	secretBytes, err := hashlock.DecodeHex32(secret)
	if err != nil {
		return nil, err
	}

	data, err := a.swap.Pack("revealSecret", lock, secretBytes)
	if err != nil {
		return nil, err
	}
	return a.sendContractCall(ctx, ethcommon.HexToAddress(cfg.Contract("swap")), data, nil)
}

func (a *EVMAdapter) RefundHashLock(ctx context.Context, hashLock string) (*TxResult, error) {
	_, _, _, cfg, err := a.session()
	if err != nil {
		return nil, err
	}

	lock, err := hashlock.DecodeHex32(hashLock)
	if err != nil {
		return nil, err
	}

	data, err := a.swap.Pack("refund", lock)
	if err != nil {
		return nil, err
	}
	return a.sendContractCall(ctx, ethcommon.HexToAddress(cfg.Contract("swap")), data, nil)
}

// SubscribeToEvents polls the swap contract's logs and invokes callback for
// every decoded event whose name is in eventTypes (all events when empty).
func (a *EVMAdapter) SubscribeToEvents(ctx context.Context, eventTypes []string, callback EventCallback) (string, error) {
	client, _, _, cfg, err := a.session()
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

		contract := ethcommon.HexToAddress(cfg.Contract("swap"))
		var lastBlock uint64

		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-subCtx.Done():
				return
			case <-ticker.C:
			}

			head, err := client.BlockNumber(subCtx)
			if err != nil {
				a.logger.Warn().Err(err).Msg("event poll: head fetch failed")
				continue
			}
			if lastBlock == 0 {
				lastBlock = head
				continue
			}
			if head <= lastBlock {
				continue
			}

			logs, err := client.FilterLogs(subCtx, ethereum.FilterQuery{
				FromBlock: new(big.Int).SetUint64(lastBlock + 1),
				ToBlock:   new(big.Int).SetUint64(head),
				Addresses: []ethcommon.Address{contract},
			})
			if err != nil {
				a.logger.Warn().Err(err).Msg("event poll: filter failed")
				continue
			}
			lastBlock = head

			for _, entry := range logs {
				event, ok := a.decodeLog(entry)
				if !ok {
					continue
				}
				if len(wanted) > 0 {
					if _, keep := wanted[event.Type]; !keep {
						continue
					}
				}
				callback(event)
			}
		}
	}()

	return subID, nil
}

func (a *EVMAdapter) UnsubscribeFromEvents(subscriptionID string) error {
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

// GetOrderEvents pulls the historical swap-contract logs topic-filtered to one order.
func (a *EVMAdapter) GetOrderEvents(ctx context.Context, orderID string) ([]Event, error) {
	client, _, _, cfg, err := a.session()
	if err != nil {
		return nil, err
	}

	logs, err := client.FilterLogs(ctx, ethereum.FilterQuery{
		Addresses: []ethcommon.Address{ethcommon.HexToAddress(cfg.Contract("swap"))},
		Topics:    [][]ethcommon.Hash{nil, {ethcommon.HexToHash(orderID)}},
	})
	if err != nil {
		return nil, fmt.Errorf("order event query failed: %w", err)
	}

	events := make([]Event, 0, len(logs))
	for _, entry := range logs {
		if event, ok := a.decodeLog(entry); ok {
			events = append(events, event)
		}
	}
	return events, nil
}

func (a *EVMAdapter) decodeLog(entry types.Log) (Event, bool) {
	if len(entry.Topics) == 0 {
		return Event{}, false
	}
	def, err := a.swap.EventByID(entry.Topics[0])
	if err != nil {
		return Event{}, false
	}

	event := Event{
		Type:    def.Name,
		TxHash:  entry.TxHash.Hex(),
		Payload: map[string]any{"data": hexutil.Encode(entry.Data)},
	}
	if len(entry.Topics) > 1 {
		event.OrderID = entry.Topics[1].Hex()
	}
	return event, true
}

func (a *EVMAdapter) EstimateGas(ctx context.Context, tx TxRequest) (uint64, error) {
	client, _, address, _, err := a.session()
	if err != nil {
		return 0, err
	}

	value, err := parseAmount(tx.Value)
	if err != nil {
		return 0, err
	}

	to := ethcommon.HexToAddress(tx.To)
	return client.EstimateGas(ctx, ethereum.CallMsg{
		From:  address,
		To:    &to,
		Value: value,
		Data:  tx.Data,
	})
}

func (a *EVMAdapter) GetCurrentBlockNumber(ctx context.Context) (uint64, error) {
	client, _, _, _, err := a.session()
	if err != nil {
		return 0, err
	}
	return client.BlockNumber(ctx)
}

func (a *EVMAdapter) GetBlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error) {
	client, _, _, _, err := a.session()
	if err != nil {
		return time.Time{}, err
	}

	block, err := client.BlockByNumber(ctx, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(block.Time()), 0), nil
}

// sendContractCall signs and broadcasts a call to a contract in one shot.
func (a *EVMAdapter) sendContractCall(ctx context.Context, to ethcommon.Address, data []byte, value *big.Int) (*TxResult, error) {
	amount := "0"
	if value != nil {
		amount = value.String()
	}

	signed, err := a.SignTransaction(ctx, TxRequest{
		To:    to.Hex(),
		Value: amount,
		Data:  data,
	})
	if err != nil {
		return nil, err
	}
	return a.BroadcastTransaction(ctx, signed)
}

// parseAmount parses a non-negative decimal amount string; empty means zero.
func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	value, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return value.ToBig(), nil
}

func orderHash32(orderID string) [32]byte {
	return [32]byte(ethcommon.HexToHash(orderID))
}
