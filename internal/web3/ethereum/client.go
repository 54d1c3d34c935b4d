// Package ethereum implements web3.Client for EVM compatible chains.
package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"ProofMesh/internal/web3"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

const (
	defaultGasLimit     = 60_000
	defaultPollInterval = 500 * time.Millisecond
)

// Config describes how to construct an EVM compatible client.
type Config struct {
	Name         string
	RPCURL       string
	Notes        string
	Key          *ecdsa.PrivateKey
	GasLimit     uint64
	PollInterval time.Duration
}

// backend is the subset of ethclient.Client the anchor flow relies on. The
// simulated backend client satisfies it as well.
type backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*coretypes.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *coretypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error)
}

// Client implements the web3.Client interface for EVM compatible chains.
type Client struct {
	name         string
	notes        string
	rpcClient    *gethrpc.Client
	eth          backend
	key          *ecdsa.PrivateKey
	from         common.Address
	gasLimit     uint64
	pollInterval time.Duration
	// commit seals a block after each send; only set for simulated chains.
	commit  func()
	chainID *big.Int
	mu      sync.Mutex
}

// NewClient dials the configured RPC endpoint and returns a ready-to-use client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置以太坊 RPC 地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接以太坊节点失败: %w", err)
	}

	c := newClient(cfg, ethclient.NewClient(rpcClient))
	c.rpcClient = rpcClient
	return c, nil
}

// NewSimulatedClient wraps a go-ethereum simulated backend for testing and
// local development. Every anchor transaction is sealed into its own block.
func NewSimulatedClient(name string, sim *simulated.Backend, key *ecdsa.PrivateKey) *Client {
	c := newClient(Config{Name: name, Key: key, Notes: "simulated backend", PollInterval: 10 * time.Millisecond}, sim.Client())
	c.commit = func() { sim.Commit() }
	return c
}

func newClient(cfg Config, eth backend) *Client {
	c := &Client{
		name:         cfg.Name,
		notes:        cfg.Notes,
		eth:          eth,
		key:          cfg.Key,
		gasLimit:     cfg.GasLimit,
		pollInterval: cfg.PollInterval,
	}
	if c.gasLimit == 0 {
		c.gasLimit = defaultGasLimit
	}
	if c.pollInterval <= 0 {
		c.pollInterval = defaultPollInterval
	}
	if cfg.Key != nil {
		c.from = crypto.PubkeyToAddress(cfg.Key.PublicKey)
	}
	return c
}

// Name returns the registry name of the chain.
func (c *Client) Name() string { return c.name }

// Address returns the account that sends anchor transactions.
func (c *Client) Address() common.Address { return c.from }

// Close releases network connections held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rpcClient != nil {
		c.rpcClient.Close()
		c.rpcClient = nil
	}
}

// FetchChainSnapshot gathers lightweight metadata from the chain.
func (c *Client) FetchChainSnapshot(ctx context.Context) (web3.ChainSnapshot, error) {
	if c == nil || c.eth == nil {
		return web3.ChainSnapshot{}, errors.New("未初始化的以太坊客户端")
	}

	chainID, err := c.eth.ChainID(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, fmt.Errorf("获取链 ID 失败: %w", err)
	}
	blockNumber, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, fmt.Errorf("获取最新区块高度失败: %w", err)
	}
	return web3.ChainSnapshot{
		Name:        c.name,
		ChainID:     toHexBig(chainID),
		BlockNumber: fmt.Sprintf("0x%x", blockNumber),
		Notes:       c.notes,
	}, nil
}

// AnchorDigest sends a zero-value transaction to the sender's own address
// carrying digest as calldata and waits for it to be mined.
func (c *Client) AnchorDigest(ctx context.Context, digest [32]byte) (web3.AnchorReceipt, error) {
	if c == nil || c.eth == nil {
		return web3.AnchorReceipt{}, errors.New("未初始化的以太坊客户端")
	}
	if c.key == nil {
		return web3.AnchorReceipt{}, errors.New("未配置锚定交易私钥")
	}

	tx, chainID, err := c.sendAnchor(ctx, digest)
	if err != nil {
		return web3.AnchorReceipt{}, err
	}

	receipt, err := c.waitMined(ctx, tx.Hash())
	if err != nil {
		return web3.AnchorReceipt{}, err
	}
	if receipt.Status != coretypes.ReceiptStatusSuccessful {
		return web3.AnchorReceipt{}, fmt.Errorf("锚定交易 %s 执行失败", tx.Hash().Hex())
	}

	header, err := c.eth.HeaderByNumber(ctx, receipt.BlockNumber)
	if err != nil {
		return web3.AnchorReceipt{}, fmt.Errorf("获取区块信息失败: %w", err)
	}

	return web3.AnchorReceipt{
		TxHash:      tx.Hash(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		BlockTime:   header.Time,
		ChainID:     chainID,
		From:        c.from,
		GasUsed:     receipt.GasUsed,
	}, nil
}

// sendAnchor holds the client lock so concurrent anchors get distinct nonces.
func (c *Client) sendAnchor(ctx context.Context, digest [32]byte) (*coretypes.Transaction, *big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	chainID, err := c.chainIDLocked(ctx)
	if err != nil {
		return nil, nil, err
	}
	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, nil, fmt.Errorf("查询交易计数失败: %w", err)
	}
	tip, err := c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("获取小费建议失败: %w", err)
	}
	head, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("获取最新区块失败: %w", err)
	}
	baseFee := head.BaseFee
	if baseFee == nil {
		baseFee = new(big.Int)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(baseFee, big.NewInt(2)))

	to := c.from
	tx := coretypes.NewTx(&coretypes.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       c.gasLimit,
		To:        &to,
		Value:     new(big.Int),
		Data:      append([]byte(nil), digest[:]...),
	})
	signed, err := coretypes.SignTx(tx, coretypes.LatestSignerForChainID(chainID), c.key)
	if err != nil {
		return nil, nil, fmt.Errorf("签名锚定交易失败: %w", err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return nil, nil, fmt.Errorf("发送锚定交易失败: %w", err)
	}
	if c.commit != nil {
		c.commit()
	}
	return signed, chainID, nil
}

func (c *Client) chainIDLocked(ctx context.Context) (*big.Int, error) {
	if c.chainID != nil {
		return c.chainID, nil
	}
	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取链 ID 失败: %w", err)
	}
	c.chainID = id
	return id, nil
}

func (c *Client) waitMined(ctx context.Context, hash common.Hash) (*coretypes.Receipt, error) {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("等待交易 %s 上链超时: %w", hash.Hex(), ctx.Err())
		case <-timer.C:
		}
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, gethcore.NotFound) {
			return nil, fmt.Errorf("查询交易回执失败: %w", err)
		}
		timer.Reset(c.pollInterval)
	}
}

func toHexBig(n *big.Int) string {
	if n == nil {
		return "0x0"
	}
	return "0x" + n.Text(16)
}

var _ web3.Client = (*Client)(nil)
