// Package provider builds web3 clients from configuration.
package provider

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"

	"ProofMesh/internal/config"
	"ProofMesh/internal/web3"
	"ProofMesh/internal/web3/ethereum"

	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
)

// simulatedFunding is the genesis balance given to the anchor account of an
// in-process chain.
var simulatedFunding = new(big.Int).Mul(big.NewInt(1_000), big.NewInt(1e18))

// Registry manages a set of chain clients keyed by human readable names.
type Registry struct {
	defaultChain string
	clients      map[string]web3.Client
	closers      []func() error
}

// NewRegistry loads chain definitions and instantiates concrete clients.
// Chains of type "simulated" run an in-process go-ethereum backend whose
// genesis funds the anchor account.
func NewRegistry(ctx context.Context, cfg config.Web3Config) (*Registry, error) {
	defs, err := web3.LoadChainDefinitions(cfg.ChainConfig)
	if err != nil {
		return nil, err
	}

	r := &Registry{clients: make(map[string]web3.Client)}
	for name, chain := range defs.Chains {
		key, err := anchorKey(cfg, chain)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("链 %s 的锚定私钥无效: %w", name, err)
		}
		gasLimit := chain.GasLimit
		if gasLimit == 0 {
			gasLimit = cfg.GasLimit
		}

		chainType := strings.ToLower(strings.TrimSpace(chain.Type))
		switch chainType {
		case "", "evm":
			client, err := ethereum.NewClient(ctx, ethereum.Config{
				Name:         name,
				RPCURL:       chain.RPCURL,
				Notes:        chain.Description,
				Key:          key,
				GasLimit:     gasLimit,
				PollInterval: cfg.PollInterval(),
			})
			if err != nil {
				r.Close()
				return nil, fmt.Errorf("初始化链 %s 失败: %w", name, err)
			}
			r.clients[name] = client
		case "simulated":
			if key == nil {
				r.Close()
				return nil, fmt.Errorf("模拟链 %s 需要配置锚定私钥", name)
			}
			sim := simulated.NewBackend(coretypes.GenesisAlloc{
				crypto.PubkeyToAddress(key.PublicKey): {Balance: simulatedFunding},
			})
			r.closers = append(r.closers, sim.Close)
			r.clients[name] = ethereum.NewSimulatedClient(name, sim, key)
		default:
			r.Close()
			return nil, fmt.Errorf("链 %s 使用了不支持的类型 %s", name, chain.Type)
		}
	}

	if len(r.clients) == 0 && strings.TrimSpace(cfg.RPCURL) != "" {
		key, err := anchorKey(cfg, web3.ChainDefinition{})
		if err != nil {
			return nil, fmt.Errorf("锚定私钥无效: %w", err)
		}
		client, err := ethereum.NewClient(ctx, ethereum.Config{
			Name:         "default",
			RPCURL:       cfg.RPCURL,
			Key:          key,
			GasLimit:     cfg.GasLimit,
			PollInterval: cfg.PollInterval(),
		})
		if err != nil {
			return nil, err
		}
		r.clients["default"] = client
		if cfg.DefaultChain == "" {
			cfg.DefaultChain = "default"
		}
	}

	if len(r.clients) == 0 {
		return nil, errors.New("未配置任何链的 RPC 端点")
	}

	if err := r.setDefault(cfg.DefaultChain); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// NewStaticRegistry wraps already constructed clients.
func NewStaticRegistry(defaultChain string, clients map[string]web3.Client) (*Registry, error) {
	if len(clients) == 0 {
		return nil, errors.New("未配置任何链客户端")
	}
	r := &Registry{clients: make(map[string]web3.Client, len(clients))}
	for name, client := range clients {
		r.clients[name] = client
	}
	if err := r.setDefault(defaultChain); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) setDefault(name string) error {
	if name == "" {
		name = r.Chains()[0]
	}
	if _, ok := r.clients[name]; !ok {
		return fmt.Errorf("默认链 %s 未在配置中找到", name)
	}
	r.defaultChain = name
	return nil
}

func anchorKey(cfg config.Web3Config, chain web3.ChainDefinition) (*ecdsa.PrivateKey, error) {
	raw := ""
	if chain.AnchorKeyEnv != "" {
		raw = strings.TrimSpace(os.Getenv(chain.AnchorKeyEnv))
	}
	if raw == "" {
		raw = cfg.ResolveAnchorKey()
	}
	if raw == "" {
		return nil, nil
	}
	return crypto.HexToECDSA(strings.TrimPrefix(raw, "0x"))
}

// DefaultClient returns the client configured as default chain.
func (r *Registry) DefaultClient() (web3.Client, error) {
	if r == nil {
		return nil, errors.New("未初始化的链客户端注册表")
	}
	client, ok := r.clients[r.defaultChain]
	if !ok {
		return nil, fmt.Errorf("默认链 %s 未在注册表中", r.defaultChain)
	}
	return client, nil
}

// Client returns the chain client identified by name.
func (r *Registry) Client(name string) (web3.Client, bool) {
	if r == nil {
		return nil, false
	}
	client, ok := r.clients[name]
	return client, ok
}

// Snapshots collects a snapshot from every chain. Failures are reported per
// chain in the Notes field rather than aborting the whole call.
func (r *Registry) Snapshots(ctx context.Context) []web3.ChainSnapshot {
	if r == nil {
		return nil
	}
	names := r.Chains()
	out := make([]web3.ChainSnapshot, 0, len(names))
	for _, name := range names {
		snap, err := r.clients[name].FetchChainSnapshot(ctx)
		if err != nil {
			snap = web3.ChainSnapshot{Name: name, Notes: err.Error()}
		}
		out = append(out, snap)
	}
	return out
}

// Close releases all clients managed by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	for name, client := range r.clients {
		if client != nil {
			client.Close()
		}
		delete(r.clients, name)
	}
	for _, closeFn := range r.closers {
		_ = closeFn()
	}
	r.closers = nil
}

// Chains returns the list of registered chain names.
func (r *Registry) Chains() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
