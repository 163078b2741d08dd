// Package chainregistry holds the static per-chain settings the scanner
// dispatches on: RPC endpoint, scan window and watched token contracts.
package chainregistry

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/dwarvesf/paywall-backend/internal/consts"
	"github.com/dwarvesf/paywall-backend/internal/types/chains"
)

type Token struct {
	Symbol   string         `json:"symbol"`
	Contract common.Address `json:"contract"`
}

type ChainConfig struct {
	ID         chains.Chain `json:"id"`
	RPCURL     string       `json:"-"`
	ScanBlocks uint64       `json:"scan_blocks"`
	Tokens     []Token      `json:"tokens"`
}

// DefaultScanBlocks sizes each window to roughly one day of blocks, within
// what public RPC providers accept for a single eth_getLogs range.
var DefaultScanBlocks = map[chains.Chain]uint64{
	chains.Ethereum: 10000,
	chains.Polygon:  40000,
	chains.Base:     40000,
	chains.Arbitrum: 100000,
}

// DefaultTokens is the symbol order tokens are scanned in.
var DefaultTokens = []string{consts.TokenUSDT, consts.TokenUSDC}

type IRegistry interface {
	Get(chain chains.Chain) (ChainConfig, error)
	Has(chain chains.Chain) bool
	Chains() []ChainConfig
}

type Registry struct {
	order []chains.Chain
	byID  map[chains.Chain]ChainConfig
}

type TokenSpec struct {
	Symbol   string `mapstructure:"symbol"`
	Contract string `mapstructure:"contract"`
}

// ChainSpec is an unvalidated chain entry, as read from the environment or
// a config file.
type ChainSpec struct {
	ID         string      `mapstructure:"id"`
	RPCURL     string      `mapstructure:"rpc_url"`
	ScanBlocks uint64      `mapstructure:"scan_blocks"`
	Tokens     []TokenSpec `mapstructure:"tokens"`
}

// New validates the raw chain list and builds the registry. Chains without
// an RPC endpoint are left out; tokens without a contract are skipped.
func New(raws []ChainSpec) (*Registry, error) {
	r := &Registry{
		byID: make(map[chains.Chain]ChainConfig, len(raws)),
	}

	for _, raw := range raws {
		id := chains.Parse(raw.ID)
		if id == "" {
			return nil, errors.Wrap(consts.ErrConfiguration, "chain entry without id")
		}
		if _, dup := r.byID[id]; dup {
			return nil, errors.Wrapf(consts.ErrConfiguration, "chain %s configured twice", id)
		}
		if strings.TrimSpace(raw.RPCURL) == "" {
			continue
		}
		if raw.ScanBlocks == 0 {
			return nil, errors.Wrapf(consts.ErrConfiguration, "chain %s has no scan window", id)
		}

		cfg := ChainConfig{
			ID:         id,
			RPCURL:     strings.TrimSpace(raw.RPCURL),
			ScanBlocks: raw.ScanBlocks,
		}
		seen := map[string]bool{}
		for _, t := range raw.Tokens {
			symbol := strings.ToUpper(strings.TrimSpace(t.Symbol))
			contract := strings.TrimSpace(t.Contract)
			if contract == "" {
				continue
			}
			if symbol == "" {
				return nil, errors.Wrapf(consts.ErrConfiguration, "chain %s has a token without symbol", id)
			}
			if !common.IsHexAddress(contract) {
				return nil, errors.Wrapf(consts.ErrConfiguration, "chain %s token %s: malformed contract %q", id, symbol, contract)
			}
			if seen[symbol] {
				return nil, errors.Wrapf(consts.ErrConfiguration, "chain %s token %s configured twice", id, symbol)
			}
			seen[symbol] = true
			cfg.Tokens = append(cfg.Tokens, Token{Symbol: symbol, Contract: common.HexToAddress(contract)})
		}

		r.byID[id] = cfg
		r.order = append(r.order, id)
	}

	if len(r.order) == 0 {
		return nil, errors.Wrap(consts.ErrConfiguration, "no chain has an rpc endpoint")
	}

	return r, nil
}

func (r *Registry) Get(chain chains.Chain) (ChainConfig, error) {
	cfg, ok := r.byID[chain]
	if !ok {
		return ChainConfig{}, errors.Wrapf(consts.ErrUnknownChain, "%s", chain)
	}
	return cfg, nil
}

func (r *Registry) Has(chain chains.Chain) bool {
	_, ok := r.byID[chain]
	return ok
}

// Chains returns the registered chains in configuration order.
func (r *Registry) Chains() []ChainConfig {
	out := make([]ChainConfig, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

func (c ChainConfig) String() string {
	return fmt.Sprintf("%s(window=%d, tokens=%d)", c.ID, c.ScanBlocks, len(c.Tokens))
}
