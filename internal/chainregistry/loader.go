package chainregistry

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/dwarvesf/paywall-backend/internal/consts"
	"github.com/dwarvesf/paywall-backend/internal/types/chains"
	"github.com/dwarvesf/paywall-backend/internal/utils/config"
)

// Load builds the registry from CHAINS_CONFIG_FILE when set, otherwise from
// the per-chain environment variables.
func Load(appConfig *config.AppConfig) (*Registry, error) {
	if appConfig.Chains.ConfigFile != "" {
		raws, err := fromFile(appConfig.Chains.ConfigFile)
		if err != nil {
			return nil, err
		}
		return New(raws)
	}

	raws, err := fromEnv(os.Getenv)
	if err != nil {
		return nil, err
	}
	return New(raws)
}

// fromEnv reads <CHAIN>_RPC_URL, <CHAIN>_SCAN_BLOCKS and
// <TOKEN>_CONTRACT_ADDRESS_<CHAIN> for every built-in chain.
func fromEnv(getenv func(string) string) ([]ChainSpec, error) {
	raws := make([]ChainSpec, 0, len(chains.Builtin))
	for _, id := range chains.Builtin {
		raw := ChainSpec{
			ID:         id.String(),
			RPCURL:     getenv(id.String() + "_RPC_URL"),
			ScanBlocks: DefaultScanBlocks[id],
		}

		if v := getenv(id.String() + "_SCAN_BLOCKS"); v != "" {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return nil, errors.Wrapf(consts.ErrConfiguration, "%s_SCAN_BLOCKS=%q", id, v)
			}
			raw.ScanBlocks = n
		}

		for _, symbol := range DefaultTokens {
			raw.Tokens = append(raw.Tokens, TokenSpec{
				Symbol:   symbol,
				Contract: getenv(symbol + "_CONTRACT_ADDRESS_" + id.String()),
			})
		}
		raws = append(raws, raw)
	}
	return raws, nil
}

// fromFile reads a YAML (or any viper-supported) file shaped as
//
//	chains:
//	  - id: POLYGON
//	    rpc_url: ${POLYGON_RPC_URL}
//	    scan_blocks: 40000
//	    tokens:
//	      - symbol: USDT
//	        contract: "0x..."
//
// rpc_url values are expanded against the environment so provider keys
// can stay out of the file.
func fromFile(path string) ([]ChainSpec, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(consts.ErrConfiguration, "read chains config %s: %v", path, err)
	}

	var file struct {
		Chains []ChainSpec `mapstructure:"chains"`
	}
	if err := v.Unmarshal(&file); err != nil {
		return nil, errors.Wrapf(consts.ErrConfiguration, "decode chains config %s: %v", path, err)
	}

	for i := range file.Chains {
		file.Chains[i].RPCURL = os.ExpandEnv(strings.TrimSpace(file.Chains[i].RPCURL))
		if file.Chains[i].ScanBlocks == 0 {
			file.Chains[i].ScanBlocks = DefaultScanBlocks[chains.Parse(file.Chains[i].ID)]
		}
	}
	return file.Chains, nil
}
