package evmrpc

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"

	"github.com/dwarvesf/paywall-backend/internal/model"
)

// erc20ABI covers only what deposit detection reads: the Transfer event and
// decimals().
const erc20ABI = `[
	{"anonymous":false,"inputs":[
		{"indexed":true,"name":"from","type":"address"},
		{"indexed":true,"name":"to","type":"address"},
		{"indexed":false,"name":"value","type":"uint256"}
	],"name":"Transfer","type":"event"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

var (
	erc20 = mustParseABI(erc20ABI)

	// TransferTopic is keccak256("Transfer(address,address,uint256)").
	TransferTopic = erc20.Events["Transfer"].ID
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// decodeTransfer turns a log into a TransferEvent. ERC721 transfers share
// the topic but index the token id, so they carry four topics and are
// rejected here.
func decodeTransfer(lg types.Log) (model.TransferEvent, error) {
	if len(lg.Topics) != 3 || lg.Topics[0] != TransferTopic {
		return model.TransferEvent{}, errors.Errorf("log %s:%d is not an erc20 transfer", lg.TxHash.Hex(), lg.Index)
	}

	var out struct {
		Value *big.Int
	}
	if err := erc20.UnpackIntoInterface(&out, "Transfer", lg.Data); err != nil {
		return model.TransferEvent{}, errors.Wrapf(err, "unpack transfer %s:%d", lg.TxHash.Hex(), lg.Index)
	}

	return model.TransferEvent{
		TxHash:      lg.TxHash,
		BlockNumber: lg.BlockNumber,
		LogIndex:    lg.Index,
		From:        common.BytesToAddress(lg.Topics[1].Bytes()),
		To:          common.BytesToAddress(lg.Topics[2].Bytes()),
		Value:       out.Value,
	}, nil
}
