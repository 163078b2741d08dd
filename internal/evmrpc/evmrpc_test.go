package evmrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwarvesf/paywall-backend/internal/chainregistry"
	"github.com/dwarvesf/paywall-backend/internal/types/chains"
	"github.com/dwarvesf/paywall-backend/internal/utils/logger"
)

var (
	usdc      = common.HexToAddress("0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359")
	recipient = common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906")
	sender    = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// fakeNode answers the three JSON-RPC methods EvmRPC issues.
type fakeNode struct {
	mu       sync.Mutex
	height   uint64
	decimals uint8
	logs     []map[string]interface{}
	queries  []map[string]interface{}
}

func (f *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var result interface{}
	switch req.Method {
	case "eth_blockNumber":
		result = hexutil.Uint64(f.height)
	case "eth_call":
		word := common.LeftPadBytes([]byte{f.decimals}, 32)
		result = hexutil.Bytes(word)
	case "eth_getLogs":
		var q map[string]interface{}
		_ = json.Unmarshal(req.Params[0], &q)
		f.queries = append(f.queries, q)
		result = f.logs
	default:
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":-32601,"message":"method not found"}}`, req.ID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      req.ID,
		"result":  result,
	})
}

func transferLog(block uint64, index uint, value *big.Int, topics ...common.Hash) map[string]interface{} {
	if topics == nil {
		topics = []common.Hash{
			TransferTopic,
			common.BytesToHash(sender.Bytes()),
			common.BytesToHash(recipient.Bytes()),
		}
	}
	return map[string]interface{}{
		"address":          usdc,
		"topics":           topics,
		"data":             hexutil.Bytes(common.LeftPadBytes(value.Bytes(), 32)),
		"blockNumber":      hexutil.Uint64(block),
		"transactionHash":  common.BigToHash(new(big.Int).SetUint64(block*1000 + uint64(index))),
		"transactionIndex": hexutil.Uint(0),
		"blockHash":        common.BigToHash(new(big.Int).SetUint64(block)),
		"logIndex":         hexutil.Uint(index),
		"removed":          false,
	}
}

func newTestRPC(t *testing.T, node *fakeNode) *EvmRPC {
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)

	rpc, err := New(context.Background(), chainregistry.ChainConfig{
		ID:         chains.Polygon,
		RPCURL:     srv.URL,
		ScanBlocks: 40000,
	}, 0, logger.New("test"))
	require.NoError(t, err)
	t.Cleanup(rpc.Close)
	return rpc
}

func TestEvmRPC_BlockNumber(t *testing.T) {
	rpc := newTestRPC(t, &fakeNode{height: 65000000})

	height, err := rpc.BlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(65000000), height)
}

func TestEvmRPC_TokenDecimals(t *testing.T) {
	rpc := newTestRPC(t, &fakeNode{decimals: 6})

	decimals, err := rpc.TokenDecimals(context.Background(), usdc)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), decimals)
}

func TestEvmRPC_TransfersTo(t *testing.T) {
	erc721Topics := []common.Hash{
		TransferTopic,
		common.BytesToHash(sender.Bytes()),
		common.BytesToHash(recipient.Bytes()),
		common.BigToHash(big.NewInt(42)),
	}
	node := &fakeNode{
		logs: []map[string]interface{}{
			transferLog(100, 0, big.NewInt(20000000)),
			transferLog(101, 3, big.NewInt(1), erc721Topics...),
			transferLog(102, 1, big.NewInt(14400000)),
		},
	}
	rpc := newTestRPC(t, node)

	events, err := rpc.TransfersTo(context.Background(), usdc, recipient, 60000, 100000)
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, uint64(100), events[0].BlockNumber)
	assert.Equal(t, 0, events[0].Value.Cmp(big.NewInt(20000000)))
	assert.Equal(t, recipient, events[0].To)
	assert.Equal(t, sender, events[0].From)
	assert.Equal(t, uint64(102), events[1].BlockNumber)
	assert.Equal(t, uint(1), events[1].LogIndex)

	require.Len(t, node.queries, 1)
	q := node.queries[0]
	assert.Equal(t, "0xea60", q["fromBlock"])
	assert.Equal(t, "0x186a0", q["toBlock"])
	topics := q["topics"].([]interface{})
	require.Len(t, topics, 3)
	assert.Nil(t, topics[1])
}

func TestEvmRPC_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	rpc, err := New(context.Background(), chainregistry.ChainConfig{ID: chains.Base, RPCURL: url, ScanBlocks: 1}, 0, logger.New("test"))
	require.NoError(t, err)
	defer rpc.Close()

	_, err = rpc.BlockNumber(context.Background())
	assert.Error(t, err)
}

func TestDecodeTransfer(t *testing.T) {
	value := big.NewInt(14400000)
	lg := types.Log{
		Address: usdc,
		Topics: []common.Hash{
			TransferTopic,
			common.BytesToHash(sender.Bytes()),
			common.BytesToHash(recipient.Bytes()),
		},
		Data:        common.LeftPadBytes(value.Bytes(), 32),
		BlockNumber: 7,
		Index:       2,
	}

	ev, err := decodeTransfer(lg)
	require.NoError(t, err)
	assert.Equal(t, 0, ev.Value.Cmp(value))
	assert.Equal(t, recipient, ev.To)
	assert.Equal(t, uint64(7), ev.BlockNumber)

	lg.Topics = lg.Topics[:2]
	_, err = decodeTransfer(lg)
	assert.Error(t, err)
}

func TestTransferTopic(t *testing.T) {
	assert.Equal(t,
		common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"),
		TransferTopic,
	)
}
