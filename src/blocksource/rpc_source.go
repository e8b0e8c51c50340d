package blocksource

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/sirupsen/logrus"
)

// RPCConfig locates the parent chain daemon.
type RPCConfig struct {
	Host string
	User string
	Pass string
}

// RPCSource is a Source backed by a bitcoind-compatible JSON-RPC server.
type RPCSource struct {
	client *rpcclient.Client
	logger *logrus.Entry
}

// NewRPCSource returns an RPCSource using HTTP POST requests.
func NewRPCSource(conf RPCConfig, logger *logrus.Entry) (*RPCSource, error) {
	client, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         conf.Host,
		User:         conf.User,
		Pass:         conf.Pass,
		DisableTLS:   true,
		HTTPPostMode: true,
	}, nil)
	if err != nil {
		return nil, err
	}
	return &RPCSource{
		client: client,
		logger: logger.WithField("rpc", conf.Host),
	}, nil
}

// Close releases the client.
func (s *RPCSource) Close() {
	s.client.Shutdown()
}

// call runs fn and gives up when ctx is done. rpcclient has no context
// support, so an abandoned call finishes in the background.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// PendingTransactionsAndTarget implements Source with getblocktemplate.
func (s *RPCSource) PendingTransactionsAndTarget(ctx context.Context) (*BlockTemplate, error) {
	req, err := json.Marshal(&btcjson.TemplateRequest{
		Mode:  "template",
		Rules: []string{"segwit"},
	})
	if err != nil {
		return nil, err
	}
	raw, err := call(ctx, func() (json.RawMessage, error) {
		return s.client.RawRequest("getblocktemplate", []json.RawMessage{req})
	})
	if err != nil {
		return nil, err
	}
	var res btcjson.GetBlockTemplateResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decoding getblocktemplate: %w", err)
	}
	t, err := parseTemplate(&res)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"height": t.Height,
		"txs":    len(t.Transactions),
	}).Debug("Block template")
	return t, nil
}

func parseTemplate(res *btcjson.GetBlockTemplateResult) (*BlockTemplate, error) {
	prev, err := chainhash.NewHashFromStr(res.PreviousHash)
	if err != nil {
		return nil, fmt.Errorf("previousblockhash: %w", err)
	}
	bits, err := strconv.ParseUint(res.Bits, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("bits: %w", err)
	}
	if res.CoinbaseValue == nil {
		return nil, fmt.Errorf("template without coinbasevalue")
	}

	t := &BlockTemplate{
		Version:       res.Version,
		PreviousBlock: *prev,
		Bits:          uint32(bits),
		Height:        res.Height,
		Subsidy:       *res.CoinbaseValue,
		Time:          time.Unix(res.CurTime, 0),
	}
	for i, rtx := range res.Transactions {
		b, err := hex.DecodeString(rtx.Data)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		tx := &btcwire.MsgTx{}
		if err := tx.Deserialize(bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		t.Transactions = append(t.Transactions, tx)
	}
	return t, nil
}

// ChainHeight implements Source with getblockcount.
func (s *RPCSource) ChainHeight(ctx context.Context) (int64, error) {
	return call(ctx, s.client.GetBlockCount)
}

// BlockHeight implements Source with getblockheader.
func (s *RPCSource) BlockHeight(ctx context.Context, block chainhash.Hash) (int64, error) {
	hdr, err := call(ctx, func() (*btcjson.GetBlockHeaderVerboseResult, error) {
		return s.client.GetBlockHeaderVerbose(&block)
	})
	if err != nil {
		var rpcErr *btcjson.RPCError
		if errors.As(err, &rpcErr) && rpcErr.Code == btcjson.ErrRPCBlockNotFound {
			return 0, ErrUnknownBlock
		}
		return 0, err
	}
	return int64(hdr.Height), nil
}
