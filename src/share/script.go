package share

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/mosaicnetworks/sharechain/src/wire"
)

// ScriptForAddress returns the output script paying to a parent-chain
// address.
func ScriptForAddress(addr string, net *chaincfg.Params) ([]byte, error) {
	decoded, err := btcutil.DecodeAddress(addr, net)
	if err != nil {
		return nil, fmt.Errorf("decoding payout address: %w", err)
	}
	if !decoded.IsForNet(net) {
		return nil, fmt.Errorf("payout address %s is not for %s", addr, net.Name)
	}
	script, err := txscript.PayToAddrScript(decoded)
	if err != nil {
		return nil, err
	}
	if len(script) > wire.MaxNewScriptLen {
		return nil, fmt.Errorf("payout script of %d bytes is too long", len(script))
	}
	return script, nil
}
