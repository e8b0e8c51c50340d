package wire

import (
	"fmt"
	"io"
)

// Commands of the share-chain protocol.
const (
	CmdHandshake = "handshake"
	CmdPing      = "ping"
	CmdAddrMe    = "addrme"
	CmdAddrs     = "addrs"
	CmdGetAddrs  = "getaddrs"
	CmdGetShares = "getshares"
	CmdShares    = "shares"
)

// Message is implemented by every message of the protocol.
type Message interface {
	// Command returns the name carried in the frame header.
	Command() string

	// Encode writes the payload.
	Encode(w io.Writer) error

	// Decode reads the payload.
	Decode(r io.Reader) error
}

// MakeEmptyMessage returns a zero message of the type identified by cmd.
func MakeEmptyMessage(cmd string) (Message, error) {
	switch cmd {
	case CmdHandshake:
		return &MsgHandshake{}, nil
	case CmdPing:
		return &MsgPing{}, nil
	case CmdAddrMe:
		return &MsgAddrMe{}, nil
	case CmdAddrs:
		return &MsgAddrs{}, nil
	case CmdGetAddrs:
		return &MsgGetAddrs{}, nil
	case CmdGetShares:
		return &MsgGetShares{}, nil
	case CmdShares:
		return &MsgShares{}, nil
	default:
		return nil, fmt.Errorf("unknown command %q", cmd)
	}
}
