// Package wire implements the binary protocol spoken between share-chain
// nodes.
//
// Every message travels in a frame:
//
//	magic[8] | command[12] | length uint32 LE | checksum[4] | payload
//
// The magic prefix is network specific, the command is NUL padded ASCII and
// the checksum is the first four bytes of the double SHA-256 of the payload.
// Payloads are built from fixed-width integers, bitcoin style var-ints and
// var-strings, 256-bit hashes, counted lists, network address records and a
// compressed list that stores repeated values once in a table and refers to
// them by index.
//
// Messages form a closed set. MakeEmptyMessage maps a command name to its
// concrete type and is the only place where commands are dispatched on
// strings; everything above this package switches on Go types.
package wire
