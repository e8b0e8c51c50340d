package common

import (
	"errors"
	"fmt"
)

// StoreErrType classifies store errors.
type StoreErrType uint32

const (
	// KeyNotFound is returned for lookups of absent keys.
	KeyNotFound StoreErrType = iota
	// Corrupted means a stored value could not be decoded.
	Corrupted
)

func (t StoreErrType) String() string {
	switch t {
	case KeyNotFound:
		return "not found"
	case Corrupted:
		return "corrupted"
	default:
		return "unknown"
	}
}

// StoreErr reports a failed lookup or decode of a stored item.
type StoreErr struct {
	dataType string
	errType  StoreErrType
	key      string
}

// NewStoreErr ...
func NewStoreErr(dataType string, errType StoreErrType, key string) StoreErr {
	return StoreErr{
		dataType: dataType,
		errType:  errType,
		key:      key,
	}
}

// Error ...
func (e StoreErr) Error() string {
	return fmt.Sprintf("%s %s: %s", e.dataType, e.key, e.errType)
}

// IsStore checks that err wraps a StoreErr of type t.
func IsStore(err error, t StoreErrType) bool {
	var storeErr StoreErr
	return errors.As(err, &storeErr) && storeErr.errType == t
}
