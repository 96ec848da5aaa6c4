package simulator

import (
	"errors"
	"fmt"
)

// ErrorKind classifies simulation errors.
type ErrorKind int

const (
	KindInvalidConfig   ErrorKind = iota // bad configuration, fatal at startup
	KindBlockDead                        // erase attempted on a dead block
	KindPageNotFree                      // program attempted on a non-free page
	KindOutOfSpace                       // write unsatisfiable even after GC retry
	KindAddressNotFound                  // read of a never-written logical address
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidConfig:
		return "invalid config"
	case KindBlockDead:
		return "block dead"
	case KindPageNotFree:
		return "page not free"
	case KindOutOfSpace:
		return "out of space"
	case KindAddressNotFound:
		return "address not found"
	default:
		return "unknown"
	}
}

// SimError is a custom error type for simulation errors
type SimError struct {
	Kind    ErrorKind
	Message string
}

func (e *SimError) Error() string {
	return fmt.Sprintf("simulation error: %s: %s", e.Kind, e.Message)
}

// Is reports kind equality so callers can match with errors.Is against
// a bare-kind SimError.
func (e *SimError) Is(target error) bool {
	t, ok := target.(*SimError)
	return ok && t.Kind == e.Kind
}

// ErrInvalidConfig creates an error for invalid configuration
func ErrInvalidConfig(msg string) error {
	return &SimError{Kind: KindInvalidConfig, Message: msg}
}

// ErrBlockDead creates an error for an erase on a dead block
func ErrBlockDead(blockID int) error {
	return &SimError{Kind: KindBlockDead, Message: fmt.Sprintf("block %d is dead", blockID)}
}

// ErrPageNotFree creates an error for a program on a non-free page
func ErrPageNotFree(blockID, page int) error {
	return &SimError{Kind: KindPageNotFree, Message: fmt.Sprintf("page %d/%d is not free", blockID, page)}
}

// ErrOutOfSpace creates an error for an unsatisfiable write
func ErrOutOfSpace(msg string) error {
	return &SimError{Kind: KindOutOfSpace, Message: msg}
}

// ErrAddressNotFound creates an error for a read of an unmapped address
func ErrAddressNotFound(addr int) error {
	return &SimError{Kind: KindAddressNotFound, Message: fmt.Sprintf("logical address %d is not mapped", addr)}
}

// IsKind reports whether err is a SimError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var se *SimError
	return errors.As(err, &se) && se.Kind == kind
}
