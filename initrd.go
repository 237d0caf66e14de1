package dtbpatch

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

var ErrNotRegularFile = errors.New("dtbpatch: initrd is not a regular file")

// Returns the size in bytes of the named initrd image. Only the file metadata
// is consulted, the contents are never read.
func InitrdSize(name string) (uint64, error) {
	fi, err := os.Stat(name)
	if err != nil {
		return 0, err
	}

	if !fi.Mode().IsRegular() {
		return 0, fmt.Errorf("%w: %s (%s)", ErrNotRegularFile, name, fi.Mode().Type())
	}

	return uint64(fi.Size()), nil
}

// An address argument was not a valid integer literal.
type AddressError struct {
	Input string
	Err   error
}

func (e *AddressError) Error() string {
	var reason = e.Err
	if ne, ok := reason.(*strconv.NumError); ok {
		reason = ne.Err
	}
	return fmt.Sprintf("dtbpatch: invalid address %q: %s", e.Input, reason)
}

func (e *AddressError) Unwrap() error { return e.Err }

// Parse an address written as an integer literal in any of the usual bases:
// `0x` hexadecimal, `0o` or leading `0` octal, `0b` binary, or decimal.
// Underscores may separate digits. Returns an [AddressError] on failure.
func ParseAddress(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, &AddressError{Input: s, Err: err}
	}
	return v, nil
}
