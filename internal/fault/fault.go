// Package fault defines the error kinds shared across the evaluation harness.
//
// Callers wrap one of the sentinel errors with fmt.Errorf("%w: ...") and test
// with errors.Is. The same kinds travel over HTTP as short strings so a remote
// client can rebuild them without interpreting server-supplied text.
package fault

import (
	"errors"
	"fmt"
)

var (
	// ErrUsage reports misuse of the session protocol.
	ErrUsage = errors.New("usage error")
	// ErrInvalidInput reports a bad argument at an API boundary.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConsistency reports results stored out of order or twice.
	ErrConsistency = errors.New("consistency error")
	// ErrSetup reports a missing dataset, file or credential.
	ErrSetup = errors.New("setup error")
	// ErrTransient reports an infrastructure failure that outlived its retries.
	ErrTransient = errors.New("transient error")
	// ErrContract reports a broken algorithmic precondition. It indicates a bug.
	ErrContract = errors.New("contract violation")
)

// ErrRemote is returned for error kinds a server sent that this client does
// not know about.
var ErrRemote = errors.New("remote error")

var kinds = []struct {
	name string
	err  error
}{
	{"usage", ErrUsage},
	{"invalid_input", ErrInvalidInput},
	{"consistency", ErrConsistency},
	{"setup", ErrSetup},
	{"transient", ErrTransient},
	{"contract", ErrContract},
}

// Kind returns the wire name of the first known kind err wraps, or "internal".
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}

// FromKind rebuilds an error from its wire name and message.
func FromKind(kind, message string) error {
	for _, k := range kinds {
		if k.name == kind {
			return fmt.Errorf("%w: %s", k.err, message)
		}
	}
	return fmt.Errorf("%w (%s): %s", ErrRemote, kind, message)
}

// Errorf wraps kind with a formatted message.
func Errorf(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}
