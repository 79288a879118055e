package dpcore

import (
	"errors"

	"github.com/vswitchd/dpcore/dpcore/errs"
)

// IsNotFound reports whether err is the errs.NotFound sentinel, mirroring
// ovs.IsPortNotExist's role of letting a caller classify a provider error
// without importing the errs package directly.
func IsNotFound(err error) bool {
	return errors.Is(err, errs.NotFound)
}

// IsExists reports whether err is the errs.Exists sentinel.
func IsExists(err error) bool {
	return errors.Is(err, errs.Exists)
}
