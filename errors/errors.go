// Package errors provides error handling for the load balancer core.
//
// It re-exports github.com/cockroachdb/errors, giving every internal error
// a stack trace and wrap chain without every package importing the
// third-party module directly.
//
// Usage:
//
//	err := errors.New("endpoint not registered")
//	return errors.Wrapf(err, "setWeight %s", endpoint)
//	if errors.Is(err, ErrUnknownEndpoint) { ... }
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

var (
	Is     = crdb.Is
	As     = crdb.As
	Unwrap = crdb.Unwrap
)
