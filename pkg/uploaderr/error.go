// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package uploaderr defines the error kinds shared by the upload engine, the
// store adapters, the HTTP boundary and the client.
package uploaderr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failure. Kind implements error so that
// errors.Is(err, uploaderr.SessionNotFound) matches any *Error of that kind.
type Kind int

const (
	None Kind = iota

	// StoreUnavailable: the store is unreachable or rejected the request. Retry.
	StoreUnavailable
	// Unauthorized: the store refused our credentials. Configuration issue.
	Unauthorized
	// SessionNotFound: unknown, expired, completed or aborted upload id.
	SessionNotFound
	// PartTooSmall: a non-final part is below the store minimum part size.
	PartTooSmall
	// IncompleteManifest: the manifest does not cover exactly the committed parts.
	IncompleteManifest
	// ManifestMismatch: the manifest is out of order or a fingerprint differs.
	ManifestMismatch
	// Throttled: the store asked us to slow down. Retry after backoff.
	Throttled
	// InvalidRequest: the caller sent something the engine rejects before
	// touching the store.
	InvalidRequest
)

type kindInfo struct {
	Name           string
	Description    string
	HTTPStatusCode int
	Retryable      bool
}

var kindTable = map[Kind]kindInfo{
	None: {
		Name:           "None",
		Description:    "no error",
		HTTPStatusCode: http.StatusOK,
	},
	StoreUnavailable: {
		Name:           "StoreUnavailable",
		Description:    "object store unavailable",
		HTTPStatusCode: http.StatusServiceUnavailable,
		Retryable:      true,
	},
	Unauthorized: {
		Name:           "Unauthorized",
		Description:    "object store rejected credentials",
		HTTPStatusCode: http.StatusBadGateway,
	},
	SessionNotFound: {
		Name:           "SessionNotFound",
		Description:    "upload session not found",
		HTTPStatusCode: http.StatusNotFound,
	},
	PartTooSmall: {
		Name:           "PartTooSmall",
		Description:    "part smaller than the minimum allowed part size",
		HTTPStatusCode: http.StatusBadRequest,
	},
	IncompleteManifest: {
		Name:           "IncompleteManifest",
		Description:    "manifest does not list every committed part",
		HTTPStatusCode: http.StatusBadRequest,
	},
	ManifestMismatch: {
		Name:           "ManifestMismatch",
		Description:    "manifest does not match committed parts",
		HTTPStatusCode: http.StatusConflict,
	},
	Throttled: {
		Name:           "Throttled",
		Description:    "object store throttled the request",
		HTTPStatusCode: http.StatusTooManyRequests,
		Retryable:      true,
	},
	InvalidRequest: {
		Name:           "InvalidRequest",
		Description:    "invalid request",
		HTTPStatusCode: http.StatusBadRequest,
	},
}

func (k Kind) info() kindInfo {
	if info, ok := kindTable[k]; ok {
		return info
	}
	return kindTable[StoreUnavailable]
}

func (k Kind) String() string {
	if info, ok := kindTable[k]; ok {
		return info.Name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) Error() string {
	return k.info().Description
}

// Description is the default human message for the kind.
func (k Kind) Description() string {
	return k.info().Description
}

// HTTPStatus is the status the HTTP boundary answers with.
func (k Kind) HTTPStatus() int {
	return k.info().HTTPStatusCode
}

// Retryable reports whether the same request may succeed if repeated.
func (k Kind) Retryable() bool {
	return k.info().Retryable
}

// ParseKind maps a kind name back to its Kind.
func ParseKind(name string) (Kind, bool) {
	for k, info := range kindTable {
		if strings.EqualFold(info.Name, name) {
			return k, true
		}
	}
	return None, false
}

// Error is a kinded failure of one engine or store operation.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	var inner *Error
	switch {
	case e.Message != "":
		b.WriteString(e.Message)
	case e.Err == nil || !errors.As(e.Err, &inner):
		b.WriteString(e.Kind.Description())
	}
	if e.Err != nil {
		if e.Message != "" || inner == nil {
			b.WriteString(": ")
		}
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches a bare Kind target.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// New returns an error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Newf is New with a formatted message.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to err.
func Wrap(kind Kind, op string, err error, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, None for nil
// and StoreUnavailable for unclassified errors.
func KindOf(err error) Kind {
	if err == nil {
		return None
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return StoreUnavailable
}

// IsRetryable reports whether err is of a transient kind.
func IsRetryable(err error) bool {
	return err != nil && KindOf(err).Retryable()
}

// WithOp attributes err to op. An *Error without an op gets op set; one
// carrying a different op, such as the store call that failed, is wrapped
// so the message reads "op: storeOp: ...". The kind is kept either way.
// Other errors are classified as StoreUnavailable.
func WithOp(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		switch e.Op {
		case op:
			return err
		case "":
			cp := *e
			cp.Op = op
			return &cp
		}
		return &Error{Kind: e.Kind, Op: op, Err: err}
	}
	return Wrap(StoreUnavailable, op, err, "")
}
