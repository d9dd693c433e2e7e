package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies every failure the gateway can surface.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindParse
	KindForbidden
	KindNetwork
	KindApi
	KindAuthExpired
	KindDomain
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindParse:
		return "Parse"
	case KindForbidden:
		return "Forbidden"
	case KindNetwork:
		return "Network"
	case KindApi:
		return "Api"
	case KindAuthExpired:
		return "AuthExpired"
	case KindDomain:
		return "Domain"
	default:
		return "Unknown"
	}
}

// Numeric codes surfaced to clients in the "code" extension of every error.
const (
	CodeNotFound    = 100
	CodeParse       = 200
	CodeForbidden   = 300
	CodeNetwork     = 400
	CodeApi         = 500
	CodeAuthExpired = 600
	CodeDomain      = 700
	CodeUnknown     = 800
)

// DomainReason names the business rule a Domain error violated.
type DomainReason string

const (
	CouponNotFound          DomainReason = "coupon_not_found"
	CouponScopeNotSupported DomainReason = "coupon_scope_not_supported"
	CouponNotActive         DomainReason = "coupon_not_active"
	CouponExpired           DomainReason = "coupon_expired"
	CouponNoActivations     DomainReason = "coupon_no_activations"
	CouponAlreadyActivated  DomainReason = "coupon_already_activated"
	PackageNotFound         DomainReason = "package_not_found"
)

// Error represents an application error
type Error struct {
	Kind    Kind         `json:"-"`
	Status  int          `json:"status,omitempty"`
	Message string       `json:"message"`
	Reason  DomainReason `json:"reason,omitempty"`
	Err     error        `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches two gateway errors of the same kind and domain reason, so the
// sentinel values below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

// Code returns the numeric classification for the error kind.
func (e *Error) Code() int {
	switch e.Kind {
	case KindNotFound:
		return CodeNotFound
	case KindParse:
		return CodeParse
	case KindForbidden:
		return CodeForbidden
	case KindNetwork:
		return CodeNetwork
	case KindApi:
		return CodeApi
	case KindAuthExpired:
		return CodeAuthExpired
	case KindDomain:
		return CodeDomain
	default:
		return CodeUnknown
	}
}

// HTTPStatus is the transport status used when the error fails a whole request.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindParse:
		return http.StatusUnprocessableEntity
	case KindForbidden:
		return http.StatusForbidden
	case KindApi:
		return http.StatusBadGateway
	case KindAuthExpired:
		return http.StatusUnauthorized
	case KindDomain:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Internal reports whether the error belongs to the 500 class that is sent
// to error tracking. Backend rejections count only when the backend itself
// answered with a 5xx.
func (e *Error) Internal() bool {
	if e.Kind == KindApi {
		return e.Status >= http.StatusInternalServerError
	}
	return e.HTTPStatus() >= http.StatusInternalServerError
}

// Extensions is read by the GraphQL engine and rendered next to the message.
func (e *Error) Extensions() map[string]interface{} {
	details := map[string]interface{}{
		"kind": e.Kind.String(),
	}
	if e.Status != 0 {
		details["status"] = e.Status
	}
	if e.Reason != "" {
		details["reason"] = string(e.Reason)
	}
	if e.Err != nil {
		details["cause"] = e.Err.Error()
	}
	return map[string]interface{}{
		"code":    e.Code(),
		"details": details,
	}
}

// New creates a new Error
func New(kind Kind, message string, err error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

func NotFound(message string) *Error {
	return New(KindNotFound, message, nil)
}

func Parse(message string, err error) *Error {
	return New(KindParse, message, err)
}

func Forbidden(message string) *Error {
	return New(KindForbidden, message, nil)
}

func Network(err error) *Error {
	return New(KindNetwork, "backend unreachable", err)
}

// Api is a non-success backend response. message is nil when the backend did
// not send a structured error body.
func Api(status int, message *string) *Error {
	e := New(KindApi, fmt.Sprintf("backend responded with status %d", status), nil)
	e.Status = status
	if message != nil {
		e.Message = *message
	}
	return e
}

func AuthExpired() *Error {
	return New(KindAuthExpired, "authentication token has expired", nil)
}

func Domain(reason DomainReason, message string) *Error {
	e := New(KindDomain, message, nil)
	e.Reason = reason
	return e
}

func Unknown(err error) *Error {
	return New(KindUnknown, "unknown error", err)
}

// From converts any error into a gateway error. Errors that already carry a
// kind are returned untouched.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Unknown(err)
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound    = &Error{Kind: KindNotFound}
	ErrParse       = &Error{Kind: KindParse}
	ErrForbidden   = &Error{Kind: KindForbidden}
	ErrNetwork     = &Error{Kind: KindNetwork}
	ErrApi         = &Error{Kind: KindApi}
	ErrAuthExpired = &Error{Kind: KindAuthExpired}
	ErrDomain      = &Error{Kind: KindDomain}
	ErrUnknown     = &Error{Kind: KindUnknown}

	ErrCouponNotFound          = &Error{Kind: KindDomain, Reason: CouponNotFound}
	ErrCouponScopeNotSupported = &Error{Kind: KindDomain, Reason: CouponScopeNotSupported}
	ErrCouponNotActive         = &Error{Kind: KindDomain, Reason: CouponNotActive}
	ErrCouponExpired           = &Error{Kind: KindDomain, Reason: CouponExpired}
	ErrCouponNoActivations     = &Error{Kind: KindDomain, Reason: CouponNoActivations}
	ErrCouponAlreadyActivated  = &Error{Kind: KindDomain, Reason: CouponAlreadyActivated}
	ErrPackageNotFound         = &Error{Kind: KindDomain, Reason: PackageNotFound}
)
