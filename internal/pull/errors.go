package pull

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Domain is the errdetails domain for pull errors.
const Domain = "github.com/xtding233/gacha-pull"

// Code is a machine-readable error code.
type Code string

const (
	CodePoolNotFound         Code = "POOL_NOT_FOUND"
	CodePoolInactive         Code = "POOL_INACTIVE"
	CodeUnsupportedDrawCount Code = "UNSUPPORTED_DRAW_COUNT"
	CodeInsufficientFunds    Code = "INSUFFICIENT_FUNDS"
	CodeCatalogInconsistency Code = "CATALOG_INCONSISTENCY"
	CodePersistenceFailure   Code = "PERSISTENCE_FAILURE"
	CodeInvalidRequest       Code = "INVALID_REQUEST"
	CodeWalletFailure        Code = "WALLET_FAILURE"
	CodeInventoryFailure     Code = "INVENTORY_FAILURE"
)

// Sentinels for errors.Is. Matching is by code, so any *Error carrying the
// same code matches regardless of message or cause.
var (
	ErrPoolNotFound         = &Error{Code: CodePoolNotFound, Message: "pool not found"}
	ErrPoolInactive         = &Error{Code: CodePoolInactive, Message: "pool is not active"}
	ErrUnsupportedDrawCount = &Error{Code: CodeUnsupportedDrawCount, Message: "unsupported draw count"}
	ErrInsufficientFunds    = &Error{Code: CodeInsufficientFunds, Message: "insufficient funds"}
	ErrCatalogInconsistency = &Error{Code: CodeCatalogInconsistency, Message: "catalog inconsistency"}
	ErrPersistenceFailure   = &Error{Code: CodePersistenceFailure, Message: "persistence failure"}
	ErrInvalidRequest       = &Error{Code: CodeInvalidRequest, Message: "invalid request"}
	ErrWalletFailure        = &Error{Code: CodeWalletFailure, Message: "wallet failure"}
	ErrInventoryFailure     = &Error{Code: CodeInventoryFailure, Message: "inventory failure"}
)

// Error is the error type returned by Service.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func newError(code Code, message string, cause error, kv ...string) *Error {
	e := &Error{Code: code, Message: message, Cause: cause}
	if len(kv) > 0 {
		e.Metadata = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			e.Metadata[kv[i]] = kv[i+1]
		}
	}
	return e
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// GRPCCode maps the code onto a gRPC status code.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodePoolNotFound:
		return codes.NotFound
	case CodePoolInactive, CodeInsufficientFunds:
		return codes.FailedPrecondition
	case CodeUnsupportedDrawCount, CodeInvalidRequest:
		return codes.InvalidArgument
	case CodeCatalogInconsistency:
		return codes.Internal
	case CodePersistenceFailure, CodeWalletFailure, CodeInventoryFailure:
		return codes.Unavailable
	default:
		return codes.Unknown
	}
}

// HTTPStatus maps the code onto an HTTP status.
func (c Code) HTTPStatus() int {
	switch c {
	case CodePoolNotFound:
		return http.StatusNotFound
	case CodePoolInactive:
		return http.StatusConflict
	case CodeInsufficientFunds:
		return http.StatusPaymentRequired
	case CodeUnsupportedDrawCount, CodeInvalidRequest:
		return http.StatusBadRequest
	case CodePersistenceFailure, CodeWalletFailure, CodeInventoryFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ToStatus converts the error to a gRPC status carrying an ErrorInfo detail.
func (e *Error) ToStatus() *status.Status {
	st := status.New(e.Code.GRPCCode(), e.Message)
	detailed, err := st.WithDetails(&errdetails.ErrorInfo{
		Reason:   string(e.Code),
		Domain:   Domain,
		Metadata: e.Metadata,
	})
	if err != nil {
		return st
	}
	return detailed
}

// UnaryServerInterceptor turns *Error results into gRPC statuses carrying an
// ErrorInfo. Other errors pass through unchanged.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if err == nil {
			return resp, nil
		}
		var e *Error
		if errors.As(err, &e) {
			return nil, e.ToStatus().Err()
		}
		return nil, err
	}
}
