package pull_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/xtding233/gacha-pull/internal/pull"
)

func TestCodeMapping(t *testing.T) {
	cases := []struct {
		code pull.Code
		grpc codes.Code
		http int
	}{
		{pull.CodePoolNotFound, codes.NotFound, http.StatusNotFound},
		{pull.CodePoolInactive, codes.FailedPrecondition, http.StatusConflict},
		{pull.CodeUnsupportedDrawCount, codes.InvalidArgument, http.StatusBadRequest},
		{pull.CodeInsufficientFunds, codes.FailedPrecondition, http.StatusPaymentRequired},
		{pull.CodeCatalogInconsistency, codes.Internal, http.StatusInternalServerError},
		{pull.CodePersistenceFailure, codes.Unavailable, http.StatusServiceUnavailable},
		{pull.CodeInvalidRequest, codes.InvalidArgument, http.StatusBadRequest},
		{pull.CodeWalletFailure, codes.Unavailable, http.StatusServiceUnavailable},
		{pull.CodeInventoryFailure, codes.Unavailable, http.StatusServiceUnavailable},
		{pull.Code("SOMETHING_ELSE"), codes.Unknown, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			assert.Equal(t, tc.grpc, tc.code.GRPCCode())
			assert.Equal(t, tc.http, tc.code.HTTPStatus())
		})
	}
}

func errorInfo(t *testing.T, st *status.Status) *errdetails.ErrorInfo {
	t.Helper()
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok {
			return info
		}
	}
	t.Fatalf("status %v has no ErrorInfo", st)
	return nil
}

func TestToStatusCarriesErrorInfo(t *testing.T) {
	e := &pull.Error{
		Code:     pull.CodeInsufficientFunds,
		Message:  "need 160 jade",
		Metadata: map[string]string{"currency": "jade", "amount": "160"},
	}
	st := e.ToStatus()
	assert.Equal(t, codes.FailedPrecondition, st.Code())
	assert.Equal(t, "need 160 jade", st.Message())

	info := errorInfo(t, st)
	assert.Equal(t, "INSUFFICIENT_FUNDS", info.GetReason())
	assert.Equal(t, pull.Domain, info.GetDomain())
	assert.Equal(t, "jade", info.GetMetadata()["currency"])
}

func TestUnaryServerInterceptor(t *testing.T) {
	intercept := pull.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/test/Method"}
	call := func(err error) error {
		_, got := intercept(context.Background(), nil, info, func(context.Context, any) (any, error) {
			return nil, err
		})
		return got
	}

	require.NoError(t, call(nil))

	st, ok := status.FromError(call(pull.ErrPoolNotFound))
	require.True(t, ok)
	assert.Equal(t, codes.NotFound, st.Code())
	assert.Equal(t, "POOL_NOT_FOUND", errorInfo(t, st).GetReason())

	plain := errors.New("boom")
	assert.Same(t, plain, call(plain))
}
