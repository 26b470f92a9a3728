package pool

import (
	"context"
	"errors"
	"net"
	"syscall"
	"testing"
)

func TestIsResetLikeError_NetOpError(t *testing.T) {
	err := &net.OpError{Op: "read", Err: syscall.ECONNRESET}
	if !isResetLikeError(err) {
		t.Fatal("expected net.OpError to classify as reset-like")
	}
}

func TestIsResetLikeError_Wrapped(t *testing.T) {
	err := errors.Join(errors.New("context"), syscall.ECONNREFUSED)
	if !isResetLikeError(err) {
		t.Fatal("expected wrapped ECONNREFUSED to classify as reset-like")
	}
}

func TestIsResetLikeError_DeadlineExceeded(t *testing.T) {
	if !isResetLikeError(context.DeadlineExceeded) {
		t.Fatal("expected context.DeadlineExceeded to classify as reset-like")
	}
}

func TestIsResetLikeError_Unrelated(t *testing.T) {
	if isResetLikeError(errors.New("some application error")) {
		t.Fatal("expected a plain application error to not classify as reset-like")
	}
}

func TestClassify_NilError(t *testing.T) {
	if classify(context.Background(), nil, nil) {
		t.Fatal("nil error must never classify as a connection failure")
	}
}

func TestClassify_ResetLike(t *testing.T) {
	err := &net.OpError{Op: "write", Err: syscall.ECONNRESET}
	if !classify(context.Background(), nil, err) {
		t.Fatal("reset-like errors must classify as connection failures regardless of conn")
	}
}
