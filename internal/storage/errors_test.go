package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
)

func TestIsNoSuchKey(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "sentinel", err: fmt.Errorf("open: %w", ErrObjectNotFound), want: true},
		{name: "minio response", err: minio.ErrorResponse{Code: "NoSuchKey"}, want: true},
		{name: "wrapped response", err: fmt.Errorf("stat: %w", minio.ErrorResponse{Code: "NotFound"}), want: true},
		{name: "gateway text", err: errors.New("The specified key does not exist."), want: true},
		{name: "access denied", err: minio.ErrorResponse{Code: "AccessDenied", Message: "denied"}, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsNoSuchKey(tc.err))
		})
	}
}
