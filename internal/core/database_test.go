// AngelaMos | 2026
// database_test.go

package core

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", fmt.Errorf("consume: %w", context.DeadlineExceeded), true},
		{"bad conn", driver.ErrBadConn, true},
		{"network", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"not found", fmt.Errorf("get: %w", ErrNotFound), false},
		{"plain", errors.New("syntax error"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
