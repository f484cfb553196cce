package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/shelf/internal/logger"
)

func TestValidate(t *testing.T) {
	valid := ConnectOptions{
		DSN:            "postgres://shelf@localhost:5432/shelf",
		ConnectTimeout: time.Second,
		RetryInterval:  10 * time.Millisecond,
		MaxWait:        50 * time.Millisecond,
		PingTimeout:    10 * time.Millisecond,
	}

	tests := []struct {
		name    string
		mutate  func(o *ConnectOptions)
		wantErr bool
	}{
		{"valid", func(o *ConnectOptions) {}, false},
		{"missing dsn", func(o *ConnectOptions) { o.DSN = "" }, true},
		{"negative max conns", func(o *ConnectOptions) { o.MaxConns = -1 }, true},
		{"zero connect timeout", func(o *ConnectOptions) { o.ConnectTimeout = 0 }, true},
		{"zero retry interval", func(o *ConnectOptions) { o.RetryInterval = 0 }, true},
		{"zero ping timeout", func(o *ConnectOptions) { o.PingTimeout = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := valid
			tt.mutate(&o)
			assert.Equal(t, tt.wantErr, o.Validate() != nil)
		})
	}
}

func TestNewRejectsBadDSN(t *testing.T) {
	_, err := New(context.Background(), ConnectOptions{
		DSN:            "postgres://%zz",
		ConnectTimeout: time.Second,
		RetryInterval:  10 * time.Millisecond,
		MaxWait:        10 * time.Millisecond,
		PingTimeout:    10 * time.Millisecond,
	}, logger.Nop())
	require.Error(t, err)
}

func TestNewGivesUpAfterTimeout(t *testing.T) {
	// Port 1 on loopback refuses connections immediately.
	_, err := New(context.Background(), ConnectOptions{
		DSN:            "postgres://shelf@127.0.0.1:1/shelf?connect_timeout=1",
		ConnectTimeout: 200 * time.Millisecond,
		RetryInterval:  20 * time.Millisecond,
		MaxWait:        50 * time.Millisecond,
		PingTimeout:    50 * time.Millisecond,
	}, logger.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres unavailable")
}
