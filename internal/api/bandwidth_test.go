package api

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBandwidthLimiter_InvalidLimit(t *testing.T) {
	_, err := NewBandwidthLimiter("fast/s", slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fast/s")
}

func TestNewBandwidthLimiter_Unlimited(t *testing.T) {
	bl, err := NewBandwidthLimiter("0", slog.Default())
	require.NoError(t, err)
	assert.Nil(t, bl)

	r := strings.NewReader("x")
	assert.Same(t, r, bl.WrapReader(context.Background(), r), "nil limiter passes the reader through")
}

func TestRateLimitedReader_Throttles(t *testing.T) {
	// 1 KB/s with a 2 KB burst; reading 4 KB must wait well over 500ms.
	bl, err := NewBandwidthLimiter("1KB/s", slog.Default())
	require.NoError(t, err)
	require.NotNil(t, bl)

	reader := bl.WrapReader(context.Background(), bytes.NewReader(make([]byte, 4000)))

	start := time.Now()

	n, err := io.Copy(io.Discard, reader)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), n)
	assert.GreaterOrEqual(t, time.Since(start), 500*time.Millisecond)
}

func TestRateLimitedReader_ContextCancel(t *testing.T) {
	bl, err := NewBandwidthLimiter("1KB/s", slog.Default())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	reader := bl.WrapReader(ctx, strings.NewReader(strings.Repeat("x", 100_000)))

	cancel()

	_, err = io.Copy(io.Discard, reader)
	require.Error(t, err)
}
