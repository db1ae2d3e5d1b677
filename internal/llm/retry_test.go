package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		InitialWait: time.Millisecond,
		MaxWait:     5 * time.Millisecond,
		Multiplier:  2.0,
	}
}

func TestRetryTransientThenSuccess(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Err: &ErrProviderUnavailable{Err: errors.New("down")}},
		MockResponse{Content: json.RawMessage(`{"ok":true}`)},
	)
	resp, err := WithRetry(mock, fastRetry()).Generate(context.Background(), Request{})
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(resp.Content))
	require.Equal(t, 2, mock.CallCount())
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	mock := NewMockProvider()
	_, err := WithRetry(mock, fastRetry()).Generate(context.Background(), Request{})
	var unavailable *ErrProviderUnavailable
	require.ErrorAs(t, err, &unavailable)
	require.Equal(t, 3, mock.CallCount())
}

func TestRetryInvalidResponseOnlyOnce(t *testing.T) {
	invalid := &ErrInvalidResponse{Err: errors.New("bad")}
	mock := NewMockProvider(
		MockResponse{Err: invalid},
		MockResponse{Err: invalid},
		MockResponse{Content: json.RawMessage(`{}`)},
	)
	_, err := WithRetry(mock, fastRetry()).Generate(context.Background(), Request{})
	require.ErrorIs(t, err, invalid)
	require.Equal(t, 2, mock.CallCount())
}

func TestRetryStopsOnContextError(t *testing.T) {
	mock := NewMockProvider(MockResponse{Err: context.DeadlineExceeded})
	_, err := WithRetry(mock, fastRetry()).Generate(context.Background(), Request{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, mock.CallCount())
}

func TestNewProviderWithoutConfiguration(t *testing.T) {
	p, err := NewProvider(context.Background(), ProviderConfig{})
	require.NoError(t, err)
	require.Nil(t, p)

	_, err = NewProvider(context.Background(), ProviderConfig{Provider: "openai"})
	require.Error(t, err)

	_, err = NewProvider(context.Background(), ProviderConfig{Provider: "carrier-pigeon"})
	require.Error(t, err)
}
