package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailcast/internal/providers"
	"mailcast/internal/providers/resend"
	"mailcast/internal/providers/sendgrid"
)

func TestNewSelectsProvider(t *testing.T) {
	s, err := New(Options{Provider: "SendGrid", APIKey: "k"})
	require.NoError(t, err)
	g, ok := s.(*providers.Guard)
	require.True(t, ok)
	assert.IsType(t, &sendgrid.Client{}, g.Next)
	assert.Nil(t, g.Limiter)
	assert.Nil(t, g.Breaker)

	s, err = New(Options{Provider: "resend", APIKey: "k", RPS: 10, Burst: 5, BreakerFailures: 3, BreakerOpenFor: time.Second})
	require.NoError(t, err)
	g = s.(*providers.Guard)
	assert.IsType(t, &resend.Client{}, g.Next)
	assert.NotNil(t, g.Limiter)
	assert.NotNil(t, g.Breaker)
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New(Options{Provider: "mailgun"})
	assert.ErrorIs(t, err, providers.ErrUnknownProvider)
}
