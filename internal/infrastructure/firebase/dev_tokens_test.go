package firebase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDevTokenVerifier(t *testing.T) {
	v := NewDevTokenVerifier(nil)
	ctx := context.Background()

	uid, err := v.VerifyToken(ctx, "dev:doctor-1")
	require.NoError(t, err)
	assert.Equal(t, "doctor-1", uid)

	_, err = v.VerifyToken(ctx, "dev:")
	assert.Error(t, err)

	_, err = v.VerifyToken(ctx, "eyJhbGciOi.real.token")
	assert.Error(t, err)

	assert.NoError(t, v.TestConnection(ctx))
}
