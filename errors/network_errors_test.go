package errors

import (
	stderrors "errors"
	"testing"

	"github.com/mezonai/chainsync/jsonx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetworkErrorIsJSON(t *testing.T) {
	err := NewError(ErrCodeInvalidRequest, ErrMsgInvalidRequest)

	decoded, derr := jsonx.DecodeAs[NetworkError]([]byte(err.Error()))
	require.NoError(t, derr)
	assert.Equal(t, ErrCodeInvalidRequest, decoded.Code)
	assert.Equal(t, ErrMsgInvalidRequest, decoded.Message)

	var netErr *NetworkError
	require.True(t, stderrors.As(err, &netErr))
	assert.Equal(t, ErrCodeInvalidRequest, netErr.Code)
}
