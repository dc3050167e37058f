package errs

import (
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// Ensure New carries the kind and message.
func TestNew(t *testing.T) {
	err := New(Validation, "workload %s not found", "a.elf")
	require.Equal(t, "workload a.elf not found", err.Error())
	require.Equal(t, Validation, KindOf(err))
	require.True(t, Is(err, Validation))
	require.False(t, Is(err, Network))
}

// Ensure Wrap returns nil for a nil error.
func TestWrapNil(t *testing.T) {
	require.NoError(t, Wrap(Network, nil, "failed"))
	require.NoError(t, Wrapf(Network, nil, "failed %d", 1))
}

// Ensure wrapped kinds remain visible below an outer kind.
func TestIsWalksChain(t *testing.T) {
	inner := Wrap(Network, io.ErrUnexpectedEOF, "failed to upload package")
	outer := Wrap(Experiment, inner, "experiment failed")

	require.Equal(t, Experiment, KindOf(outer))
	require.True(t, Is(outer, Experiment))
	require.True(t, Is(outer, Network))
	require.False(t, Is(outer, Encryption))
	require.True(t, errors.Is(outer, io.ErrUnexpectedEOF))
	require.Equal(t, io.ErrUnexpectedEOF, errors.Cause(outer))
	require.Equal(t, "experiment failed: failed to upload package: unexpected EOF", outer.Error())
}

// Ensure errors without a kind report zero.
func TestKindOfPlainError(t *testing.T) {
	require.Equal(t, Kind(0), KindOf(io.EOF))
	require.False(t, Is(nil, Experiment))
	require.Equal(t, "Kind(0)", Kind(0).String())
	require.Equal(t, "EncryptionError", Encryption.String())
}
