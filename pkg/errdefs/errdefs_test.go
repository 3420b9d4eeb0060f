package errdefs

import (
	"fmt"
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindMatching(t *testing.T) {
	err := New(ShapeMismatch, "shape mismatch: expected (%d), got (%d)", 3, 4)
	require.Error(t, err)
	assert.Equal(t, "shape mismatch: expected (3), got (4)", err.Error())
	assert.True(t, errors.Is(err, ErrShapeMismatch))
	assert.False(t, errors.Is(err, ErrSizeMismatch))
	assert.Equal(t, ShapeMismatch, KindOf(err))

	wrapped := fmt.Errorf("assigning input 0: %w", err)
	assert.True(t, errors.Is(wrapped, ErrShapeMismatch))
	assert.Equal(t, ShapeMismatch, KindOf(wrapped))
}

func TestWrapKeepsCause(t *testing.T) {
	err := Wrap(ModelLoadFailure, io.ErrUnexpectedEOF, "unable to load model from file %q", "m.synap")
	assert.True(t, errors.Is(err, ErrModelLoadFailure))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.Equal(t, `unable to load model from file "m.synap": unexpected EOF`, err.Error())
}

func TestKindOfForeignError(t *testing.T) {
	assert.Equal(t, Unknown, KindOf(io.EOF))
	assert.Equal(t, Unknown, KindOf(nil))
}

func TestSentinelMessage(t *testing.T) {
	assert.Equal(t, "input count mismatch", ErrInputCountMismatch.Error())
	assert.Equal(t, "Kind(99)", Kind(99).String())
}
