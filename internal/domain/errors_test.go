package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckDimension(t *testing.T) {
	assert.NoError(t, CheckDimension([]float32{1, 2, 3}, 3))

	err := CheckDimension([]float32{1, 2}, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))

	var dimErr *DimensionError
	require.True(t, errors.As(err, &dimErr))
	assert.Equal(t, 3, dimErr.Want)
	assert.Equal(t, 2, dimErr.Got)
}

func TestDimensionErrorWrapped(t *testing.T) {
	err := fmt.Errorf("insert 7: %w", &DimensionError{Want: 4, Got: 5})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "want 4, got 5")
}
