package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs_MatchesByKind(t *testing.T) {
	err := fmt.Errorf("add item: %w", Validation("size is required"))

	assert.True(t, errors.Is(err, ErrValidation))
	assert.False(t, errors.Is(err, ErrStorage))
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestStorage_KeepsExistingKind(t *testing.T) {
	conflict := Wrap(KindConflict, "duplicate cart line", errors.New("23505"))

	err := Storage("upsert cart line", conflict)
	assert.True(t, errors.Is(err, ErrConflict))

	err = Storage("upsert cart line", errors.New("connection refused"))
	assert.True(t, errors.Is(err, ErrStorage))
	assert.Contains(t, err.Error(), "connection refused")

	assert.Nil(t, Storage("noop", nil))
}

func TestKindOf_Unknown(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
}
