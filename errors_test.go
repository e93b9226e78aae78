package sagaflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransactionErrorUnwrapsToCause(t *testing.T) {
	cause := errors.New("provider quota exceeded")
	err := TransactionFailed("N001", cause)

	assert.True(t, errors.Is(err, cause))

	var target *TransactionError
	assert.True(t, errors.As(err, &target))
}

func TestCompensationErrorUnwrapsToCause(t *testing.T) {
	cause := errors.New("refund endpoint unreachable")
	err := CompensationFailed("N002", cause)

	assert.True(t, errors.Is(err, cause))
}

func TestStorageErrorUnwrapsToCause(t *testing.T) {
	cause := errors.New("disk full")
	err := StorageFailed(cause)

	assert.True(t, errors.Is(err, cause))
}
