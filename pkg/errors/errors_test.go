package errors

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_WithDetail_DoesNotMutateSentinel(t *testing.T) {
	derived := ErrPayloadTooLarge.WithDetail("filename", "a.png")

	require.NotSame(t, ErrPayloadTooLarge, derived)
	assert.Equal(t, "a.png", derived.Details["filename"])
	assert.Empty(t, ErrPayloadTooLarge.Details, "sentinel details must stay empty")
}

func TestError_WithDetail_IndependentCopies(t *testing.T) {
	first := ErrPayloadTooLarge.WithDetail("filename", "a.png")
	second := ErrPayloadTooLarge.WithDetail("total_size", int64(999))

	assert.Equal(t, map[string]interface{}{"filename": "a.png"}, first.Details)
	assert.Equal(t, map[string]interface{}{"total_size": int64(999)}, second.Details)
}

func TestError_WithDetail_Chained(t *testing.T) {
	base := ErrPayloadTooLarge.WithDetail("filename", "a.png")
	extended := base.WithDetail("size", int64(123))

	assert.Len(t, base.Details, 1, "extending a copy must not touch the copy it came from")
	assert.Len(t, extended.Details, 2)
	assert.Equal(t, "a.png", extended.Details["filename"])
}

func TestError_WithCause_DoesNotShareDetails(t *testing.T) {
	derived := ErrConflict.WithCause(fmt.Errorf("boom"))
	derived.Details["key"] = "value"

	assert.Empty(t, ErrConflict.Details)
	assert.Equal(t, ErrConflict.Code, derived.Code)
	assert.EqualError(t, derived.Unwrap(), "boom")
}

func TestError_WithDetail_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			err := ErrPayloadTooLarge.WithDetail("filename", fmt.Sprintf("file-%d.png", n)).
				WithDetail("size", int64(n))
			assert.Len(t, err.Details, 2)
		}(i)
	}
	wg.Wait()

	assert.Empty(t, ErrPayloadTooLarge.Details)
}
