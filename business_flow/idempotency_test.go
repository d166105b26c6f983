package businessflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecipientIdempotencyKey(t *testing.T) {
	base := RecipientIdempotencyKey(1, "+989123456789", 7, []string{"h"}, []string{"a", "b"}, nil)

	assert.Len(t, base, 64)
	assert.Equal(t, base, RecipientIdempotencyKey(1, "+989123456789", 7, []string{"h"}, []string{"a", "b"}, nil))

	assert.NotEqual(t, base, RecipientIdempotencyKey(2, "+989123456789", 7, []string{"h"}, []string{"a", "b"}, nil))
	assert.NotEqual(t, base, RecipientIdempotencyKey(1, "+989123456780", 7, []string{"h"}, []string{"a", "b"}, nil))
	assert.NotEqual(t, base, RecipientIdempotencyKey(1, "+989123456789", 8, []string{"h"}, []string{"a", "b"}, nil))
	assert.NotEqual(t, base, RecipientIdempotencyKey(1, "+989123456789", 7, []string{"h"}, []string{"b", "a"}, nil))
	assert.NotEqual(t, base, RecipientIdempotencyKey(1, "+989123456789", 7, []string{"h"}, []string{"a", "b"}, []string{"u"}))
}

func TestRecipientIdempotencyKey_NoConcatenationCollision(t *testing.T) {
	a := RecipientIdempotencyKey(1, "+1", 1, nil, []string{"ab", "c"}, nil)
	b := RecipientIdempotencyKey(1, "+1", 1, nil, []string{"a", "bc"}, nil)
	c := RecipientIdempotencyKey(1, "+1", 1, []string{"ab"}, []string{"c"}, nil)
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}
