package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestIs_MatchesSentinelByKind(t *testing.T) {
	err := fmt.Errorf("failed to debit: %w", InsufficientKarma("balance %d < cost %d", 10, 30))

	require.True(t, errors.Is(err, ErrInsufficientKarma))
	require.False(t, errors.Is(err, ErrConflict))
	require.Equal(t, KindInsufficientKarma, KindOf(err))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		Validation("bad"):              http.StatusBadRequest,
		Unauthorized("who"):            http.StatusUnauthorized,
		Forbidden("nope"):              http.StatusForbidden,
		NotFound("tier"):               http.StatusNotFound,
		InsufficientKarma("poor"):      http.StatusPaymentRequired,
		Conflict("dup"):                http.StatusConflict,
		errors.New("connection lost"): http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, HTTPStatus(err), err.Error())
	}
}

func TestFromStore(t *testing.T) {
	require.Nil(t, FromStore(nil, "x"))

	err := FromStore(gorm.ErrRecordNotFound, "chapter %d", 7)
	require.True(t, errors.Is(err, ErrNotFound))
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	err = FromStore(errors.New("UNIQUE constraint failed: chapter_unlocks.user_id"), "insert")
	require.True(t, errors.Is(err, ErrConflict))

	err = FromStore(gorm.ErrDuplicatedKey, "insert")
	require.True(t, errors.Is(err, ErrConflict))

	err = FromStore(errors.New("dial tcp: refused"), "load")
	require.Equal(t, KindUpstream, KindOf(err))

	orig := Forbidden("cross user")
	require.Same(t, orig, FromStore(orig, "ignored"))
}
