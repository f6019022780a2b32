package http

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/melih/lighthouse-sandbox/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind error
		want int
	}{
		{domain.ErrNotAuthenticated, http.StatusUnauthorized},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrInvalidArgument, http.StatusBadRequest},
		{domain.ErrPreconditionFailed, http.StatusConflict},
		{domain.ErrImageUnavailable, http.StatusNotFound},
		{domain.ErrRuntimeMissing, http.StatusGone},
		{domain.ErrRuntimeFailure, http.StatusBadGateway},
		{domain.ErrExecFailure, http.StatusInternalServerError},
		{errors.New("unclassified"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		err := domain.NewOpError("op", "c0001", tt.kind, nil)
		assert.Equal(t, tt.want, statusFor(err), tt.kind.Error())
	}
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("bearer  abc"))
	assert.Empty(t, bearerToken("Basic abc"))
	assert.Empty(t, bearerToken("Bearer"))
	assert.Empty(t, bearerToken(""))
}

func TestTruncateReason(t *testing.T) {
	assert.Equal(t, "short", truncateReason("short", maxCloseReason))

	ascii := strings.Repeat("a", 200)
	assert.Len(t, truncateReason(ascii, maxCloseReason), maxCloseReason)

	// 119 ASCII bytes followed by a three byte character straddling the limit.
	mixed := strings.Repeat("a", 119) + "€€"
	got := truncateReason(mixed, maxCloseReason)
	assert.True(t, utf8.ValidString(got), "%q", got)
	assert.Equal(t, strings.Repeat("a", 119), got)

	wide := strings.Repeat("€", 60)
	got = truncateReason(wide, maxCloseReason)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), maxCloseReason)
	assert.Len(t, got, 120)
}
