package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, KindValidation.Status())
	assert.Equal(t, http.StatusForbidden, KindForbidden.Status())
	assert.Equal(t, http.StatusConflict, KindInvalidState.Status())
	assert.Equal(t, http.StatusConflict, KindAlreadyUpvoted.Status())
	assert.Equal(t, http.StatusNotFound, KindNotFound.Status())
	assert.Equal(t, http.StatusInternalServerError, Kind("other").Status())
}

func TestKindOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("assign: %w", InvalidState("grievance is %s", "closed"))

	assert.Equal(t, KindInvalidState, KindOf(err))
	assert.True(t, IsKind(err, KindInvalidState))
	assert.False(t, IsKind(err, KindNotFound))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, "assign: grievance is closed", err.Error())
}

func TestErrorsIs_MatchesKindAndOptionalMessage(t *testing.T) {
	err := fmt.Errorf("wrap: %w", NotFound("grievance"))

	assert.ErrorIs(t, err, &Error{Kind: KindNotFound})
	assert.ErrorIs(t, err, &Error{Kind: KindNotFound, Message: "grievance not found"})
	assert.NotErrorIs(t, err, &Error{Kind: KindNotFound, Message: "user not found"})
	assert.NotErrorIs(t, err, &Error{Kind: KindForbidden})
	assert.ErrorIs(t, AlreadyUpvoted(), &Error{Kind: KindAlreadyUpvoted})
}
