package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:     http.StatusBadRequest,
		KindForbidden:      http.StatusForbidden,
		KindForbiddenOwner: http.StatusForbidden,
		KindNotFound:       http.StatusNotFound,
		KindConflict:       http.StatusConflict,
		KindIntegrity:      http.StatusInternalServerError,
		KindDependency:     http.StatusServiceUnavailable,
		KindInternal:       http.StatusInternalServerError,
		Kind("bogus"):      http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.HTTPStatus(), "kind %s", kind)
	}
}

func TestIsMatchesByCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", Conflict(CodeBuildInFlight, "Campaign is already being built"))

	assert.True(t, errors.Is(err, &Error{Code: CodeBuildInFlight}))
	assert.False(t, errors.Is(err, &Error{Code: CodeBuildAlreadyBuilt}))
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, CodeBuildInFlight, CodeOf(err))
}

func TestForeignErrorsAreInternal(t *testing.T) {
	err := errors.New("disk on fire")
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, CodeInternal, CodeOf(err))
}

func TestDependencyKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Dependency(CodeInferenceDispatch, "Build service unavailable", cause)

	require.ErrorIs(t, err, cause)
	assert.True(t, err.Kind.Retryable())
	assert.Contains(t, err.Error(), "connection refused")
}

func TestWithMetadataCopies(t *testing.T) {
	base := Validation(CodeBuildMissingImages, "missing")
	withCat := base.WithMetadata("category", "person")

	assert.Nil(t, base.Metadata)
	assert.Equal(t, "person", withCat.Metadata["category"])
}
