package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daya-auto/carsale/internal/shared"
)

func TestRespondErrorMapsDomainErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("get: %w", shared.ErrNotFound), http.StatusNotFound},
		{shared.ErrForbidden, http.StatusForbidden},
		{shared.ErrConflict, http.StatusConflict},
		{ErrUnauthorized, http.StatusUnauthorized},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
	}
}

func TestRespondErrorIncludesFieldErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, shared.NewValidationError(map[string]string{"brand": "brand is required"}))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "brand is required", body.Errors["brand"])
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Brand string `json:"brand"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"brand":"Toyota","oops":1}`))
	err := DecodeJSON(httptest.NewRecorder(), req, &target)
	_, ok := shared.AsValidation(err)
	assert.True(t, ok)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"brand":"Toyota"}`))
	require.NoError(t, DecodeJSON(httptest.NewRecorder(), req, &target))
	assert.Equal(t, "Toyota", target.Brand)
}
