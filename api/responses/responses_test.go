package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/hartwellgoods/storefront-backend/pkg/errors"
	"github.com/hartwellgoods/storefront-backend/pkg/types"
)

func TestWriteSuccessWrapsData(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteSuccess(rec, map[string]string{"status": "ok"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var envelope types.SuccessEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	data := envelope.Data.(map[string]any)
	assert.Equal(t, "ok", data["status"])
}

func TestWriteErrorMapsCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
	}{
		{
			"validation exposes its message",
			pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive"),
			http.StatusBadRequest, "VALIDATION_ERROR", "quantity must be positive",
		},
		{
			"not found exposes its message",
			pkgerrors.New(pkgerrors.CodeNotFound, "cart not found"),
			http.StatusNotFound, "NOT_FOUND", "cart not found",
		},
		{
			"dependency hides internals behind the public message",
			pkgerrors.New(pkgerrors.CodeDependency, "dial tcp: connection refused"),
			http.StatusBadGateway, "DEPENDENCY_ERROR", "commerce backend unavailable",
		},
		{
			"untyped errors become internal",
			errors.New("boom"),
			http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(context.Background(), nil, rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)

			var envelope types.ErrorEnvelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
			assert.Equal(t, tt.wantCode, envelope.Error.Code)
			assert.Equal(t, tt.wantMessage, envelope.Error.Message)
		})
	}
}

func TestWriteErrorIncludesAllowedDetails(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
		WithDetails(map[string]string{"quantity": "must be at least 1"})
	WriteError(context.Background(), nil, rec, err)

	var envelope types.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	details := envelope.Error.Details.(map[string]any)
	assert.Equal(t, "must be at least 1", details["quantity"])
}
