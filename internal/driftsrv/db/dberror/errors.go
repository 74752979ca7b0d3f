package dberror

import (
	"net/http"

	"github.com/driftline/driftline-internal/internal/common/apperrors"
)

var (
	ErrDatabase          apperrors.Error = apperrors.New("db error").SetStatusCode(http.StatusInternalServerError)
	ErrAlreadyExists     apperrors.Error = ErrDatabase.New("already exists").SetStatusCode(http.StatusConflict)
	ErrNotFound          apperrors.Error = ErrDatabase.New("not found").SetStatusCode(http.StatusNotFound)
	ErrInvalidInput      apperrors.Error = ErrDatabase.New("invalid input").SetStatusCode(http.StatusBadRequest)
	ErrInvalidConnection apperrors.Error = ErrDatabase.New("invalid connection").SetStatusCode(http.StatusBadRequest)
	ErrMissingTenantID   apperrors.Error = ErrInvalidInput.New("missing tenant ID").SetStatusCode(http.StatusBadRequest)
	ErrConflict          apperrors.Error = ErrDatabase.New("conflicting state transition").SetStatusCode(http.StatusConflict)
)
