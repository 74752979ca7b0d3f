package schema

import (
	"net/http"

	"github.com/driftline/driftline-internal/internal/common/apperrors"
)

var (
	ErrInvalidSnapshot apperrors.Error = apperrors.New("invalid schema snapshot").SetStatusCode(http.StatusBadRequest)
	ErrEmptySnapshot   apperrors.Error = ErrInvalidSnapshot.New("snapshot has no fields")
	ErrDuplicateField  apperrors.Error = ErrInvalidSnapshot.New("duplicate field name")
	ErrUnknownType     apperrors.Error = ErrInvalidSnapshot.New("unknown field type")
	ErrSerialization   apperrors.Error = apperrors.New("unable to serialize snapshot").SetStatusCode(http.StatusInternalServerError)
)
