package drift

import (
	"net/http"

	"github.com/driftline/driftline-internal/internal/common/apperrors"
)

var (
	ErrDrift             apperrors.Error = apperrors.New("drift classification error").SetStatusCode(http.StatusInternalServerError)
	ErrSuggestionFailed  apperrors.Error = ErrDrift.New("unable to obtain mapping suggestion").SetStatusCode(http.StatusBadGateway)
	ErrNoCatalogVersion  apperrors.Error = ErrDrift.New("connection has no catalog version").SetStatusCode(http.StatusConflict)
	ErrInvalidConnection apperrors.Error = ErrDrift.New("connection cannot accept observations").SetStatusCode(http.StatusConflict)
)
