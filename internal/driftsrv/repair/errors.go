package repair

import (
	"net/http"

	"github.com/driftline/driftline-internal/internal/common/apperrors"
)

var (
	ErrRepair         apperrors.Error = apperrors.New("repair error").SetStatusCode(http.StatusInternalServerError)
	ErrRepairInFlight apperrors.Error = ErrRepair.New("a repair is already in progress for this connection").SetStatusCode(http.StatusConflict)
	ErrRepairFailed   apperrors.Error = ErrRepair.New("failed to apply schema to live connection").SetStatusCode(http.StatusBadGateway)
	ErrNotApprovable  apperrors.Error = ErrRepair.New("drift event is not awaiting approval").SetStatusCode(http.StatusConflict)
	ErrNotFailed      apperrors.Error = ErrRepair.New("connection is not in a failed state").SetStatusCode(http.StatusConflict)
)
