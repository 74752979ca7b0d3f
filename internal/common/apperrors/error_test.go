package apperrors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorChains(t *testing.T) {
	base := New("base error")
	assert.Equal(t, "base error", base.Error())
	assert.ErrorIs(t, base, base)

	derived := base.New("derived error")
	assert.Equal(t, "derived error", derived.Error())
	assert.ErrorIs(t, derived, base)

	other := New("other error")
	wrapped := derived.Err(other)
	assert.Equal(t, "derived error", wrapped.Error())
	assert.ErrorIs(t, wrapped, base)
	assert.ErrorIs(t, wrapped, other)

	goerr := errors.New("io failure")
	wrapped = derived.MsgErr("query failed", goerr)
	assert.Equal(t, "query failed", wrapped.Error())
	assert.ErrorIs(t, wrapped, base)
	assert.ErrorIs(t, wrapped, goerr)
}

// Modifiers must not touch the value they are called on; sentinel errors are
// shared across goroutines.
func TestModifiersDoNotMutateSentinels(t *testing.T) {
	sentinel := New("sentinel").SetStatusCode(http.StatusConflict)

	customized := sentinel.Msg("row already updated").Suffix("connection c1")
	assert.Equal(t, "sentinel", sentinel.Error())
	assert.Equal(t, "row already updated: connection c1", customized.Error())
	assert.ErrorIs(t, customized, sentinel)
	assert.Equal(t, http.StatusConflict, customized.StatusCode())
}

func TestStatusCodeInheritance(t *testing.T) {
	base := New("store error").SetStatusCode(http.StatusInternalServerError)
	derived := base.New("not found").SetStatusCode(http.StatusNotFound)

	assert.Equal(t, http.StatusInternalServerError, base.StatusCode())
	assert.Equal(t, http.StatusNotFound, derived.StatusCode())
	assert.Equal(t, http.StatusInternalServerError, base.New("child").StatusCode())
	assert.ErrorIs(t, derived, base)
}

func TestErrorAllExpansion(t *testing.T) {
	base := New("publish failed")
	wrapped := base.Err(errors.New("attempt 1"), errors.New("attempt 2"))

	assert.Equal(t, "publish failed", wrapped.ErrorAll())

	expanded := wrapped.SetExpandError(true)
	assert.Equal(t, "publish failed: attempt 1; attempt 2", expanded.ErrorAll())

	prefixed := expanded.Prefix("emitter")
	assert.Equal(t, "emitter: publish failed: attempt 1; attempt 2", prefixed.ErrorAll())
}
