package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap_KeepsInnermostCode(t *testing.T) {
	base := DataError("column FTHG is missing")
	err := Wrapf(fmt.Errorf("reading E0: %w", base), "competition %s", "E0")

	assert.Equal(t, CodeDataError, GetCode(err))
	assert.True(t, stderrors.Is(err, base))
	assert.Contains(t, err.Error(), "competition E0")
}

func TestWrap_PlainErrorBecomesInternal(t *testing.T) {
	err := Wrap(fmt.Errorf("boom"), "context")
	assert.Equal(t, CodeInternalError, GetCode(err))
	assert.Nil(t, Wrap(nil, "ignored"))
}

func TestWithCode(t *testing.T) {
	sentinel := fmt.Errorf("not here")
	err := WithCode(CodeNotFound, sentinel)
	assert.True(t, HasCode(err, CodeNotFound))
	assert.True(t, stderrors.Is(err, sentinel))

	recoded := WithCode(CodePersistenceError, SearchError("no family", sentinel))
	assert.Equal(t, CodePersistenceError, GetCode(recoded))
	assert.True(t, stderrors.Is(recoded, sentinel))
}

func TestGetCode_NonAppError(t *testing.T) {
	assert.Equal(t, "UNKNOWN", GetCode(fmt.Errorf("plain")))
	assert.False(t, IsAppError(fmt.Errorf("plain")))
}

func TestCancelled_UnwrapsContextError(t *testing.T) {
	err := Cancelled(context.DeadlineExceeded)
	assert.Equal(t, CodeCancelled, GetCode(err))
	assert.True(t, stderrors.Is(err, context.DeadlineExceeded))
}
