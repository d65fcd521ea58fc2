package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(Validation("bad input")))
	assert.Equal(t, KindConflict, KindOf(Conflict("taken")))
	assert.Equal(t, KindNotFound, KindOf(NotFound("missing")))
	assert.Equal(t, KindDependency, KindOf(Dependency("down", errors.New("boom"))))
	assert.Equal(t, KindRemoteWrite, KindOf(RemoteWrite("sftp", errors.New("boom"))))

	// 非本包错误不归类
	assert.Equal(t, Kind(0), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(0), KindOf(nil))
}

func TestKindOfWrapped(t *testing.T) {
	inner := Conflict("slug taken")
	wrapped := fmt.Errorf("create failed: %w", inner)

	// 经过 fmt.Errorf 包装后仍能识别分类
	assert.Equal(t, KindConflict, KindOf(wrapped))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Dependency("search down", cause)

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "search down")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestMessageWithoutCause(t *testing.T) {
	err := Validation("split_overlap 必须小于 split_length")
	assert.Equal(t, "split_overlap 必须小于 split_length", err.Error())
	assert.Nil(t, errors.Unwrap(err))
}
