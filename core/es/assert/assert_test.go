package assert

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssert(t *testing.T) {
	mustBeTrue := True(true, "must be true")
	require.True(t, mustBeTrue.Eval())
	require.NoError(t, mustBeTrue.Check())
	require.Equal(t, "must be true", mustBeTrue.String())

	mustBeFalse := False(false, "must be false")
	require.True(t, mustBeFalse.Eval())
	require.NoError(t, mustBeFalse.Check())
	require.Equal(t, "must be false", mustBeFalse.String())

	require.NoError(t, All(mustBeTrue, mustBeFalse).Check())

	require.Error(t, All(mustBeTrue, mustBeFalse, newCond("foo", func() bool {
		return false
	})).Check())

	require.Error(t, Not(mustBeTrue).Check())
	require.NoError(t, Not(newCond("foo", func() bool { return false })).Check())
}

func TestAssert_Equal(t *testing.T) {
	require.NoError(t, Equal("open", "open", "status").Check())
	require.Error(t, Equal("closed", "open", "status").Check())
	require.Contains(t, Equal("closed", "open", "status").String(), "want open")
}

func TestAssert_NotEmpty(t *testing.T) {
	require.NoError(t, NotEmpty("x", "subject").Check())
	require.Error(t, NotEmpty("", "subject").Check())
}
