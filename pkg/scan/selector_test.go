package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmsprobe/cmsprobe/pkg/profile"
)

func TestParseSelector(t *testing.T) {
	t.Parallel()

	sel, err := ParseSelector("a")
	require.NoError(t, err)
	assert.Equal(t, All(), sel)

	sel, err = ParseSelector("vp")
	require.NoError(t, err)
	assert.True(t, sel.Version)
	assert.True(t, sel.Plugins)
	assert.False(t, sel.Themes)
	assert.False(t, sel.Interesting)

	_, err = ParseSelector("vx")
	assert.ErrorIs(t, err, ErrInvalidSelector)
}

func TestSelector_For(t *testing.T) {
	t.Parallel()

	joomla, err := profile.Get("joomla")
	require.NoError(t, err)

	sel, err := All().For(joomla)
	require.NoError(t, err)
	assert.True(t, sel.Version)
	assert.False(t, sel.Plugins, "unsupported enumerations are dropped from 'all'")
	assert.False(t, sel.Themes)

	sel, err = Selector{}.For(joomla)
	require.NoError(t, err)
	assert.True(t, sel.Version, "zero selector means all")

	explicit, err := ParseSelector("p")
	require.NoError(t, err)
	_, err = explicit.For(joomla)
	assert.ErrorIs(t, err, ErrUnsupported)
}
