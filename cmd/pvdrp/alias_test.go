package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitAlias(t *testing.T) {
	name, seg, err := splitAlias("pv_1")
	assert.NoError(t, err)
	assert.Equal(t, "pv", name)
	assert.Equal(t, 1, seg)

	_, _, err = splitAlias("pv")
	assert.ErrorIs(t, err, ErrBadAlias)

	_, _, err = splitAlias("pv_")
	assert.ErrorIs(t, err, ErrBadAlias)

	_, _, err = splitAlias("pv_x")
	assert.ErrorIs(t, err, ErrBadAlias)
}

func TestParseKwargs(t *testing.T) {
	kwargs, err := parseKwargs([]string{"sim_length=10", "foo=bar=baz"})
	assert.NoError(t, err)
	assert.Equal(t, "10", kwargs["sim_length"])
	assert.Equal(t, "bar=baz", kwargs["foo"])

	_, err = parseKwargs([]string{"noequals"})
	assert.Error(t, err)
}
