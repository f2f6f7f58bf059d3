package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCalculationID(t *testing.T) {
	a := NewCalculationID()
	b := NewCalculationID()

	assert.True(t, strings.HasPrefix(a, "taxcalc_"))
	assert.NotEqual(t, a, b)
	require.NoError(t, ValidateCalculationID(a))
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse("")
	assert.Error(t, err)

	_, err = Parse("not a typeid")
	assert.Error(t, err)
}

func TestValidateCalculationID_WrongPrefix(t *testing.T) {
	other := New("invoice")
	err := ValidateCalculationID(other)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "taxcalc")
}
