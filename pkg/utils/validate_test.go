package utils

import (
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Source string `json:"source" validate:"required"`
	Weight int    `json:"weight" validate:"gte=0"`
}

func TestValidate(t *testing.T) {
	_, err := Validate(sample{Source: "dnb", Weight: 1})
	assert.NoError(t, err)

	_, err = Validate(sample{Weight: -1})
	require.Error(t, err)
	assert.True(t, httperror.IsHTTPError(err))
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))

	msg := ValidationErrorToString(validate.Struct(sample{Weight: -1})).Error()
	assert.Contains(t, msg, "field 'Source' failed rule 'required'")
	assert.Contains(t, msg, "field 'Weight' failed rule 'gte=0'")
}
