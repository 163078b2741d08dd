package view

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateResponse(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		resp := CreateResponse(map[string]int{"n": 1}, nil, nil, "ok")
		assert.Nil(t, resp.Error)
		assert.Equal(t, "ok", resp.Message)
		assert.Equal(t, 1, resp.Data["n"])
	})

	t.Run("plain error", func(t *testing.T) {
		resp := CreateResponse[any](nil, errors.New("boom"), nil, "failed")
		require.NotNil(t, resp.Error)
		assert.Equal(t, "boom", resp.Error.Message)
		assert.Empty(t, resp.Error.Fields)
	})

	t.Run("validation errors list fields", func(t *testing.T) {
		type request struct {
			UserID int64  `validate:"required,gt=0"`
			Chain  string `validate:"required"`
		}
		req := request{}
		err := validator.New().Struct(req)
		require.Error(t, err)

		resp := CreateResponse[any](nil, err, req, "invalid request")
		require.NotNil(t, resp.Error)
		assert.Equal(t, "validation failed", resp.Error.Message)
		assert.ElementsMatch(t, []FieldError{
			{Field: "user_id", Rule: "required"},
			{Field: "chain", Rule: "required"},
		}, resp.Error.Fields)
	})
}

func TestToSnakeCase(t *testing.T) {
	assert.Equal(t, "user_id", toSnakeCase("UserID"))
	assert.Equal(t, "chain", toSnakeCase("Chain"))
	assert.Equal(t, "tx_hash", toSnakeCase("TxHash"))
}
