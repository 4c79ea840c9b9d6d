package models_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/houseofcat/rabbitreader/models"
	"github.com/stretchr/testify/assert"
)

func TestReaderErrorMatchesItsKindOnly(t *testing.T) {

	err := models.NewTimeoutError("getNextRecord", context.DeadlineExceeded)

	assert.True(t, errors.Is(err, models.ErrTimeout))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, errors.Is(err, models.ErrConnection))
	assert.Equal(t, models.TimeoutError, models.KindOf(err))
}

func TestReaderErrorSurvivesWrapping(t *testing.T) {

	err := fmt.Errorf("outer: %w", models.NewConnectionError("dial", errors.New("refused")))

	assert.True(t, errors.Is(err, models.ErrConnection))
	assert.Equal(t, models.ConnectionError, models.KindOf(err))
	assert.Equal(t, models.ErrorKind(0), models.KindOf(errors.New("plain")))
}

func TestConfigurationErrorNamesKey(t *testing.T) {

	err := models.NewConfigurationError("vhost", "is required")

	assert.Equal(t, "vhost", err.Key)
	assert.Contains(t, err.Error(), "vhost")
	assert.Contains(t, err.Error(), "ConfigurationError")
}

func TestDecodeErrorKeepsBody(t *testing.T) {

	body := []byte(`[{"invoice":"INV-7","amount":100}]`)
	err := fmt.Errorf("outer: %w", models.NewDecodeError("getNextRecord", errors.New("payload is not a JSON object"), body))

	kept, ok := models.BodyOf(err)
	assert.True(t, ok)
	assert.Equal(t, body, kept)
	assert.NotContains(t, err.Error(), "INV-7")

	_, ok = models.BodyOf(models.NewTimeoutError("getNextRecord", context.Canceled))
	assert.False(t, ok)
}
