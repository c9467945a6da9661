package telemetry

import (
	"context"
	"testing"

	"diagdesk/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestSetup_DisabledWithoutEndpoint(t *testing.T) {
	logger := zerolog.Nop()
	shutdown := Setup(context.Background(), config.TracingConfig{}, config.AppConfig{Name: "diagdesk"}, &logger)
	assert.NoError(t, shutdown(context.Background()))
}
