package telemetry

import (
	"context"
	"testing"

	"opd-token-allocation/config"

	"github.com/sirupsen/logrus"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown := Setup(context.Background(), config.TelemetryConfig{ServiceName: "opd"}, logrus.New())
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("expected no-op shutdown, got %v", err)
	}
}
