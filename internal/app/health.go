// Package app provides application use cases.
package app

import (
	"context"

	"github.com/graaaaa/livekit-webhook-logger/internal/appinfo"
)

// HealthUsecase defines the health check use case.
type HealthUsecase interface {
	Handle(ctx context.Context) (HealthResult, error)
}

// HealthResult represents the health check response.
// It has exactly these two fields; load balancers compare it verbatim.
type HealthResult struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// HealthService implements HealthUsecase. It reports healthy whenever the
// process can answer, independent of the log or any outbound integration.
type HealthService struct{}

// Handle returns the constant health status.
func (HealthService) Handle(ctx context.Context) (HealthResult, error) {
	return HealthResult{
		Status:  "healthy",
		Service: appinfo.ServiceName,
	}, nil
}
