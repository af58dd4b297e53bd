package healthcheck

import (
	"github.com/bidhaus/goapi/base/ctx"
)

// HealthCheckRepo probes the backing stores
type HealthCheckRepo interface {
	PingDB(c ctx.Ctx) error
}

// HealthCheckUsecase represent the healthcheck's usecase
type HealthCheckUsecase interface {
	Check(c ctx.Ctx) error
}
