package override

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/9138noms/NuclearOption-VehicleControl/internal/override"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
