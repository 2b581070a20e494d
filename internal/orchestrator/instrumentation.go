package orchestrator

import "go.opentelemetry.io/otel"

const scopeName = "github.com/xiaot623/gogo/medassist/internal/orchestrator"

var tracer = otel.Tracer(scopeName)
