// Package metrics registra as métricas Prometheus do gateway num registry
// próprio e expõe o handler de /metrics.
package metrics
