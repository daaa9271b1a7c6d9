// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, logging, metrics and debug introspection layer for chunkmux.
//
// Provides:
//   - Viper-backed configuration with env overrides and validation
//   - Runtime config store with reload listeners
//   - zap logger construction with lumberjack file rotation
//   - Prometheus pool and channel telemetry
//   - Probe registry with CBOR state export
package control
