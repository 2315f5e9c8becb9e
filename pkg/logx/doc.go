// Package logx provides checksumd's structured logging on top of zerolog.
//
// Sinks are config-driven and hot-swappable at runtime:
//   - Console (human-friendly pretty output)
//   - File (JSON lines)
//
// Loggers obtained from a Service stay live across Apply() calls, so a
// config reload changes levels and outputs without re-plumbing loggers.
package logx
