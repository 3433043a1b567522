// Package log provides the storage engine's structured logger, a thin
// wrapper over zerolog with per-component child loggers (WithComponent,
// WithShard, WithSindex).
package log
