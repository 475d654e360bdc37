// Package logging provides JSON structured logging with rotation for
// the Master and Worker processes. Every process, whether daemonized
// or run in the foreground, writes to ~/.docanalyzer/logs/.
package logging
