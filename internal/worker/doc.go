// Package worker drives one directory end-to-end through the
// Lock Manager, Scanner, Database View, Parser, and Chunking Manager,
// streaming progress and terminal status over ipc as it goes.
package worker
