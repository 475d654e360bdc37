// Package ipc frames the ProcessMessage envelope exchanged between the
// Master and each Worker it spawns: one newline-delimited JSON object
// per message over the Worker's stdout pipe, plus a control pipe the
// Master writes stop commands to.
package ipc
