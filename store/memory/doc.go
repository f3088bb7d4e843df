// Package memory provides in-process implementations of the authshield user
// store and security event log. They back tests and single-node
// development servers; state is lost on restart.
package memory
