// Package emoji provides symbol constants for CLI output.
// These symbols keep status columns and messages consistent across commands.
package emoji

const (
	// Success marks a resolved query or a completed operation.
	Success = "✓"

	// Error marks a failed query or a missing required setting.
	Error = "✗"

	// Stop marks a shutdown.
	Stop = "✗"

	// Warning marks a partial result or a non-critical issue.
	Warning = "!"

	// Info marks informational messages.
	Info = "i"
)
