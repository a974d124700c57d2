// Package engineerrors defines the workflow engine's error taxonomy.
//
// Errors are distinguished by Code rather than by Go type so that callers
// across package boundaries (scheduler, connector, connectors, engine)
// can classify a failure with errors.As into one shared shape instead of a
// sprawl of sentinel values per package.
package engineerrors

import (
	"errors"
	"fmt"
)

// Code identifies the category of an engine error.
type Code string

const (
	CodeValidation     Code = "VALIDATION_ERROR"
	CodeConfiguration  Code = "CONFIGURATION_ERROR"
	CodeExecution      Code = "EXECUTION_ERROR"
	CodeSchemaConflict Code = "SCHEMA_CONFLICT_ERROR"
	CodeConnector      Code = "CONNECTOR_ERROR"
	CodeTimeout        Code = "TIMEOUT_ERROR"
	CodeCancellation   Code = "CANCELLATION_ERROR"
)

// Error is the single concrete error type backing the taxonomy in SPEC_FULL.md §7.
// NodeID and ConnectorID are optional context, set by whichever layer raised the error.
type Error struct {
	Code        Code
	NodeID      string
	ConnectorID string
	Message     string
	Cause       error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.NodeID != "" {
		msg = fmt.Sprintf("%s (node=%s)", msg, e.NodeID)
	}
	if e.ConnectorID != "" {
		msg = fmt.Sprintf("%s (connector=%s)", msg, e.ConnectorID)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, ErrTimeout) and friends match by code alone, ignoring
// the node/connector/cause payload, mirroring the sentinel-matching idiom the
// engine and graph packages already used before the taxonomy was unified.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// Sentinels usable with errors.Is for bare code comparisons.
var (
	ErrValidation     = &Error{Code: CodeValidation}
	ErrConfiguration  = &Error{Code: CodeConfiguration}
	ErrExecution      = &Error{Code: CodeExecution}
	ErrSchemaConflict = &Error{Code: CodeSchemaConflict}
	ErrConnector      = &Error{Code: CodeConnector}
	ErrTimeout        = &Error{Code: CodeTimeout}
	ErrCancellation   = &Error{Code: CodeCancellation}
)

// Validation creates a ValidationError.
func Validation(message string) *Error {
	return &Error{Code: CodeValidation, Message: message}
}

// Configuration creates a ConfigurationError, optionally attached to a node.
func Configuration(nodeID, message string) *Error {
	return &Error{Code: CodeConfiguration, NodeID: nodeID, Message: message}
}

// Execution wraps an error returned by a connector's configure/execute call.
func Execution(nodeID string, cause error) *Error {
	return &Error{Code: CodeExecution, NodeID: nodeID, Message: "connector execution failed", Cause: cause}
}

// SchemaConflict wraps a validateInputSchema failure.
func SchemaConflict(nodeID, message string) *Error {
	return &Error{Code: CodeSchemaConflict, NodeID: nodeID, Message: message}
}

// Connector wraps a factory-level failure for a connector id.
func Connector(connectorID string, cause error) *Error {
	return &Error{Code: CodeConnector, ConnectorID: connectorID, Message: "connector factory failed", Cause: cause}
}

// Timeout reports that the execution context's deadline was reached.
func Timeout(timeoutSeconds int) *Error {
	return &Error{Code: CodeTimeout, Message: fmt.Sprintf("execution exceeded timeout_seconds=%d", timeoutSeconds)}
}

// Cancellation reports that the caller cancelled the execution context.
func Cancellation() *Error {
	return &Error{Code: CodeCancellation, Message: "execution was cancelled"}
}

// As is a small convenience wrapper around errors.As for *Error.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
