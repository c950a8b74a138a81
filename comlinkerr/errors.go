// Package comlinkerr is the structured error taxonomy: every error the
// runtime returns implements Error, exposing a Kind, an optional AST
// path/source location, and short/long user-facing formatting. Modeled
// as a tagged sum (one concrete type per kind, dispatched by type switch)
// rather than a class hierarchy, per the interpreter's own tagged-variant
// discipline.
package comlinkerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind names one of the exhaustive error categories.
type Kind string

const (
	KindConfiguration  Kind = "configuration"
	KindBinding        Kind = "binding"
	KindInterpretation Kind = "interpretation"
	KindHTTP           Kind = "http"
	KindMapped         Kind = "mapped"
	KindValidation     Kind = "validation"
	KindExecution      Kind = "execution"
)

// Error is the common interface every taxonomy member satisfies, on top
// of the standard error interface.
type Error interface {
	error
	Kind() Kind
	FormatShort() string
	FormatLong() string
}

// Location is an optional Comlink Map AST source position, attached to
// errors raised while walking a map.
type Location struct {
	Line   int
	Column int
}

func (l *Location) String() string {
	if l == nil {
		return ""
	}
	return fmt.Sprintf("%d:%d", l.Line, l.Column)
}

// base carries the fields common to every taxonomy member: the
// remediation hint shown by FormatLong, and the wrapped cause.
type base struct {
	kind     Kind
	message  string
	hint     string
	astPath  string
	location *Location
	cause    error
}

func (b *base) Kind() Kind { return b.kind }

func (b *base) Error() string { return b.FormatLong() }

func (b *base) Unwrap() error { return b.cause }

func (b *base) FormatShort() string {
	if b.astPath != "" {
		return fmt.Sprintf("%s: %s (at %s)", b.kind, b.message, b.astPath)
	}
	return fmt.Sprintf("%s: %s", b.kind, b.message)
}

func (b *base) FormatLong() string {
	var sb strings.Builder
	sb.WriteString(b.FormatShort())
	if b.location != nil {
		sb.WriteString(fmt.Sprintf("\n  at %s", b.location.String()))
	}
	if b.cause != nil {
		sb.WriteString(fmt.Sprintf("\n  caused by: %s", b.cause.Error()))
	}
	if b.hint != "" {
		sb.WriteString(fmt.Sprintf("\n  Hint: %s", b.hint))
	}
	return sb.String()
}

// --- Configuration ---------------------------------------------------

// ConfigurationError covers missing/invalid super-config, unconfigured
// profile/provider, version mismatch, unsupported file extension.
type ConfigurationError struct{ base }

func NewConfigurationError(message, hint string) *ConfigurationError {
	return &ConfigurationError{base{kind: KindConfiguration, message: message, hint: hint}}
}

// NewUsecaseNotFoundError reports a use-case name that the bound map
// document does not declare; UseCase.Perform raises it when it runs.
func NewUsecaseNotFoundError(name string) *ConfigurationError {
	return NewConfigurationError(
		fmt.Sprintf("use-case %q is not declared in this profile", name),
		"check the profile document for the exact use-case name",
	)
}

// --- Binding -----------------------------------------------------------

// BindingError covers registry call failure, invalid provider JSON,
// missing map in a bind response.
type BindingError struct{ base }

func NewBindingError(message string, cause error) *BindingError {
	return &BindingError{base{kind: KindBinding, message: message, cause: cause}}
}

// --- Interpretation ------------------------------------------------------

// InterpretationKind distinguishes the three Interpretation sub-kinds.
type InterpretationKind string

const (
	MapASTErrorKind     InterpretationKind = "MapASTError"
	JessieErrorKind     InterpretationKind = "JessieError"
	UnexpectedErrorKind InterpretationKind = "UnexpectedError"
)

// InterpretationError wraps a failure raised while walking the Map AST.
// ASTPath is filled in through SetASTPath: the interpreter's driver
// resolves it with mapast.FindPath (a depth-first search from the
// document root to the offending node) before the error leaves Run.
type InterpretationError struct {
	base
	Sub      InterpretationKind
	Node     any // the offending AST node, for identity-based path resolution
	resolved bool
}

func (e *InterpretationError) FormatShort() string {
	if e.astPath != "" {
		return fmt.Sprintf("%s: %s (at %s)", e.Sub, e.message, e.astPath)
	}
	return fmt.Sprintf("%s: %s", e.Sub, e.message)
}

// SetASTPath records the resolved AST path, idempotently.
func (e *InterpretationError) SetASTPath(path string) {
	e.astPath = path
	e.resolved = true
}

// ASTPath returns the path resolved so far (empty if never resolved).
func (e *InterpretationError) ASTPath() string { return e.astPath }

func newInterpretationError(sub InterpretationKind, message string, node any, cause error) *InterpretationError {
	return &InterpretationError{
		base: base{kind: KindInterpretation, message: message, cause: cause},
		Sub:  sub,
		Node: node,
	}
}

func NewMapASTError(message string, node any) *InterpretationError {
	return newInterpretationError(MapASTErrorKind, message, node, nil)
}

func NewJessieError(message string, node any, cause error) *InterpretationError {
	return newInterpretationError(JessieErrorKind, message, node, cause)
}

func NewUnexpectedError(message string, node any) *InterpretationError {
	return newInterpretationError(UnexpectedErrorKind, message, node, nil)
}

// NewUnexpectedErrorWithCause is NewUnexpectedError plus a preserved
// cause. Used where the underlying error (e.g. a transport failure
// surfaced through the Fetch collaborator) must survive unwrap-able for
// classification further up the stack, as failurepolicy's FailureReason
// taxonomy does.
func NewUnexpectedErrorWithCause(message string, node any, cause error) *InterpretationError {
	return newInterpretationError(UnexpectedErrorKind, message, node, cause)
}

// --- Execution -----------------------------------------------------------

// ExecutionError covers HTTP-engine request-construction failures that
// are caller/execution mistakes rather than interpreter invariant
// violations: a missing URL path parameter, an unsupported content-type,
// a header/query/ApiKey value that isn't a scalar where one is required,
// or a security scheme id/value mismatch against the provider's declared
// schemes. Named SDKExecutionError in the error taxonomy (§7) to keep it
// distinct from UnexpectedError, which is reserved for invariant
// violations in the interpreter itself.
type ExecutionError struct{ base }

func NewExecutionError(message string) *ExecutionError {
	return &ExecutionError{base{kind: KindExecution, message: message}}
}

// --- HTTP --------------------------------------------------------------

// HTTPError is an unhandled HTTP response: no response handler matched
// and the status indicated failure.
type HTTPError struct {
	base
	StatusCode      int
	RequestDebug    map[string]any
	ResponseBody    any
	ResponseHeaders map[string][]string
}

func NewHTTPError(statusCode int, requestDebug map[string]any, body any, headers map[string][]string) *HTTPError {
	return &HTTPError{
		base:            base{kind: KindHTTP, message: fmt.Sprintf("unhandled HTTP status %d", statusCode)},
		StatusCode:      statusCode,
		RequestDebug:    requestDebug,
		ResponseBody:    body,
		ResponseHeaders: headers,
	}
}

// MappedHTTPError is an error outcome reached while inside an HTTP
// response handler: it carries the status code plus map-author defined
// properties.
type MappedHTTPError struct {
	base
	StatusCode int
	Properties any
}

func NewMappedHTTPError(statusCode int, properties any) *MappedHTTPError {
	return &MappedHTTPError{
		base:       base{kind: KindHTTP, message: fmt.Sprintf("mapped error outcome under HTTP status %d", statusCode)},
		StatusCode: statusCode,
		Properties: properties,
	}
}

// --- Mapped --------------------------------------------------------------

// MappedError is a non-HTTP error outcome reached via an OutcomeStatement
// with isError set, carrying the map-author defined properties.
type MappedError struct {
	base
	Properties any
}

func NewMappedError(properties any) *MappedError {
	return &MappedError{
		base:       base{kind: KindMapped, message: "mapped error outcome"},
		Properties: properties,
	}
}

// --- Validation ----------------------------------------------------------

// ValidationIssue is one structured validation complaint.
type ValidationIssue struct {
	Kind    string
	Context map[string]any // path, expected?, actual?, ...
}

// InputValidationError reports profile-parameter-validator failures on
// the input to a use-case.
type InputValidationError struct {
	base
	Issues []ValidationIssue
}

func NewInputValidationError(issues []ValidationIssue) *InputValidationError {
	return &InputValidationError{
		base:   base{kind: KindValidation, message: fmt.Sprintf("input validation failed (%d issue(s))", len(issues))},
		Issues: issues,
	}
}

// ResultValidationError reports profile-parameter-validator failures on
// a use-case's result.
type ResultValidationError struct {
	base
	Issues []ValidationIssue
}

func NewResultValidationError(issues []ValidationIssue) *ResultValidationError {
	return &ResultValidationError{
		base:   base{kind: KindValidation, message: fmt.Sprintf("result validation failed (%d issue(s))", len(issues))},
		Issues: issues,
	}
}

// --- helpers ---------------------------------------------------------

// As is a thin convenience wrapper over errors.As for taxonomy members.
func As[T error](err error) (T, bool) {
	var target T
	ok := errors.As(err, &target)
	return target, ok
}

// WithLocation attaches a source location, returning e for chaining.
func WithLocation[T interface{ setLocation(*Location) }](e T, loc *Location) T {
	e.setLocation(loc)
	return e
}

func (b *base) setLocation(loc *Location) { b.location = loc }
