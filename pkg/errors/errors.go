// Package errors implements the structured error taxonomy of spec.md §7:
// seven error kinds, each with its own propagation policy.
package errors

import (
	"fmt"
	"runtime"
	"time"
)

// Kind is one of the seven error kinds from spec.md §7.
type Kind string

const (
	// KindTransientIngress covers buffer-full/adapter-timeout: drop with
	// a metric increment, retry at the source.
	KindTransientIngress Kind = "transient_ingress"
	// KindProtocol covers non-contiguous update ids: local recovery via
	// resync, the book is marked inconsistent.
	KindProtocol Kind = "protocol"
	// KindValidationSoft covers crossed books, extreme spreads: logged
	// and forwarded, never rejected.
	KindValidationSoft Kind = "validation_soft"
	// KindValidationHard covers unsortable prices, NaN-equivalents: the
	// book is dropped with a metric.
	KindValidationHard Kind = "validation_hard"
	// KindResource covers cache-write failures: degrade to a lower
	// level, log.
	KindResource Kind = "resource"
	// KindConfig covers invalid config schema: reject the reload, keep
	// the old config.
	KindConfig Kind = "config"
	// KindInternal covers channel-closed/pool-poisoned: fatal, triggers
	// graceful shutdown.
	KindInternal Kind = "internal"
)

// Severity is an error's operational urgency.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// defaultSeverity maps each kind to the severity an operator should assume
// absent an explicit override.
var defaultSeverity = map[Kind]Severity{
	KindTransientIngress: SeverityLow,
	KindProtocol:         SeverityMedium,
	KindValidationSoft:   SeverityLow,
	KindValidationHard:   SeverityMedium,
	KindResource:         SeverityHigh,
	KindConfig:           SeverityHigh,
	KindInternal:         SeverityCritical,
}

// PipelineError is the structured error type carried through every
// component boundary in this repo.
type PipelineError struct {
	Kind      Kind
	Code      string
	Message   string
	Details   map[string]interface{}
	Severity  Severity
	Timestamp time.Time
	File      string
	Line      int
	Function  string
	Cause     error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s/%s] %s: %s (caused by: %v)", e.Kind, e.Code, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s/%s] %s: %s", e.Kind, e.Code, e.Severity, e.Message)
}

// Unwrap returns the underlying cause.
func (e *PipelineError) Unwrap() error { return e.Cause }

// WithDetail attaches a diagnostic detail and returns the error for chaining.
func (e *PipelineError) WithDetail(key string, value interface{}) *PipelineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Retryable reports whether the propagation policy for this kind permits a
// retry at the source (spec.md §7).
func (e *PipelineError) Retryable() bool {
	return e.Kind == KindTransientIngress
}

// New creates a PipelineError, capturing the caller's file/line/function.
func New(kind Kind, code, message string) *PipelineError {
	return newWithSkip(2, kind, code, message, nil)
}

// Newf creates a PipelineError with a formatted message.
func Newf(kind Kind, code, format string, args ...interface{}) *PipelineError {
	return newWithSkip(2, kind, code, fmt.Sprintf(format, args...), nil)
}

// Wrap wraps an existing error under the pipeline taxonomy. Returns nil if
// err is nil, so call sites can do `return errors.Wrap(err, ...)` freely.
func Wrap(err error, kind Kind, code, message string) *PipelineError {
	if err == nil {
		return nil
	}
	return newWithSkip(2, kind, code, message, err)
}

// Wrapf wraps an existing error with a formatted message.
func Wrapf(err error, kind Kind, code, format string, args ...interface{}) *PipelineError {
	if err == nil {
		return nil
	}
	return newWithSkip(2, kind, code, fmt.Sprintf(format, args...), err)
}

func newWithSkip(skip int, kind Kind, code, message string, cause error) *PipelineError {
	pc, file, line, _ := runtime.Caller(skip)
	fn := runtime.FuncForPC(pc)
	var funcName string
	if fn != nil {
		funcName = fn.Name()
	}
	sev, ok := defaultSeverity[kind]
	if !ok {
		sev = SeverityMedium
	}
	return &PipelineError{
		Kind:      kind,
		Code:      code,
		Message:   message,
		Severity:  sev,
		Timestamp: time.Now(),
		File:      file,
		Line:      line,
		Function:  funcName,
		Cause:     cause,
	}
}

// Is reports whether err's chain contains a PipelineError of the given kind.
func Is(err error, kind Kind) bool {
	var pe *PipelineError
	if As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}

// As finds the first *PipelineError in err's chain and assigns it to target
// (which must be a **PipelineError).
func As(err error, target interface{}) bool {
	if err == nil {
		return false
	}
	if pe, ok := err.(*PipelineError); ok {
		if targetPtr, ok := target.(**PipelineError); ok {
			*targetPtr = pe
			return true
		}
	}
	if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
		return As(unwrapper.Unwrap(), target)
	}
	return false
}

// GetKind extracts the error kind, or "" if err is not a PipelineError.
func GetKind(err error) Kind {
	var pe *PipelineError
	if As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsRetryable reports whether the propagation policy for err's kind permits
// a retry at the source.
func IsRetryable(err error) bool {
	var pe *PipelineError
	if As(err, &pe) {
		return pe.Retryable()
	}
	return false
}

// IsFatal reports whether err should trigger a graceful shutdown
// (KindInternal, per §7).
func IsFatal(err error) bool {
	return GetKind(err) == KindInternal
}

// Common sentinel codes reused across components.
const (
	CodeBufferFull       = "BUFFER_FULL"
	CodeAdapterTimeout   = "ADAPTER_TIMEOUT"
	CodeNonContiguous    = "NON_CONTIGUOUS_UPDATE"
	CodeCrossedBook      = "CROSSED_BOOK"
	CodeUnsortablePrices = "UNSORTABLE_PRICES"
	CodeCacheWriteFailed = "CACHE_WRITE_FAILED"
	CodeInvalidSchema    = "INVALID_CONFIG_SCHEMA"
	CodeChannelClosed    = "CHANNEL_CLOSED"
	CodeDataUnavailable  = "DATA_UNAVAILABLE"
)

// DataUnavailable is returned by read queries instead of stale or partial
// results (spec.md §7 user-visible behavior).
func DataUnavailable(what string) *PipelineError {
	return New(KindResource, CodeDataUnavailable, "data unavailable: "+what)
}
