package errlog

import (
	"fmt"
	"sync"

	"github.com/golang/glog"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// ErrAborted is returned once a session gave up because errors were logged.
// The logged errors are wrapped into it, use errors.Is to test for it.
var ErrAborted = errors.New("aborting due to previous errors")

// ErrorLog collects the errors and warnings of one compilation session.
// It is safe for concurrent use.
type ErrorLog struct {
	mu       sync.Mutex
	Errors   []*Error
	Warnings []*Error
}

// ErrorCode ...
type ErrorCode int

const (
	// ErrorUnitCompile ...
	ErrorUnitCompile ErrorCode = 1 + iota
	// ErrorCacheCopy ...
	ErrorCacheCopy
	// ErrorAuxiliaryModule ...
	ErrorAuxiliaryModule
	// ErrorCopyPath ...
	ErrorCopyPath
	// ErrorBinaryOutputToTty ...
	ErrorBinaryOutputToTty
	// ErrorRemoveFile ...
	ErrorRemoveFile
	// ErrorWorkProduct ...
	ErrorWorkProduct
	// WarningIgnoringEmitPath ...
	WarningIgnoringEmitPath
	// WarningIgnoringOutput ...
	WarningIgnoringOutput
	// WarningUnsupportedOutput ...
	WarningUnsupportedOutput
	// WarningReuseMismatch ...
	WarningReuseMismatch
)

// Error ...
type Error struct {
	code ErrorCode
	args []string
}

// NewError ...
func NewError(code ErrorCode, args ...string) *Error {
	return &Error{code: code, args: args}
}

// NewErrorLog ...
func NewErrorLog() *ErrorLog {
	return &ErrorLog{}
}

// AddError ...
func (log *ErrorLog) AddError(code ErrorCode, args ...string) *Error {
	err := NewError(code, args...)
	log.mu.Lock()
	log.Errors = append(log.Errors, err)
	log.mu.Unlock()
	glog.V(1).Infof("error: %v", err.ToString())
	return err
}

// AddWarning ...
func (log *ErrorLog) AddWarning(code ErrorCode, args ...string) *Error {
	w := NewError(code, args...)
	log.mu.Lock()
	log.Warnings = append(log.Warnings, w)
	log.mu.Unlock()
	glog.Warning(w.ToString())
	return w
}

// ErrorCount returns the number of errors logged so far.
func (log *ErrorLog) ErrorCount() int {
	log.mu.Lock()
	defer log.mu.Unlock()
	return len(log.Errors)
}

// HasErrors ...
func (log *ErrorLog) HasErrors() bool {
	return log.ErrorCount() != 0
}

// Snapshot returns copies of the logged errors and warnings.
func (log *ErrorLog) Snapshot() (errs []*Error, warnings []*Error) {
	log.mu.Lock()
	defer log.mu.Unlock()
	return append([]*Error(nil), log.Errors...), append([]*Error(nil), log.Warnings...)
}

// AbortIfErrors returns nil if no error has been logged.
// Otherwise it returns ErrAborted carrying every logged error.
func (log *ErrorLog) AbortIfErrors() error {
	errs, _ := log.Snapshot()
	if len(errs) == 0 {
		return nil
	}
	var result *multierror.Error
	for _, e := range errs {
		result = multierror.Append(result, e)
	}
	return &abortError{cause: result}
}

// ToString ...
func (log *ErrorLog) ToString() string {
	errs, warnings := log.Snapshot()
	str := ""
	for _, w := range warnings {
		str += "warning: " + w.ToString() + "\n"
	}
	for _, e := range errs {
		str += "error: " + e.ToString() + "\n"
	}
	return str
}

type abortError struct {
	cause *multierror.Error
}

func (e *abortError) Error() string {
	return fmt.Sprintf("%v: %v", ErrAborted, e.cause.Error())
}

func (e *abortError) Unwrap() []error {
	return append([]error{ErrAborted}, e.cause.Errors...)
}

// Code ...
func (e *Error) Code() ErrorCode {
	return e.code
}

// IsWarning ...
func (e *Error) IsWarning() bool {
	return e.code >= WarningIgnoringEmitPath
}

// Error ...
func (e *Error) Error() string {
	return e.ToString()
}

// ToString ...
func (e *Error) ToString() string {
	switch e.code {
	case ErrorUnitCompile:
		return "Failed to compile codegen unit " + e.args[0] + ": " + e.args[1]
	case ErrorCacheCopy:
		return "Failed to reuse the cached artifacts of codegen unit " + e.args[0] + ": " + e.args[1]
	case ErrorAuxiliaryModule:
		return "Failed to emit the " + e.args[0] + " module: " + e.args[1]
	case ErrorCopyPath:
		return "Unable to copy " + e.args[0] + " to " + e.args[1] + ": " + e.args[2]
	case ErrorBinaryOutputToTty:
		return "Option `--emit=" + e.args[0] + "` requires a file path when stdout is a terminal, binary output to a tty is refused"
	case ErrorRemoveFile:
		return "Failed to remove " + e.args[0] + ": " + e.args[1]
	case ErrorWorkProduct:
		return "Failed to save the work product of codegen unit " + e.args[0] + ": " + e.args[1]
	case WarningIgnoringEmitPath:
		return "Ignoring emit path because multiple ." + e.args[0] + " files were produced"
	case WarningIgnoringOutput:
		return "Ignoring -o because multiple ." + e.args[0] + " files were produced"
	case WarningUnsupportedOutput:
		return "The " + e.args[0] + " backend cannot emit " + e.args[1] + " output, the request is ignored"
	case WarningReuseMismatch:
		return "Codegen unit " + e.args[0] + " was expected to be " + e.args[1] + " but was " + e.args[2]
	}
	panic("Should not happen")
}
