// Package errors holds the build error model shared by every pipeline: a
// BuildError describes one failed transform of one file, an ErrorCollector
// keeps the latest failures per pipeline, and a Reporter surfaces them
// through the non-fatal notification channel.
package errors

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// BuildError is one failed transform of one file. Line and Column are
// 1-based and zero when the tool gave no position.
type BuildError struct {
	Pipeline  string
	File      string
	Line      int
	Column    int
	Message   string
	Timestamp time.Time
	Cause     error
}

// NewBuildError wraps cause as a failure of file in pipeline.
func NewBuildError(pipeline, file string, cause error) *BuildError {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &BuildError{
		Pipeline:  pipeline,
		File:      file,
		Message:   msg,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// Error renders "pipeline: file:line:col: message", dropping the parts that
// are unknown.
func (be *BuildError) Error() string {
	loc := be.File
	if be.Line > 0 {
		loc = fmt.Sprintf("%s:%d:%d", be.File, be.Line, be.Column)
	}
	if loc == "" {
		return be.Pipeline + ": " + be.Message
	}
	return be.Pipeline + ": " + loc + ": " + be.Message
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (be *BuildError) Unwrap() error {
	return be.Cause
}

// ErrorCollector keeps the failures of the most recent run of each pipeline.
// Each run of a pipeline starts by resetting that pipeline's entries only.
type ErrorCollector struct {
	byPipeline map[string][]BuildError
	mutex      sync.RWMutex
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		byPipeline: make(map[string][]BuildError),
	}
}

// Add adds a build error to the collector
func (ec *ErrorCollector) Add(err BuildError) {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	if err.Timestamp.IsZero() {
		err.Timestamp = time.Now()
	}
	ec.byPipeline[err.Pipeline] = append(ec.byPipeline[err.Pipeline], err)
}

// Reset drops the entries recorded for pipeline.
func (ec *ErrorCollector) Reset(pipeline string) {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	delete(ec.byPipeline, pipeline)
}

// GetErrors returns all collected build errors ordered by pipeline then time.
func (ec *ErrorCollector) GetErrors() []BuildError {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()

	names := make([]string, 0, len(ec.byPipeline))
	for name := range ec.byPipeline {
		names = append(names, name)
	}
	sort.Strings(names)

	var result []BuildError
	for _, name := range names {
		result = append(result, ec.byPipeline[name]...)
	}
	return result
}

// GetErrorsByFile returns errors for a specific file
func (ec *ErrorCollector) GetErrorsByFile(file string) []BuildError {
	var fileErrors []BuildError
	for _, err := range ec.GetErrors() {
		if err.File == file {
			fileErrors = append(fileErrors, err)
		}
	}
	return fileErrors
}

// HasErrors returns true if there are any errors
func (ec *ErrorCollector) HasErrors() bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	for _, errs := range ec.byPipeline {
		if len(errs) > 0 {
			return true
		}
	}
	return false
}
