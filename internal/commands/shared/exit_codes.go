// Copyright 2025 The Refinery Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package shared

import (
	"errors"
	"fmt"
	"os"

	refineryerrors "github.com/prooflab/refinery/pkg/errors"
)

// Exit codes for the refinery CLI
const (
	ExitSuccess       = 0
	ExitRunFailed     = 1
	ExitInvalidConfig = 2
	ExitMissingInput  = 3
	ExitProviderError = 4
	ExitAborted       = 130 // 128 + SIGINT, matching shell convention
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewRunError creates an error for pipeline run failures
func NewRunError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitRunFailed,
		Message: msg,
		Cause:   cause,
	}
}

// NewConfigError creates an error for invalid configuration
func NewConfigError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitInvalidConfig,
		Message: msg,
		Cause:   cause,
	}
}

// NewMissingInputError creates an error for missing required inputs
func NewMissingInputError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitMissingInput,
		Message: msg,
		Cause:   cause,
	}
}

// NewProviderError creates an error for provider-related failures
func NewProviderError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitProviderError,
		Message: msg,
		Cause:   cause,
	}
}

// ExitCodeFor maps an error to its exit code.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	if refineryerrors.IsAborted(err) {
		return ExitAborted
	}

	var cfgErr *refineryerrors.ConfigError
	if errors.As(err, &cfgErr) {
		return ExitInvalidConfig
	}

	var provErr *refineryerrors.ProviderError
	if errors.As(err, &provErr) {
		return ExitProviderError
	}

	return ExitRunFailed
}

// HandleExitError prints the error with any suggestion it carries and
// exits with the mapped code. A nil error returns without exiting.
func HandleExitError(err error) {
	if err == nil {
		return
	}

	if refineryerrors.IsAborted(err) {
		fmt.Fprintln(os.Stderr, "Aborted.")
		os.Exit(ExitAborted)
	}

	fmt.Fprintln(os.Stderr, "Error:", err.Error())
	printSuggestion(err)
	os.Exit(ExitCodeFor(err))
}

// printSuggestion walks the error chain for actionable guidance.
func printSuggestion(err error) {
	var validation *refineryerrors.ValidationError
	if errors.As(err, &validation) && validation.Suggestion != "" {
		fmt.Fprintf(os.Stderr, "\nSuggestion: %s\n", validation.Suggestion)
		return
	}

	var provider *refineryerrors.ProviderError
	if errors.As(err, &provider) && provider.Suggestion != "" {
		fmt.Fprintf(os.Stderr, "\nSuggestion: %s\n", provider.Suggestion)
	}
}
