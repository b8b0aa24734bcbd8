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

// Package prompt implements the interactive human review gate.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"golang.org/x/term"

	"github.com/prooflab/refinery/internal/commands/shared"
	refineryerrors "github.com/prooflab/refinery/pkg/errors"
	"github.com/prooflab/refinery/pkg/pipeline"
)

// SurveyReviewer presents verifier critiques on the terminal and
// collects the approve/reject decision using the survey library.
type SurveyReviewer struct {
	// Out receives the rendered critique. Defaults to os.Stdout.
	Out io.Writer

	// ask is swappable for tests.
	ask func(prompt survey.Prompt, response interface{}) error
}

// NewSurveyReviewer creates a terminal-backed reviewer.
func NewSurveyReviewer() *SurveyReviewer {
	return &SurveyReviewer{
		Out: os.Stdout,
		ask: func(prompt survey.Prompt, response interface{}) error {
			return survey.AskOne(prompt, response)
		},
	}
}

// IsInteractive reports whether stdin is a terminal, so callers can
// refuse to run the human gate in a pipe.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Review displays the critique and asks for a decision. Unrecognized
// answers re-prompt; the prior answer is never reused. Interrupting the
// prompt returns ErrAborted.
func (r *SurveyReviewer) Review(ctx context.Context, critique pipeline.Critique) (pipeline.Decision, error) {
	out := r.Out
	if out == nil {
		out = os.Stdout
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, shared.Header.Render("Verifier critique"))
	fmt.Fprintln(out, critique.Render())
	fmt.Fprintln(out)

	for {
		if err := ctx.Err(); err != nil {
			return "", refineryerrors.ErrAborted
		}

		var answer string
		prompt := &survey.Input{
			Message: "Approve this critique and apply a correction? [y/n]",
		}
		if err := r.ask(prompt, &answer); err != nil {
			if errors.Is(err, terminal.InterruptErr) {
				return "", refineryerrors.ErrAborted
			}
			return "", fmt.Errorf("failed to read decision: %w", err)
		}

		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return pipeline.DecisionApproved, nil
		case "n", "no":
			return pipeline.DecisionRejected, nil
		default:
			fmt.Fprintln(out, shared.RenderWarn(fmt.Sprintf("unrecognized answer %q, please answer y or n", answer)))
		}
	}
}
