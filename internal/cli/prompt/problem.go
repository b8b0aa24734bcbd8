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

package prompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"

	refineryerrors "github.com/prooflab/refinery/pkg/errors"
)

// AskProblem collects a problem statement interactively. Interrupting
// the prompt returns ErrAborted.
func AskProblem() (string, error) {
	var problem string
	prompt := &survey.Multiline{
		Message: "Problem statement:",
	}

	err := survey.AskOne(prompt, &problem, survey.WithValidator(func(ans interface{}) error {
		if str, ok := ans.(string); ok && strings.TrimSpace(str) == "" {
			return errors.New("problem statement must not be empty")
		}
		return nil
	}))
	if err != nil {
		if errors.Is(err, terminal.InterruptErr) {
			return "", refineryerrors.ErrAborted
		}
		return "", fmt.Errorf("failed to read problem statement: %w", err)
	}

	return strings.TrimSpace(problem), nil
}
