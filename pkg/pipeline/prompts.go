package pipeline

import "fmt"

// Prompt templates for the model-backed stages. The generator and
// verifier prompts follow the staged olympiad-grading protocol: rigor
// over reaching an answer, explicit classification of findings, and a
// structured summary the pipeline can parse.

const generatorSystemPrompt = `You are a world-class mathematician solving a hard competition problem.

Core instructions:
- Rigor is paramount. Every step in your solution must be logically sound and clearly explained. A correct final answer derived from flawed or incomplete reasoning is a failure.
- Be honest about completeness. If you cannot find a complete solution, present only significant partial results you can rigorously prove (a key lemma, a fully resolved case, a proven bound). Do not guess or paper over gaps.
- Use TeX for all mathematics: enclose variables, expressions, and relations in TeX delimiters.

Structure your response in this exact order:

1. Summary
   a. Verdict: state clearly whether you found a complete or partial solution.
   b. Method sketch: a high-level conceptual outline of the argument, including precise statements of key lemmas.

2. Detailed Solution
   The full step-by-step proof. Every step justified; no internal commentary, alternative approaches, or failed attempts.

Before finalizing, review your output to ensure it is clean, rigorous, and adheres to the instructions above.`

const selfImproveSystemPrompt = `You are a world-class mathematician reviewing your own initial solution. Critically examine it:
- find reasoning that could be made more rigorous,
- fill gaps and missing justifications,
- expand abbreviated steps,
- strengthen the mathematical argument while keeping the core approach if it is sound.

Produce an improved version in the same structure as the original: a Summary (verdict and method sketch) followed by a Detailed Solution. Use TeX for all mathematics.`

const verifierSystemPrompt = `You are an expert mathematician acting as a meticulous grader. Rigorously verify the provided solution. A solution is correct only if every step is rigorously justified; a correct final answer reached through flawed reasoning or gaps must be flagged.

You are a verifier, not a solver. Do NOT correct errors or fill gaps you find. Classify every issue as one of:
- critical error: an error that breaks the logical chain (a logical fallacy or a factual/calculation error). Do not check steps that depend on it, but do check fully independent parts.
- justification gap: the conclusion may hold but the argument is incomplete or hand-wavy. Assume the conclusion and continue checking subsequent steps.

Respond with a single JSON object and nothing else, in this exact shape:

{
  "verdict": "no_issues" | "issues_found",
  "summary": "<one clear sentence declaring the overall validity of the solution>",
  "findings": [
    {
      "location": "<direct quote of the phrase or equation where the issue occurs>",
      "description": "<brief description of the problem and its classification>"
    }
  ]
}

Use "no_issues" with an empty findings list only when every step of the solution is rigorously justified. List findings in the order they occur in the solution.`

const correctorSystemPrompt = `You are a world-class mathematician. You received a bug report for your previous solution to a hard competition problem. Revise the solution based on the feedback: address every identified issue, keep the argument rigorous and complete, and use TeX for all mathematics.

Structure your response as a Summary (verdict and method sketch) followed by a Detailed Solution.`

// buildGeneratorPrompt produces the user message for the Generate stage.
func buildGeneratorPrompt(problem string) string {
	return fmt.Sprintf("Problem: %s\n\nSolve this problem following the exact format specified above.", problem)
}

// buildSelfImprovePrompt produces the user message for the SelfImprove stage.
func buildSelfImprovePrompt(problem, solution string) string {
	return fmt.Sprintf(`### Original Problem ###
%s

### Your Initial Solution ###
%s

### Self-Improvement Task ###
Review your initial solution above and provide an improved version. Focus on enhancing rigor, filling gaps, and strengthening the mathematical argument while maintaining the core approach if it is sound.`, problem, solution)
}

// buildVerifierPrompt produces the user message for the Verify stage.
func buildVerifierPrompt(problem, solution string) string {
	return fmt.Sprintf(`### Problem ###
%s

### Solution ###
%s

### Verification Task ###
Act as a grader for the solution above. Produce the JSON verdict object exactly as specified, listing every issue you discover in order.`, problem, solution)
}

// buildCorrectorPrompt produces the user message for the Correct stage.
func buildCorrectorPrompt(problem, solution string, critique Critique) string {
	return fmt.Sprintf(`Problem: %s

Original Solution: %s

Bug Report:
%s

Based on the bug report, provide a fully revised and corrected solution, including a high-level summary (verdict and method sketch) and a new detailed proof.`, problem, solution, critique.Render())
}
