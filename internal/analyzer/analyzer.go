// Package analyzer reviews one file's diff with a language model and
// returns validated findings.
package analyzer

import (
	"context"
	"errors"
	"fmt"

	"prreview/internal/codec"
	"prreview/internal/llm"
	"prreview/internal/metrics"
	"prreview/internal/model"
)

const systemPrompt = "You are an expert code reviewer. Respond with a JSON array only, no prose."

const instructionTemplate = `Analyze the following code changes from file %s and identify:
- Style issues
- Bugs or errors
- Performance improvements
- Best practices

Return the results as a JSON array of objects with:
- type: issue type ("style", "bug", "performance", "best_practice", or "critical" for issues that must be fixed before merging)
- line: line number in the new version of the file, or null if the issue is not tied to a line
- description: issue description
- suggestion: improvement suggestion

Return [] if there are no issues.

Diff:
%s
`

// UpstreamAnalysisError reports a transport or service failure for one file.
type UpstreamAnalysisError struct {
	File   string
	Detail string
}

func (e *UpstreamAnalysisError) Error() string {
	return fmt.Sprintf("analysis request for %s failed: %s", e.File, e.Detail)
}

// Analyzer sends one request per file to the model.
type Analyzer struct {
	client    llm.Client
	provider  string
	model     string
	maxTokens int
}

func New(client llm.Client, provider, model string, maxTokens int) *Analyzer {
	return &Analyzer{client: client, provider: provider, model: model, maxTokens: maxTokens}
}

// BuildPrompt renders the fixed instruction template for one file.
func BuildPrompt(fileName, patch string) string {
	return fmt.Sprintf(instructionTemplate, fileName, patch)
}

// Analyze returns the findings for one file. Errors are either
// *UpstreamAnalysisError or *codec.MalformedAnalysisError.
func (a *Analyzer) Analyze(ctx context.Context, fileName, patch string) ([]model.FileFinding, error) {
	raw, err := a.client.Complete(ctx, llm.Request{
		System:    systemPrompt,
		Prompt:    BuildPrompt(fileName, patch),
		MaxTokens: a.maxTokens,
	})
	metrics.RecordLLMRequest(a.provider, a.model, err == nil)
	if err != nil {
		return nil, &UpstreamAnalysisError{File: fileName, Detail: err.Error()}
	}

	findings, err := codec.DecodeFindings(raw)
	if err != nil {
		var malformedErr *codec.MalformedAnalysisError
		if errors.As(err, &malformedErr) {
			return nil, &codec.MalformedAnalysisError{File: fileName, Detail: malformedErr.Detail}
		}
		return nil, &codec.MalformedAnalysisError{File: fileName, Detail: err.Error()}
	}
	return findings, nil
}
