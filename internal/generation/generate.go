// Package generation turns prompts into schema-valid JSON documents via the
// text-generation client, with a single bounded repair attempt when the
// generator returns invalid output.
package generation

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/nathan/competitor-lens/internal/llm"
	"github.com/nathan/competitor-lens/internal/prompts"
	"github.com/nathan/competitor-lens/internal/schemas"
)

// genTemperature keeps structured output consistent across calls.
const genTemperature = 0.2

// defaultMaxTokens bounds one generation call when the caller does not.
const defaultMaxTokens = 8192

// Result is the outcome of a validated generation, including token usage from
// every call made (one, or two when a repair was needed).
type Result struct {
	Raw      []byte
	Provider string
	Model    string
	Usage    llm.Usage
	Repaired bool
}

// GenerateValidated performs one generation call and validates the output
// against the named schema. On validation failure it builds one repair prompt
// (raw text + target schema + validation errors), calls the generator exactly
// once more, and validates again. There is no second repair attempt.
//
// The returned Result is non-nil whenever at least one call completed, so
// callers can account for token usage even on failure.
func GenerateValidated(ctx context.Context, client llm.Client, logger *slog.Logger, messages []llm.Message, schemaName string, tier llm.ModelTier, maxTokens int) (*Result, error) {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	result := &Result{}

	resp, err := client.Generate(ctx, llm.GenerateRequest{
		Messages:    messages,
		JSONMode:    true,
		Temperature: genTemperature,
		MaxTokens:   maxTokens,
		Tier:        tier,
	})
	if err != nil {
		return nil, &APICallError{Message: "generation call failed", Cause: err}
	}
	result.Provider = resp.Provider
	result.Model = resp.Model
	result.Usage.Add(resp.Usage)

	verr := validate(schemaName, resp.Text)
	if verr == nil {
		result.Raw = []byte(resp.Text)
		return result, nil
	}

	logger.Warn("generator output failed validation, attempting repair",
		"schema", schemaName,
		"model", resp.Model,
		"errors", len(verr.Errors))

	repairMessages, err := buildRepairMessages(resp.Text, schemaName, verr)
	if err != nil {
		return result, err
	}

	repairResp, err := client.Generate(ctx, llm.GenerateRequest{
		Messages:    repairMessages,
		JSONMode:    true,
		Temperature: genTemperature,
		MaxTokens:   maxTokens,
		Tier:        tier,
	})
	if err != nil {
		return result, &APICallError{Message: "repair call failed", Cause: err}
	}
	result.Usage.Add(repairResp.Usage)
	result.Repaired = true

	if verr := validate(schemaName, repairResp.Text); verr != nil {
		return result, &ValidationFailedError{Schema: schemaName, Last: verr}
	}

	result.Raw = []byte(repairResp.Text)
	return result, nil
}

// validate narrows schemas.Validate to the conformance-error type; schema
// load problems escalate as panics since embedded schemas are compile-time
// fixtures.
func validate(schemaName, text string) *schemas.ValidationError {
	err := schemas.Validate(schemaName, []byte(text))
	if err == nil {
		return nil
	}
	var verr *schemas.ValidationError
	if errors.As(err, &verr) {
		return verr
	}
	panic(err)
}

func buildRepairMessages(rawText, schemaName string, verr *schemas.ValidationError) ([]llm.Message, error) {
	schemaDoc, err := schemas.Describe(schemaName)
	if err != nil {
		return nil, err
	}

	lines := make([]string, 0, len(verr.Errors))
	for _, fe := range verr.Errors {
		lines = append(lines, "- "+fe.Field+": "+fe.Message)
	}

	template := prompts.MustGet("repair.json", "fix-invalid-json")
	content := prompts.Format(template, map[string]string{
		"RawText": rawText,
		"Schema":  schemaDoc,
		"Errors":  strings.Join(lines, "\n"),
	})

	return []llm.Message{{Role: llm.RoleUser, Content: content}}, nil
}
