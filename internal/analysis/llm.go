package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// LLM validation model constants.
const (
	ValidationModelDefault  = "gpt-4o-mini"
	ValidationModelEscalate = "gpt-4o"
	ValidationMaxTokens     = 2048
	maxContextSnippets      = 20
	maxSnippetLength        = 1200
)

// ContextSnippet is a file excerpt sent alongside findings for
// validation context.
type ContextSnippet struct {
	FilePath string `json:"file_path"`
	Snippet  string `json:"snippet"`
}

// ValidatedFinding is one model-reviewed finding verdict.
type ValidatedFinding struct {
	FindingID      string   `json:"finding_id"`
	IsTruePositive bool     `json:"is_true_positive"`
	FinalSeverity  Severity `json:"final_severity"`
	Reason         string   `json:"reason"`
	Mitigation     []string `json:"mitigation"`
}

// ValidatedSecurity is the full validation response.
type ValidatedSecurity struct {
	ValidatedFindings []ValidatedFinding `json:"validated_findings"`
	SecuritySummary   string             `json:"security_summary"`
}

// ChatCompleter abstracts the OpenAI client so tests can inject a fake.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Validator runs selective model validation of deterministic findings.
type Validator struct {
	client ChatCompleter
	model  string
}

// NewValidator creates a validator for the given API key. An empty key
// returns nil: validation is optional and degrades to rules-only.
func NewValidator(apiKey, model string) *Validator {
	if apiKey == "" {
		return nil
	}
	if model == "" {
		model = ValidationModelDefault
	}
	return &Validator{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// NewValidatorWithClient creates a validator with a custom client.
func NewValidatorWithClient(client ChatCompleter, model string) *Validator {
	if model == "" {
		model = ValidationModelDefault
	}
	return &Validator{client: client, model: model}
}

// ShouldValidate reports whether the findings warrant a model pass.
// Only risky scans pay for model tokens.
func ShouldValidate(findings []Finding, riskScore int) bool {
	critical, high := 0, 0
	for _, f := range findings {
		switch f.Severity {
		case SeverityCritical:
			critical++
		case SeverityHigh:
			high++
		}
	}
	return critical > 0 || high >= 2 || riskScore >= 20
}

// modelFor escalates to the larger model when a critical finding has
// less than high confidence.
func (v *Validator) modelFor(findings []Finding) string {
	for _, f := range findings {
		if f.Severity == SeverityCritical && f.Confidence != "high" {
			return ValidationModelEscalate
		}
	}
	return v.model
}

type validationRequest struct {
	Task           string           `json:"task"`
	RiskScore      int              `json:"risk_score"`
	SeverityCounts map[Severity]int `json:"severity_counts"`
	Findings       []Finding        `json:"findings"`
	Context        []ContextSnippet `json:"context_snippets"`
	Constraints    map[string]int   `json:"constraints"`
}

const validationSystemPrompt = "You are a security validation assistant. " +
	"Output only JSON with fields validated_findings (array of objects with " +
	"finding_id, is_true_positive, final_severity, reason, mitigation) and " +
	"security_summary. Do not add new findings. Only validate items provided. " +
	"If uncertain, mark is_true_positive=false and explain why."

// Validate reviews existing findings with the model. It never creates
// new findings.
func (v *Validator) Validate(ctx context.Context, findings []Finding, snippets []ContextSnippet) (*ValidatedSecurity, error) {
	if len(findings) == 0 {
		return &ValidatedSecurity{SecuritySummary: "No findings to validate."}, nil
	}

	counts := map[Severity]int{SeverityCritical: 0, SeverityHigh: 0, SeverityMedium: 0, SeverityLow: 0}
	riskScore := 0
	for _, f := range findings {
		counts[f.Severity]++
		riskScore += SeverityWeights[f.Severity]
	}

	trimmed := make([]ContextSnippet, 0, len(snippets))
	for _, s := range snippets {
		if len(s.Snippet) > maxSnippetLength {
			s.Snippet = s.Snippet[:maxSnippetLength]
		}
		trimmed = append(trimmed, s)
		if len(trimmed) >= maxContextSnippets {
			break
		}
	}

	payload, err := json.Marshal(validationRequest{
		Task:           "Validate deterministic findings and provide final severity and mitigations.",
		RiskScore:      riskScore,
		SeverityCounts: counts,
		Findings:       findings,
		Context:        trimmed,
		Constraints: map[string]int{
			"reason_max_sentences":       2,
			"mitigation_max_items":       3,
			"security_summary_max_words": 60,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal validation request: %w", err)
	}

	resp, err := v.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     v.modelFor(findings),
		MaxTokens: ValidationMaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: validationSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: string(payload)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no choices in response")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	var result ValidatedSecurity
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, fmt.Errorf("parse validation response: %w", err)
	}
	return &result, nil
}

// BuildContextSnippets selects excerpts of files that triggered
// findings, capped to keep the request bounded.
func BuildContextSnippets(files []ScannedFile, findings []Finding) []ContextSnippet {
	flagged := make(map[string]bool, len(findings))
	for _, f := range findings {
		flagged[f.FilePath] = true
	}

	var snippets []ContextSnippet
	for _, file := range files {
		if !flagged[file.Path] {
			continue
		}
		excerpt := file.Text
		if len(excerpt) > maxSnippetLength {
			excerpt = excerpt[:maxSnippetLength]
		}
		snippets = append(snippets, ContextSnippet{FilePath: file.Path, Snippet: excerpt})
		if len(snippets) >= maxContextSnippets {
			break
		}
	}
	return snippets
}
