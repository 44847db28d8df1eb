package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const geminiModel = "gemini-2.5-flash"

type GeminiProvider struct {
	client      *genai.Client
	usage       Usage
	inputPrice  float64 // per 1M tokens
	outputPrice float64 // per 1M tokens
}

func NewGeminiProvider(ctx context.Context, apiKey string, pricing RequestPricing) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{
		client:      client,
		inputPrice:  pricing.Input,
		outputPrice: pricing.Output,
	}, nil
}

func (p *GeminiProvider) GetUsage() *Usage {
	return &p.usage
}

func (p *GeminiProvider) ResetUsage() {
	p.usage = Usage{}
}

func (p *GeminiProvider) trackUsage(inputTokens, outputTokens int32) {
	p.usage.InputTokens += int(inputTokens)
	p.usage.OutputTokens += int(outputTokens)
	p.usage.TotalCost += float64(inputTokens) / 1_000_000 * p.inputPrice
	p.usage.TotalCost += float64(outputTokens) / 1_000_000 * p.outputPrice
}

func (p *GeminiProvider) Name() string {
	return geminiModel
}

func (p *GeminiProvider) ExtractVisitor(ctx context.Context, message string) (*VisitorInfo, error) {
	const maxRetries = 3

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: extractVisitorPrompt + "\n\n" + message},
			},
		},
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	var lastError error

	for range maxRetries {
		result, err := p.client.Models.GenerateContent(ctx, geminiModel, contents, config)
		if err != nil {
			return nil, fmt.Errorf("gemini API error: %w", err)
		}

		if result.UsageMetadata != nil {
			p.trackUsage(result.UsageMetadata.PromptTokenCount, result.UsageMetadata.CandidatesTokenCount)
		}

		content := result.Text()
		if content == "" {
			return nil, errors.New("no response from Gemini")
		}

		var info VisitorInfo
		if err := json.Unmarshal([]byte(content), &info); err != nil {
			lastError = err

			// Add model response and error feedback to contents for retry
			contents = append(contents,
				&genai.Content{
					Role:  "model",
					Parts: []*genai.Part{{Text: content}},
				},
				&genai.Content{
					Role:  "user",
					Parts: []*genai.Part{{Text: fmt.Sprintf("JSON parse error: %v. Please fix the JSON and try again.", err)}},
				},
			)
			continue
		}

		return validateVisitorInfo(&info)
	}

	return nil, fmt.Errorf("%w: %v", ErrUnparseable, lastError)
}

func (p *GeminiProvider) JudgeApproval(ctx context.Context, visitorName, hostName, reply string) (bool, string, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: judgeApprovalPrompt + "\n\n" + buildJudgeContent(visitorName, hostName, reply)},
			},
		},
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	result, err := p.client.Models.GenerateContent(ctx, geminiModel, contents, config)
	if err != nil {
		return false, "", fmt.Errorf("gemini API error: %w", err)
	}

	if result.UsageMetadata != nil {
		p.trackUsage(result.UsageMetadata.PromptTokenCount, result.UsageMetadata.CandidatesTokenCount)
	}

	content := result.Text()
	if content == "" {
		return false, "", errors.New("no response from Gemini")
	}

	var verdict approvalVerdict
	if err := json.Unmarshal([]byte(content), &verdict); err != nil {
		return false, "", fmt.Errorf("%w: %v", ErrUnparseable, err)
	}

	return verdict.Approved, verdict.Reason, nil
}

func (p *GeminiProvider) AnswerQuery(ctx context.Context, question string, site *SiteContext) (string, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: answerQueryPrompt + "\n\n" + buildQueryContent(question, site)},
			},
		},
	}

	result, err := p.client.Models.GenerateContent(ctx, geminiModel, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini API error: %w", err)
	}

	if result.UsageMetadata != nil {
		p.trackUsage(result.UsageMetadata.PromptTokenCount, result.UsageMetadata.CandidatesTokenCount)
	}

	content := result.Text()
	if content == "" {
		return "", errors.New("no response from Gemini")
	}

	return content, nil
}
