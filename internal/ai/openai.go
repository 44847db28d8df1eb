package ai

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

//go:embed prompts/extract_visitor.txt
var extractVisitorPrompt string

//go:embed prompts/judge_approval.txt
var judgeApprovalPrompt string

//go:embed prompts/answer_query.txt
var answerQueryPrompt string

const chatModel = openai.ChatModelGPT4_1Mini

type OpenAIProvider struct {
	client      *openai.Client
	usage       Usage
	inputPrice  float64 // per 1M tokens
	outputPrice float64 // per 1M tokens
}

func NewOpenAIProvider(apiKey string, pricing RequestPricing) *OpenAIProvider {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIProvider{
		client:      &client,
		inputPrice:  pricing.Input,
		outputPrice: pricing.Output,
	}
}

func (p *OpenAIProvider) GetUsage() *Usage {
	return &p.usage
}

func (p *OpenAIProvider) ResetUsage() {
	p.usage = Usage{}
}

func (p *OpenAIProvider) trackUsage(inputTokens, outputTokens int64) {
	p.usage.InputTokens += int(inputTokens)
	p.usage.OutputTokens += int(outputTokens)
	p.usage.TotalCost += float64(inputTokens) / 1_000_000 * p.inputPrice
	p.usage.TotalCost += float64(outputTokens) / 1_000_000 * p.outputPrice
}

func (p *OpenAIProvider) Name() string {
	return chatModel
}

func (p *OpenAIProvider) ExtractVisitor(ctx context.Context, message string) (*VisitorInfo, error) {
	const maxRetries = 3

	messages := []openai.ChatCompletionMessageParamUnion{
		{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{
					OfString: openai.String(extractVisitorPrompt),
				},
			},
		},
		{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfString: openai.String(message),
				},
			},
		},
	}

	var lastError error

	for range maxRetries {
		content, err := p.completeJSON(ctx, messages, 100)
		if err != nil {
			return nil, err
		}

		var info VisitorInfo
		if err := json.Unmarshal([]byte(content), &info); err != nil {
			lastError = err

			// Add assistant response and error feedback to messages for retry
			messages = append(messages,
				openai.ChatCompletionMessageParamUnion{
					OfAssistant: &openai.ChatCompletionAssistantMessageParam{
						Content: openai.ChatCompletionAssistantMessageParamContentUnion{
							OfString: openai.String(content),
						},
					},
				},
				openai.ChatCompletionMessageParamUnion{
					OfUser: &openai.ChatCompletionUserMessageParam{
						Content: openai.ChatCompletionUserMessageParamContentUnion{
							OfString: openai.String(fmt.Sprintf("JSON parse error: %v. Please fix the JSON and try again.", err)),
						},
					},
				},
			)
			continue
		}

		return validateVisitorInfo(&info)
	}

	return nil, fmt.Errorf("%w: %v", ErrUnparseable, lastError)
}

func (p *OpenAIProvider) JudgeApproval(ctx context.Context, visitorName, hostName, reply string) (bool, string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{
					OfString: openai.String(judgeApprovalPrompt),
				},
			},
		},
		{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfString: openai.String(buildJudgeContent(visitorName, hostName, reply)),
				},
			},
		},
	}

	content, err := p.completeJSON(ctx, messages, 100)
	if err != nil {
		return false, "", err
	}

	var verdict approvalVerdict
	if err := json.Unmarshal([]byte(content), &verdict); err != nil {
		return false, "", fmt.Errorf("%w: %v", ErrUnparseable, err)
	}

	return verdict.Approved, verdict.Reason, nil
}

func (p *OpenAIProvider) AnswerQuery(ctx context.Context, question string, site *SiteContext) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: chatModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String(answerQueryPrompt),
					},
				},
			},
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(buildQueryContent(question, site)),
					},
				},
			},
		},
		MaxTokens: openai.Int(300),
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("no response from OpenAI")
	}

	if resp.Usage.PromptTokens > 0 || resp.Usage.CompletionTokens > 0 {
		p.trackUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}

	return resp.Choices[0].Message.Content, nil
}

// completeJSON runs a chat completion in JSON response mode and returns the
// raw message content.
func (p *OpenAIProvider) completeJSON(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, maxTokens int64) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    chatModel,
		Messages: messages,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
		MaxTokens: openai.Int(maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("no response from OpenAI")
	}

	if resp.Usage.PromptTokens > 0 || resp.Usage.CompletionTokens > 0 {
		p.trackUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}

	return resp.Choices[0].Message.Content, nil
}
