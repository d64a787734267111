package quizrunner

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultGeneratedQuestions = 10
	maxGeneratedQuestions     = 50
)

// OpenAISource generates questions on a topic with a chat model
type OpenAISource struct {
	client *openai.Client
	model  string
	logDir string
}

// NewOpenAISource creates a source using the default OpenAI endpoint
func NewOpenAISource(apiKey, model, logDir string) *OpenAISource {
	return NewOpenAISourceWithConfig(openai.DefaultConfig(apiKey), model, logDir)
}

// NewOpenAISourceWithConfig creates a source for any OpenAI compatible endpoint.
// Transcripts of every request are written to logDir when it is set.
func NewOpenAISourceWithConfig(cfg openai.ClientConfig, model, logDir string) *OpenAISource {
	if model == "" {
		model = openai.GPT4o
	}
	return &OpenAISource{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logDir: logDir,
	}
}

// GenerationRequest describes what to generate, parsed from "<topic>?n=10&difficulty=hard"
type GenerationRequest struct {
	Topic        string
	NumQuestions int
	Difficulty   string
}

// ParseGenerationRequest parses the part of an openai: reference after the prefix
func ParseGenerationRequest(ref string) (GenerationRequest, error) {
	topic, rawQuery, _ := strings.Cut(ref, "?")
	topic, err := url.PathUnescape(strings.TrimSpace(topic))
	if err != nil {
		return GenerationRequest{}, fmt.Errorf("invalid topic %q: %w", ref, err)
	}
	if topic == "" {
		return GenerationRequest{}, fmt.Errorf("%w: topic is required", ErrUnsupportedSource)
	}

	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return GenerationRequest{}, fmt.Errorf("invalid parameters %q: %w", rawQuery, err)
	}

	req := GenerationRequest{
		Topic:        topic,
		NumQuestions: defaultGeneratedQuestions,
		Difficulty:   query.Get("difficulty"),
	}
	if n := query.Get("n"); n != "" {
		num, err := strconv.Atoi(n)
		if err != nil || num <= 0 {
			return GenerationRequest{}, fmt.Errorf("invalid question count %q", n)
		}
		req.NumQuestions = min(num, maxGeneratedQuestions)
	}
	return req, nil
}

// Load generates questions for the topic described by ref
func (src *OpenAISource) Load(ctx context.Context, ref string) ([]QuestionRecord, error) {
	req, err := ParseGenerationRequest(ref)
	if err != nil {
		return nil, err
	}

	var logger *LLMLogger
	if src.logDir != "" {
		logger, err = NewLLMLogger(src.logDir, req)
		if err != nil {
			log.Printf("Failed to create generation log for %q: %v", req.Topic, err)
		} else {
			defer logger.Close()
		}
	}

	records, err := src.generate(ctx, req, logger)
	if err != nil {
		return nil, err
	}
	return cleanRecords("openai:"+req.Topic, records), nil
}

func (src *OpenAISource) generate(ctx context.Context, req GenerationRequest, logger *LLMLogger) ([]QuestionRecord, error) {
	VerboseLog("Generating %d questions for topic: %s", req.NumQuestions, req.Topic)

	prompt := buildPrompt(req)
	logger.LogLLMRequest(prompt)

	resp, err := src.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: src.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: "You are an expert quiz question generator. Generate high-quality multiple choice questions with one correct answer and three wrong answers each.",
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			Tools: []openai.Tool{
				{
					Type: openai.ToolTypeFunction,
					Function: &openai.FunctionDefinition{
						Name:        "submit_questions",
						Description: "Submit generated quiz questions",
						Parameters: map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"questions": map[string]interface{}{
									"type": "array",
									"items": map[string]interface{}{
										"type": "object",
										"properties": map[string]interface{}{
											"question": map[string]interface{}{
												"type":        "string",
												"description": "The question text",
											},
											"correct": map[string]interface{}{
												"type":        "string",
												"description": "The correct answer",
											},
											"wrong": map[string]interface{}{
												"type": "array",
												"items": map[string]interface{}{
													"type": "string",
												},
												"description": "Exactly 3 plausible but wrong answers",
											},
										},
										"required": []string{"question", "correct", "wrong"},
									},
								},
							},
							"required": []string{"questions"},
						},
					},
				},
			},
			ToolChoice: openai.ToolChoice{
				Type: openai.ToolTypeFunction,
				Function: openai.ToolFunction{
					Name: "submit_questions",
				},
			},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate questions: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from %s", src.model)
	}

	choice := resp.Choices[0]
	if len(choice.Message.ToolCalls) == 0 {
		return nil, fmt.Errorf("no tool calls in response")
	}

	toolCall := choice.Message.ToolCalls[0]
	if toolCall.Function.Name != "submit_questions" {
		return nil, fmt.Errorf("unexpected tool call: %s", toolCall.Function.Name)
	}
	logger.LogLLMResponse(toolCall.Function.Arguments)

	var toolArgs struct {
		Questions []QuestionRecord `json:"questions"`
	}
	if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &toolArgs); err != nil {
		return nil, fmt.Errorf("failed to parse tool arguments: %w", err)
	}

	records := toolArgs.Questions
	if len(records) > req.NumQuestions {
		records = records[:req.NumQuestions]
	}
	VerboseLog("Generated %d questions", len(records))
	return records, nil
}

func buildPrompt(req GenerationRequest) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Generate %d multiple choice questions about: %s\n\n", req.NumQuestions, req.Topic))

	if req.Difficulty != "" {
		sb.WriteString(fmt.Sprintf("Difficulty level: %s\n\n", req.Difficulty))
	}

	sb.WriteString("Requirements:\n")
	sb.WriteString("- Each question must have exactly one correct answer and exactly 3 wrong answers\n")
	sb.WriteString("- Wrong answers should be plausible but clearly wrong\n")
	sb.WriteString("- No answer may repeat another answer of the same question\n")
	sb.WriteString("- Avoid questions where the answer is given away in the question text\n")
	sb.WriteString("- Use the submit_questions tool to return your questions\n")

	return sb.String()
}
