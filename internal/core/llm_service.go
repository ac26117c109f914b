package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"github.com/besafe/digital-sister/internal/domain"
)

const defaultClassifierModelName = "gemini-1.5-flash-latest"

// LLMService is the Gemini-backed classifier gateway.
type LLMService struct {
	client    *genai.Client
	modelName string
}

func NewLLMService(ctx context.Context, apiKey, modelName string) (*LLMService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if modelName == "" {
		modelName = defaultClassifierModelName
	}

	return &LLMService{
		client:    client,
		modelName: modelName,
	}, nil
}

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			log.WithError(err).Warn("Error closing GenAI client")
		} else {
			log.Debug("GenAI client closed.")
		}
	}
}

// Classify asks the model for a verdict. Transport failures are returned as
// ErrNoResponse (deadline) or ErrUpstream; output that does not parse is an
// Unparsed classification, not an error.
func (s *LLMService) Classify(ctx context.Context, req domain.ClassifierRequest) (domain.Classification, error) {
	prompt, err := BuildClassifierPrompt(req)
	if err != nil {
		return domain.Classification{}, err
	}

	model := s.client.GenerativeModel(s.modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(classifierSystemInstruction)},
	}

	temp := float32(0.2)
	model.GenerationConfig = genai.GenerationConfig{
		Temperature:      &temp,
		ResponseMIMEType: "application/json",
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.Classification{}, fmt.Errorf("%w: %v", domain.ErrNoResponse, err)
		}
		return domain.Classification{}, fmt.Errorf("%w: gemini classification request failed: %v", domain.ErrUpstream, err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		log.Warn("Gemini response was empty or had no valid candidates/parts.")
		return domain.Unparsed(""), nil
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		} else {
			log.Debugf("Gemini response part was not text: %T", part)
		}
	}

	return ParseVerdict(responseText.String()), nil
}
