// Copyright (c) 2025 PrepOrbit
//
// Licensed under GPL-2.0 with PrepOrbit Additional Terms.
// See LICENSE.md for details.
package generator_client

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/preporbit/voice-api/config"
	"github.com/preporbit/voice-api/pkg/commons"
)

// GeneratorServiceClient talks to the question generator service. Question
// generation is best effort; a session proceeds with whatever set the
// interview already carries when generation fails.
type GeneratorServiceClient interface {
	GenerateQuestions(ctx context.Context, interviewID string, req *GenerateRequest) (*GenerateResponse, error)
}

// GenerateRequest describes the interview the generator should prepare
// questions for.
type GenerateRequest struct {
	Role      string   `json:"role,omitempty"`
	Level     string   `json:"level,omitempty"`
	Type      string   `json:"type,omitempty"`
	TechStack []string `json:"techStack,omitempty"`
	Amount    int      `json:"amount,omitempty"`
	UserID    string   `json:"userId,omitempty"`
}

// GenerateResponse is the generator's question set.
type GenerateResponse struct {
	Questions []string `json:"questions"`
}

type generatorServiceClient struct {
	cfg    *config.AppConfig
	logger commons.Logger
	client *resty.Client
}

func NewGeneratorServiceClient(cfg *config.AppConfig, logger commons.Logger) GeneratorServiceClient {
	client := resty.New().
		SetBaseURL(cfg.GeneratorBaseURL).
		SetHeader("Content-Type", "application/json")
	if cfg.AuthToken != "" {
		client.SetAuthToken(cfg.AuthToken)
	}
	return &generatorServiceClient{
		cfg:    cfg,
		logger: logger,
		client: client,
	}
}

func (c *generatorServiceClient) GenerateQuestions(ctx context.Context, interviewID string, req *GenerateRequest) (*GenerateResponse, error) {
	var out GenerateResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post(fmt.Sprintf("/api/interviews/questions/generate/%s", interviewID))
	if err != nil {
		return nil, fmt.Errorf("generator: request failed: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("generator: service returned %d: %s", resp.StatusCode(), resp.Body())
	}
	c.logger.Infof("generator: received %d questions for interview %s", len(out.Questions), interviewID)
	return &out, nil
}
