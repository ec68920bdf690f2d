package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"paper_trader/internal/models"
	"paper_trader/pkg/logger"
	"paper_trader/pkg/tracing"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

const chatPath = "/v1/chat/completions"

type LLMConfig struct {
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// LLM: оракул поверх OpenAI-совместимого chat/completions.
type LLM struct {
	cfg    LLMConfig
	client *http.Client
}

func NewLLM(cfg LLMConfig) *LLM {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	return &LLM{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *LLM) Evaluate(ctx context.Context, req models.OracleRequest) (res models.OracleResult) {
	span, ctx := tracing.StartSpan(ctx, "oracle.llm")
	defer func() { tracing.Finish(span, res.Err) }()

	if c.cfg.APIKey == "" {
		return holdWith(SystemSymbol, "Missing oracle API key.",
			errors.Wrap(models.ErrOracleUnavailable, "missing api key"))
	}

	req, early := prepare(req)
	if early != nil {
		return *early
	}

	prompt, err := BuildPrompt(req)
	if err != nil {
		return models.MalformedResult(errors.Wrap(err, "build prompt"))
	}

	text, err := c.complete(ctx, prompt)
	if err != nil {
		logger.Error("[ORACLE] request failed: %v", err)
		return models.UnavailableResult(err)
	}

	d, err := ParseDecision(text)
	if err != nil {
		logger.Warn("[ORACLE] bad answer: %v", err)
		return models.MalformedResult(err)
	}
	logger.Info("[ORACLE] %s -> %s %s (%s)", req.Mode, d.Action, d.Symbol, d.Reasoning)
	return models.DecisionResult(d)
}

func (c *LLM) complete(ctx context.Context, prompt string) (string, error) {
	body, err := sonic.Marshal(chatRequest{
		Model:     c.cfg.Model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: 1000,
	})
	if err != nil {
		return "", errors.Wrap(err, "marshal chat request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+chatPath, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(models.ErrOracleUnavailable, err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", errors.Wrap(models.ErrOracleUnavailable, err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(models.ErrOracleUnavailable, err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Wrap(models.ErrOracleUnavailable,
			fmt.Sprintf("status %d: %s", resp.StatusCode, short(string(raw))))
	}

	var cr chatResponse
	if err := sonic.Unmarshal(raw, &cr); err != nil {
		return "", errors.Wrap(models.ErrOracleUnavailable, "decode chat response: "+err.Error())
	}
	if len(cr.Choices) == 0 || strings.TrimSpace(cr.Choices[0].Message.Content) == "" {
		return "", errors.Wrap(models.ErrOracleUnavailable, "empty response")
	}
	return cr.Choices[0].Message.Content, nil
}
