// Package narrative writes short plain-language summaries of K_PV error
// reports using OpenAI's chat API.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/lox/pvclearsky/internal/models"
)

var ErrNoAPIKey = errors.New("OPENAI_API_KEY not set")

const systemPrompt = `You are a PV performance analyst. Given per-day error statistics between
measured power and a clear-sky reference, write two or three sentences for a plant operator.
Call out clear days (low MAPE) and likely cloudy or faulty days (high MAPE). No bullet points.`

// Summarizer handles report summaries using OpenAI's API.
type Summarizer struct {
	client openai.Client
	model  string
}

// NewSummarizer creates a summarizer. Extra options are passed to the
// client, e.g. a base URL.
func NewSummarizer(apiKey, model string, opts ...option.RequestOption) (*Summarizer, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if model == "" {
		model = string(openai.ChatModelGPT4oMini)
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Summarizer{
		client: openai.NewClient(opts...),
		model:  model,
	}, nil
}

// Prompt renders the report as the user message.
func Prompt(stationID string, res *models.WindowResult, reports []models.DayReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Station %s, reference model %s, steps %d-%d.\n", stationID, res.Model, res.Start, res.End)
	fmt.Fprintf(&b, "Mean K_PV over unmasked steps: %.3f.\n", res.MeanKPV)
	b.WriteString("Day | MAPE % | RMSE | MAE\n")
	for _, r := range reports {
		fmt.Fprintf(&b, "%s | %.1f | %.2f | %.2f\n", r.Label, r.MAPE, r.RMSE, r.MAE)
	}
	return b.String()
}

// Summarize returns the model's summary of a report.
func (s *Summarizer) Summarize(ctx context.Context, stationID string, res *models.WindowResult, reports []models.DayReport) (string, error) {
	if res == nil || len(reports) == 0 {
		return "", errors.New("no report to summarize")
	}

	slog.Info("narrative: summarizing", "station", stationID, "days", len(reports), "model", s.model)

	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(s.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(Prompt(stationID, res, reports)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("summary request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no summary returned")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("empty summary returned")
	}
	return text, nil
}
