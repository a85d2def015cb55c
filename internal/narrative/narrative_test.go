package narrative

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go/v3/option"

	"github.com/lox/pvclearsky/internal/models"
)

func testReport() (*models.WindowResult, []models.DayReport) {
	res := &models.WindowResult{Start: 0, End: 192, Model: "direct_dc", KPV: []float64{0, 0.9, 1.1, 0}, MeanKPV: 1}
	reports := []models.DayReport{
		{Label: "2018-08-16 00:00", Start: 0, End: 96, MAPE: 4.2, RMSE: 1.1, MAE: 0.7},
		{Label: "2018-08-17 00:00", Start: 96, End: 192, MAPE: 38.5, RMSE: 7.9, MAE: 5.2},
	}
	return res, reports
}

func TestPrompt(t *testing.T) {
	res, reports := testReport()
	got := Prompt("station00", res, reports)

	for _, want := range []string{
		"Station station00, reference model direct_dc, steps 0-192.",
		"Mean K_PV over unmasked steps: 1.000.",
		"2018-08-17 00:00 | 38.5 | 7.90 | 5.20",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q:\n%s", want, got)
		}
	}
}

func TestNewSummarizer_NoKey(t *testing.T) {
	if _, err := NewSummarizer("", ""); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("err = %v, want ErrNoAPIKey", err)
	}
}

func TestSummarize(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role string `json:"role"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotModel = body.Model
		if len(body.Messages) != 2 {
			t.Errorf("messages = %d, want 2", len(body.Messages))
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o-mini",
			"choices": [{
				"index": 0,
				"finish_reason": "stop",
				"message": {"role": "assistant", "content": "  Day one was clear; day two was cloudy.  "}
			}]
		}`))
	}))
	defer srv.Close()

	s, err := NewSummarizer("test-key", "", option.WithBaseURL(srv.URL+"/v1/"), option.WithMaxRetries(0))
	if err != nil {
		t.Fatalf("NewSummarizer: %v", err)
	}

	res, reports := testReport()
	got, err := s.Summarize(context.Background(), "station00", res, reports)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "Day one was clear; day two was cloudy." {
		t.Errorf("summary = %q", got)
	}
	if gotModel != "gpt-4o-mini" {
		t.Errorf("model = %q, want default gpt-4o-mini", gotModel)
	}

	if _, err := s.Summarize(context.Background(), "station00", res, nil); err == nil {
		t.Error("expected error for empty report")
	}
}
