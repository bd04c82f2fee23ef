package bedrock_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/adapters/bedrock"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/core"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/utils"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap/zaptest"
)

func newAnalyzer(t *testing.T, modelID string, reply string, gotBody *map[string]any) *bedrock.Analyzer {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/invoke") {
			http.NotFound(w, r)
			return
		}
		data, _ := io.ReadAll(r.Body)
		if gotBody != nil {
			_ = json.Unmarshal(data, gotBody)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)

	client := bedrockruntime.New(bedrockruntime.Options{
		Region:           "us-east-1",
		BaseEndpoint:     aws.String(srv.URL),
		Credentials:      aws.AnonymousCredentials{},
		RetryMaxAttempts: 1,
	})
	logger := zaptest.NewLogger(t)
	return bedrock.NewAnalyzer(client, modelID, 200, 0.1, 0.9, 4096, logger, utils.NewTextProcessor(logger))
}

func TestAnalyzeMessageClaude(t *testing.T) {
	var body map[string]any
	reply := `{"completion": " {\"is_phish\": false, \"confidence\": 0.7, \"explanation\": \"internal sender\"}"}`
	a := newAnalyzer(t, "anthropic.claude-v2", reply, &body)

	analysis, err := a.AnalyzeMessage(context.Background(), &core.Message{Subject: "Rota", Body: "See attached"})
	if err != nil {
		t.Fatalf("AnalyzeMessage err: %v", err)
	}
	if analysis.IsPhish || analysis.Confidence != 0.7 || analysis.ModelUsed != "anthropic.claude-v2" {
		t.Fatalf("unexpected analysis: %+v", analysis)
	}

	p, _ := body["prompt"].(string)
	if !strings.HasPrefix(p, "\n\nHuman: ") || !strings.HasSuffix(p, "\n\nAssistant:") {
		t.Fatalf("unexpected Claude prompt framing: %q", p)
	}
}

func TestAnalyzeMessageTitan(t *testing.T) {
	var body map[string]any
	reply := `{"results": [{"outputText": "{\"is_phish\": true, \"confidence\": 0.95}"}]}`
	a := newAnalyzer(t, "amazon.titan-text-express-v1", reply, &body)

	analysis, err := a.AnalyzeMessage(context.Background(), &core.Message{Subject: "Parcel", Links: []string{"https://x.example"}})
	if err != nil {
		t.Fatalf("AnalyzeMessage err: %v", err)
	}
	if !analysis.IsPhish {
		t.Fatalf("expected a phishing verdict: %+v", analysis)
	}
	if _, ok := body["inputText"]; !ok {
		t.Fatalf("expected a Titan request body, got %v", body)
	}
}

func TestAnalyzeMessageEmptyTitan(t *testing.T) {
	a := newAnalyzer(t, "amazon.titan-text-express-v1", `{"results": []}`, nil)
	if _, err := a.AnalyzeMessage(context.Background(), &core.Message{Subject: "x"}); err == nil {
		t.Fatal("expected an error for an empty Titan reply")
	}
}
