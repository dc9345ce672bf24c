package producer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pratik-mahalle/changewatch/internal/config"
	"github.com/pratik-mahalle/changewatch/internal/domain/snapshot"
	"github.com/pratik-mahalle/changewatch/internal/pkg/logger"
)

const fixtureYAML = `
entities:
  Acme Corp:
    - metrics: {revenue: 100, headcount: 400}
      narrative: {outlook: stable}
    - metrics: {revenue: 130, headcount: 410}
      narrative: {outlook: improving}
default:
  - metrics: {revenue: 1}
`

func TestStaticProducer_Cycles(t *testing.T) {
	p, err := ParseStaticProducer([]byte(fixtureYAML))
	if err != nil {
		t.Fatalf("ParseStaticProducer() error = %v", err)
	}
	ctx := context.Background()

	want := []float64{100, 130, 100}
	for i, rev := range want {
		got, err := p.Produce(ctx, " acme corp ", "", nil)
		if err != nil {
			t.Fatalf("Produce() #%d error = %v", i, err)
		}
		if got.Metrics["revenue"] != rev {
			t.Errorf("Produce() #%d revenue = %v, want %v", i, got.Metrics["revenue"], rev)
		}
	}

	first, _ := p.Produce(ctx, "Globex", "", nil)
	if first.Metrics["revenue"] != 1 {
		t.Errorf("unknown entity revenue = %v, want default fixture", first.Metrics["revenue"])
	}

	// returned payloads are copies
	first.Metrics["revenue"] = 99
	again, _ := p.Produce(ctx, "Globex", "", nil)
	if again.Metrics["revenue"] != 1 {
		t.Error("mutating a produced payload changed the fixture")
	}
}

func TestStaticProducer_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "no fixtures", yaml: "entities: {}"},
		{name: "invalid yaml", yaml: "entities: [unterminated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseStaticProducer([]byte(tt.yaml))
			if err != nil {
				return
			}
			if _, err := p.Produce(context.Background(), "Acme", "", nil); err == nil {
				t.Error("Produce() expected error")
			}
		})
	}

	p, _ := ParseStaticProducer([]byte(fixtureYAML))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Produce(ctx, "Acme Corp", "", nil); err == nil {
		t.Error("Produce() with cancelled context expected error")
	}
}

func TestNew_FallsBackToStatic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	if err := os.WriteFile(path, []byte(fixtureYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	p, err := New(config.ProducerConfig{Kind: "openai", FixturePath: path}, logger.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := p.(*StaticProducer); !ok {
		t.Errorf("New() = %T, want *StaticProducer", p)
	}

	if _, err := New(config.ProducerConfig{Kind: "oracle"}, logger.Nop()); err == nil {
		t.Error("New() with unknown kind expected error")
	}
}

func TestProducerFunc(t *testing.T) {
	var gotEntity string
	f := ProducerFunc(func(ctx context.Context, entity, category string, frameworks []string) (*snapshot.Payload, error) {
		gotEntity = entity
		return &snapshot.Payload{}, nil
	})
	if _, err := f.Produce(context.Background(), "Acme", "", nil); err != nil || gotEntity != "Acme" {
		t.Errorf("ProducerFunc.Produce() entity = %q, err = %v", gotEntity, err)
	}
}

func TestOpenAIProducer_Produce(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{name: "valid analysis", content: `{"metrics":{"revenue":130},"narrative":{"outlook":"improving"},"sources":["10-Q"]}`},
		{name: "not json", content: "Revenue went up.", wantErr: true},
		{name: "empty analysis", content: `{"sources":[]}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotReq openai.ChatCompletionRequest
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewDecoder(r.Body).Decode(&gotReq)
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
					Choices: []openai.ChatCompletionChoice{{
						Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: tt.content},
					}},
				})
			}))
			defer server.Close()

			cfg := openai.DefaultConfig("test-key")
			cfg.BaseURL = server.URL + "/v1"
			p := NewOpenAIProducerWithConfig(cfg, "", logger.Nop())

			payload, err := p.Produce(context.Background(), "Acme Corp", "competitor", []string{"swot"})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Produce() error = %v, wantErr %v", err, tt.wantErr)
			}
			if gotReq.Model != openai.GPT4oMini {
				t.Errorf("model = %q, want default", gotReq.Model)
			}
			if gotReq.ResponseFormat == nil || gotReq.ResponseFormat.Type != openai.ChatCompletionResponseFormatTypeJSONObject {
				t.Error("request did not ask for a JSON object")
			}
			if !tt.wantErr && payload.Metrics["revenue"] != 130 {
				t.Errorf("Produce() = %+v", payload)
			}
		})
	}
}

func TestOpenAIProducer_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer server.Close()

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = server.URL + "/v1"
	p := NewOpenAIProducerWithConfig(cfg, "gpt-4o", logger.Nop())

	if _, err := p.Produce(context.Background(), "Acme", "", nil); err == nil {
		t.Error("Produce() expected error from failing endpoint")
	}
}
