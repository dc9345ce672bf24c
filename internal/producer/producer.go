// Package producer supplies the analysis payloads that monitors snapshot.
package producer

import (
	"context"
	"fmt"

	"github.com/pratik-mahalle/changewatch/internal/config"
	"github.com/pratik-mahalle/changewatch/internal/domain/snapshot"
	"github.com/pratik-mahalle/changewatch/internal/pkg/logger"
)

// Producer generates the structured analysis of an entity
type Producer interface {
	Produce(ctx context.Context, entity, category string, frameworks []string) (*snapshot.Payload, error)
}

// ProducerFunc adapts a function to the Producer interface
type ProducerFunc func(ctx context.Context, entity, category string, frameworks []string) (*snapshot.Payload, error)

// Produce calls f
func (f ProducerFunc) Produce(ctx context.Context, entity, category string, frameworks []string) (*snapshot.Payload, error) {
	return f(ctx, entity, category, frameworks)
}

// New builds the producer selected by configuration. The OpenAI producer
// falls back to the static fixtures when no API key is set.
func New(cfg config.ProducerConfig, log *logger.Logger) (Producer, error) {
	switch cfg.Kind {
	case "", "static":
		return LoadStaticProducer(cfg.FixturePath)
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			log.Warn("No OpenAI API key configured, using static fixtures")
			return LoadStaticProducer(cfg.FixturePath)
		}
		return NewOpenAIProducer(cfg.OpenAIAPIKey, cfg.OpenAIModel, log), nil
	default:
		return nil, fmt.Errorf("unsupported producer kind: %s", cfg.Kind)
	}
}
