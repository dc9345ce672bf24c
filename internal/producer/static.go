package producer

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/pratik-mahalle/changewatch/internal/domain/snapshot"
)

// fixtureFile is the YAML layout of a fixture file:
//
//	entities:
//	  Acme Corp:
//	    - metrics: {revenue: 100}
//	      narrative: {outlook: stable}
//	default:
//	  - metrics: {revenue: 1}
type fixtureFile struct {
	Entities map[string][]snapshot.Payload `yaml:"entities"`
	Default  []snapshot.Payload            `yaml:"default"`
}

// StaticProducer replays fixture payloads per entity, cycling through them
// in order on successive calls.
type StaticProducer struct {
	mu       sync.Mutex
	entities map[string][]snapshot.Payload
	fallback []snapshot.Payload
	cursor   map[string]int
}

// LoadStaticProducer reads fixtures from a YAML file
func LoadStaticProducer(path string) (*StaticProducer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures: %w", err)
	}
	return ParseStaticProducer(data)
}

// ParseStaticProducer builds a producer from YAML fixture content
func ParseStaticProducer(data []byte) (*StaticProducer, error) {
	var f fixtureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixtures: %w", err)
	}

	entities := make(map[string][]snapshot.Payload, len(f.Entities))
	for name, payloads := range f.Entities {
		entities[normalizeEntity(name)] = payloads
	}
	return &StaticProducer{
		entities: entities,
		fallback: f.Default,
		cursor:   make(map[string]int),
	}, nil
}

// Produce returns the next fixture for the entity
func (p *StaticProducer) Produce(ctx context.Context, entity, category string, frameworks []string) (*snapshot.Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := normalizeEntity(entity)

	p.mu.Lock()
	defer p.mu.Unlock()

	payloads, ok := p.entities[key]
	if !ok {
		payloads = p.fallback
	}
	if len(payloads) == 0 {
		return nil, fmt.Errorf("no fixtures for entity %q", entity)
	}

	i := p.cursor[key] % len(payloads)
	p.cursor[key]++

	return clonePayload(&payloads[i]), nil
}

func normalizeEntity(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func clonePayload(p *snapshot.Payload) *snapshot.Payload {
	out := &snapshot.Payload{
		Metrics:   make(map[string]float64, len(p.Metrics)),
		Narrative: make(map[string]string, len(p.Narrative)),
		Sources:   append([]string(nil), p.Sources...),
	}
	for k, v := range p.Metrics {
		out.Metrics[k] = v
	}
	for k, v := range p.Narrative {
		out.Narrative[k] = v
	}
	return out
}
