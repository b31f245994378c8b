package config

import (
	"log/slog"
	"strings"

	"github.com/titanous/json5"
)

// Normalize canonicalizes the config in place: raw provider blocks are
// folded into their sections, provider names are mapped onto their
// canonical spelling, and blanked defaults are restored.
func (c *Config) Normalize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.Embedder.normalize()
	c.Vector.normalize()
	c.Tracing.normalize()
}

func (e *EmbedderConfig) normalize() {
	if raw := StripFences(e.Raw); raw != "" {
		patch := EmbedderConfig{}
		if err := json5.Unmarshal([]byte(raw), &patch); err != nil {
			slog.Warn("embedder raw block ignored", "error", err)
		} else {
			e.apply(patch)
		}
	}
	e.Provider = strings.ToLower(strings.TrimSpace(e.Provider))
	switch e.Provider {
	case "", "open_ai", "open-ai":
		e.Provider = "openai"
	case "local", "none":
		e.Provider = "hash"
	}
	e.Model = strings.TrimSpace(e.Model)
	e.APIKey = strings.TrimSpace(e.APIKey)
	e.BaseURL = strings.TrimSpace(strings.TrimSuffix(e.BaseURL, "/"))
}

func (e *EmbedderConfig) apply(patch EmbedderConfig) {
	if patch.Provider != "" {
		e.Provider = patch.Provider
	}
	if patch.Model != "" {
		e.Model = patch.Model
	}
	if patch.APIKey != "" {
		e.APIKey = patch.APIKey
	}
	if patch.BaseURL != "" {
		e.BaseURL = patch.BaseURL
	}
	if patch.Dimension != 0 {
		e.Dimension = patch.Dimension
	}
	if patch.CacheSize != 0 {
		e.CacheSize = patch.CacheSize
	}
	if patch.MaxTokens != 0 {
		e.MaxTokens = patch.MaxTokens
	}
}

func (v *VectorConfig) normalize() {
	if raw := StripFences(v.Raw); raw != "" {
		patch := VectorConfig{}
		if err := json5.Unmarshal([]byte(raw), &patch); err != nil {
			slog.Warn("vector raw block ignored", "error", err)
		} else {
			v.apply(patch)
		}
	}
	v.Provider = strings.ToLower(strings.TrimSpace(v.Provider))
	switch v.Provider {
	case "", "chroma", "chromem-go":
		v.Provider = "chromem"
	case "pg", "postgres", "postgresql":
		v.Provider = "pgvector"
	}
	if v.Collection == "" {
		v.Collection = "memories"
	}
}

func (v *VectorConfig) apply(patch VectorConfig) {
	if patch.Provider != "" {
		v.Provider = patch.Provider
	}
	if patch.Path != "" {
		v.Path = patch.Path
	}
	if patch.DSN != "" {
		v.DSN = patch.DSN
	}
	if patch.Collection != "" {
		v.Collection = patch.Collection
	}
}

func (t *TracingConfig) normalize() {
	t.Protocol = strings.ToLower(strings.TrimSpace(t.Protocol))
	if t.Protocol == "" {
		t.Protocol = "grpc"
	}
	if t.ServiceName == "" {
		t.ServiceName = "engramd"
	}
}

// StripFences removes a surrounding markdown code fence, with or without a
// language tag, from a pasted block. Anything else comes back trimmed.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// Drop the language tag line, e.g. ```json.
		first := strings.TrimSpace(s[:i])
		if first == "" || !strings.ContainsAny(first, "{[") {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
