package followup

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"sqlscout/internal/llm"
	"sqlscout/internal/logging"
	"sqlscout/internal/memory"
)

// DefaultConfidenceThreshold flags resolutions below it as low-confidence.
const DefaultConfidenceThreshold = 0.8

// Resolution is the outcome of rewriting an utterance against history.
type Resolution struct {
	ResolvedQuery     string         `json:"resolved_query"`
	Confidence        float64        `json:"confidence"`
	IsFollowup        bool           `json:"is_followup"`
	Interpretation    string         `json:"interpretation"`
	EntitiesInherited map[string]any `json:"entities_inherited"`

	// LowConfidence marks a resolution below the threshold. It is still
	// used; callers may treat it as a clarification candidate.
	LowConfidence bool `json:"-"`
}

// Resolver rewrites follow-up utterances into standalone queries.
type Resolver struct {
	client    llm.Client
	threshold float64
}

// NewResolver builds a resolver. A zero threshold uses the default.
func NewResolver(client llm.Client, threshold float64) *Resolver {
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	return &Resolver{client: client, threshold: threshold}
}

// Resolve rewrites utterance using the last 2-3 history entries. Any gateway
// or parse failure falls back to the verbatim utterance with confidence 0.5;
// resolution never blocks the pipeline.
func (r *Resolver) Resolve(ctx context.Context, utterance string, history []memory.Entry) Resolution {
	if len(history) == 0 {
		return Resolution{
			ResolvedQuery:  utterance,
			Confidence:     1.0,
			Interpretation: "First query in session",
		}
	}

	recent := history
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}

	prompt := buildResolutionPrompt(utterance, recent)

	raw, err := r.client.CompleteWithOptions(ctx, llm.Options{
		System:      "You are a precise query resolution assistant. Always respond in valid JSON.",
		Prompt:      prompt,
		Temperature: llm.Temp(0.3),
		MaxTokens:   500,
	})
	if err != nil {
		logging.Resolver("Query resolution failed (%s), using original query: %v", llm.KindOf(err), err)
		return fallback(utterance, "Resolution failed, using original query")
	}

	var res Resolution
	if err := json.Unmarshal([]byte(stripFences(raw)), &res); err != nil {
		logging.Resolver("Failed to parse resolution JSON, using original query: %v", err)
		return fallback(utterance, "Resolution failed (JSON parse error), using original query")
	}
	if res.ResolvedQuery == "" {
		res.ResolvedQuery = utterance
	}
	res.LowConfidence = res.Confidence < r.threshold
	if res.LowConfidence {
		logging.Resolver("Low-confidence resolution (%.2f < %.2f): %q", res.Confidence, r.threshold, res.ResolvedQuery)
	} else {
		logging.Resolver("Query resolved: %q -> %q (confidence: %.2f)", utterance, res.ResolvedQuery, res.Confidence)
	}
	return res
}

func fallback(utterance, interpretation string) Resolution {
	return Resolution{
		ResolvedQuery:  utterance,
		Confidence:     0.5,
		Interpretation: interpretation,
	}
}

func buildResolutionPrompt(utterance string, recent []memory.Entry) string {
	var b strings.Builder
	for i, entry := range recent {
		fmt.Fprintf(&b, "%d. Query: %q\n", i+1, entry.UserQuery)
		resolved := entry.ResolvedQuery
		if resolved == "" {
			resolved = entry.UserQuery
		}
		fmt.Fprintf(&b, "   Resolved to: %q\n", resolved)

		e := entry.KeyEntities
		if len(e.Dimensions) > 0 || len(e.Metrics) > 0 {
			fmt.Fprintf(&b, "   Dimensions: %v\n", e.Dimensions)
			fmt.Fprintf(&b, "   Metrics: %v\n", e.Metrics)
			fmt.Fprintf(&b, "   Time period: %s\n", e.TimePeriod)
			if len(e.Filters) > 0 {
				fmt.Fprintf(&b, "   Filters: %v\n", e.Filters)
			}
			if e.Limit > 0 {
				fmt.Fprintf(&b, "   Limit: %d\n", e.Limit)
			}
		}
	}

	return fmt.Sprintf(`You are a query resolution assistant for a text-to-SQL analytics system.

Previous conversation context:
%s
New user query: %q

Your task: Resolve this query into a complete, standalone natural language query that can be converted to SQL.

If it's a follow-up:
- Inherit relevant context from previous queries
- Resolve pronouns (it, that, them) to specific entities
- Expand implicit references (Q4 -> "in Q4 2024", by region -> "grouped by region")
- Keep the user's intent but make it standalone

If it's NOT a follow-up:
- Return the query unchanged

Respond in JSON format:
{
    "resolved_query": "complete standalone query",
    "confidence": 0.95,
    "is_followup": true,
    "interpretation": "User wants to see same data but for Q4",
    "entities_inherited": {"time_period": "Q4", "metrics": ["revenue"], "dimensions": ["product"]}
}`, b.String(), utterance)
}

// stripFences removes surrounding markdown code fences from a response.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	parts := strings.SplitN(s, "```", 3)
	if len(parts) < 2 {
		return s
	}
	body := parts[1]
	body = strings.TrimPrefix(body, "json")
	return strings.TrimSpace(body)
}
