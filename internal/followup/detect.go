// Package followup turns conversational utterances into standalone queries.
// Detection is a cheap deterministic pre-filter; resolution rewrites the
// utterance with LLM help and always degrades to the original text.
package followup

import (
	"strings"

	"sqlscout/internal/logging"
	"sqlscout/internal/memory"
)

var followupKeywords = []string{
	"what about", "show me", "same but", "also show",
	"compare", "versus", "vs", "by", "for", "in", "only",
	"just", "filter", "more", "less", "that", "it",
	"them", "this", "these", "previous", "last", "next",
	"and", "also", "too", "again",
}

// Entity keywords mark standalone analytical queries.
var entityKeywords = []string{
	"product", "products", "sales", "sale", "revenue", "client", "clients",
	"region", "regions", "category", "categories", "customer", "customers",
	"segment", "segments", "order", "orders", "transaction", "transactions",
	"metric", "metrics", "data", "records", "report", "reports",
}

// Complete action phrases mark standalone queries even when short.
var completeActionKeywords = []string{
	"list all", "show all", "get all", "display all",
	"show me all", "give me all", "find all",
}

// Dimension modifiers mark follow-ups even when an entity is named.
var dimensionModifiers = []string{
	"by region", "by category", "by product", "by client",
	"by customer", "by segment", "for region", "for category",
}

// Detect scores whether an utterance continues the prior conversation.
// An empty history is always (false, 1.0).
func Detect(utterance string, history []memory.Entry) (bool, float64) {
	queryLower := strings.ToLower(strings.TrimSpace(utterance))

	if len(history) == 0 {
		logging.ResolverDebug("No history for follow-up detection: %q", utterance)
		return false, 1.0
	}

	hasKeywords := containsAny(queryLower, followupKeywords)
	isShort := len(strings.Fields(utterance)) <= 4
	hasEntity := containsAny(queryLower, entityKeywords)
	hasCompleteAction := containsAny(queryLower, completeActionKeywords)
	hasDimensionModifier := containsAny(queryLower, dimensionModifiers)

	var (
		isFollowup bool
		confidence float64
		reason     string
	)
	switch {
	case hasDimensionModifier:
		isFollowup, confidence, reason = true, 0.85, "dimension modifier"
	case hasCompleteAction:
		isFollowup, confidence, reason = false, 0.9, "complete action phrase"
	case hasKeywords && isShort && !hasEntity:
		isFollowup, confidence, reason = true, 0.9, "keywords + short + no entity"
	case hasKeywords && isShort && hasEntity:
		isFollowup, confidence, reason = false, 0.7, "keywords + short + entity"
	case hasKeywords && !hasEntity:
		isFollowup, confidence, reason = true, 0.7, "keywords + no entity"
	case isShort && !hasEntity:
		isFollowup, confidence, reason = true, 0.6, "short + no entity"
	default:
		isFollowup, confidence, reason = false, 0.8, "appears to be new query"
	}

	logging.Resolver("Follow-up detection: query=%q -> is_followup=%v, confidence=%.2f (%s)", utterance, isFollowup, confidence, reason)
	return isFollowup, confidence
}

func containsAny(s string, substrings []string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
