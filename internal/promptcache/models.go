package promptcache

import (
	"slices"
	"strings"
)

// ModelInfo contains the static facts about a model that annotation and
// request building need.
type ModelInfo struct {
	// ID is the model identifier used in API calls
	ID string `json:"id"`

	// Name is the human-readable display name
	Name string `json:"name"`

	// MaxTokens is the maximum context window size
	MaxTokens int `json:"max_tokens"`

	// PromptCaching reports whether the model supports the prompt-caching
	// beta feature
	PromptCaching bool `json:"prompt_caching"`
}

// models is the registry of known models, keyed by API model identifier.
// Defined at process start and never modified afterwards.
var models = map[string]ModelInfo{
	"claude-3-5-sonnet-20241022": {
		ID:            "claude-3-5-sonnet-20241022",
		Name:          "Claude 3.5 Sonnet",
		MaxTokens:     200000,
		PromptCaching: true,
	},
	"claude-3-5-sonnet-20240620": {
		ID:            "claude-3-5-sonnet-20240620",
		Name:          "Claude 3.5 Sonnet (June)",
		MaxTokens:     200000,
		PromptCaching: true,
	},
	"claude-3-5-haiku-20241022": {
		ID:            "claude-3-5-haiku-20241022",
		Name:          "Claude 3.5 Haiku",
		MaxTokens:     200000,
		PromptCaching: true,
	},
	"claude-3-opus-20240229": {
		ID:            "claude-3-opus-20240229",
		Name:          "Claude 3 Opus",
		MaxTokens:     200000,
		PromptCaching: true,
	},
	"claude-3-haiku-20240307": {
		ID:            "claude-3-haiku-20240307",
		Name:          "Claude 3 Haiku",
		MaxTokens:     200000,
		PromptCaching: true,
	},
	"claude-3-sonnet-20240229": {
		ID:            "claude-3-sonnet-20240229",
		Name:          "Claude 3 Sonnet",
		MaxTokens:     200000,
		PromptCaching: false,
	},
	"claude-2.1": {
		ID:            "claude-2.1",
		Name:          "Claude 2.1",
		MaxTokens:     200000,
		PromptCaching: false,
	},
	"claude-instant-1.2": {
		ID:            "claude-instant-1.2",
		Name:          "Claude Instant 1.2",
		MaxTokens:     100000,
		PromptCaching: false,
	},
}

// Models returns all registry entries, sorted by identifier.
func Models() []ModelInfo {
	list := make([]ModelInfo, 0, len(models))
	for _, info := range models {
		list = append(list, info)
	}
	slices.SortFunc(list, func(a, b ModelInfo) int {
		return strings.Compare(a.ID, b.ID)
	})
	return list
}

// Lookup returns the registry entry for a model identifier.
func Lookup(modelID string) (ModelInfo, bool) {
	info, ok := models[modelID]
	return info, ok
}

// SupportsPromptCaching reports whether a model supports the prompt-caching
// beta. Unknown models degrade to false rather than erroring, so requests
// for them fall back to the plain send path.
func SupportsPromptCaching(modelID string) bool {
	info, ok := models[modelID]
	return ok && info.PromptCaching
}
