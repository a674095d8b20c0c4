package conversation

import (
	"slices"
	"strings"

	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/domain"
)

// SearchType restricts which fields Search looks at.
type SearchType string

// Search types.
const (
	SearchAll     SearchType = "all"
	SearchTitle   SearchType = "title"
	SearchContent SearchType = "content"
	SearchTags    SearchType = "tags"
)

const (
	titleScore   = 10
	tagScore     = 5
	messageScore = 1
)

// SearchOptions configures Search. An empty Type searches everything; a
// non-positive Limit returns all matches.
type SearchOptions struct {
	Type  SearchType
	Limit int
}

// SearchResult is one scored match.
type SearchResult struct {
	Conversation domain.Conversation `json:"conversation"`
	Score        int                 `json:"score"`
}

// Search scores conversations against a case-insensitive query: a title hit
// is worth 10, each matching tag 5 and each matching message 1.
func (s *Store) Search(query string, opts SearchOptions) []SearchResult {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil
	}
	kind := opts.Type
	if kind == "" {
		kind = SearchAll
	}

	s.mu.RLock()
	var results []SearchResult
	for _, conv := range s.conversations {
		if score := scoreConversation(conv, needle, kind); score > 0 {
			results = append(results, SearchResult{Conversation: conv.Clone(), Score: score})
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(results, func(a, b SearchResult) int {
		if a.Score != b.Score {
			return b.Score - a.Score
		}
		return b.Conversation.Metadata.UpdatedAt.Compare(a.Conversation.Metadata.UpdatedAt)
	})

	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results
}

func scoreConversation(conv *domain.Conversation, needle string, kind SearchType) int {
	score := 0

	if kind == SearchAll || kind == SearchTitle {
		if strings.Contains(strings.ToLower(conv.Title), needle) {
			score += titleScore
		}
	}

	if kind == SearchAll || kind == SearchTags {
		for _, tag := range conv.Tags {
			if strings.Contains(strings.ToLower(tag), needle) {
				score += tagScore
			}
		}
	}

	if kind == SearchAll || kind == SearchContent {
		for _, m := range conv.Messages {
			if strings.Contains(strings.ToLower(m.Content), needle) {
				score += messageScore
			}
		}
	}

	return score
}
