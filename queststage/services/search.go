package services

import (
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/queststage/queststage/queststage/database/models"
)

// threadSearchItems implements fuzzy.Source for thread searching
type threadSearchItems []threadSearchItem

type threadSearchItem struct {
	Thread *models.DialogueThread
	Name   string
}

func (items threadSearchItems) Len() int {
	return len(items)
}

func (items threadSearchItems) String(i int) string {
	return items[i].Name
}

// SearchService matches dialogue threads against free-text admin queries.
type SearchService struct{}

func NewSearchService() *SearchService {
	return &SearchService{}
}

// SearchThreads ranks threads by fuzzy relevance against query. An empty
// query returns the input unchanged. Kind filters to LEAKED or
// INTERACTIVE when non-empty.
func (s *SearchService) SearchThreads(threads []*models.DialogueThread, query string, kind string) []*models.DialogueThread {
	if kind != "" {
		filtered := make([]*models.DialogueThread, 0, len(threads))
		for _, t := range threads {
			if t.Kind == kind {
				filtered = append(filtered, t)
			}
		}
		threads = filtered
	}

	if query == "" {
		return threads
	}

	searchItems := make(threadSearchItems, len(threads))
	for i, t := range threads {
		searchItems[i] = threadSearchItem{
			Thread: t,
			Name:   normalizeSearchText(t.DisplayTitle() + " " + t.Key),
		}
	}

	matches := fuzzy.FindFrom(normalizeSearchText(query), searchItems)

	results := make([]*models.DialogueThread, len(matches))
	for i, match := range matches {
		results[i] = searchItems[match.Index].Thread
	}
	return results
}

// SearchSingleThread finds the best matching thread, or nil when nothing
// matches.
func (s *SearchService) SearchSingleThread(threads []*models.DialogueThread, query string) *models.DialogueThread {
	results := s.SearchThreads(threads, query, "")
	if len(results) == 0 {
		return nil
	}
	return results[0]
}

func normalizeSearchText(text string) string {
	normalized := strings.ReplaceAll(text, "_", " ")
	normalized = strings.ReplaceAll(normalized, "-", " ")
	normalized = strings.ToLower(normalized)
	return strings.Join(strings.Fields(normalized), " ")
}
