package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// DatasetDescriptor is one dataset entry enumerated by a SearchIndex:
// its external id, its publisher, and the URL its archive can be
// downloaded from.
type DatasetDescriptor struct {
	ID        string
	Publisher string
	URL       string
}

// SearchIndex enumerates every dataset available to the crawler.
type SearchIndex interface {
	Datasets(ctx context.Context) ([]DatasetDescriptor, error)
}

const scrollTimeout = "1m"

const searchQuery = `{
	"query": {
		"bool": {
			"filter": [
				{"term": {"internal-source": "gfbio-abcd-collections"}},
				{"match_phrase": {"type": "ABCD_Dataset"}},
				{"term": {"accessRestricted": false}}
			]
		}
	}
}`

type searchHitSource struct {
	CitationPublisher string `json:"citation_publisher"`
	Datalink          string `json:"datalink"`
}

type searchHit struct {
	ID     string          `json:"_id"`
	Source searchHitSource `json:"_source"`
}

type searchResult struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
}

// scrollSearchIndex is the default SearchIndex: an Elasticsearch-style
// scroll client, modeled on the gfbio Pangaea search index.
type scrollSearchIndex struct {
	client    *http.Client
	searchURL string
	scrollURL string
}

// NewScrollSearchIndex returns a SearchIndex that pages through
// searchURL/scrollURL using the scroll API, or http.DefaultClient if
// client is nil.
func NewScrollSearchIndex(client *http.Client, searchURL, scrollURL string) SearchIndex {
	if client == nil {
		client = http.DefaultClient
	}
	return &scrollSearchIndex{client: client, searchURL: searchURL, scrollURL: scrollURL}
}

func (s *scrollSearchIndex) Datasets(ctx context.Context) ([]DatasetDescriptor, error) {
	var all []DatasetDescriptor

	result, err := s.firstPage(ctx)
	if err != nil {
		return nil, err
	}

	for len(result.Hits.Hits) > 0 {
		for _, hit := range result.Hits.Hits {
			all = append(all, DatasetDescriptor{
				ID:        hit.ID,
				Publisher: hit.Source.CitationPublisher,
				URL:       hit.Source.Datalink,
			})
		}

		result, err = s.nextPage(ctx, result.ScrollID)
		if err != nil {
			return nil, err
		}
	}

	return all, nil
}

func (s *scrollSearchIndex) firstPage(ctx context.Context) (*searchResult, error) {
	url := fmt.Sprintf("%s?scroll=%s", s.searchURL, scrollTimeout)
	return s.post(ctx, url, []byte(searchQuery))
}

func (s *scrollSearchIndex) nextPage(ctx context.Context, scrollID string) (*searchResult, error) {
	body, err := json.Marshal(struct {
		Scroll   string `json:"scroll"`
		ScrollID string `json:"scroll_id"`
	}{Scroll: scrollTimeout, ScrollID: scrollID})
	if err != nil {
		return nil, fmt.Errorf("fetch: encode scroll request: %w", err)
	}
	return s.post(ctx, s.scrollURL, body)
}

func (s *scrollSearchIndex) post(ctx context.Context, url string, body []byte) (*searchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("fetch: build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: search request: %w", err)
	}
	defer resp.Body.Close()

	var result searchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("fetch: decode search response: %w", err)
	}
	return &result, nil
}
