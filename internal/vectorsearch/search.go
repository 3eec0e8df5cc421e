// Package vectorsearch indexes issues per collection and finds similar ones
// by embedding similarity. Collections live in process memory only.
package vectorsearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"contextanalyzer/internal/domain"
)

const DefaultTopK = 5

var (
	ErrEmptyQuery         = errors.New("query cannot be empty")
	ErrEmptyCollection    = errors.New("collection name cannot be empty")
	ErrCollectionNotFound = errors.New("collection not found")
)

// Embedder is satisfied by *embedding.Service.
type Embedder interface {
	Embed(ctx context.Context, text string, useCache bool) ([]float32, bool, error)
}

type Item struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func (it Item) text() string {
	return strings.TrimSpace(it.Title + "\n" + it.Description)
}

type IndexResult struct {
	IndexedCount int      `json:"indexed_count"`
	SkippedCount int      `json:"skipped_count"`
	FailedIDs    []string `json:"failed_ids,omitempty"`
	Success      bool     `json:"success"`
}

type CollectionInfo struct {
	Name     string `json:"name"`
	Items    int    `json:"items"`
	Embedded int    `json:"embedded"`
}

// collectionState mirrors the items of one chromem collection, in insertion
// order, for lookups and the lexical fallback.
type collectionState struct {
	items   []Item
	byID    map[string]int
	lexical *lexicalIndex
}

func (c *collectionState) rebuildLexical() {
	texts := make([]string, len(c.items))
	for i, it := range c.items {
		texts[i] = it.text()
	}
	c.lexical = buildLexicalIndex(texts)
}

type Service struct {
	db       *chromem.DB
	embedder Embedder
	logger   *zap.Logger

	mu          sync.Mutex
	collections map[string]*collectionState
}

func New(embedder Embedder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:          chromem.NewDB(),
		embedder:    embedder,
		logger:      logger,
		collections: make(map[string]*collectionState),
	}
}

func (s *Service) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		vec, _, err := s.embedder.Embed(ctx, text, true)
		return vec, err
	}
}

// Index adds items to collection, creating it if needed. Items whose ID is
// already indexed are skipped unless forceReindex, which rebuilds the whole
// collection from items. An item whose embedding fails is still searchable
// lexically and is listed in FailedIDs.
func (s *Service) Index(ctx context.Context, collection string, items []Item, forceReindex bool) (IndexResult, error) {
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return IndexResult{}, ErrEmptyCollection
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if forceReindex {
		if err := s.db.DeleteCollection(collection); err != nil {
			return IndexResult{}, fmt.Errorf("reset collection %s: %w", collection, err)
		}
		delete(s.collections, collection)
	}
	col, err := s.db.GetOrCreateCollection(collection, nil, s.embeddingFunc())
	if err != nil {
		return IndexResult{}, fmt.Errorf("getting/creating collection %s: %w", collection, err)
	}
	state, ok := s.collections[collection]
	if !ok {
		state = &collectionState{byID: make(map[string]int)}
		s.collections[collection] = state
	}

	var result IndexResult
	var docs []chromem.Document
	for _, it := range items {
		it.ID = strings.TrimSpace(it.ID)
		if it.ID == "" || it.text() == "" {
			result.SkippedCount++
			continue
		}
		if _, exists := state.byID[it.ID]; exists {
			result.SkippedCount++
			continue
		}
		state.byID[it.ID] = len(state.items)
		state.items = append(state.items, it)
		result.IndexedCount++

		vec, _, err := s.embedder.Embed(ctx, it.text(), true)
		if err != nil {
			s.logger.Warn("embedding failed, item is lexical only",
				zap.String("collection", collection),
				zap.String("id", it.ID),
				zap.Error(err),
			)
			result.FailedIDs = append(result.FailedIDs, it.ID)
			continue
		}
		meta, err := encodeMetadata(it)
		if err != nil {
			return result, err
		}
		docs = append(docs, chromem.Document{
			ID:        it.ID,
			Content:   it.text(),
			Metadata:  meta,
			Embedding: vec,
		})
	}

	if len(docs) > 0 {
		if err := col.AddDocuments(ctx, docs, 1); err != nil {
			return result, fmt.Errorf("adding documents: %w", err)
		}
	}
	state.rebuildLexical()
	result.Success = len(result.FailedIDs) == 0

	s.logger.Info("indexed collection",
		zap.String("collection", collection),
		zap.Int("indexed", result.IndexedCount),
		zap.Int("skipped", result.SkippedCount),
		zap.Int("failed", len(result.FailedIDs)),
	)
	return result, nil
}

// Search returns up to topK items with similarity >= threshold, best first.
// When the query cannot be embedded it falls back to TF-IDF similarity and
// marks each result's metadata with match=lexical.
func (s *Service) Search(ctx context.Context, query, collection string, topK int, threshold float64) ([]domain.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	if err := s.requireCollection(collection); err != nil {
		return nil, err
	}

	// mu is not held across embedding calls.
	if _, _, err := s.embedder.Embed(ctx, query, true); err != nil {
		s.logger.Warn("query embedding failed, using lexical search",
			zap.String("collection", collection),
			zap.Error(err),
		)
		s.mu.Lock()
		defer s.mu.Unlock()
		state, ok := s.collections[collection]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
		}
		return s.lexicalSearch(state, query, topK, threshold), nil
	}

	col := s.db.GetCollection(collection, s.embeddingFunc())
	if col == nil {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	n := col.Count()
	if n == 0 {
		return []domain.SearchResult{}, nil
	}
	if topK < n {
		n = topK
	}
	// Query re-embeds via the cached embedder.
	hits, err := col.Query(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", collection, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	results := make([]domain.SearchResult, 0, len(hits))
	for _, h := range hits {
		sim := float64(h.Similarity)
		if sim < threshold {
			continue
		}
		results = append(results, toResult(state, h.ID, sim))
	}
	return results, nil
}

func (s *Service) requireCollection(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; !ok {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return nil
}

func (s *Service) lexicalSearch(state *collectionState, query string, topK int, threshold float64) []domain.SearchResult {
	results := []domain.SearchResult{}
	if state.lexical == nil {
		return results
	}
	for _, hit := range state.lexical.search(query, topK) {
		if hit.score < threshold {
			continue
		}
		r := toResult(state, state.items[hit.index].ID, hit.score)
		r.Metadata = withMatch(r.Metadata, "lexical")
		results = append(results, r)
	}
	return results
}

func toResult(state *collectionState, id string, similarity float64) domain.SearchResult {
	r := domain.SearchResult{ItemID: id, Similarity: similarity}
	if i, ok := state.byID[id]; ok {
		it := state.items[i]
		r.Title, r.Description, r.Metadata = it.Title, it.Description, it.Metadata
	}
	return r
}

func withMatch(meta map[string]any, match string) map[string]any {
	out := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out["match"] = match
	return out
}

// encodeMetadata flattens item fields into chromem's string metadata.
func encodeMetadata(it Item) (map[string]string, error) {
	meta := map[string]string{
		"title":       it.Title,
		"description": it.Description,
	}
	if len(it.Metadata) > 0 {
		raw, err := json.Marshal(it.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode metadata for %s: %w", it.ID, err)
		}
		meta["metadata"] = string(raw)
	}
	return meta, nil
}

// Collections lists indexed collections sorted by name.
func (s *Service) Collections() []CollectionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]CollectionInfo, 0, len(s.collections))
	for name, state := range s.collections {
		info := CollectionInfo{Name: name, Items: len(state.items)}
		if col := s.db.GetCollection(name, s.embeddingFunc()); col != nil {
			info.Embedded = col.Count()
		}
		out = append(out, info)
	}
	sortInfos(out)
	return out
}

func (s *Service) DeleteCollection(collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection]; !ok {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	if err := s.db.DeleteCollection(collection); err != nil {
		return fmt.Errorf("delete collection %s: %w", collection, err)
	}
	delete(s.collections, collection)
	return nil
}

func sortInfos(infos []CollectionInfo) {
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
}
