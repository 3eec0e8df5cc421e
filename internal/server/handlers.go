package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"contextanalyzer/internal/classifier"
	"contextanalyzer/internal/domain"
	"contextanalyzer/internal/hybrid"
	"contextanalyzer/internal/storage/sqlite"
	"contextanalyzer/internal/vectorsearch"
)

type HealthResponse struct {
	Status      string `json:"status"`
	State       string `json:"state"`
	Embeddings  bool   `json:"embeddings"`
	History     bool   `json:"history"`
	LiveData    bool   `json:"live_data"`
	Collections int    `json:"collections"`
}

type AnalyzeRequest struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	Impact         string `json:"impact"`
	UseCache       *bool  `json:"use_cache"`
	IncludeSimilar bool   `json:"include_similar"`
}

type ClassifyRequest struct {
	Title           string                  `json:"title"`
	Description     string                  `json:"description"`
	Impact          string                  `json:"impact"`
	PatternFeatures *domain.PatternFeatures `json:"pattern_features"`
	UseCache        *bool                   `json:"use_cache"`
}

type EmbedRequest struct {
	Text     string `json:"text"`
	UseCache *bool  `json:"use_cache"`
}

type EmbedResponse struct {
	Embedding []float32 `json:"embedding"`
	Dimension int       `json:"dimension"`
	Cached    bool      `json:"cached"`
}

type SearchRequest struct {
	Query               string   `json:"query"`
	CollectionName      string   `json:"collection_name"`
	TopK                int      `json:"top_k"`
	SimilarityThreshold *float64 `json:"similarity_threshold"`
}

type SearchResponse struct {
	Results    []domain.SearchResult `json:"results"`
	Count      int                   `json:"count"`
	Collection string                `json:"collection"`
}

type IndexRequest struct {
	CollectionName string              `json:"collection_name"`
	Items          []vectorsearch.Item `json:"items"`
	ForceReindex   bool                `json:"force_reindex"`
}

type CorrectionRequest struct {
	OriginalText      string `json:"original_text"`
	OriginalCategory  string `json:"original_category"`
	CorrectedCategory string `json:"corrected_category"`
	CorrectionNotes   string `json:"correction_notes"`
	// GlossaryPhrase, when set, also teaches the pattern analyzer the phrase.
	GlossaryPhrase string `json:"glossary_phrase"`
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{
		Status:     "ok",
		State:      string(s.deps.Hybrid.State()),
		Embeddings: s.deps.Embeddings != nil,
		History:    s.deps.DB != nil,
		LiveData:   s.deps.Hybrid.Pattern().Reference().LiveEnabled(),
	}
	if s.deps.Search != nil {
		resp.Collections = len(s.deps.Search.Collections())
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleAnalyze(c echo.Context) error {
	var req AnalyzeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if herr := required(map[string]string{"title": req.Title, "description": req.Description}); herr != nil {
		return herr
	}
	result := s.deps.Hybrid.Analyze(c.Request().Context(), hybrid.Request{
		Title:          req.Title,
		Description:    req.Description,
		Impact:         req.Impact,
		UseCache:       boolOr(req.UseCache, true),
		IncludeSimilar: req.IncludeSimilar,
	})
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleClassify(c echo.Context) error {
	if s.deps.Classifier == nil {
		return unavailable("llm classification")
	}
	var req ClassifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	result, err := s.deps.Classifier.Classify(c.Request().Context(), classifier.Request{
		Title:           req.Title,
		Description:     req.Description,
		Impact:          req.Impact,
		PatternFeatures: req.PatternFeatures,
		UseCache:        boolOr(req.UseCache, true),
	})
	if err != nil {
		return s.httpError("classify", err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleEmbed(c echo.Context) error {
	if s.deps.Embeddings == nil {
		return unavailable("embedding service")
	}
	var req EmbedRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	vec, cached, err := s.deps.Embeddings.Embed(c.Request().Context(), req.Text, boolOr(req.UseCache, true))
	if err != nil {
		return s.httpError("embed", err)
	}
	return c.JSON(http.StatusOK, EmbedResponse{Embedding: vec, Dimension: len(vec), Cached: cached})
}

func (s *Server) handleSearch(c echo.Context) error {
	if s.deps.Search == nil {
		return unavailable("vector search")
	}
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	threshold := 0.7
	if req.SimilarityThreshold != nil {
		threshold = *req.SimilarityThreshold
	}
	results, err := s.deps.Search.Search(c.Request().Context(), req.Query, req.CollectionName, req.TopK, threshold)
	if err != nil {
		return s.httpError("search", err)
	}
	if results == nil {
		results = []domain.SearchResult{}
	}
	return c.JSON(http.StatusOK, SearchResponse{Results: results, Count: len(results), Collection: req.CollectionName})
}

func (s *Server) handleIndex(c echo.Context) error {
	if s.deps.Search == nil {
		return unavailable("vector search")
	}
	var req IndexRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	result, err := s.deps.Search.Index(c.Request().Context(), req.CollectionName, req.Items, req.ForceReindex)
	if err != nil {
		return s.httpError("index", err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleCollections(c echo.Context) error {
	if s.deps.Search == nil {
		return unavailable("vector search")
	}
	return c.JSON(http.StatusOK, s.deps.Search.Collections())
}

func (s *Server) handleDeleteCollection(c echo.Context) error {
	if s.deps.Search == nil {
		return unavailable("vector search")
	}
	if err := s.deps.Search.DeleteCollection(c.Param("name")); err != nil {
		return s.httpError("delete collection", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// handleCorrection stores a user correction and makes it visible to later
// analyses in this process.
func (s *Server) handleCorrection(c echo.Context) error {
	var req CorrectionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if herr := required(map[string]string{
		"original_text":      req.OriginalText,
		"corrected_category": req.CorrectedCategory,
	}); herr != nil {
		return herr
	}
	corrected, ok := domain.ParseCategory(req.CorrectedCategory)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown corrected_category "+req.CorrectedCategory)
	}

	correction := domain.Correction{
		OriginalText:      req.OriginalText,
		OriginalCategory:  req.OriginalCategory,
		CorrectedCategory: string(corrected),
		CorrectionNotes:   req.CorrectionNotes,
		Timestamp:         time.Now().UTC(),
	}
	if s.deps.DB != nil {
		if err := sqlite.InsertCorrection(s.deps.DB, correction); err != nil {
			return s.httpError("store correction", err)
		}
	}
	analyzer := s.deps.Hybrid.Pattern()
	analyzer.Reference().AddCorrection(correction)
	if phrase := strings.TrimSpace(req.GlossaryPhrase); phrase != "" {
		if err := analyzer.AddGlossaryTerm(phrase, corrected); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	s.logger.Info("correction recorded",
		zap.String("original_category", req.OriginalCategory),
		zap.String("corrected_category", string(corrected)),
		zap.Bool("persisted", s.deps.DB != nil),
	)
	return c.JSON(http.StatusCreated, correction)
}

func (s *Server) handleStats(c echo.Context) error {
	if s.deps.DB == nil {
		return unavailable("analysis history")
	}
	stats, err := sqlite.GetAnalysisStats(s.deps.DB, s.statsSince(c))
	if err != nil {
		return s.httpError("stats", err)
	}
	return c.JSON(http.StatusOK, stats)
}
