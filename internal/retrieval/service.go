package retrieval

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sentra/internal/reranker"
)

// Config holds query-path tuning knobs.
type Config struct {
	// TopK is the candidate count fetched from the store. Default: 20.
	TopK int

	// TopN is the candidate count kept after reranking. Default: 5.
	TopN int

	// MaxContextChars bounds the synthesis context. Default: 6000.
	MaxContextChars int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.TopK <= 0 {
		c.TopK = 20
	}
	if c.TopN <= 0 {
		c.TopN = 5
	}
	if c.TopN > c.TopK {
		c.TopN = c.TopK
	}
	if c.MaxContextChars <= 0 {
		c.MaxContextChars = defaultMaxContextChars
	}
}

// Service runs the full query pipeline: retrieve, rerank, synthesize.
type Service struct {
	config      Config
	retriever   *Retriever
	reranker    reranker.Reranker
	synthesizer *Synthesizer
	logger      *zap.Logger
}

// NewService creates a retrieval Service.
func NewService(config Config, retriever *Retriever, rr reranker.Reranker, synthesizer *Synthesizer, logger *zap.Logger) *Service {
	config.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		config:      config,
		retriever:   retriever,
		reranker:    rr,
		synthesizer: synthesizer,
		logger:      logger,
	}
}

// Ask answers a query from the requester's authorized document subset.
//
// Retrieval and generation failures are hard errors. Reranker failure is
// not: candidates pass through in original order, truncated to top N.
func (s *Service) Ask(ctx context.Context, req QueryRequest) (Answer, error) {
	topK := req.TopK
	if topK <= 0 || topK > s.config.TopK {
		topK = s.config.TopK
	}

	candidates, err := s.retriever.Retrieve(ctx, req, topK)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieving candidates: %w", err)
	}

	ranked := s.rerank(ctx, req.Query, candidates)

	answer, err := s.synthesizer.Synthesize(ctx, req.Query, ranked)
	if err != nil {
		return Answer{}, err
	}

	s.logger.Debug("query answered",
		zap.String("user_id", req.Identity.UserID),
		zap.Int("candidates", len(candidates)),
		zap.Int("sources", len(answer.Sources)),
	)
	return answer, nil
}

// rerank re-orders candidates, degrading to pass-through on scorer failure.
func (s *Service) rerank(ctx context.Context, query string, candidates []Candidate) []Candidate {
	docs := make([]reranker.Document, len(candidates))
	byID := make(map[string]Candidate, len(candidates))
	for i, c := range candidates {
		docs[i] = reranker.Document{ID: c.ID, Content: c.Text, Score: c.Score}
		byID[c.ID] = c
	}

	scored, err := s.reranker.Rerank(ctx, query, docs, s.config.TopN)
	if err != nil {
		s.logger.Warn("reranker failed, passing candidates through", zap.Error(err))
		if len(candidates) > s.config.TopN {
			return candidates[:s.config.TopN]
		}
		return candidates
	}

	ranked := make([]Candidate, 0, len(scored))
	for _, doc := range scored {
		ranked = append(ranked, byID[doc.ID])
	}
	return ranked
}
