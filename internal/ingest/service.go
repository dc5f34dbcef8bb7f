package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sentra/internal/embeddings"
	"github.com/fyrsmithlabs/sentra/internal/retrieval"
	"github.com/fyrsmithlabs/sentra/internal/vectorstore"
)

// Audience values accepted on upload.
const (
	AudienceAll       = "all"
	AudienceManagers  = "managers"
	AudienceEmployees = "employees"
	AudienceCustom    = "custom"
)

var (
	// ErrInvalidAudience indicates an unknown audience value, or a custom
	// audience without roles.
	ErrInvalidAudience = errors.New("invalid audience")

	// ErrEmptyDocument indicates a document with no extractable text.
	ErrEmptyDocument = errors.New("document has no text")
)

// Document is an upload request.
type Document struct {
	Filename    string
	Text        string
	Audience    string
	CustomRoles []string
}

// Config holds ingestion configuration.
type Config struct {
	// Collection is the documents collection name.
	Collection string

	// ChunkLen is the character budget per chunk. Default: 800.
	ChunkLen int
}

// Service chunks, embeds, and stores uploaded documents together with the
// uploader's authorization attributes.
type Service struct {
	config   Config
	store    vectorstore.Store
	embedder embeddings.Embedder
	logger   *zap.Logger
}

// NewService creates an ingestion Service.
func NewService(config Config, store vectorstore.Store, embedder embeddings.Embedder, logger *zap.Logger) *Service {
	if config.ChunkLen <= 0 {
		config.ChunkLen = defaultChunkLen
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		config:   config,
		store:    store,
		embedder: embedder,
		logger:   logger,
	}
}

// Upload stores a document on behalf of the uploader and returns the stored
// chunk IDs. Every chunk carries the uploader's dept, project, and level plus
// the resolved allow_roles list, which the retriever's access filter
// evaluates at search time.
func (s *Service) Upload(ctx context.Context, uploader retrieval.Identity, doc Document) ([]string, error) {
	allowRoles, err := resolveAudience(doc.Audience, doc.CustomRoles)
	if err != nil {
		return nil, err
	}

	chunks := Chunk(doc.Text, s.config.ChunkLen)
	if len(chunks) == 0 {
		return nil, ErrEmptyDocument
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("embedding chunks: %w", err)
	}

	points := make([]vectorstore.Point, len(chunks))
	ids := make([]string, len(chunks))
	for i, text := range chunks {
		id := uuid.New().String()
		ids[i] = id
		points[i] = vectorstore.Point{
			ID:     id,
			Vector: vectors[i],
			Payload: map[string]any{
				"text":           text,
				"filename":       doc.Filename,
				"uploader":       uploader.UserID,
				"uploader_role":  uploader.Role,
				"uploader_level": int64(uploader.Level),
				"dept":           uploader.Dept,
				"project":        uploader.Project,
				"audience":       doc.Audience,
				"allow_roles":    allowRoles,
			},
		}
	}

	if err := s.store.Upsert(ctx, s.config.Collection, points); err != nil {
		return nil, fmt.Errorf("storing chunks: %w", err)
	}

	s.logger.Info("document ingested",
		zap.String("filename", doc.Filename),
		zap.String("uploader", uploader.UserID),
		zap.Int("chunks", len(chunks)),
	)
	return ids, nil
}

// resolveAudience maps an audience selection to an allow_roles list.
// "all" maps to an empty list, which the access filter treats as
// unrestricted within the uploader's dept, project, and level.
func resolveAudience(audience string, customRoles []string) ([]string, error) {
	switch audience {
	case AudienceAll, "":
		return []string{}, nil
	case AudienceManagers:
		return []string{"manager", "admin"}, nil
	case AudienceEmployees:
		return []string{"staff"}, nil
	case AudienceCustom:
		roles := make([]string, 0, len(customRoles))
		for _, r := range customRoles {
			if r != "" {
				roles = append(roles, r)
			}
		}
		if len(roles) == 0 {
			return nil, fmt.Errorf("%w: custom audience requires roles", ErrInvalidAudience)
		}
		return roles, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidAudience, audience)
	}
}
