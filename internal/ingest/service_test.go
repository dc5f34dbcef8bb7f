package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/sentra/internal/retrieval"
	"github.com/fyrsmithlabs/sentra/internal/vectorstore"
)

type fixedEmbedder struct {
	vector []float32
}

func (e *fixedEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return e.vector, nil
}

func (e *fixedEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.vector
	}
	return out, nil
}

func TestResolveAudience(t *testing.T) {
	tests := []struct {
		name      string
		audience  string
		custom    []string
		wantRoles []string
		wantErr   bool
	}{
		{name: "all is unrestricted", audience: "all", wantRoles: []string{}},
		{name: "blank defaults to all", audience: "", wantRoles: []string{}},
		{name: "managers", audience: "managers", wantRoles: []string{"manager", "admin"}},
		{name: "employees", audience: "employees", wantRoles: []string{"staff"}},
		{name: "custom with roles", audience: "custom", custom: []string{"auditor", "legal"}, wantRoles: []string{"auditor", "legal"}},
		{name: "custom without roles", audience: "custom", wantErr: true},
		{name: "custom with blank roles only", audience: "custom", custom: []string{"", ""}, wantErr: true},
		{name: "unknown audience", audience: "everyone", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveAudience(tt.audience, tt.custom)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAudience)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRoles, got)
		})
	}
}

func TestUploadStoresChunksWithAccessPayload(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	svc := NewService(Config{Collection: "documents", ChunkLen: 30}, store, &fixedEmbedder{vector: []float32{1, 0}}, nil)

	uploader := retrieval.Identity{
		UserID: "dana", Role: "manager", Level: 4, Dept: "engineering", Project: "apollo",
	}
	ids, err := svc.Upload(context.Background(), uploader, Document{
		Filename: "handbook.txt",
		Text:     "first part of the handbook text second part of the handbook text",
		Audience: AudienceManagers,
	})
	require.NoError(t, err)
	require.NotEmpty(t, ids)

	points, err := store.Scroll(context.Background(), "documents", nil, false)
	require.NoError(t, err)
	require.Len(t, points, len(ids))

	for _, p := range points {
		assert.Equal(t, "handbook.txt", p.Payload["filename"])
		assert.Equal(t, "dana", p.Payload["uploader"])
		assert.Equal(t, int64(4), p.Payload["uploader_level"])
		assert.Equal(t, "engineering", p.Payload["dept"])
		assert.Equal(t, "apollo", p.Payload["project"])
		assert.Equal(t, []string{"manager", "admin"}, p.Payload["allow_roles"])
		assert.NotEmpty(t, p.Payload["text"])
	}
}

func TestUploadedDocumentIsRetrievableUnderFilter(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	embedder := &fixedEmbedder{vector: []float32{1, 0}}
	svc := NewService(Config{Collection: "documents"}, store, embedder, nil)

	uploader := retrieval.Identity{UserID: "dana", Role: "manager", Level: 4, Dept: "engineering", Project: "apollo"}
	_, err := svc.Upload(context.Background(), uploader, Document{
		Filename: "plan.txt",
		Text:     "the quarterly plan",
		Audience: AudienceAll,
	})
	require.NoError(t, err)

	retriever := retrieval.NewRetriever(store, embedder, "documents")

	// Same dept/project at sufficient level sees it.
	got, err := retriever.Retrieve(context.Background(), retrieval.QueryRequest{
		Query:    "plan",
		Identity: retrieval.Identity{Role: "staff", Level: 4, Dept: "engineering", Project: "apollo"},
	}, 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	// Lower level does not.
	got, err = retriever.Retrieve(context.Background(), retrieval.QueryRequest{
		Query:    "plan",
		Identity: retrieval.Identity{Role: "staff", Level: 3, Dept: "engineering", Project: "apollo"},
	}, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUploadEmptyDocument(t *testing.T) {
	svc := NewService(Config{Collection: "documents"}, vectorstore.NewMemoryStore(), &fixedEmbedder{vector: []float32{1}}, nil)

	_, err := svc.Upload(context.Background(), retrieval.Identity{}, Document{Filename: "empty.txt", Text: "   "})
	assert.ErrorIs(t, err, ErrEmptyDocument)
}
