package organizer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nomadcxx/jellysort/internal/catalog"
	"github.com/Nomadcxx/jellysort/internal/lifecycle"
	"github.com/Nomadcxx/jellysort/internal/naming"
	"github.com/Nomadcxx/jellysort/internal/transfer"
)

func TestOverallConfidence(t *testing.T) {
	tests := []struct {
		parse, match, want float64
	}{
		{0.9, 0.8, 0.85},
		{0.9, 0, 0.45},
		{1, 1, 1},
		{0, 0, 0},
		{1.4, 1, 1},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, OverallConfidence(tt.parse, tt.match), 1e-9)
	}
}

func TestIdentify_AnimeCategoryFolder(t *testing.T) {
	cat := catalog.NewStatic().AddShow(catalog.Candidate{
		ExternalID: "a1", Title: "Frieren", Year: naming.IntPtr(2023), MediaType: naming.MediaTV,
	})
	strategy := CategoryStrategy{
		Enabled:       true,
		AnimeKeywords: []string{"anime"},
		Folders:       FolderNames{Anime: "Anime", Movie: "Movies", TV: "TV Shows"},
	}
	id := NewIdentifier(DefaultConfig(), nil, nil, catalog.NewMatcher(cat, nil),
		NewCategoryCache(nil, strategy), nil)

	res, err := id.Identify(context.Background(), "/downloads/anime/Frieren.S01E03.1080p.mkv",
		IdentifyOptions{Layout: naming.DefaultLayoutConfig()})
	require.NoError(t, err)
	assert.Equal(t, naming.MediaAnime, res.MediaType)
	assert.Equal(t, "Anime/Frieren (2023)/Season 01", res.Dir)
	assert.Equal(t, "Frieren - S01E03.mkv", res.File)
}

func TestIdentify_ParseFailureNeedsConfirmation(t *testing.T) {
	id := NewIdentifier(DefaultConfig(), nil, nil, nil, nil, nil)
	res, err := id.Identify(context.Background(), "/x/abc.mkv", IdentifyOptions{Layout: naming.DefaultLayoutConfig()})
	require.NoError(t, err)
	assert.True(t, res.NeedsConfirmation)
	assert.Nil(t, res.Match)
	assert.NotEmpty(t, res.Reason)
}

func TestIdentify_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	id := NewIdentifier(DefaultConfig(), nil, nil, nil, nil, nil)
	_, err := id.Identify(ctx, "/x/Movie.2020.mkv", IdentifyOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCategoryStrategy_Detect(t *testing.T) {
	s := CategoryStrategy{Enabled: true, AnimeKeywords: []string{"アニメ", "anime"}}
	tv := naming.ParsedInfo{MediaType: naming.MediaTV, Season: naming.IntPtr(1), Episode: naming.IntPtr(1)}
	movie := naming.ParsedInfo{MediaType: naming.MediaMovie, Year: naming.IntPtr(2001)}

	assert.Equal(t, naming.MediaAnime, s.Detect("/media/アニメ/x.mkv", tv))
	assert.Equal(t, naming.MediaTV, s.Detect("/media/shows/x.mkv", tv))
	assert.Equal(t, naming.MediaMovie, s.Detect("/media/anime/x.mkv", movie))

	s.Enabled = false
	assert.Equal(t, naming.MediaTV, s.Detect("/media/anime/x.mkv", tv))
	assert.Equal(t, "", s.FolderFor(naming.MediaTV))
}

func TestCategoryCache_LoadsAndSaves(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	fallback := CategoryStrategy{Folders: FolderNames{Movie: "Movies"}}

	c := NewCategoryCache(db, fallback)
	got, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Movies", got.Folders.Movie)

	saved := CategoryStrategy{Enabled: true, AnimeKeywords: []string{"anime"}, Folders: FolderNames{Anime: "Cartoons"}}
	require.NoError(t, c.Save(ctx, saved))

	fresh := NewCategoryCache(db, fallback)
	got, err = fresh.Get(ctx)
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	assert.Equal(t, "Cartoons", got.Folders.Anime)
}

func TestParseAlgorithm(t *testing.T) {
	for in, want := range map[string]Algorithm{
		"":            AlgorithmStandard,
		"standard":    AlgorithmStandard,
		"AI_ENHANCED": AlgorithmAIEnhanced,
		"ai_only":     AlgorithmAIOnly,
	} {
		got, err := ParseAlgorithm(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseAlgorithm("magic")
	assert.Error(t, err)
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorCode
	}{
		{itemErr(CodeNoCatalogMatch, "x", nil), CodeNoCatalogMatch},
		{fmt.Errorf("wrap: %w", &lifecycle.TransitionError{From: lifecycle.StatusRenamed, To: lifecycle.StatusScanned}), CodeInvalidStateTransition},
		{&transfer.PathSecurityError{Path: "/etc"}, CodePathSecurityViolation},
		{fmt.Errorf("%w: /a", transfer.ErrSourceNotFound), CodeSourceMissing},
		{fmt.Errorf("%w: /b", transfer.ErrDestinationExists), CodeFilesystemConflict},
		{errors.New("disk on fire"), CodeTransferFailed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CodeOf(tt.err), tt.err.Error())
	}
	assert.Equal(t, ErrorCode(""), CodeOf(nil))
}
