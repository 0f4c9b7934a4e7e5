package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Nomadcxx/jellysort/internal/config"
	"github.com/Nomadcxx/jellysort/internal/naming"
)

// tmdbResult is a single TMDB search hit. Movies use title/release_date,
// shows use name/first_air_date.
type tmdbResult struct {
	ID               int64  `json:"id"`
	Title            string `json:"title"`
	Name             string `json:"name"`
	OriginalTitle    string `json:"original_title"`
	OriginalName     string `json:"original_name"`
	Overview         string `json:"overview"`
	ReleaseDate      string `json:"release_date"`
	FirstAirDate     string `json:"first_air_date"`
	PosterPath       string `json:"poster_path"`
	BackdropPath     string `json:"backdrop_path"`
	GenreIDs         []int  `json:"genre_ids"`
	OriginalLanguage string `json:"original_language"`
}

type tmdbResponse struct {
	Page    int          `json:"page"`
	Results []tmdbResult `json:"results"`
}

type tmdbEpisode struct {
	Name          string `json:"name"`
	Overview      string `json:"overview"`
	SeasonNumber  int    `json:"season_number"`
	EpisodeNumber int    `json:"episode_number"`
	AirDate       string `json:"air_date"`
}

// tmdbAnimationGenre is TMDB's genre id for animation.
const tmdbAnimationGenre = 16

// TMDBClient implements Catalog against the TMDB v3 API.
type TMDBClient struct {
	apiKey     string
	baseURL    string
	imageURL   string
	language   string
	httpClient *http.Client
}

var _ Catalog = (*TMDBClient)(nil)

// TMDBOption configures a TMDBClient.
type TMDBOption func(*TMDBClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) TMDBOption {
	return func(c *TMDBClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithImageURL sets the base used to build poster and fanart URLs.
func WithImageURL(base string) TMDBOption {
	return func(c *TMDBClient) {
		c.imageURL = strings.TrimRight(strings.TrimSpace(base), "/")
	}
}

// WithLanguage sets the language parameter sent with every request.
func WithLanguage(lang string) TMDBOption {
	return func(c *TMDBClient) {
		c.language = strings.TrimSpace(lang)
	}
}

// NewTMDB creates a TMDB client.
func NewTMDB(apiKey, baseURL string, opts ...TMDBOption) (*TMDBClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("tmdb api key required")
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("tmdb base url required")
	}
	c := &TMDBClient{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FromConfig builds the configured Catalog. A missing API key or provider
// "none" yields None so previews still work offline.
func FromConfig(cfg config.CatalogConfig) (Catalog, error) {
	if strings.EqualFold(cfg.Provider, "none") || strings.TrimSpace(cfg.TMDBAPIKey) == "" {
		return None{}, nil
	}
	if !strings.EqualFold(cfg.Provider, "tmdb") && cfg.Provider != "" {
		return nil, fmt.Errorf("unknown catalog provider %q", cfg.Provider)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return NewTMDB(cfg.TMDBAPIKey, cfg.TMDBURL,
		WithImageURL(cfg.ImageURL),
		WithLanguage(cfg.Language),
		WithHTTPClient(&http.Client{Timeout: timeout}),
	)
}

func (c *TMDBClient) SearchMovie(ctx context.Context, title string, year *int) ([]Candidate, error) {
	params := url.Values{}
	params.Set("query", strings.TrimSpace(title))
	if year != nil {
		params.Set("primary_release_year", strconv.Itoa(*year))
	}
	var payload tmdbResponse
	if err := c.get(ctx, "/search/movie", params, &payload); err != nil {
		return nil, err
	}
	return c.candidates(payload.Results, naming.MediaMovie), nil
}

func (c *TMDBClient) SearchShow(ctx context.Context, title string, year *int) ([]Candidate, error) {
	params := url.Values{}
	params.Set("query", strings.TrimSpace(title))
	if year != nil {
		params.Set("first_air_date_year", strconv.Itoa(*year))
	}
	var payload tmdbResponse
	if err := c.get(ctx, "/search/tv", params, &payload); err != nil {
		return nil, err
	}
	return c.candidates(payload.Results, naming.MediaTV), nil
}

// GetEpisode returns nil without error when TMDB has no such episode.
func (c *TMDBClient) GetEpisode(ctx context.Context, showID string, season, episode int) (*Episode, error) {
	if strings.TrimSpace(showID) == "" {
		return nil, errors.New("show id required")
	}
	var payload tmdbEpisode
	path := fmt.Sprintf("/tv/%s/season/%d/episode/%d", url.PathEscape(showID), season, episode)
	err := c.get(ctx, path, url.Values{}, &payload)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Episode{
		Season:   payload.SeasonNumber,
		Episode:  payload.EpisodeNumber,
		Title:    payload.Name,
		Overview: payload.Overview,
		AirDate:  payload.AirDate,
	}, nil
}

var errNotFound = errors.New("tmdb: not found")

func (c *TMDBClient) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if params.Has("query") && params.Get("query") == "" {
		return errors.New("query must not be empty")
	}
	endpoint, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("parse tmdb url: %w", err)
	}
	params.Set("api_key", c.apiKey)
	if c.language != "" {
		params.Set("language", c.language)
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		return fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tmdb %s returned %d (latency=%v)", path, resp.StatusCode, latency)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode tmdb response: %w", err)
	}
	return nil
}

func (c *TMDBClient) candidates(results []tmdbResult, kind naming.MediaType) []Candidate {
	out := make([]Candidate, 0, len(results))
	for _, r := range results {
		cand := Candidate{
			ExternalID: strconv.FormatInt(r.ID, 10),
			Overview:   r.Overview,
			MediaType:  kind,
			PosterURL:  c.image(r.PosterPath),
			FanartURL:  c.image(r.BackdropPath),
		}
		if kind == naming.MediaMovie {
			cand.Title, cand.OriginalTitle = r.Title, r.OriginalTitle
			cand.Year = yearOf(r.ReleaseDate)
		} else {
			cand.Title, cand.OriginalTitle = r.Name, r.OriginalName
			cand.Year = yearOf(r.FirstAirDate)
			if r.OriginalLanguage == "ja" && hasGenre(r.GenreIDs, tmdbAnimationGenre) {
				cand.MediaType = naming.MediaAnime
			}
		}
		if cand.OriginalTitle == cand.Title {
			cand.OriginalTitle = ""
		}
		out = append(out, cand)
	}
	return out
}

func (c *TMDBClient) image(path string) string {
	if path == "" || c.imageURL == "" {
		return ""
	}
	return c.imageURL + "/" + strings.TrimLeft(path, "/")
}

func yearOf(date string) *int {
	if len(date) < 4 {
		return nil
	}
	y, err := strconv.Atoi(date[:4])
	if err != nil || y <= 0 {
		return nil
	}
	return &y
}

func hasGenre(ids []int, want int) bool {
	for _, id := range ids {
		if id == want {
			return true
		}
	}
	return false
}
