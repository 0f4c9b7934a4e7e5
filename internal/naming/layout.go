package naming

import (
	"fmt"
	"path"
	"strings"
)

// Standard selects a media-server naming convention.
type Standard string

const (
	StandardEmby Standard = "emby"
	StandardPlex Standard = "plex"
	StandardKodi Standard = "kodi"
)

// DefaultSpecialsFolder is used when LayoutConfig.SpecialsFolder is empty.
const DefaultSpecialsFolder = "Specials"

// ParseStandard maps a configured name to a Standard. Jellyfin follows the
// Emby layout. Unknown names return an error.
func ParseStandard(s string) (Standard, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "emby", "jellyfin":
		return StandardEmby, nil
	case "plex":
		return StandardPlex, nil
	case "kodi":
		return StandardKodi, nil
	default:
		return "", fmt.Errorf("unknown naming standard %q", s)
	}
}

// LayoutConfig controls Generate.
type LayoutConfig struct {
	Standard          Standard
	CreateMovieFolder bool
	SpecialsFolder    string
	// CategoryFolder, when set, is prepended to the generated directory.
	CategoryFolder string
}

// DefaultLayoutConfig returns the Emby layout with movie folders enabled.
func DefaultLayoutConfig() LayoutConfig {
	return LayoutConfig{
		Standard:          StandardEmby,
		CreateMovieFolder: true,
		SpecialsFolder:    DefaultSpecialsFolder,
	}
}

// LayoutInput is the identity an item is named from: the catalog match when
// there is one, otherwise the parsed values.
type LayoutInput struct {
	Title      string
	Year       *int
	Season     *int
	Episode    *int
	EpisodeEnd *int
	MediaType  MediaType
	// Ext is the source extension, with or without the leading dot.
	Ext string
}

// LayoutFromParsed builds a LayoutInput from parsed info and an extension.
func LayoutFromParsed(p ParsedInfo, ext string) LayoutInput {
	return LayoutInput{
		Title:      p.Title,
		Year:       p.Year,
		Season:     p.Season,
		Episode:    p.Episode,
		EpisodeEnd: p.EpisodeEnd,
		MediaType:  p.MediaType,
		Ext:        ext,
	}
}

// Generate maps an item to a relative directory (slash separated, possibly
// empty) and a file name. It is deterministic and every generated segment
// passes through Sanitize.
func Generate(in LayoutInput, cfg LayoutConfig) (dir, file string) {
	ext := normalizeExt(in.Ext)
	title := Sanitize(in.Title)

	var segments []string
	if cfg.CategoryFolder != "" {
		segments = append(segments, Sanitize(cfg.CategoryFolder))
	}

	if isEpisodic(in) {
		segments = append(segments, withYear(title, in.Year))
		season, special := seasonFor(in)
		if special {
			segments = append(segments, Sanitize(specialsFolder(cfg)))
		} else {
			segments = append(segments, Sanitize(fmt.Sprintf("Season %02d", season)))
		}
		file = Sanitize(episodeStem(title, season, in, cfg.Standard)) + ext
		return path.Join(segments...), file
	}

	stem := withYear(title, in.Year)
	if cfg.CreateMovieFolder {
		segments = append(segments, stem)
	}
	return path.Join(segments...), stem + ext
}

func isEpisodic(in LayoutInput) bool {
	switch in.MediaType {
	case MediaTV, MediaAnime:
		return true
	case MediaMovie:
		return false
	}
	return in.Season != nil || in.Episode != nil
}

// seasonFor resolves the season number and whether the item is a special.
// Anime without a season number is season 1; anime without an episode is a
// special, as is season 0.
func seasonFor(in LayoutInput) (int, bool) {
	if in.MediaType == MediaAnime && in.Episode == nil {
		return 0, true
	}
	season := IntValue(in.Season, 1)
	return season, season == 0
}

func specialsFolder(cfg LayoutConfig) string {
	if strings.TrimSpace(cfg.SpecialsFolder) == "" {
		return DefaultSpecialsFolder
	}
	return cfg.SpecialsFolder
}

func withYear(title string, year *int) string {
	if year == nil || *year <= 0 {
		return title
	}
	return Sanitize(fmt.Sprintf("%s (%d)", title, *year))
}

func episodeStem(title string, season int, in LayoutInput, std Standard) string {
	if in.Episode == nil {
		return title
	}

	s, e := "S", "E"
	if std == StandardPlex {
		s, e = "s", "e"
	}

	code := fmt.Sprintf("%s%02d%s%02d", s, season, e, *in.Episode)
	if in.EpisodeEnd != nil && *in.EpisodeEnd > *in.Episode {
		code += fmt.Sprintf("-%s%02d", e, *in.EpisodeEnd)
	}

	if std == StandardKodi {
		return title + " " + code
	}
	return title + " - " + code
}

func normalizeExt(ext string) string {
	ext = Sanitize(strings.TrimSpace(ext))
	if ext == "_" || ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return strings.ToLower(ext)
}
