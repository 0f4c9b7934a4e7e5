package scrape

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Nomadcxx/jellysort/internal/catalog"
	"github.com/Nomadcxx/jellysort/internal/naming"
)

const xmlHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes" ?>` + "\n"

type uniqueID struct {
	Type    string `xml:"type,attr"`
	Default bool   `xml:"default,attr"`
	Value   string `xml:",chardata"`
}

type movieNFO struct {
	XMLName       xml.Name  `xml:"movie"`
	Title         string    `xml:"title"`
	OriginalTitle string    `xml:"originaltitle,omitempty"`
	Year          int       `xml:"year,omitempty"`
	Plot          string    `xml:"plot,omitempty"`
	UniqueID      *uniqueID `xml:"uniqueid,omitempty"`
	Poster        string    `xml:"thumb,omitempty"`
	Fanart        string    `xml:"fanart,omitempty"`
}

type episodeNFO struct {
	XMLName   xml.Name  `xml:"episodedetails"`
	Title     string    `xml:"title"`
	ShowTitle string    `xml:"showtitle"`
	Season    int       `xml:"season"`
	Episode   int       `xml:"episode"`
	Plot      string    `xml:"plot,omitempty"`
	UniqueID  *uniqueID `xml:"uniqueid,omitempty"`
}

type tvshowNFO struct {
	XMLName  xml.Name  `xml:"tvshow"`
	Title    string    `xml:"title"`
	Year     int       `xml:"year,omitempty"`
	Plot     string    `xml:"plot,omitempty"`
	UniqueID *uniqueID `xml:"uniqueid,omitempty"`
}

func idOf(m *catalog.Match) *uniqueID {
	if m == nil || m.ExternalID == "" {
		return nil
	}
	return &uniqueID{Type: "tmdb", Default: true, Value: m.ExternalID}
}

func encode(v interface{}) ([]byte, error) {
	b, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xmlHeader), b...), nil
}

// identity returns the title and year an item is known by.
func identity(parsed *naming.ParsedInfo, match *catalog.Match) (string, int) {
	var title string
	var year *int
	if parsed != nil {
		title, year = parsed.Title, parsed.Year
	}
	if match != nil {
		title = match.CanonicalTitle
		if match.CanonicalYear != nil {
			year = match.CanonicalYear
		}
	}
	return title, naming.IntValue(year, 0)
}

// EncodeMovie renders a Kodi/Jellyfin movie NFO.
func EncodeMovie(parsed *naming.ParsedInfo, match *catalog.Match) ([]byte, error) {
	title, year := identity(parsed, match)
	m := movieNFO{Title: title, Year: year, UniqueID: idOf(match)}
	if parsed != nil && parsed.OriginalTitle != "" && parsed.OriginalTitle != title {
		m.OriginalTitle = parsed.OriginalTitle
	}
	if match != nil {
		m.Plot = strings.TrimSpace(match.Overview)
		if match.PosterURL != "" {
			m.Poster = "poster" + imageExt(match.PosterURL)
		}
		if match.FanartURL != "" {
			m.Fanart = "fanart" + imageExt(match.FanartURL)
		}
	}
	return encode(m)
}

// EncodeEpisode renders an episodedetails NFO.
func EncodeEpisode(parsed *naming.ParsedInfo, match *catalog.Match) ([]byte, error) {
	show, _ := identity(parsed, match)
	e := episodeNFO{ShowTitle: show, UniqueID: idOf(match)}
	if parsed != nil {
		e.Season = naming.IntValue(parsed.Season, 1)
		e.Episode = naming.IntValue(parsed.Episode, 0)
		if parsed.MediaType == naming.MediaAnime && parsed.Episode == nil {
			e.Season = 0
		}
	}
	e.Title = fmt.Sprintf("Episode %d", e.Episode)
	if match != nil && match.EpisodeTitle != "" {
		e.Title = match.EpisodeTitle
	}
	return encode(e)
}

// EncodeShow renders the tvshow.nfo kept in a show folder.
func EncodeShow(parsed *naming.ParsedInfo, match *catalog.Match) ([]byte, error) {
	title, year := identity(parsed, match)
	s := tvshowNFO{Title: title, Year: year, UniqueID: idOf(match)}
	if match != nil {
		s.Plot = strings.TrimSpace(match.Overview)
	}
	return encode(s)
}

// writeFileAtomic writes data next to its final name and renames it into
// place. With replace unset an existing file is kept and os.ErrExist returned.
func writeFileAtomic(path string, data []byte, replace bool) error {
	dir := filepath.Dir(path)
	if !replace {
		if _, err := os.Stat(path); err == nil {
			return os.ErrExist
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func imageExt(rawURL string) string {
	ext := strings.ToLower(filepath.Ext(strings.SplitN(rawURL, "?", 2)[0]))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp":
		return ext
	}
	return ".jpg"
}
