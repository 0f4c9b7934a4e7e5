package organizer

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/Nomadcxx/jellysort/internal/ai"
	"github.com/Nomadcxx/jellysort/internal/catalog"
	"github.com/Nomadcxx/jellysort/internal/logging"
	"github.com/Nomadcxx/jellysort/internal/naming"
)

// Identification is everything preview learns about one file.
type Identification struct {
	Parsed    naming.ParsedInfo
	MediaType naming.MediaType
	Match     *catalog.Match
	// Overall is the mean of parse and match confidence; a missing match
	// counts as zero.
	Overall           float64
	NeedsConfirmation bool
	Reason            string
	// Dir is relative to the output root and slash separated.
	Dir  string
	File string
	// AIUsed reports whether Parsed came from the classifier.
	AIUsed bool
}

// IdentifyOptions tunes a single identification.
type IdentifyOptions struct {
	Algorithm Algorithm
	Layout    naming.LayoutConfig
	ForceAI   bool
}

// Identifier runs parse, classifier fallback, type detection, catalog match,
// confidence and naming for one file. It is shared by preview and scrape jobs.
type Identifier struct {
	parser     *naming.CachedParser
	classifier *ai.Classifier
	matcher    *catalog.Matcher
	categories *CategoryCache
	threshold  float64
	aiTrigger  float64
	aiBudget   time.Duration
	logger     *logging.Logger
}

func NewIdentifier(cfg Config, parser *naming.CachedParser, classifier *ai.Classifier,
	matcher *catalog.Matcher, categories *CategoryCache, logger *logging.Logger) *Identifier {
	if parser == nil {
		parser = naming.NewCachedParser(naming.DefaultCacheSize)
	}
	if matcher == nil {
		matcher = catalog.NewMatcher(nil, logger)
	}
	return &Identifier{
		parser:     parser,
		classifier: classifier,
		matcher:    matcher,
		categories: categories,
		threshold:  cfg.Threshold,
		aiTrigger:  cfg.AITrigger,
		aiBudget:   cfg.AIBudget,
		logger:     logger,
	}
}

// Identify never fails on a bad filename; the only error is a cancelled ctx.
func (id *Identifier) Identify(ctx context.Context, path string, opts IdentifyOptions) (*Identification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filename := filepath.Base(path)
	parsed, aiUsed := id.parse(ctx, filename, opts)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	strategy, err := id.categories.Get(ctx)
	if err != nil {
		id.logger.Warn("organizer", "Category strategy unavailable, using defaults",
			logging.F("error", err.Error()))
	}
	mediaType := strategy.Detect(path, parsed)
	parsed.MediaType = mediaType

	match, score := id.matcher.Match(ctx, parsed, mediaType)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Identification{
		Parsed:    parsed,
		MediaType: mediaType,
		Match:     match,
		Overall:   OverallConfidence(parsed.Confidence, score),
		AIUsed:    aiUsed,
	}
	res.NeedsConfirmation, res.Reason = id.confirmation(res)

	in := layoutInput(parsed, match, mediaType, filepath.Ext(filename))
	layout := opts.Layout
	layout.CategoryFolder = strategy.FolderFor(in.MediaType)
	res.Dir, res.File = naming.Generate(in, layout)
	return res, nil
}

// parse picks between the local parser and the classifier according to the
// algorithm.
func (id *Identifier) parse(ctx context.Context, filename string, opts IdentifyOptions) (naming.ParsedInfo, bool) {
	local := id.parser.Parse(filename)
	if !id.classifier.Available() {
		if opts.Algorithm == AlgorithmAIOnly || opts.ForceAI {
			id.logger.Debug("organizer", "Classifier unavailable, using local parse",
				logging.F("file", filename),
				logging.F("code", string(CodeClassifierUnavailable)))
		}
		return local, false
	}

	ask := opts.ForceAI
	switch opts.Algorithm {
	case AlgorithmAIOnly:
		ask = true
	case AlgorithmAIEnhanced:
		ask = ask || naming.IsParseFailure(local) || local.Confidence < id.aiTrigger
	}
	if !ask {
		return local, false
	}

	remote := id.classifier.Classify(ctx, filename, id.aiBudget)
	if remote == nil {
		return local, false
	}
	// ai_enhanced keeps the local result when the classifier is no surer.
	if opts.Algorithm != AlgorithmAIOnly && !opts.ForceAI && remote.Confidence < local.Confidence {
		return local, false
	}
	return *remote, true
}

func (id *Identifier) confirmation(res *Identification) (bool, string) {
	switch {
	case naming.IsParseFailure(res.Parsed):
		return true, fmt.Sprintf("%s: no pattern matched, using the file name as title", CodeParseFailure)
	case res.Match == nil:
		return true, fmt.Sprintf("%s: no catalog candidate for %q", CodeNoCatalogMatch, res.Parsed.Title)
	case res.Overall < id.threshold:
		return true, fmt.Sprintf("confidence %.2f below threshold %.2f", res.Overall, id.threshold)
	}
	return false, ""
}

// OverallConfidence averages parse and match confidence, clamped to [0,1].
func OverallConfidence(parse, match float64) float64 {
	v := (parse + match) / 2
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// layoutInput names an item from its catalog match when there is one.
func layoutInput(parsed naming.ParsedInfo, match *catalog.Match, mediaType naming.MediaType, ext string) naming.LayoutInput {
	in := naming.LayoutFromParsed(parsed, ext)
	in.MediaType = mediaType
	if match == nil {
		return in
	}
	in.Title = match.CanonicalTitle
	if match.CanonicalYear != nil {
		in.Year = match.CanonicalYear
	}
	if mediaType != naming.MediaAnime && match.MediaType != "" && match.MediaType != naming.MediaUnknown {
		in.MediaType = match.MediaType
	}
	return in
}
