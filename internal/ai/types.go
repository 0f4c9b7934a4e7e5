package ai

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Result is the JSON object a provider is asked to return.
type Result struct {
	Title           string  `json:"title"`
	OriginalTitle   string  `json:"original_title,omitempty"`
	Year            FlexInt `json:"year"`
	Type            string  `json:"type"` // movie, tv or anime
	Season          FlexInt `json:"season"`
	Episodes        FlexIntSlice `json:"episodes,omitempty"`
	AbsoluteEpisode FlexInt `json:"absolute_episode"`
	Confidence      float64 `json:"confidence"`
}

// FlexInt accepts a JSON number, a numeric string or null. Models regularly
// quote years ("2018") and emit null for unknown fields.
type FlexInt struct {
	Value *int
}

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		f.Value = nil
		return nil
	}
	var n json.Number
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n = json.Number(strings.TrimSpace(s))
	} else {
		n = json.Number(data)
	}
	v, err := strconv.Atoi(n.String())
	if err != nil {
		if fv, ferr := n.Float64(); ferr == nil {
			iv := int(fv)
			f.Value = &iv
			return nil
		}
		f.Value = nil
		return nil
	}
	f.Value = &v
	return nil
}

func (f FlexInt) MarshalJSON() ([]byte, error) {
	if f.Value == nil {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(*f.Value)), nil
}

// Int returns the wrapped value, nil-safe.
func (f *FlexInt) Int() *int {
	if f == nil {
		return nil
	}
	return f.Value
}

// FlexIntSlice accepts [1, 2], ["1", "2"] and ["S01E01", "S01E02"].
type FlexIntSlice []int

var episodeNumberPattern = regexp.MustCompile(`(?i)^(?:s\d+)?e(\d+)`)

func (f *FlexIntSlice) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = nil
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(FlexIntSlice, 0, len(raw))
	for _, item := range raw {
		var n int
		if err := json.Unmarshal(item, &n); err == nil {
			out = append(out, n)
			continue
		}
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			continue
		}
		if ep := extractEpisodeNumber(s); ep > 0 {
			out = append(out, ep)
		}
	}
	*f = out
	return nil
}

// extractEpisodeNumber reads "S01E06", "E05" or "5". Zero means none found.
func extractEpisodeNumber(s string) int {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	m := episodeNumberPattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// ParseSource indicates which parsing method produced the result
type ParseSource int

const (
	SourceCache ParseSource = iota
	SourceRegex
	SourceAI
)

// String returns the string representation of the parse source
func (s ParseSource) String() string {
	switch s {
	case SourceCache:
		return "cache"
	case SourceRegex:
		return "regex"
	case SourceAI:
		return "ai"
	default:
		return "unknown"
	}
}

// Metrics tracks classifier usage. The organizer records regex parses here
// too so the summary covers every file seen.
type Metrics struct {
	TotalParsings  atomic.Int64
	CacheHits      atomic.Int64
	RegexUsed      atomic.Int64
	AIUsed         atomic.Int64
	AIFallbacks    atomic.Int64 // classifier consulted but nothing usable came back
	AITimeouts     atomic.Int64
	AIErrors       atomic.Int64
	AIMalformed    atomic.Int64
	CircuitRejects atomic.Int64
	TotalAILatency atomic.Int64 // cumulative AI call time (ms)
}

// RecordParse records a parsing operation with its source and latency
func (m *Metrics) RecordParse(source ParseSource, aiLatency time.Duration) {
	m.TotalParsings.Add(1)
	switch source {
	case SourceCache:
		m.CacheHits.Add(1)
	case SourceRegex:
		m.RegexUsed.Add(1)
	case SourceAI:
		m.AIUsed.Add(1)
		m.TotalAILatency.Add(aiLatency.Milliseconds())
	}
}

func (m *Metrics) RecordAIFallback()    { m.AIFallbacks.Add(1) }
func (m *Metrics) RecordAITimeout()     { m.AITimeouts.Add(1) }
func (m *Metrics) RecordAIError()       { m.AIErrors.Add(1) }
func (m *Metrics) RecordAIMalformed()   { m.AIMalformed.Add(1) }
func (m *Metrics) RecordCircuitReject() { m.CircuitRejects.Add(1) }

// Summary returns a map of metrics for display
func (m *Metrics) Summary() map[string]interface{} {
	total := m.TotalParsings.Load()
	if total == 0 {
		return map[string]interface{}{"total": int64(0)}
	}

	aiCalls := m.AIUsed.Load() + m.AIFallbacks.Load()
	avgLatency := int64(0)
	if m.AIUsed.Load() > 0 {
		avgLatency = m.TotalAILatency.Load() / m.AIUsed.Load()
	}

	fallbackRate := float64(0)
	if aiCalls > 0 {
		fallbackRate = float64(m.AIFallbacks.Load()) / float64(aiCalls) * 100
	}

	return map[string]interface{}{
		"total":             total,
		"cache_hit_rate":    float64(m.CacheHits.Load()) / float64(total) * 100,
		"regex_rate":        float64(m.RegexUsed.Load()) / float64(total) * 100,
		"ai_rate":           float64(m.AIUsed.Load()) / float64(total) * 100,
		"ai_fallback_rate":  fallbackRate,
		"ai_avg_latency_ms": avgLatency,
		"ai_timeouts":       m.AITimeouts.Load(),
		"ai_errors":         m.AIErrors.Load(),
		"ai_malformed":      m.AIMalformed.Load(),
		"circuit_rejects":   m.CircuitRejects.Load(),
	}
}
