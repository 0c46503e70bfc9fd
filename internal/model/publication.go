package model

import "time"

// ActType is the coarse category of the judicial act a mention occurs in.
type ActType string

const (
	ActNone            ActType = ""
	ActNotice          ActType = "Intimação"
	ActRuling          ActType = "Sentença"
	ActOrder           ActType = "Despacho"
	ActDecision        ActType = "Decisão"
	ActAppellateRuling ActType = "Acórdão"
	ActHearing         ActType = "Audiência"
	ActSummons         ActType = "Citação"
	ActJudgment        ActType = "Julgamento"
)

// CandidateMatch is one deduplicated identity mention found in a text.
// Start and End are byte offsets of the full pattern match.
type CandidateMatch struct {
	Identity
	Context      string  `json:"context"`
	Start        int     `json:"start"`
	End          int     `json:"end"`
	PatternID    string  `json:"pattern_id"`
	ContextScore float64 `json:"context_score"`
	Raw          string  `json:"raw"`
}

// ScoredPublication is a candidate that cleared the relevance threshold,
// together with the metadata of the gazette it came from.
type ScoredPublication struct {
	DocumentPath string    `json:"document_path"`
	Tribunal     string    `json:"tribunal"`
	PublishedOn  time.Time `json:"published_on,omitzero"`
	Edition      string    `json:"edition"`

	Identity
	Context      string `json:"context"`
	Position     int    `json:"position"`
	PatternID    string `json:"pattern_id"`
	MentionCount int    `json:"mention_count"`

	ContextScore  float64 `json:"context_score"`
	DensityScore  float64 `json:"density_score"`
	PositionScore float64 `json:"position_score"`
	FinalScore    float64 `json:"final_score"`
	ActType       ActType `json:"act_type,omitempty"`

	NeedsManualReview  bool      `json:"needs_manual_review"`
	ExtractionStrategy string    `json:"extraction_strategy"`
	PageCount          int       `json:"page_count"`
	DocumentCharCount  int       `json:"document_char_count"`
	ProcessedAt        time.Time `json:"processed_at"`
}

// ProcessingOutcome records what happened to one document in a batch.
type ProcessingOutcome struct {
	DocumentPath string        `json:"document_path"`
	Success      bool          `json:"success"`
	MatchCount   int           `json:"match_count"`
	Error        string        `json:"error,omitempty"`
	Elapsed      time.Duration `json:"elapsed"`
	Strategy     string        `json:"strategy,omitempty"`
	CacheHit     bool          `json:"cache_hit"`
}

// DocumentError pairs a failed document with its error message.
type DocumentError struct {
	DocumentPath string `json:"document_path"`
	Error        string `json:"error"`
}

// BatchStats summarizes a list of outcomes.
type BatchStats struct {
	Total               int             `json:"total"`
	Succeeded           int             `json:"succeeded"`
	Failed              int             `json:"failed"`
	SuccessRate         float64         `json:"success_rate"`
	TotalMatches        int             `json:"total_matches"`
	AvgMatchesPerDoc    float64         `json:"avg_matches_per_doc"`
	CacheHits           int             `json:"cache_hits"`
	TotalElapsed        time.Duration   `json:"total_elapsed"`
	AvgElapsed          time.Duration   `json:"avg_elapsed"`
	ThroughputPerSecond float64         `json:"throughput_per_second"`
	Errors              []DocumentError `json:"errors,omitempty"`
}
