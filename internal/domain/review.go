package domain

import (
	"net/url"
	"strconv"
	"time"
)

// Review languages and types accepted by the review backend.
const (
	LanguageAll     = "all"
	LanguageKorean  = "koreana"
	LanguageEnglish = "english"

	ReviewTypeAll      = "all"
	ReviewTypePositive = "positive"
	ReviewTypeNegative = "negative"
)

// Day range bounds for analysis settings.
const (
	MinDayRange     = 1
	MaxDayRange     = 365
	DefaultDayRange = 30
)

// PriceInfo describes a store price snapshot.
type PriceInfo struct {
	Price     int    `json:"price"`
	Formatted string `json:"formatted_price,omitempty"`
	IsFree    bool   `json:"is_free"`
}

// SearchResult is a read-only snapshot of a game returned by a search.
type SearchResult struct {
	ExternalID int64  `json:"appid"`
	Name       string `json:"name"`
	ImageRef   string `json:"image,omitempty"`
	PriceInfo
}

// SearchReply is the backend response to a game search.
type SearchReply struct {
	Success Flag           `json:"success"`
	Games   []SearchResult `json:"games"`
	Message string         `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Author is the reviewer metadata attached to a raw review.
type Author struct {
	SteamID         string `json:"steamid,omitempty"`
	PlaytimeForever int    `json:"playtime_forever"`
}

// RawReview is a review as collected from the review source.
type RawReview struct {
	RecommendationID string `json:"recommendationid,omitempty"`
	Language         string `json:"language,omitempty"`
	Review           string `json:"review"`
	VotedUp          bool   `json:"voted_up"`
	VotesUp          int    `json:"votes_up"`
	TimestampCreated int64  `json:"timestamp_created"`
	Author           Author `json:"author"`
}

// CreatedAt returns the review creation time.
func (r RawReview) CreatedAt() time.Time {
	return time.Unix(r.TimestampCreated, 0)
}

// FetchOptions controls the raw review preview fetch.
type FetchOptions struct {
	Language     string `json:"language"`
	Filter       string `json:"filter"`
	NumPerPage   int    `json:"num_per_page"`
	ReviewType   string `json:"review_type"`
	PurchaseType string `json:"purchase_type"`
	DayRange     string `json:"day_range"`
}

// DefaultFetchOptions mirrors the preview defaults of the review screen.
func DefaultFetchOptions() FetchOptions {
	return FetchOptions{
		Language:     LanguageKorean,
		Filter:       "all",
		NumPerPage:   100,
		ReviewType:   ReviewTypeAll,
		PurchaseType: "all",
		DayRange:     "365",
	}
}

// Normalize fills empty fields with defaults and snaps NumPerPage to an
// accepted page size.
func (o FetchOptions) Normalize() FetchOptions {
	def := DefaultFetchOptions()
	if o.Language == "" {
		o.Language = def.Language
	}
	switch o.Filter {
	case "all", "recent", "updated":
	default:
		o.Filter = def.Filter
	}
	switch o.NumPerPage {
	case 20, 50, 100:
	default:
		o.NumPerPage = def.NumPerPage
	}
	o.ReviewType = normalizeReviewType(o.ReviewType)
	if o.PurchaseType == "" {
		o.PurchaseType = def.PurchaseType
	}
	if o.DayRange != "all" {
		if n, err := strconv.Atoi(o.DayRange); err != nil || n <= 0 {
			o.DayRange = def.DayRange
		}
	}
	return o
}

// Values encodes the options as query parameters.
func (o FetchOptions) Values() url.Values {
	v := url.Values{}
	v.Set("language", o.Language)
	v.Set("filter", o.Filter)
	v.Set("num_per_page", strconv.Itoa(o.NumPerPage))
	v.Set("review_type", o.ReviewType)
	v.Set("purchase_type", o.PurchaseType)
	v.Set("day_range", o.DayRange)
	return v
}

// FetchReply is the backend response to a raw review fetch.
type FetchReply struct {
	Success Flag        `json:"success"`
	Reviews []RawReview `json:"reviews"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Details string      `json:"details,omitempty"`
}

// AnalysisSettings configures a review analysis.
type AnalysisSettings struct {
	Language     string `json:"language"`
	ReviewType   string `json:"review_type"`
	DayRange     int    `json:"day_range"`
	UseAISummary bool   `json:"use_gpt"`
}

// DefaultAnalysisSettings returns the settings the review screen starts with.
func DefaultAnalysisSettings() AnalysisSettings {
	return AnalysisSettings{
		Language:   LanguageAll,
		ReviewType: ReviewTypeAll,
		DayRange:   DefaultDayRange,
	}
}

// Normalize clamps DayRange into [MinDayRange, MaxDayRange] and maps unknown
// enumerated values to "all".
func (s AnalysisSettings) Normalize() AnalysisSettings {
	switch s.Language {
	case LanguageAll, LanguageKorean, LanguageEnglish:
	default:
		s.Language = LanguageAll
	}
	s.ReviewType = normalizeReviewType(s.ReviewType)
	s.DayRange = min(max(s.DayRange, MinDayRange), MaxDayRange)
	return s
}

func normalizeReviewType(t string) string {
	switch t {
	case ReviewTypeAll, ReviewTypePositive, ReviewTypeNegative:
		return t
	default:
		return ReviewTypeAll
	}
}

// SummaryStats holds review counts for an analysis window.
type SummaryStats struct {
	TotalReviews  int     `json:"total_reviews"`
	PositiveCount int     `json:"positive_count"`
	NegativeCount int     `json:"negative_count"`
	PositiveRatio float64 `json:"positive_ratio"`
}

// DailyPoint is one day of the review trend.
type DailyPoint struct {
	Date          string  `json:"date"`
	ReviewCount   int     `json:"review_count"`
	VotedUp       int     `json:"voted_up"`
	PositiveRatio float64 `json:"positive_ratio"`
}

// MonthlyPoint is one month of the review trend.
type MonthlyPoint struct {
	Month         string  `json:"month"`
	ReviewCount   int     `json:"review_count"`
	VotedUp       int     `json:"voted_up"`
	PositiveRatio float64 `json:"positive_ratio"`
}

// Trends holds the daily and monthly review series.
type Trends struct {
	Daily   []DailyPoint   `json:"daily"`
	Monthly []MonthlyPoint `json:"monthly"`
}

// Wordcloud carries keyword tables and optional pre-rendered images.
type Wordcloud struct {
	PositiveImage *string     `json:"pos_wc_base64,omitempty"`
	NegativeImage *string     `json:"neg_wc_base64,omitempty"`
	PositiveFreq  Frequencies `json:"pos_freq"`
	NegativeFreq  Frequencies `json:"neg_freq"`
}

// Narrative is the AI-generated review summary. Error is set instead of the
// summaries when generation failed on the backend.
type Narrative struct {
	PositiveSummary string `json:"positive_summary,omitempty"`
	NegativeSummary string `json:"negative_summary,omitempty"`
	Error           string `json:"error,omitempty"`
}

// AnalyzeResponse is the raw backend response to an analysis request.
type AnalyzeResponse struct {
	Success        Flag          `json:"success"`
	Reviews        []RawReview   `json:"reviews"`
	Summary        *SummaryStats `json:"summary_stats"`
	Trends         *Trends       `json:"trends"`
	Wordcloud      *Wordcloud    `json:"wordcloud"`
	Narrative      *Narrative    `json:"gpt_summary"`
	NarrativeError string        `json:"gpt_error,omitempty"`
	Message        string        `json:"message,omitempty"`
	Error          string        `json:"error,omitempty"`
}

// KeywordTables holds the positive and negative keyword frequencies.
type KeywordTables struct {
	Positive Frequencies `json:"positive"`
	Negative Frequencies `json:"negative"`
}

// AnalysisResult is the normalized outcome of an analysis.
type AnalysisResult struct {
	Summary        SummaryStats  `json:"summary"`
	Keywords       KeywordTables `json:"keywords"`
	Trends         Trends        `json:"trends"`
	Narrative      *Narrative    `json:"narrative,omitempty"`
	NarrativeError string        `json:"narrative_error,omitempty"`
	Message        string        `json:"message,omitempty"`
	ReviewCount    int           `json:"review_count"`
	PositiveImage  string        `json:"positive_image,omitempty"`
	NegativeImage  string        `json:"negative_image,omitempty"`
}

// AnalysisRun is a completed analysis recorded for a device.
type AnalysisRun struct {
	ID              int64            `json:"id"`
	UserID          string           `json:"-"`
	AppID           int64            `json:"app_id"`
	GameName        string           `json:"game_name"`
	Settings        AnalysisSettings `json:"settings"`
	Outcome         string           `json:"outcome"`
	TotalReviews    int              `json:"total_reviews"`
	PositiveCount   int              `json:"positive_count"`
	NegativeCount   int              `json:"negative_count"`
	NarrativeFailed bool             `json:"narrative_failed"`
	ErrorMessage    string           `json:"error_message,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}
