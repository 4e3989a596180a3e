package review

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"

	"github.com/designdesk/designdesk/internal/domain"
	"github.com/dustin/go-humanize"
)

// DefaultKeywordLimit is the number of keywords shown per table.
const DefaultKeywordLimit = 10

// NotApplicable is shown for averages over an empty series.
const NotApplicable = "n/a"

// RankKeywords returns the n most frequent keywords, most frequent first.
// Equal counts keep their table order. n <= 0 means DefaultKeywordLimit.
func RankKeywords(table domain.Frequencies, n int) []domain.KeywordCount {
	if n <= 0 {
		n = DefaultKeywordLimit
	}
	ranked := slices.Clone([]domain.KeywordCount(table))
	slices.SortStableFunc(ranked, func(a, b domain.KeywordCount) int {
		return cmp.Compare(b.Count, a.Count)
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// Percentage returns value as a share of total in percent, or 0 when total
// is zero.
func Percentage(value, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(value) / float64(total) * 100
}

// DailyAverage returns total spread over the daily series. ok is false for an
// empty series.
func DailyAverage(total int, daily []domain.DailyPoint) (avg float64, ok bool) {
	if len(daily) == 0 {
		return 0, false
	}
	return float64(total) / float64(len(daily)), true
}

// FormatDailyAverage renders DailyAverage with one decimal, or NotApplicable.
func FormatDailyAverage(total int, daily []domain.DailyPoint) string {
	avg, ok := DailyAverage(total, daily)
	if !ok {
		return NotApplicable
	}
	return strconv.FormatFloat(avg, 'f', 1, 64)
}

// SummaryCard is the headline block of an analysis view.
type SummaryCard struct {
	Total            string  `json:"total"`
	Positive         string  `json:"positive"`
	Negative         string  `json:"negative"`
	PositiveShare    float64 `json:"positive_share"`
	NegativeShare    float64 `json:"negative_share"`
	PositiveLabel    string  `json:"positive_label"`
	NegativeLabel    string  `json:"negative_label"`
	DailyAverage     string  `json:"daily_average"`
	ReviewsCollected int     `json:"reviews_collected"`
}

// View is everything a renderer needs to draw an analysis.
type View struct {
	Summary          SummaryCard           `json:"summary"`
	PositiveKeywords []domain.KeywordCount `json:"positive_keywords"`
	NegativeKeywords []domain.KeywordCount `json:"negative_keywords"`
	Daily            []domain.DailyPoint   `json:"daily"`
	Monthly          []domain.MonthlyPoint `json:"monthly"`
	Narrative        *domain.Narrative     `json:"narrative,omitempty"`
	PositiveImage    string                `json:"positive_image,omitempty"`
	NegativeImage    string                `json:"negative_image,omitempty"`
	Warning          string                `json:"warning,omitempty"`
	Notice           string                `json:"notice,omitempty"`
}

// BuildView derives the view-model of st. It returns nil when st carries no
// result.
func BuildView(st State, keywordLimit int) *View {
	r := st.Result
	if r == nil {
		return nil
	}
	s := r.Summary
	v := &View{
		Summary: SummaryCard{
			Total:            humanize.Comma(int64(s.TotalReviews)),
			Positive:         humanize.Comma(int64(s.PositiveCount)),
			Negative:         humanize.Comma(int64(s.NegativeCount)),
			PositiveShare:    Percentage(s.PositiveCount, s.TotalReviews),
			NegativeShare:    Percentage(s.NegativeCount, s.TotalReviews),
			DailyAverage:     FormatDailyAverage(s.TotalReviews, r.Trends.Daily),
			ReviewsCollected: r.ReviewCount,
		},
		PositiveKeywords: RankKeywords(r.Keywords.Positive, keywordLimit),
		NegativeKeywords: RankKeywords(r.Keywords.Negative, keywordLimit),
		Daily:            r.Trends.Daily,
		Monthly:          r.Trends.Monthly,
		Narrative:        r.Narrative,
		PositiveImage:    r.PositiveImage,
		NegativeImage:    r.NegativeImage,
		Notice:           st.Notice,
	}
	v.Summary.PositiveLabel = fmt.Sprintf("%.1f%%", v.Summary.PositiveShare)
	v.Summary.NegativeLabel = fmt.Sprintf("%.1f%%", v.Summary.NegativeShare)
	if st.Warning != nil {
		v.Warning = st.Warning.Message
	}
	return v
}
