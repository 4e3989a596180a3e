package review

import (
	"errors"
	"fmt"

	"github.com/designdesk/designdesk/internal/domain"
	"github.com/designdesk/designdesk/internal/shared"
)

const (
	defaultAnalyzeError = "An error occurred while analyzing the review data."
	narrativeWarning    = "The AI summary could not be generated; statistics are shown without it."
)

// Outcome is the classified result of an analysis call. Each variant owns the
// state transition it causes.
type Outcome interface {
	// Label names the outcome for metrics and logs.
	Label() string
	apply(st *State)
}

// EmptyOutcome is a successful analysis with no reviews in the window.
type EmptyOutcome struct {
	Message string
	Trends  domain.Trends
}

// FullOutcome is a successful analysis. Warning is set when the AI narrative
// step degraded.
type FullOutcome struct {
	Result  domain.AnalysisResult
	Warning *shared.Error
}

// FailedOutcome is an analysis that produced no usable result.
type FailedOutcome struct {
	Err *shared.Error
}

func (EmptyOutcome) Label() string { return string(shared.KindEmpty) }

func (o FullOutcome) Label() string {
	if o.Warning != nil {
		return string(shared.KindPartial)
	}
	return "full"
}

func (o FailedOutcome) Label() string { return string(o.Err.Kind) }

func (o EmptyOutcome) apply(st *State) {
	st.Stage = StageResulted
	st.Result = &domain.AnalysisResult{
		Summary: domain.SummaryStats{},
		Trends:  o.Trends,
		Message: o.Message,
	}
	st.Notice = o.Message
	st.Error = nil
	st.Warning = nil
}

func (o FullOutcome) apply(st *State) {
	result := o.Result
	st.Stage = StageResulted
	st.Result = &result
	st.Notice = result.Message
	st.Error = nil
	st.Warning = o.Warning
}

func (o FailedOutcome) apply(st *State) {
	st.Stage = StageFailed
	st.Result = nil
	st.Notice = ""
	st.Error = o.Err
	st.Warning = nil
}

// Classify reconciles an analysis response, or the transport error that
// replaced it, into exactly one Outcome. The checks run in priority order:
// empty window, full payload, failure.
func Classify(resp *domain.AnalyzeResponse, err error, settings domain.AnalysisSettings) Outcome {
	if err != nil {
		return FailedOutcome{Err: transportFailure(err)}
	}
	if resp == nil {
		return FailedOutcome{Err: shared.Application("", defaultAnalyzeError)}
	}

	switch {
	case resp.Success.OK() && len(resp.Reviews) == 0:
		msg := resp.Message
		if msg == "" {
			msg = fmt.Sprintf("No reviews in the selected window (last %d days).", settings.DayRange)
		}
		var trends domain.Trends
		if resp.Trends != nil {
			trends = *resp.Trends
		}
		return EmptyOutcome{Message: msg, Trends: trends}

	case resp.Success.OK() && resp.Summary != nil:
		return FullOutcome{Result: resultFrom(resp), Warning: narrativeFailure(resp)}

	default:
		return FailedOutcome{Err: shared.Application(resp.Error, defaultAnalyzeError)}
	}
}

func transportFailure(err error) *shared.Error {
	var e *shared.Error
	if errors.As(err, &e) && e.Kind == shared.KindTransport {
		return shared.Transport(fmt.Sprintf("Connection error: %s. Please try again.", e.Message), e.Err)
	}
	return shared.Transport(fmt.Sprintf("Connection error: %v. Please try again.", err), err)
}

func narrativeFailure(resp *domain.AnalyzeResponse) *shared.Error {
	detail := resp.NarrativeError
	if detail == "" && resp.Narrative != nil {
		detail = resp.Narrative.Error
	}
	if detail == "" {
		return nil
	}
	return shared.Partial(narrativeWarning + " (" + detail + ")")
}

func resultFrom(resp *domain.AnalyzeResponse) domain.AnalysisResult {
	r := domain.AnalysisResult{
		Summary:        *resp.Summary,
		NarrativeError: resp.NarrativeError,
		Message:        resp.Message,
		ReviewCount:    len(resp.Reviews),
	}
	if resp.Trends != nil {
		r.Trends = *resp.Trends
	}
	if wc := resp.Wordcloud; wc != nil {
		r.Keywords = domain.KeywordTables{Positive: wc.PositiveFreq, Negative: wc.NegativeFreq}
		if wc.PositiveImage != nil {
			r.PositiveImage = *wc.PositiveImage
		}
		if wc.NegativeImage != nil {
			r.NegativeImage = *wc.NegativeImage
		}
	}
	if n := resp.Narrative; n != nil {
		if n.Error != "" {
			if r.NarrativeError == "" {
				r.NarrativeError = n.Error
			}
		} else {
			narrative := *n
			r.Narrative = &narrative
		}
	}
	return r
}
