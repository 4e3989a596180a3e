package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/spf13/cobra"

	"github.com/designdesk/designdesk/internal/domain"
	"github.com/designdesk/designdesk/internal/review"
	"github.com/designdesk/designdesk/internal/shared"
)

func init() {
	f := reviewCmd.Flags()
	f.Int("days", domain.DefaultDayRange, "analysis window in days (1-365)")
	f.String("language", domain.LanguageAll, "review language: all, koreana or english")
	f.String("type", domain.ReviewTypeAll, "review type: all, positive or negative")
	f.Bool("ai", false, "request an AI narrative summary")
	f.Int("top", 10, "keywords to print per sentiment")
	f.Int("pick", 1, "which search result to analyze (1-based)")
	f.Int64("app-id", 0, "analyze this app id from the results instead of --pick")
	f.Int("preview", 0, "print this many raw reviews before analyzing")

	rootCmd.AddCommand(reviewCmd)
}

var reviewCmd = &cobra.Command{
	Use:   "review <game name>",
	Short: "Search a game and analyze its store reviews",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		ctx := cmd.Context()

		w, err := review.NewWorkflow(review.Config{Backend: current.client, Logger: current.logger})
		if err != nil {
			return err
		}

		if err := w.Search(ctx, strings.Join(args, " ")); err != nil {
			return err
		}
		st := w.State()
		if st.Error != nil {
			return st.Error
		}
		if len(st.Results) == 0 {
			fmt.Fprintln(out, st.Notice)
			return nil
		}
		printResults(out, st.Results)

		if err := pickGame(cmd, w, st.Results); err != nil {
			return err
		}
		fmt.Fprintf(out, "\nSelected: %s\n", w.State().Selected.Name)

		if n, _ := cmd.Flags().GetInt("preview"); n > 0 {
			if err := w.FetchReviews(ctx, domain.DefaultFetchOptions()); err != nil {
				return err
			}
			if st := w.State(); st.PreviewError != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "preview unavailable: %s\n", st.PreviewError.Message)
			} else {
				printPreview(out, st.Preview, n)
			}
		}

		days, _ := cmd.Flags().GetInt("days")
		language, _ := cmd.Flags().GetString("language")
		reviewType, _ := cmd.Flags().GetString("type")
		ai, _ := cmd.Flags().GetBool("ai")
		settings := domain.AnalysisSettings{Language: language, ReviewType: reviewType, DayRange: days, UseAISummary: ai}

		fmt.Fprintf(out, "Analyzing the last %d days...\n", settings.Normalize().DayRange)
		if err := w.Analyze(ctx, settings); err != nil {
			return err
		}

		st = w.State()
		if st.Error != nil {
			return st.Error
		}
		if st.Notice != "" && st.Result == nil {
			fmt.Fprintln(out, st.Notice)
			return nil
		}
		top, _ := cmd.Flags().GetInt("top")
		printView(out, review.BuildView(st, top))
		return nil
	},
}

func pickGame(cmd *cobra.Command, w *review.Workflow, results []domain.SearchResult) error {
	if id, _ := cmd.Flags().GetInt64("app-id"); id > 0 {
		return w.SelectByID(id)
	}
	pick, _ := cmd.Flags().GetInt("pick")
	if pick < 1 || pick > len(results) {
		return shared.Validation(fmt.Sprintf("--pick must be between 1 and %d", len(results)))
	}
	return w.SelectGame(results[pick-1])
}

func printResults(out io.Writer, results []domain.SearchResult) {
	for i, g := range results {
		price := g.Formatted
		if g.IsFree {
			price = "free"
		}
		fmt.Fprintf(out, "%2d. %s (app %d) %s\n", i+1, g.Name, g.ExternalID, price)
	}
}

func printPreview(out io.Writer, reviews []domain.RawReview, n int) {
	fmt.Fprintf(out, "\nLatest reviews (%d collected):\n", len(reviews))
	for _, r := range reviews[:min(n, len(reviews))] {
		verdict := "-"
		if r.VotedUp {
			verdict = "+"
		}
		fmt.Fprintf(out, " %s %s, %s: %s\n", verdict, humanize.Time(r.CreatedAt()),
			english.Plural(r.VotesUp, "vote", "votes"), firstLine(r.Review, 100))
	}
}

func printView(out io.Writer, v *review.View) {
	if v == nil {
		return
	}
	s := v.Summary
	fmt.Fprintf(out, "\nTotal %s reviews, %s positive (%s), %s negative (%s)\n",
		s.Total, s.Positive, s.PositiveLabel, s.Negative, s.NegativeLabel)
	fmt.Fprintf(out, "Daily average: %s\n", s.DailyAverage)
	printKeywords(out, "Positive keywords", v.PositiveKeywords)
	printKeywords(out, "Negative keywords", v.NegativeKeywords)
	if n := v.Narrative; n != nil && n.Error == "" {
		fmt.Fprintf(out, "\nPositive summary:\n%s\n\nNegative summary:\n%s\n", n.PositiveSummary, n.NegativeSummary)
	}
	if v.Warning != "" {
		fmt.Fprintf(out, "\nwarning: %s\n", v.Warning)
	}
}

func printKeywords(out io.Writer, title string, kws []domain.KeywordCount) {
	if len(kws) == 0 {
		return
	}
	words := make([]string, 0, len(kws))
	for _, k := range kws {
		words = append(words, fmt.Sprintf("%s(%s)", k.Word, humanize.Comma(int64(k.Count))))
	}
	fmt.Fprintf(out, "%s: %s\n", title, strings.Join(words, ", "))
}

func firstLine(s string, limit int) string {
	s, _, _ = strings.Cut(strings.TrimSpace(s), "\n")
	if r := []rune(s); len(r) > limit {
		return string(r[:limit]) + "..."
	}
	return s
}
