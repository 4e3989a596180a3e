package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/designdesk/designdesk/internal/domain"
)

func TestPrintPreviewPluralizesVotes(t *testing.T) {
	t.Parallel()

	created := time.Now().Add(-2 * time.Hour).Unix()
	reviews := []domain.RawReview{
		{Review: "Great combat\nsecond line", VotedUp: true, VotesUp: 1, TimestampCreated: created},
		{Review: "Too short", VotesUp: 3, TimestampCreated: created},
		{Review: "not printed", VotesUp: 0, TimestampCreated: created},
	}

	var out bytes.Buffer
	printPreview(&out, reviews, 2)
	got := out.String()

	for _, want := range []string{"3 collected", "+ 2 hours ago, 1 vote: Great combat", "- 2 hours ago, 3 votes: Too short"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "not printed") || strings.Contains(got, "second line") {
		t.Errorf("output printed more than requested:\n%s", got)
	}
}

func TestFirstLineTruncatesRunes(t *testing.T) {
	t.Parallel()

	if got := firstLine("  한국어 리뷰입니다\nnext", 3); got != "한국어..." {
		t.Errorf("firstLine = %q", got)
	}
	if got := firstLine("short", 10); got != "short" {
		t.Errorf("firstLine = %q", got)
	}
}
