package chat

import (
	"iter"
	"time"

	"github.com/designdesk/designdesk/internal/domain"
)

// DateLabelLayout formats a DateGroup label.
const DateLabelLayout = "2006-01-02"

// DateGroup is a run of consecutive messages sharing a calendar date.
type DateGroup struct {
	Label    string           `json:"date"`
	Messages []domain.Message `json:"messages"`
}

// GroupByDate groups consecutive messages by their calendar date in loc (the
// local zone when nil). Groups follow append order, so a message whose
// timestamp is earlier than its predecessor's still starts a new group after
// it. The sequence may be ranged over any number of times.
func GroupByDate(messages []domain.Message, loc *time.Location) iter.Seq[DateGroup] {
	if loc == nil {
		loc = time.Local
	}
	msgs := make([]domain.Message, len(messages))
	copy(msgs, messages)

	return func(yield func(DateGroup) bool) {
		var cur DateGroup
		for _, m := range msgs {
			label := m.Timestamp.In(loc).Format(DateLabelLayout)
			if len(cur.Messages) > 0 && label != cur.Label {
				if !yield(cur) {
					return
				}
				cur = DateGroup{}
			}
			cur.Label = label
			cur.Messages = append(cur.Messages, m)
		}
		if len(cur.Messages) > 0 {
			yield(cur)
		}
	}
}

// Flatten concatenates groups back into a message slice.
func Flatten(groups iter.Seq[DateGroup]) []domain.Message {
	var out []domain.Message
	for g := range groups {
		out = append(out, g.Messages...)
	}
	return out
}
