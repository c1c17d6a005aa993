package domain

import (
	"time"

	"github.com/kapu/taro-go/internal/constants"
)

// Feedback is the optional signal a user attaches to a prediction request.
type Feedback struct {
	MoreCreative bool `json:"more_creative"`
	LessCreative bool `json:"less_creative"`
	Upvote       bool `json:"upvote"`
	Downvote     bool `json:"downvote"`
	Favorite     bool `json:"favorite"`
}

// HasSignal reports whether any flag is set.
func (f *Feedback) HasSignal() bool {
	if f == nil {
		return false
	}
	return f.MoreCreative || f.LessCreative || f.Upvote || f.Downvote || f.Favorite
}

// Drift is +1 for more_creative, -1 for less_creative and 0 otherwise.
// more_creative wins when both are set.
func (f *Feedback) Drift() int {
	switch {
	case f == nil:
		return 0
	case f.MoreCreative:
		return 1
	case f.LessCreative:
		return -1
	default:
		return 0
	}
}

// DecoderState is one row of a user's decoding-parameter history.
type DecoderState struct {
	Username  string        `json:"username"`
	FirstName string        `json:"first_name"`
	LastName  string        `json:"last_name"`
	Options   DecodeOptions `json:"options"`
	CreatedAt time.Time     `json:"created_at"`
}

// ApplyFeedback drifts the creativity-related options by one fixed step in
// the direction of the feedback and clamps the result. Options untouched by
// feedback (seed, num_ctx, ...) are carried over.
func ApplyFeedback(opts DecodeOptions, fb *Feedback) DecodeOptions {
	sign := fb.Drift()
	if sign == 0 {
		return opts
	}
	d := constants.FeedbackDelta
	b := constants.DecodeBounds
	s := float64(sign)

	opts.Temperature = clampFloat(opts.Temperature+s*d.Temperature, b.MinTemperature, b.MaxTemperature)
	opts.TopK = clampInt(opts.TopK+sign*d.TopK, b.MinTopK, b.MaxTopK)
	opts.TopP = clampFloat(opts.TopP+s*d.TopP, b.MinTopP, b.MaxTopP)
	opts.RepeatLastN = clampInt(opts.RepeatLastN+sign*d.RepeatLastN, b.MinRepeatLastN, b.MaxRepeatLastN)
	opts.PresencePenalty = clampFloat(opts.PresencePenalty+s*d.PresencePenalty, b.MinPenalty, b.MaxPenalty)
	opts.FrequencyPenalty = clampFloat(opts.FrequencyPenalty+s*d.FrequencyPenalty, b.MinPenalty, b.MaxPenalty)
	return opts
}

func clampFloat(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}

func clampInt(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
