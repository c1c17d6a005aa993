package reading

import (
	"context"

	"github.com/sourcegraph/conc/pool"

	"github.com/kapu/taro-go/internal/constants"
	"github.com/kapu/taro-go/internal/domain"
	"github.com/kapu/taro-go/internal/prompt"
)

// Story is the story_tell result plus the intermediate insights it used.
type Story struct {
	Action                string `json:"action"`
	Response              string `json:"response"`
	CombinationHighlights string `json:"combination_highlights"`
	Numerology            string `json:"numerology"`
}

// StoryTell runs the combination and numerology actions concurrently, then
// feeds the extracted highlights, the numerology text and the user's
// identity into story_tell with a larger token budget. Any failed sub-step
// fails the whole story.
func (s *Service) StoryTell(ctx context.Context, user domain.UserRef, reading domain.Reading) (Story, error) {
	values := readingValues(reading)

	var combination, numerology string
	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	p.Go(func(ctx context.Context) error {
		text, err := s.run(ctx, prompt.ActionCombination, values, s.model.Defaults())
		combination = text
		return err
	})
	p.Go(func(ctx context.Context) error {
		text, err := s.run(ctx, prompt.ActionNumerology, values, s.model.Defaults())
		numerology = text
		return err
	})
	if err := p.Wait(); err != nil {
		return Story{}, err
	}

	highlights := prompt.ExtractHighlights(combination)

	opts, err := s.model.DecodeWith(map[string]any{"num_predict": constants.StoryNumPredict})
	if err != nil {
		return Story{}, err
	}

	storyValues := readingValues(reading)
	storyValues["user_info"] = prompt.FormatUserInfo(
		domain.DisplayName(user.FirstName+" "+user.LastName),
		user.BirthDate,
	)
	storyValues["insight_combination"] = highlights
	storyValues["insight_numerology"] = numerology

	text, err := s.run(ctx, prompt.ActionStoryTell, storyValues, opts)
	if err != nil {
		return Story{}, err
	}

	return Story{
		Action:                prompt.ActionStoryTell,
		Response:              text,
		CombinationHighlights: highlights,
		Numerology:            numerology,
	}, nil
}
