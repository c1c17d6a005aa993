package domain

import (
	"strings"

	"github.com/kapu/taro-go/pkg/errors"
)

// CardSpread is a validated draw: exactly one card per position of its mode.
type CardSpread struct {
	Mode       ReadingMode `json:"reading_mode"`
	DrawnCards []string    `json:"drawn_cards"`
}

// NewCardSpread rejects empty draws, blank card names and count mismatches.
// Card names are trimmed; nothing is truncated or padded.
func NewCardSpread(mode ReadingMode, drawnCards []string) (CardSpread, error) {
	if len(drawnCards) == 0 {
		return CardSpread{}, ErrEmptySpread
	}
	if len(drawnCards) != mode.RequiredCount {
		return CardSpread{}, NewMismatchedCardsError(mode.Name, mode.RequiredCount, len(drawnCards))
	}

	cards := make([]string, len(drawnCards))
	for i, card := range drawnCards {
		card = strings.TrimSpace(card)
		if card == "" {
			return CardSpread{}, errors.NewValidationError("card names must not be blank", "drawn_cards", i)
		}
		cards[i] = card
	}

	return CardSpread{Mode: mode, DrawnCards: cards}, nil
}

// PositionDraw renders "<position>:\t<card>" lines, the form fed to prompts.
func (s CardSpread) PositionDraw() string {
	lines := make([]string, 0, len(s.DrawnCards))
	for i, card := range s.DrawnCards {
		lines = append(lines, s.Mode.Positions[i]+":\t"+card)
	}
	return strings.Join(lines, "\n")
}

func (s CardSpread) Insights() (TarotInsights, error) {
	return ComputeInsights(len(s.DrawnCards), s.DrawnCards)
}

// Reading is one session's question plus its spread.
type Reading struct {
	Timestamp string     `json:"timestamp"`
	Question  string     `json:"question"`
	Spread    CardSpread `json:"spread"`
}
