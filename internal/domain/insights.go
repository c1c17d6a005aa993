package domain

import "strings"

// TarotInsights counts suits and court ranks in a spread.
//
// Matching is a case-insensitive substring test per keyword, and suit and
// court counters are independent: "king of cups" increments both King and
// Cup. Nothing enforces one category per card, so a name holding two suit
// keywords counts twice.
type TarotInsights struct {
	NumCards int `json:"num_cards"`

	KingCount   int `json:"king_count"`
	QueenCount  int `json:"queen_count"`
	KnightCount int `json:"knight_count"`
	PageCount   int `json:"page_count"`
	TotalCourts int `json:"total_courts"`

	WandCount  int `json:"wand_count"`
	CoinCount  int `json:"coin_count"`
	SwordCount int `json:"sword_count"`
	CupCount   int `json:"cup_count"`
	TotalSuits int `json:"total_suits"`

	Stats map[string]float64 `json:"stats"`
}

var (
	suitKeywords  = [4]string{"wand", "sword", "coin", "cup"}
	courtKeywords = [4]string{"king", "queen", "page", "knight"}
)

// ComputeInsights counts keywords over drawnCards and derives ratios against
// totalCount. It fails with ErrZeroCards when totalCount is zero and with an
// InsightsCalculationError when more courts are counted than cards exist.
func ComputeInsights(totalCount int, drawnCards []string) (TarotInsights, error) {
	if totalCount == 0 {
		return TarotInsights{}, ErrZeroCards
	}

	var suits, courts [4]int
	for _, raw := range drawnCards {
		card := strings.ToLower(strings.TrimSpace(raw))
		for i := range suitKeywords {
			if strings.Contains(card, suitKeywords[i]) {
				suits[i]++
			}
			if strings.Contains(card, courtKeywords[i]) {
				courts[i]++
			}
		}
	}

	in := TarotInsights{
		NumCards:    totalCount,
		WandCount:   suits[0],
		SwordCount:  suits[1],
		CoinCount:   suits[2],
		CupCount:    suits[3],
		KingCount:   courts[0],
		QueenCount:  courts[1],
		PageCount:   courts[2],
		KnightCount: courts[3],
	}
	in.TotalCourts = in.KingCount + in.QueenCount + in.KnightCount + in.PageCount
	in.TotalSuits = in.WandCount + in.CoinCount + in.SwordCount + in.CupCount

	if in.TotalCourts > totalCount {
		return TarotInsights{}, NewInsightsCalculationError("court", totalCount, in.TotalCourts)
	}

	n := float64(totalCount)
	in.Stats = map[string]float64{
		"card_count": n,
		"king":       float64(in.KingCount) / n,
		"queen":      float64(in.QueenCount) / n,
		"knight":     float64(in.KnightCount) / n,
		"page":       float64(in.PageCount) / n,
		"pages":      float64(in.PageCount) / n,
		"court_prob": float64(in.TotalCourts) / n,
		"wand":       float64(in.WandCount) / n,
		"coin":       float64(in.CoinCount) / n,
		"sword":      float64(in.SwordCount) / n,
		"cup":        float64(in.CupCount) / n,
		"suit_prob":  float64(in.TotalSuits) / n,
	}

	return in, nil
}
