package prompt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kapu/taro-go/internal/constants"
)

var highlightsPattern = regexp.MustCompile(`(?s)\*\*Combination Highlights\*\*(.*?)\*\*Possible insights`)

// ExtractHighlights returns the text between the combination highlights
// heading and the possible insights heading, or the fallback sentence when
// either marker is missing.
func ExtractHighlights(combination string) string {
	m := highlightsPattern.FindStringSubmatch(combination)
	if m == nil {
		return constants.NoCombinationHighlights
	}
	return strings.TrimSpace(m[1])
}

// FormatUserInfo renders the identity block fed to story_tell.
func FormatUserInfo(fullName, birthDate string) string {
	return fmt.Sprintf("**User Info**\nFull Name: %s\nBirth Date: %s", fullName, birthDate)
}
