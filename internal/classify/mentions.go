package classify

import (
	"fmt"

	"github.com/abelbrown/gamepulse/internal/store"
	"github.com/abelbrown/gamepulse/internal/titles"
)

// Rejected is a stored row that could not become a mention.
type Rejected struct {
	PostURI string
	Reason  string
}

// Mentions turns classified posts into aggregator input. Rows with an empty
// uri or negative likes are returned as rejected instead.
func Mentions(rows []store.ClassifiedPost) ([]titles.RawMention, []Rejected) {
	mentions := make([]titles.RawMention, 0, len(rows))
	var rejected []Rejected

	for _, row := range rows {
		switch {
		case row.URI == "":
			rejected = append(rejected, Rejected{Reason: "empty uri"})
			continue
		case row.LikeCount < 0:
			rejected = append(rejected, Rejected{PostURI: row.URI, Reason: fmt.Sprintf("negative likes (%d)", row.LikeCount)})
			continue
		}

		mentions = append(mentions, titles.RawMention{
			Title:        row.Title,
			Engagement:   row.LikeCount,
			ItemID:       row.URI,
			Tags:         row.Tags,
			Descriptions: row.ImageAlts,
		})
	}
	return mentions, rejected
}
