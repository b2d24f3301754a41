package oracle

import (
	"encoding/hex"
	"strconv"

	"lendnet/core/types"
)

const (
	// EventTypeScoreUpdated is emitted when the oracle writes a score.
	EventTypeScoreUpdated = "oracle.scoreUpdated"
)

// ScoreUpdated is the canonical payload for a reputation score write.
type ScoreUpdated struct {
	Subject [20]byte
	Score   uint64
}

func (ScoreUpdated) EventType() string { return EventTypeScoreUpdated }

func (e ScoreUpdated) Event() *types.Event {
	return &types.Event{
		Type: EventTypeScoreUpdated,
		Attributes: map[string]string{
			"subject": hex.EncodeToString(e.Subject[:]),
			"score":   strconv.FormatUint(e.Score, 10),
		},
	}
}
