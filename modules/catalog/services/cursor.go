package services

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/realvista/backend/pkg/serrors"
)

// streamCursor is a keyset position in one source stream, ordered by
// (updated_at, id) descending.
type streamCursor struct {
	UpdatedAt time.Time `json:"u"`
	ID        uuid.UUID `json:"i"`
}

// feedCursor is the composite pagination token for the merged feed. The
// proposal stream is always drained before the live-item stream, so repeated
// calls with the same token return the same page.
type feedCursor struct {
	Proposals     *streamCursor `json:"p,omitempty"`
	ProposalsDone bool          `json:"pd,omitempty"`
	Items         *streamCursor `json:"c,omitempty"`
}

func encodeCursor(c *feedCursor) string {
	if c == nil {
		return ""
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeCursor(token string) (*feedCursor, error) {
	if token == "" {
		return &feedCursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, serrors.NewValidationError("cursor", "malformed cursor")
	}
	var c feedCursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, serrors.NewValidationError("cursor", "malformed cursor")
	}
	return &c, nil
}
