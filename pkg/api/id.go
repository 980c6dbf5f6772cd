package api

import (
	"strings"

	"github.com/google/uuid"
)

// TalkIDPrefix starts every talk ID.
const TalkIDPrefix = "talk_"

// NewTalkID returns a new random talk ID.
func NewTalkID() string {
	return TalkIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ValidateTalkID reports whether id has the shape produced by NewTalkID.
func ValidateTalkID(id string) bool {
	rest, ok := strings.CutPrefix(id, TalkIDPrefix)
	if !ok || len(rest) != 32 {
		return false
	}
	for _, c := range rest {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
