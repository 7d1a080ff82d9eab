package gateway

import (
	"fmt"

	"github.com/google/uuid"
)

func validID(raw string) bool {
	_, err := uuid.Parse(raw)
	return err == nil
}

// checkChatID rejects ids the store could never have issued, so they read as
// missing chats instead of failing inside a query.
func checkChatID(chatID string) error {
	if !validID(chatID) {
		return fmt.Errorf("%w: malformed chat id %q", ErrNotFound, chatID)
	}
	return nil
}
