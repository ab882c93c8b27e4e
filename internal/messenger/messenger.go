package messenger

import (
	"context"
	"fmt"

	"github.com/sweeney/asterisk-callback-bot/internal/render"
)

// MessageRef identifies a chat message.
type MessageRef struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int   `json:"message_id"`
}

func (r MessageRef) String() string {
	return fmt.Sprintf("%d/%d", r.ChatID, r.MessageID)
}

// Messenger is the chat capability set used by the correlator.
// A nil keyboard means the message carries no keyboard.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string, kb *render.Keyboard) error
	EditText(ctx context.Context, ref MessageRef, text string, kb *render.Keyboard) error
	EditKeyboard(ctx context.Context, ref MessageRef, kb *render.Keyboard) error
	Answer(ctx context.Context, interactionID, text string) error
}
