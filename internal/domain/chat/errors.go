package chat

import "errors"

var (
	ErrInvalidParticipants    = errors.New("chat: invalid participants")
	ErrSelfChatRejected       = errors.New("chat: cannot start a conversation with yourself")
	ErrNotAParticipant        = errors.New("chat: sender is not a participant")
	ErrEmptyMessage           = errors.New("chat: message needs a body or a media url")
	ErrConversationNotFound   = errors.New("chat: conversation not found")
	ErrTransientStore         = errors.New("chat: transient store failure")
	ErrConflictRetryExhausted = errors.New("chat: conversation dedup conflict could not be resolved")

	// ErrDuplicateConversation is returned by repositories when the dedup key is already taken.
	ErrDuplicateConversation = errors.New("chat: conversation already exists for dedup key")
	ErrInvalidCursor         = errors.New("chat: invalid pagination cursor")
)

// IsValidation reports whether err signals a caller bug that must never be retried.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidParticipants) ||
		errors.Is(err, ErrSelfChatRejected) ||
		errors.Is(err, ErrNotAParticipant) ||
		errors.Is(err, ErrEmptyMessage) ||
		errors.Is(err, ErrInvalidCursor)
}

// IsRetryable reports whether err may succeed when the same call is repeated.
func IsRetryable(err error) bool {
	if err == nil || IsValidation(err) {
		return false
	}
	return errors.Is(err, ErrTransientStore)
}
