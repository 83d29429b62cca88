package service

import (
	"context"

	"github.com/cenkalti/backoff/v4"

	"github.com/spec-kit/token-service/internal/events"
	apperrors "github.com/spec-kit/token-service/pkg/util/errorutil"
)

// RevocationListener feeds user events into the token revocation cascade.
type RevocationListener struct {
	tokens     *AuthTokenManager
	dispatcher events.Dispatcher
}

// NewRevocationListener creates the listener.
func NewRevocationListener(dispatcher events.Dispatcher, tokens *AuthTokenManager) *RevocationListener {
	return &RevocationListener{tokens: tokens, dispatcher: dispatcher}
}

// RegisterHandlers subscribes to events.
func (l *RevocationListener) RegisterHandlers() {
	if l.dispatcher == nil {
		return
	}
	l.dispatcher.Subscribe(events.EventUserRoleRemoved, l.handleRoleRemoved)
	l.dispatcher.Subscribe(events.EventUserDisabled, l.handleUserDisabled)
}

func (l *RevocationListener) handleRoleRemoved(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(*events.RoleRemoved)
	return permanentIfIllegal(l.tokens.RemoveAllUserTokensWithRole(ctx, payload))
}

func (l *RevocationListener) handleUserDisabled(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(*events.UserDisabled)
	return permanentIfIllegal(l.tokens.RemoveAllUserTokens(ctx, payload))
}

// permanentIfIllegal stops redelivery of events that can never succeed.
func permanentIfIllegal(err error) error {
	if apperrors.HasCode(err, apperrors.CodeIllegalArgument) {
		return backoff.Permanent(err)
	}
	return err
}
