package usecase

import (
	"context"

	"medchat/internal/domain/entity"
	"medchat/internal/domain/repository"
	"medchat/pkg/logger"
)

type PresenceUseCase struct {
	userRepo repository.UserRepository
	opts     Options
}

func NewPresenceUseCase(userRepo repository.UserRepository, opts Options) *PresenceUseCase {
	return &PresenceUseCase{userRepo: userRepo, opts: opts.withDefaults()}
}

// SetOnline writes isOnline and lastActive. Best effort: failures are logged.
func (uc *PresenceUseCase) SetOnline(ctx context.Context, userID string, isOnline bool) {
	if err := uc.userRepo.SetPresence(ctx, userID, isOnline, uc.opts.Clock()); err != nil {
		logger.Warn("SetOnline Warning: Failed to set presence of %s to %t: %v", userID, isOnline, err)
	}
}

func (uc *PresenceUseCase) GetPresence(ctx context.Context, userID string) (entity.Presence, error) {
	user, err := uc.userRepo.GetByID(ctx, userID)
	if err != nil {
		return entity.Presence{UserID: userID}, err
	}
	return user.Presence(), nil
}

// SubscribeOnlineStatus streams the user's presence, deduplicated. On a
// listener failure the last known value is delivered once more.
func (uc *PresenceUseCase) SubscribeOnlineStatus(ctx context.Context, userID string, deliver func(entity.Presence)) *Subscription {
	return startSubscription(ctx, func(ctx context.Context) {
		last := entity.Presence{UserID: userID}
		err := uc.userRepo.WatchPresence(ctx, userID, func(p entity.Presence) {
			last = p
			deliver(p)
		})
		if err != nil && ctx.Err() == nil {
			logger.Warn("SubscribeOnlineStatus Warning: Listener for %s failed: %v", userID, err)
			deliver(last)
		}
	})
}
