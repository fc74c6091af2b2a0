package usecase

import (
	"context"

	"medchat/internal/domain/entity"
	"medchat/internal/domain/repository"
	"medchat/pkg/errors"
)

const defaultDirectoryLimit = 50

// DirectoryUseCase is the read-only lookup of doctors and patients used to
// start conversations.
type DirectoryUseCase struct {
	userRepo repository.UserRepository
}

func NewDirectoryUseCase(userRepo repository.UserRepository) *DirectoryUseCase {
	return &DirectoryUseCase{userRepo: userRepo}
}

func (uc *DirectoryUseCase) ListDoctors(ctx context.Context, limit int) ([]*entity.User, error) {
	return uc.listRole(ctx, entity.RoleDoctor, limit)
}

func (uc *DirectoryUseCase) ListPatients(ctx context.Context, limit int) ([]*entity.User, error) {
	return uc.listRole(ctx, entity.RolePatient, limit)
}

func (uc *DirectoryUseCase) GetUser(ctx context.Context, userID string) (*entity.User, error) {
	user, err := uc.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, errors.CodeNotFound) {
			return nil, err
		}
		return nil, errors.Internal("Failed to load user", err)
	}
	return user, nil
}

func (uc *DirectoryUseCase) listRole(ctx context.Context, role string, limit int) ([]*entity.User, error) {
	if limit <= 0 {
		limit = defaultDirectoryLimit
	}
	users, err := uc.userRepo.ListByRole(ctx, role, limit)
	if err != nil {
		return nil, errors.Internal("Failed to list "+role+"s", err)
	}
	return users, nil
}
