package gateway

import (
	"context"
)

func (s *Service) GetIgnoreList(ctx context.Context) ([]string, error) {
	uid, err := s.currentUser()
	if err != nil {
		return nil, err
	}
	return s.registry.GetUsersStore().GetIgnoreList(ctx, uid)
}

// AddToIgnoreList blocks uid for the current user. Ignoring oneself is a no-op.
func (s *Service) AddToIgnoreList(ctx context.Context, uid string) error {
	me, err := s.currentUser()
	if err != nil {
		return err
	}
	if uid == me || uid == "" {
		return nil
	}
	return mapStorageError(s.registry.GetUsersStore().AddToIgnoreList(ctx, me, uid))
}

func (s *Service) RemoveFromIgnoreList(ctx context.Context, uid string) error {
	me, err := s.currentUser()
	if err != nil {
		return err
	}
	return s.registry.GetUsersStore().RemoveFromIgnoreList(ctx, me, uid)
}
