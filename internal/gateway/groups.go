package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/practice-sem-2/dm-service/internal/models"
	storage "github.com/practice-sem-2/dm-service/internal/storages"
)

// groupMutation loads the group inside a transaction, checks the caller with
// authorize, applies mutate and publishes a chat update to everyone affected.
func (s *Service) groupMutation(
	ctx context.Context,
	chatID string,
	authorize func(chat *models.ChatWithMembers, uid string) error,
	mutate func(r storage.Registry, chat *models.ChatWithMembers, uid string) error,
	extraAudience ...string,
) error {
	uid, err := s.currentUser()
	if err != nil {
		return err
	}
	if err = checkChatID(chatID); err != nil {
		return err
	}

	kind := models.UpdateChatChanged
	var audience []string
	err = s.registry.Atomic(ctx, func(r storage.Registry) error {
		chat, err := r.GetChatsStore().GetChat(ctx, chatID)
		if err != nil {
			return err
		}
		if !chat.IsGroup() {
			return fmt.Errorf("%w: not a group chat", ErrValidation)
		}
		if err = authorize(chat, uid); err != nil {
			return err
		}

		audience = append(append(audience, chat.Participants...), chat.Invited...)
		audience = append(audience, extraAudience...)
		if err = mutate(r, chat, uid); err != nil {
			return err
		}

		_, err = r.GetChatsStore().GetChat(ctx, chatID)
		if errors.Is(err, storage.ErrChatNotFound) {
			kind = models.UpdateChatDeleted
			return nil
		}
		return err
	})
	if err != nil {
		return mapStorageError(err)
	}

	s.publish(&models.Update{
		UpdateMeta: models.UpdateMeta{Audience: audience},
		Kind:       kind,
		ChatID:     chatID,
	})
	return nil
}

func requireMember(chat *models.ChatWithMembers, uid string) error {
	if !chat.HasParticipant(uid) {
		return ErrNotAChatMember
	}
	return nil
}

func requireAdmin(chat *models.ChatWithMembers, uid string) error {
	if !chat.HasParticipant(uid) {
		return ErrNotAChatMember
	}
	if !chat.IsAdmin(uid) {
		return ErrNotAnAdmin
	}
	return nil
}

// CreateGroupChat creates a group owned by the current user. The creator is
// its first admin, the listed members join directly.
func (s *Service) CreateGroupChat(ctx context.Context, group models.GroupCreate) (string, error) {
	uid, err := s.currentUser()
	if err != nil {
		return "", err
	}
	if err = s.validate.Struct(group); err != nil {
		return "", fmt.Errorf("%w: %v", ErrValidation, err)
	}

	members := make([]string, 0, len(group.Members))
	for _, m := range group.Members {
		if m != uid {
			members = append(members, m)
		}
	}

	now := s.serverTime()
	chat := &models.Chat{
		ID:        uuid.NewString(),
		Type:      models.ChatGroup,
		Name:      group.Name,
		Creator:   uid,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.registry.Atomic(ctx, func(r storage.Registry) error {
		store := r.GetChatsStore()
		if err := store.CreateChat(ctx, chat); err != nil {
			return err
		}
		if err := store.AddChatMembers(ctx, chat.ID, models.RoleAdmin, []string{uid}); err != nil {
			return err
		}
		if len(members) == 0 {
			return nil
		}
		return store.AddChatMembers(ctx, chat.ID, models.RoleMember, members)
	})
	if err != nil {
		return "", mapStorageError(err)
	}

	s.publish(&models.Update{
		UpdateMeta: models.UpdateMeta{Timestamp: now, Audience: append([]string{uid}, members...)},
		Kind:       models.UpdateChatChanged,
		ChatID:     chat.ID,
	})
	return chat.ID, nil
}

// InviteUsers records pending invitations. Users already participating are
// skipped.
func (s *Service) InviteUsers(ctx context.Context, chatID string, uids []string) error {
	return s.groupMutation(ctx, chatID, requireMember, func(r storage.Registry, chat *models.ChatWithMembers, _ string) error {
		invite := make([]string, 0, len(uids))
		for _, u := range uids {
			if !chat.HasParticipant(u) {
				invite = append(invite, u)
			}
		}
		if len(invite) == 0 {
			return nil
		}
		return r.GetChatsStore().AddChatMembers(ctx, chatID, models.RoleInvited, invite)
	}, uids...)
}

func (s *Service) CancelInvitation(ctx context.Context, chatID string, uid string) error {
	return s.groupMutation(ctx, chatID, requireAdmin, func(r storage.Registry, chat *models.ChatWithMembers, _ string) error {
		if !chat.IsInvited(uid) {
			return ErrNotInvited
		}
		return r.GetChatsStore().DeleteChatMembers(ctx, chatID, []string{uid})
	})
}

func (s *Service) IsUserInvited(ctx context.Context, chatID string, uid string) (bool, error) {
	if _, err := s.currentUser(); err != nil {
		return false, err
	}
	if !validID(chatID) {
		return false, nil
	}

	role, err := s.registry.GetChatsStore().MemberRole(ctx, chatID, uid)
	if errors.Is(err, storage.ErrMemberNotFound) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return role == models.RoleInvited, nil
}

// JoinGroupChat accepts the current user's pending invitation.
func (s *Service) JoinGroupChat(ctx context.Context, chatID string) error {
	authorize := func(chat *models.ChatWithMembers, uid string) error {
		if !chat.IsInvited(uid) {
			return ErrNotInvited
		}
		return nil
	}
	return s.groupMutation(ctx, chatID, authorize, func(r storage.Registry, _ *models.ChatWithMembers, uid string) error {
		return r.GetChatsStore().SetMemberRole(ctx, chatID, uid, models.RoleMember)
	})
}

func (s *Service) AddMembers(ctx context.Context, chatID string, uids []string) error {
	return s.groupMutation(ctx, chatID, requireAdmin, func(r storage.Registry, _ *models.ChatWithMembers, _ string) error {
		return r.GetChatsStore().AddChatMembers(ctx, chatID, models.RoleMember, uids)
	}, uids...)
}

func (s *Service) RemoveMember(ctx context.Context, chatID string, uid string) error {
	return s.groupMutation(ctx, chatID, requireAdmin, func(r storage.Registry, chat *models.ChatWithMembers, _ string) error {
		if uid == chat.Creator {
			return fmt.Errorf("%w: the creator can't be removed", ErrPermissionDenied)
		}
		if !chat.HasParticipant(uid) {
			return ErrNotAChatMember
		}
		return r.GetChatsStore().DeleteChatMembers(ctx, chatID, []string{uid})
	})
}

func (s *Service) PromoteToAdmin(ctx context.Context, chatID string, uid string) error {
	return s.groupMutation(ctx, chatID, requireAdmin, func(r storage.Registry, chat *models.ChatWithMembers, _ string) error {
		if !chat.HasParticipant(uid) {
			return ErrNotAChatMember
		}
		return r.GetChatsStore().SetMemberRole(ctx, chatID, uid, models.RoleAdmin)
	})
}

func (s *Service) DemoteFromAdmin(ctx context.Context, chatID string, uid string) error {
	return s.groupMutation(ctx, chatID, requireAdmin, func(r storage.Registry, chat *models.ChatWithMembers, _ string) error {
		if uid == chat.Creator {
			return fmt.Errorf("%w: the creator is always an admin", ErrPermissionDenied)
		}
		return r.GetChatsStore().SetMemberRole(ctx, chatID, uid, models.RoleMember)
	})
}

func (s *Service) UpdateChatDetails(ctx context.Context, chatID string, details models.ChatDetails) error {
	if err := s.validate.Struct(details); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return s.groupMutation(ctx, chatID, requireAdmin, func(r storage.Registry, _ *models.ChatWithMembers, _ string) error {
		return r.GetChatsStore().UpdateChatDetails(ctx, chatID, details, s.serverTime())
	})
}

// LeaveGroup removes the current user. The group is deleted when nobody is
// left in it.
func (s *Service) LeaveGroup(ctx context.Context, chatID string) error {
	return s.groupMutation(ctx, chatID, requireMember, func(r storage.Registry, chat *models.ChatWithMembers, uid string) error {
		if len(chat.Participants) == 1 {
			return deleteChatCascade(ctx, r, chatID)
		}
		return r.GetChatsStore().DeleteChatMembers(ctx, chatID, []string{uid})
	})
}

// DeleteGroup removes the group with all its messages. Only the creator may
// delete it.
func (s *Service) DeleteGroup(ctx context.Context, chatID string) error {
	authorize := func(chat *models.ChatWithMembers, uid string) error {
		if chat.Creator != uid {
			return fmt.Errorf("%w: only the creator can delete the group", ErrPermissionDenied)
		}
		return nil
	}
	return s.groupMutation(ctx, chatID, authorize, func(r storage.Registry, _ *models.ChatWithMembers, _ string) error {
		return deleteChatCascade(ctx, r, chatID)
	})
}

func deleteChatCascade(ctx context.Context, r storage.Registry, chatID string) error {
	if _, err := r.GetMessagesStore().DeleteChatMessages(ctx, chatID); err != nil {
		return err
	}
	if err := r.GetChatsStore().DeleteAllMembers(ctx, chatID); err != nil {
		return err
	}
	return r.GetChatsStore().DeleteChat(ctx, chatID)
}
