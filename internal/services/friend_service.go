package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/ammar1510/chatty/internal/apperr"
	"github.com/ammar1510/chatty/internal/database"
	"github.com/ammar1510/chatty/internal/models"
	"github.com/ammar1510/chatty/internal/websocket"
)

var (
	ErrUserNotFound        = apperr.NotFound("User not found")
	ErrSelfRequest         = apperr.Validation("You cannot send a friend request to yourself")
	ErrRequestAlreadySent  = apperr.Conflict("Request already sent")
	ErrAlreadyFriends      = apperr.Conflict("You are already friends")
	ErrRequestNotFound     = apperr.NotFound("Friend request not found")
	ErrNotRequestReceiver  = apperr.Forbidden("Only the receiver can accept this request")
	ErrNotRequestParty     = apperr.Forbidden("You are not part of this request")
	ErrSearchQueryRequired = apperr.Validation("Email query is required")
)

// FriendService runs the friend request state machine and the friends list
type FriendService struct {
	db       database.DBInterface
	notifier Notifier
}

func NewFriendService(db database.DBInterface, notifier Notifier) *FriendService {
	return &FriendService{db: db, notifier: notifier}
}

// Request sends a friend request from senderID to the user owning email
func (s *FriendService) Request(ctx context.Context, senderID uuid.UUID, email string) (*models.FriendRequest, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, apperr.Validation("Email is required")
	}

	receiver, err := s.db.GetUserByEmail(ctx, email)
	if errors.Is(err, database.ErrUserNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, internal("request receiver lookup", err)
	}
	if receiver.ID == senderID {
		return nil, ErrSelfRequest
	}

	friends, err := s.db.AreFriends(ctx, senderID, receiver.ID)
	if err != nil {
		return nil, internal("request friendship check", err)
	}

	existing, err := s.db.FindFriendRequest(ctx, senderID, receiver.ID)
	switch {
	case errors.Is(err, database.ErrFriendRequestNotFound):
	case err != nil:
		return nil, internal("request lookup", err)
	case existing.Status == models.StatusPending:
		return nil, ErrRequestAlreadySent
	case !friends:
		// Accepted row left over from an earlier friendship; start over
		if err := s.db.DeleteFriendRequest(ctx, existing.ID); err != nil && !errors.Is(err, database.ErrFriendRequestNotFound) {
			return nil, internal("request cleanup", err)
		}
	}
	if friends {
		return nil, ErrAlreadyFriends
	}

	req := &models.FriendRequest{SenderID: senderID, ReceiverID: receiver.ID, Status: models.StatusPending}
	if err := s.db.CreateFriendRequest(ctx, req); err != nil {
		if errors.Is(err, database.ErrFriendRequestExists) {
			return nil, ErrRequestAlreadySent
		}
		return nil, internal("create friend request", err)
	}

	s.notifier.Notify(receiver.ID, websocket.EventNewFriendRequest, req)
	log.Info("Friend request %s: %s -> %s", req.ID, senderID, receiver.ID)
	return req, nil
}

// Accept marks the request accepted and befriends both users. Accepting an
// already accepted request repeats the same union, so it is safe to retry.
func (s *FriendService) Accept(ctx context.Context, callerID, requestID uuid.UUID) error {
	req, err := s.getRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.ReceiverID != callerID {
		return ErrNotRequestReceiver
	}

	sender, err := s.db.GetUserByID(ctx, req.SenderID)
	if err != nil {
		return s.userErr("accept sender", err)
	}
	receiver, err := s.db.GetUserByID(ctx, req.ReceiverID)
	if err != nil {
		return s.userErr("accept receiver", err)
	}

	if req.Status != models.StatusAccepted {
		if err := s.db.UpdateFriendRequestStatus(ctx, req.ID, models.StatusAccepted); err != nil {
			if errors.Is(err, database.ErrFriendRequestNotFound) {
				return ErrRequestNotFound
			}
			return internal("accept status", err)
		}
	}
	if err := s.db.AddFriendship(ctx, sender.ID, receiver.ID); err != nil {
		return internal("accept friendship", err)
	}

	// Each side learns about the other
	s.notifier.Notify(sender.ID, websocket.EventFriendRequestAccepted, receiver.Public())
	s.notifier.Notify(receiver.ID, websocket.EventFriendRequestAccepted, sender.Public())
	log.Info("Friend request %s accepted", req.ID)
	return nil
}

// Reject deletes a request so the sender may ask again later. Either party
// may reject (the sender to withdraw it).
func (s *FriendService) Reject(ctx context.Context, callerID, requestID uuid.UUID) error {
	req, err := s.getRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.ReceiverID != callerID && req.SenderID != callerID {
		return ErrNotRequestParty
	}
	if err := s.db.DeleteFriendRequest(ctx, req.ID); err != nil {
		if errors.Is(err, database.ErrFriendRequestNotFound) {
			return ErrRequestNotFound
		}
		return internal("reject", err)
	}
	log.Info("Friend request %s rejected", req.ID)
	return nil
}

// Remove ends a friendship and forgets every request between the two users
func (s *FriendService) Remove(ctx context.Context, userID, friendID uuid.UUID) error {
	if _, err := s.db.DeleteFriendRequestsBetween(ctx, userID, friendID); err != nil {
		return internal("remove requests", err)
	}
	if err := s.db.RemoveFriendship(ctx, userID, friendID); err != nil {
		return internal("remove friendship", err)
	}
	return nil
}

// Search finds users whose email contains fragment, excluding the caller
func (s *FriendService) Search(ctx context.Context, fragment string, excludeID uuid.UUID) ([]models.PublicUser, error) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return nil, ErrSearchQueryRequired
	}
	users, err := s.db.SearchUsersByEmail(ctx, fragment, excludeID)
	if err != nil {
		return nil, internal("search users", err)
	}
	return models.PublicUsers(users), nil
}

// Pending lists requests waiting for userID with their senders filled in
func (s *FriendService) Pending(ctx context.Context, userID uuid.UUID) ([]models.FriendRequestView, error) {
	reqs, err := s.db.ListPendingRequests(ctx, userID)
	if err != nil {
		return nil, internal("pending requests", err)
	}

	views := make([]models.FriendRequestView, 0, len(reqs))
	for _, r := range reqs {
		sender, err := s.db.GetUserByID(ctx, r.SenderID)
		if errors.Is(err, database.ErrUserNotFound) {
			continue
		}
		if err != nil {
			return nil, internal("pending sender", err)
		}
		views = append(views, models.FriendRequestView{FriendRequest: *r, Sender: sender.Public()})
	}
	return views, nil
}

// Friends returns the public view of userID's friends
func (s *FriendService) Friends(ctx context.Context, userID uuid.UUID) ([]models.PublicUser, error) {
	friends, err := s.db.GetFriends(ctx, userID)
	if err != nil {
		return nil, internal("friends", err)
	}
	return models.PublicUsers(friends), nil
}

func (s *FriendService) getRequest(ctx context.Context, id uuid.UUID) (*models.FriendRequest, error) {
	req, err := s.db.GetFriendRequest(ctx, id)
	if errors.Is(err, database.ErrFriendRequestNotFound) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, internal("get friend request", err)
	}
	return req, nil
}

func (s *FriendService) userErr(op string, err error) error {
	if errors.Is(err, database.ErrUserNotFound) {
		return ErrUserNotFound
	}
	return internal(op, err)
}
