package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ammar1510/chatty/internal/models"
	"github.com/ammar1510/chatty/internal/services"
)

// FriendHandler handles /friends routes
type FriendHandler struct {
	Friends *services.FriendService
}

func NewFriendHandler(friends *services.FriendService) *FriendHandler {
	return &FriendHandler{Friends: friends}
}

// Send creates a friend request to the user with the given email
func (h *FriendHandler) Send(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req models.SendFriendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Email is required")
		return
	}

	fr, err := h.Friends.Request(c.Request.Context(), userID, req.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Friend request sent", "friendRequest": fr})
}

// requestAction parses {requestId} for accept and reject
func requestAction(c *gin.Context) (uuid.UUID, bool) {
	var req models.FriendRequestAction
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request ID")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(req.RequestID)
	if err != nil {
		badRequest(c, "Invalid request ID")
		return uuid.Nil, false
	}
	return id, true
}

// Accept accepts a pending request addressed to the caller
func (h *FriendHandler) Accept(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	requestID, ok := requestAction(c)
	if !ok {
		return
	}

	if err := h.Friends.Accept(c.Request.Context(), userID, requestID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Friend request accepted"})
}

// Reject deletes a request
func (h *FriendHandler) Reject(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	requestID, ok := requestAction(c)
	if !ok {
		return
	}

	if err := h.Friends.Reject(c.Request.Context(), userID, requestID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Friend request rejected"})
}

// Requests lists pending requests for the caller
func (h *FriendHandler) Requests(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	views, err := h.Friends.Pending(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

// Search finds users by email fragment
func (h *FriendHandler) Search(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	users, err := h.Friends.Search(c.Request.Context(), c.Query("email"), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// List returns the caller's friends
func (h *FriendHandler) List(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	friends, err := h.Friends.Friends(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, friends)
}

// Delete removes :friendId from the caller's friends
func (h *FriendHandler) Delete(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	friendID, err := uuid.Parse(c.Param("friendId"))
	if err != nil {
		badRequest(c, "Invalid friend ID")
		return
	}

	if err := h.Friends.Remove(c.Request.Context(), userID, friendID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to remove friend"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Friend removed successfully"})
}
