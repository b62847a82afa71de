package server

import (
	"agora/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetReplies handles GET /api/posts/:id/replies. Entries come back in
// thread order with their depth and display indent.
func (s *Server) GetReplies(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	entries, err := s.replyService.GetThread(c.UserContext(), postID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(entries)
}

// CreateReply handles POST /api/posts/:id/replies
func (s *Server) CreateReply(c *fiber.Ctx) error {
	userID, _ := currentUserID(c)
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req service.CreateReplyInput
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	req.UserID = userID
	req.PostID = postID

	reply, err := s.replyService.CreateReply(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(reply)
}

// GetUserReplies handles GET /api/users/:id/replies
func (s *Server) GetUserReplies(c *fiber.Ctx) error {
	userID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	groups, err := s.replyService.GetUserActivity(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(groups)
}
