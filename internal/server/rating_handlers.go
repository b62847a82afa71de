package server

import (
	"agora/internal/service"

	"github.com/gofiber/fiber/v2"
)

// SubmitRating handles POST /api/posts/:id/ratings. A second rating from the
// same user replaces the first.
func (s *Server) SubmitRating(c *fiber.Ctx) error {
	userID, _ := currentUserID(c)
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req service.SubmitRatingInput
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	req.UserID = userID
	req.PostID = postID

	result, err := s.ratingService.SubmitRating(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(result)
}
