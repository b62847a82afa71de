package server

import (
	"agora/internal/service"

	"github.com/gofiber/fiber/v2"
)

// PinPost handles POST /api/admin/posts/:id/pin
func (s *Server) PinPost(c *fiber.Ctx) error {
	adminID, _ := currentUserID(c)
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	post, err := s.adminService.PinPost(c.UserContext(), adminID, postID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(post)
}

// UnpinPost handles DELETE /api/admin/posts/:id/pin
func (s *Server) UnpinPost(c *fiber.Ctx) error {
	adminID, _ := currentUserID(c)
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	post, err := s.adminService.UnpinPost(c.UserContext(), adminID, postID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(post)
}

// DeleteExpiredPosts handles POST /api/admin/posts/expired/delete?dry_run=true
func (s *Server) DeleteExpiredPosts(c *fiber.Ctx) error {
	result, err := s.adminService.DeleteExpiredPosts(c.UserContext(), c.QueryBool("dry_run", false))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(result)
}

// RunSweep handles POST /api/admin/sweep. With dry_run=true it reports what
// a sweep would remove without writing.
func (s *Server) RunSweep(c *fiber.Ctx) error {
	if c.QueryBool("dry_run", false) {
		stats, err := s.sweepService.Preview(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"dry_run": true, "stats": stats})
	}

	run, err := s.sweepService.Run(c.UserContext(), service.TriggerManual)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(run)
}

// GetSweepStats handles GET /api/admin/sweep/stats
func (s *Server) GetSweepStats(c *fiber.Ctx) error {
	run, err := s.sweepService.LatestStats(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(run)
}

// GetSweepRuns handles GET /api/admin/sweep/runs
func (s *Server) GetSweepRuns(c *fiber.Ctx) error {
	page := parsePagination(c, 20)

	runs, err := s.sweepService.Runs(c.UserContext(), page.Limit, page.Offset)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(runs)
}
