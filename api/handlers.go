package api

import (
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/mnemosyne/pkg/memory"
	"github.com/papercomputeco/mnemosyne/pkg/migrate"
	"github.com/papercomputeco/mnemosyne/pkg/retention"
	"github.com/papercomputeco/mnemosyne/pkg/session"
	"github.com/papercomputeco/mnemosyne/pkg/summary"
	"github.com/papercomputeco/mnemosyne/pkg/vector"
)

// SummarizeRequest is the body of POST /v1/summarize.
type SummarizeRequest struct {
	SessionID     string              `json:"session_id"`
	PersonalityID string              `json:"personality_id,omitempty"`
	Messages      []retention.Message `json:"messages"`
}

// FilterRequest is the body of POST /v1/filter. Nil budgets fall back to
// the configured retention.
type FilterRequest struct {
	retention.Prompt

	K       *int `json:"k,omitempty"`
	SystemK *int `json:"system_k,omitempty"`
}

// TurnResponse is the answer to POST /v1/turn.
type TurnResponse struct {
	Summarized bool            `json:"summarized"`
	Result     *summary.Result `json:"result,omitempty"`
}

// SessionsResponse lists the sessions known to the summary tracker.
type SessionsResponse struct {
	Sessions []session.State `json:"sessions"`
	Count    int             `json:"count"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

func (s *Server) handleListCollections(c *fiber.Ctx) error {
	view, err := s.service.ListCollections(c.Context())
	if err != nil {
		return s.fail(c, err, "")
	}
	return c.JSON(view)
}

func (s *Server) handleDropCollection(c *fiber.Ctx) error {
	res, err := s.service.DropCollection(c.Context(), c.Params("name"), c.QueryBool("confirm"))
	if err != nil {
		return s.fail(c, err, res.Hint)
	}
	return c.JSON(res)
}

// handleListRecords returns the newest records of a collection, optionally
// narrowed to one session.
func (s *Server) handleListRecords(c *fiber.Ctx) error {
	limit := memory.DefaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return s.fail(c, fmt.Errorf("%w: limit %q is not an integer", vector.ErrValidation, raw), "")
		}
		limit = n
	}

	res, err := s.service.ListLatest(c.Context(), c.Query("collection"), c.Query("session"), limit)
	if err != nil {
		return s.fail(c, err, "")
	}
	return c.JSON(res)
}

func (s *Server) handleListSessions(c *fiber.Ctx) error {
	resp := SessionsResponse{Sessions: []session.State{}}
	if s.config.Tracker != nil {
		resp.Sessions = s.config.Tracker.Snapshot()
	}
	resp.Count = len(resp.Sessions)
	return c.JSON(resp)
}

func (s *Server) handleDeleteSession(c *fiber.Ctx) error {
	res, err := s.service.DeleteSession(c.Context(), c.Params("id"), c.QueryBool("confirm"))
	if err != nil {
		return s.fail(c, err, res.Hint)
	}
	return c.JSON(res)
}

// handleMigrate runs a migration. A width mismatch without force=true is
// answered with 409 and the report.
func (s *Server) handleMigrate(c *fiber.Ctx) error {
	report, err := s.service.Migrate(c.Context(), c.QueryBool("force"), nil)
	if err != nil {
		return s.fail(c, err, "")
	}
	if report.Status == migrate.StatusNeedsConfirmation {
		return c.Status(fiber.StatusConflict).JSON(report)
	}
	return c.JSON(report)
}

// handleSummarize runs the summary pipeline once over the posted history.
func (s *Server) handleSummarize(c *fiber.Ctx) error {
	var req SummarizeRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, fmt.Errorf("%w: invalid request body: %w", vector.ErrValidation, err), "")
	}

	res, err := s.service.DebugSummary(c.Context(), req.SessionID, req.PersonalityID, req.Messages)
	if err != nil {
		return s.fail(c, err, "")
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// handleObserveTurn feeds a conversation turn to the summary pipeline, which
// summarizes only when the session is due.
func (s *Server) handleObserveTurn(c *fiber.Ctx) error {
	var req SummarizeRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, fmt.Errorf("%w: invalid request body: %w", vector.ErrValidation, err), "")
	}

	res, ran, err := s.service.ObserveTurn(c.Context(), req.SessionID, req.PersonalityID, req.Messages)
	if err != nil {
		return s.fail(c, err, "")
	}
	return c.JSON(TurnResponse{Summarized: ran, Result: res})
}

// handleFilter applies the retention policies to a prompt.
func (s *Server) handleFilter(c *fiber.Ctx) error {
	var req FilterRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, fmt.Errorf("%w: invalid request body: %w", vector.ErrValidation, err), "")
	}

	budget := s.config.Budget
	if req.K != nil {
		budget.Blocks = *req.K
	}
	if req.SystemK != nil {
		budget.SystemMessages = *req.SystemK
	}

	out := s.retention.Apply(req.Prompt, budget)
	if out.Messages == nil {
		out.Messages = []retention.Message{}
	}
	return c.JSON(out)
}
