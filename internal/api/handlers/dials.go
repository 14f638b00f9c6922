package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	dialsvc "github.com/acme/outbound-dialer/internal/service/dial"
)

type triggerDialRequest struct {
	LeadID uuid.UUID `json:"lead_id"`
}

type decisionResponse struct {
	Allowed    bool       `json:"allowed"`
	Reason     string     `json:"reason,omitempty"`
	RetryAfter *time.Time `json:"retry_after,omitempty"`
}

// triggerDial manually places one attempt for a lead, subject to the same
// pacing policy the scheduler uses. A deferral is reported as 429 with the
// reason and the retry estimate rather than as a server error.
func (h *HandlerSet) triggerDial(ctx *fiber.Ctx) error {
	var req triggerDialRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if req.LeadID == uuid.Nil {
		return fiber.NewError(http.StatusBadRequest, "lead_id is required")
	}

	lead, err := h.dials.TriggerDial(ctx.Context(), req.LeadID)
	if err != nil {
		var paced *dialsvc.PacedError
		if errors.As(err, &paced) {
			return ctx.Status(http.StatusTooManyRequests).JSON(decisionResponse{
				Allowed:    false,
				Reason:     string(paced.Decision.Reason),
				RetryAfter: paced.Decision.RetryAfter,
			})
		}
		return translateError(err)
	}

	return ctx.Status(http.StatusAccepted).JSON(toLeadResponse(lead))
}

// leadDecision evaluates the pacing policy for a lead without dispatching.
func (h *HandlerSet) leadDecision(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid lead id")
	}

	decision, err := h.dials.Check(ctx.Context(), id)
	if err != nil {
		return translateError(err)
	}

	resp := decisionResponse{Allowed: decision.Allowed}
	if !decision.Allowed {
		resp.Reason = string(decision.Reason)
		resp.RetryAfter = decision.RetryAfter
	}
	return ctx.Status(http.StatusOK).JSON(resp)
}
