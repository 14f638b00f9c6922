package handlers

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/acme/outbound-dialer/internal/domain"
	campaignsvc "github.com/acme/outbound-dialer/internal/service/campaign"
	dialsvc "github.com/acme/outbound-dialer/internal/service/dial"
)

type leadResponse struct {
	ID            uuid.UUID         `json:"id"`
	CampaignID    uuid.UUID         `json:"campaign_id"`
	PhoneNumber   string            `json:"phone_number"`
	Name          string            `json:"name,omitempty"`
	Status        domain.LeadStatus `json:"status"`
	Attempts      int               `json:"attempts"`
	LastAttemptAt *time.Time        `json:"last_attempt_at,omitempty"`
	Outcome       string            `json:"outcome,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

type listLeadsResponse struct {
	Leads []leadResponse `json:"leads"`
}

type attemptResponse struct {
	ID         uuid.UUID `json:"id"`
	LeadID     uuid.UUID `json:"lead_id"`
	CampaignID uuid.UUID `json:"campaign_id"`
	AttemptNum int       `json:"attempt_num"`
	OutcomeTag string    `json:"outcome_tag"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

type listAttemptsResponse struct {
	Attempts []attemptResponse `json:"attempts"`
	NextPage string            `json:"next_page_token,omitempty"`
}

func (h *HandlerSet) addLeads(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	var req struct {
		Leads []leadRequest `json:"leads"`
	}
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	leads := make([]campaignsvc.LeadInput, 0, len(req.Leads))
	for _, l := range req.Leads {
		leads = append(leads, campaignsvc.LeadInput{PhoneNumber: l.PhoneNumber, Name: l.Name})
	}

	if err := h.campaigns.AddLeads(ctx.Context(), id, leads); err != nil {
		return translateError(err)
	}

	return ctx.SendStatus(http.StatusAccepted)
}

func (h *HandlerSet) importLeadsCSV(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	body := ctx.Body()
	if file, ferr := ctx.FormFile("file"); ferr == nil {
		f, oerr := file.Open()
		if oerr != nil {
			return fiber.NewError(http.StatusBadRequest, "cannot read uploaded file")
		}
		defer f.Close()

		imported, ierr := h.campaigns.ImportLeadsCSV(ctx.Context(), id, f)
		if ierr != nil {
			return translateError(ierr)
		}
		return ctx.Status(http.StatusAccepted).JSON(fiber.Map{"imported": imported})
	}

	imported, err := h.campaigns.ImportLeadsCSV(ctx.Context(), id, bytes.NewReader(body))
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusAccepted).JSON(fiber.Map{"imported": imported})
}

func (h *HandlerSet) listLeads(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	limit, _ := strconv.Atoi(ctx.Query("limit", "100"))
	status := domain.LeadStatus(ctx.Query("status", ""))

	leads, err := h.campaigns.ListLeads(ctx.Context(), id, status, limit)
	if err != nil {
		return translateError(err)
	}

	resp := listLeadsResponse{Leads: make([]leadResponse, 0, len(leads))}
	for _, l := range leads {
		resp.Leads = append(resp.Leads, toLeadResponse(l))
	}

	return ctx.Status(http.StatusOK).JSON(resp)
}

func (h *HandlerSet) listCampaignAttempts(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	limit, _ := strconv.Atoi(ctx.Query("limit", "100"))
	token := ctx.Query("page_token", "")
	paging, err := dialsvc.DecodePagingState(token)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid page token")
	}

	result, err := h.dials.ListAttemptsByCampaign(ctx.Context(), id, limit, paging)
	if err != nil {
		return translateError(err)
	}

	resp := listAttemptsResponse{Attempts: make([]attemptResponse, 0, len(result.Attempts))}
	for _, a := range result.Attempts {
		resp.Attempts = append(resp.Attempts, toAttemptResponse(a))
	}
	resp.NextPage = dialsvc.EncodePagingState(result.PagingState)

	return ctx.Status(http.StatusOK).JSON(resp)
}

func (h *HandlerSet) listLeadAttempts(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid lead id")
	}

	limit, _ := strconv.Atoi(ctx.Query("limit", "50"))

	attempts, err := h.dials.ListAttemptsByLead(ctx.Context(), id, limit)
	if err != nil {
		return translateError(err)
	}

	resp := listAttemptsResponse{Attempts: make([]attemptResponse, 0, len(attempts))}
	for _, a := range attempts {
		resp.Attempts = append(resp.Attempts, toAttemptResponse(a))
	}

	return ctx.Status(http.StatusOK).JSON(resp)
}

func toLeadResponse(l *domain.Lead) leadResponse {
	return leadResponse{
		ID:            l.ID,
		CampaignID:    l.CampaignID,
		PhoneNumber:   l.PhoneNumber,
		Name:          l.Name,
		Status:        l.Status,
		Attempts:      l.Attempts,
		LastAttemptAt: l.LastAttemptAt,
		Outcome:       l.Outcome,
		CreatedAt:     l.CreatedAt,
		UpdatedAt:     l.UpdatedAt,
	}
}

func toAttemptResponse(a domain.AttemptRecord) attemptResponse {
	return attemptResponse{
		ID:         a.ID,
		LeadID:     a.LeadID,
		CampaignID: a.CampaignID,
		AttemptNum: a.AttemptNum,
		OutcomeTag: a.OutcomeTag,
		Error:      a.Error,
		DurationMs: a.Duration.Milliseconds(),
		CreatedAt:  a.CreatedAt,
	}
}
