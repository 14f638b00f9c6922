package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/acme/outbound-dialer/internal/domain"
	campaignsvc "github.com/acme/outbound-dialer/internal/service/campaign"
	apperrors "github.com/acme/outbound-dialer/pkg/errors"
)

type createCampaignRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	TimeZone    string `json:"time_zone"`
	CallWindow  struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"call_window"`
	DailyCallLimit   int           `json:"daily_call_limit"`
	CallsPerHour     *int          `json:"calls_per_hour"`
	MinCallInterval  string        `json:"min_call_interval"`
	MaxRetryAttempts int           `json:"max_retry_attempts"`
	RetryInterval    string        `json:"retry_interval"`
	StartDate        *time.Time    `json:"start_date"`
	EndDate          *time.Time    `json:"end_date"`
	Leads            []leadRequest `json:"leads"`
}

type leadRequest struct {
	PhoneNumber string `json:"phone_number"`
	Name        string `json:"name"`
}

type campaignResponse struct {
	ID          uuid.UUID             `json:"id"`
	Name        string                `json:"name"`
	Description string                `json:"description"`
	TimeZone    string                `json:"time_zone"`
	Status      domain.CampaignStatus `json:"status"`
	CallWindow  struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"call_window"`
	DailyCallLimit   int        `json:"daily_call_limit"`
	CallsPerHour     int        `json:"calls_per_hour"`
	MinCallInterval  string     `json:"min_call_interval"`
	MaxRetryAttempts int        `json:"max_retry_attempts"`
	RetryInterval    string     `json:"retry_interval"`
	StartDate        *time.Time `json:"start_date,omitempty"`
	EndDate          *time.Time `json:"end_date,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

type campaignStatsResponse struct {
	TotalAttempts    int64 `json:"total_attempts"`
	CompletedLeads   int64 `json:"completed_leads"`
	FailedLeads      int64 `json:"failed_leads"`
	SkippedLeads     int64 `json:"skipped_leads"`
	PendingLeads     int64 `json:"pending_leads"`
	RetriesScheduled int64 `json:"retries_scheduled"`
}

type listCampaignsResponse struct {
	Campaigns []campaignResponse `json:"campaigns"`
}

func (h *HandlerSet) createCampaign(ctx *fiber.Ctx) error {
	var req createCampaignRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	input, err := toCreateCampaignInput(req)
	if err != nil {
		return translateError(err)
	}

	campaign, err := h.campaigns.Create(ctx.Context(), input)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusCreated).JSON(toCampaignResponse(campaign))
}

func (h *HandlerSet) listCampaigns(ctx *fiber.Ctx) error {
	limit, _ := strconv.Atoi(ctx.Query("limit", "50"))
	var afterID *uuid.UUID
	if afterStr := ctx.Query("after_id"); afterStr != "" {
		if id, err := uuid.Parse(afterStr); err == nil {
			afterID = &id
		}
	}

	campaigns, err := h.campaigns.List(ctx.Context(), afterID, limit)
	if err != nil {
		return translateError(err)
	}

	resp := listCampaignsResponse{Campaigns: make([]campaignResponse, 0, len(campaigns))}
	for _, c := range campaigns {
		resp.Campaigns = append(resp.Campaigns, toCampaignResponse(c))
	}

	return ctx.Status(http.StatusOK).JSON(resp)
}

func (h *HandlerSet) getCampaign(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	campaign, err := h.campaigns.Get(ctx.Context(), id)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(toCampaignResponse(campaign))
}

type updateCampaignRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	CallWindow  *struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"call_window"`
	DailyCallLimit   *int       `json:"daily_call_limit"`
	CallsPerHour     *int       `json:"calls_per_hour"`
	MinCallInterval  *string    `json:"min_call_interval"`
	MaxRetryAttempts *int       `json:"max_retry_attempts"`
	RetryInterval    *string    `json:"retry_interval"`
	EndDate          *time.Time `json:"end_date"`
}

func (h *HandlerSet) updateCampaign(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	var req updateCampaignRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	input := campaignsvc.UpdateCampaignInput{
		ID:               id,
		Name:             req.Name,
		Description:      req.Description,
		DailyCallLimit:   req.DailyCallLimit,
		CallsPerHour:     req.CallsPerHour,
		MaxRetryAttempts: req.MaxRetryAttempts,
		EndDate:          req.EndDate,
	}
	if req.CallWindow != nil {
		input.WindowStart = &req.CallWindow.Start
		input.WindowEnd = &req.CallWindow.End
	}
	if req.MinCallInterval != nil {
		d, err := parseDuration(*req.MinCallInterval, "min_call_interval")
		if err != nil {
			return translateError(err)
		}
		input.MinCallInterval = &d
	}
	if req.RetryInterval != nil {
		d, err := parseDuration(*req.RetryInterval, "retry_interval")
		if err != nil {
			return translateError(err)
		}
		input.RetryInterval = &d
	}

	campaign, err := h.campaigns.Update(ctx.Context(), input)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(toCampaignResponse(campaign))
}

func (h *HandlerSet) startCampaign(ctx *fiber.Ctx) error {
	return h.transition(ctx, h.campaigns.Start)
}

func (h *HandlerSet) pauseCampaign(ctx *fiber.Ctx) error {
	return h.transition(ctx, h.campaigns.Pause)
}

func (h *HandlerSet) resumeCampaign(ctx *fiber.Ctx) error {
	return h.transition(ctx, h.campaigns.Resume)
}

func (h *HandlerSet) cancelCampaign(ctx *fiber.Ctx) error {
	return h.transition(ctx, h.campaigns.Cancel)
}

func (h *HandlerSet) completeCampaign(ctx *fiber.Ctx) error {
	return h.transition(ctx, h.campaigns.Complete)
}

func (h *HandlerSet) transition(ctx *fiber.Ctx, fn func(context.Context, uuid.UUID) error) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}
	if err := fn(ctx.Context(), id); err != nil {
		return translateError(err)
	}
	return ctx.SendStatus(http.StatusNoContent)
}

func (h *HandlerSet) campaignStats(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	stats, err := h.campaigns.Stats(ctx.Context(), id)
	if err != nil {
		return translateError(err)
	}

	resp := campaignStatsResponse{
		TotalAttempts:    stats.TotalAttempts,
		CompletedLeads:   stats.CompletedLeads,
		FailedLeads:      stats.FailedLeads,
		SkippedLeads:     stats.SkippedLeads,
		PendingLeads:     stats.PendingLeads,
		RetriesScheduled: stats.RetriesScheduled,
	}

	return ctx.Status(http.StatusOK).JSON(resp)
}

func toCampaignResponse(campaign *domain.Campaign) campaignResponse {
	resp := campaignResponse{
		ID:               campaign.ID,
		Name:             campaign.Name,
		Description:      campaign.Description,
		TimeZone:         campaign.TimeZone,
		Status:           campaign.Status,
		DailyCallLimit:   campaign.DailyCallLimit,
		CallsPerHour:     campaign.CallsPerHour,
		MinCallInterval:  campaign.MinCallInterval.String(),
		MaxRetryAttempts: campaign.MaxRetryAttempts,
		RetryInterval:    campaign.RetryInterval.String(),
		StartDate:        campaign.StartDate,
		EndDate:          campaign.EndDate,
		CreatedAt:        campaign.CreatedAt,
		UpdatedAt:        campaign.UpdatedAt,
		StartedAt:        campaign.StartedAt,
		CompletedAt:      campaign.CompletedAt,
	}
	resp.CallWindow.Start = campaign.Window.Start()
	resp.CallWindow.End = campaign.Window.End()
	return resp
}

func toCreateCampaignInput(req createCampaignRequest) (campaignsvc.CreateCampaignInput, error) {
	input := campaignsvc.CreateCampaignInput{
		Name:             req.Name,
		Description:      req.Description,
		TimeZone:         req.TimeZone,
		WindowStart:      req.CallWindow.Start,
		WindowEnd:        req.CallWindow.End,
		DailyCallLimit:   req.DailyCallLimit,
		CallsPerHour:     req.CallsPerHour,
		MaxRetryAttempts: req.MaxRetryAttempts,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
	}

	if req.MinCallInterval != "" {
		d, err := parseDuration(req.MinCallInterval, "min_call_interval")
		if err != nil {
			return campaignsvc.CreateCampaignInput{}, err
		}
		input.MinCallInterval = d
	}
	if req.RetryInterval != "" {
		d, err := parseDuration(req.RetryInterval, "retry_interval")
		if err != nil {
			return campaignsvc.CreateCampaignInput{}, err
		}
		input.RetryInterval = d
	}

	leads := make([]campaignsvc.LeadInput, 0, len(req.Leads))
	for _, l := range req.Leads {
		leads = append(leads, campaignsvc.LeadInput{PhoneNumber: l.PhoneNumber, Name: l.Name})
	}
	input.Leads = leads

	return input, nil
}

func parseDuration(value, field string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s", apperrors.ErrValidation, field)
	}
	return d, nil
}

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(value)
}
