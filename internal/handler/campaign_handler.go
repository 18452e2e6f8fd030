package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Sujay0610/ReviewReap/internal/domain"
	"github.com/Sujay0610/ReviewReap/internal/repository"
	"github.com/Sujay0610/ReviewReap/internal/service"
	"github.com/Sujay0610/ReviewReap/internal/transport"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

// CampaignService is the campaign lifecycle surface the HTTP layer consumes.
type CampaignService interface {
	Schedule(ctx context.Context, orgID, campaignID string) (*service.ScheduleResult, error)
	Start(ctx context.Context, orgID, campaignID string) (*service.StartResult, error)
	Stop(ctx context.Context, orgID, campaignID string) (*service.StopResult, error)
	Pause(ctx context.Context, orgID, campaignID string) error
	Resume(ctx context.Context, orgID, campaignID string) error
	Stats(ctx context.Context, orgID, campaignID string) (*service.CampaignStats, error)
	ListMessages(ctx context.Context, orgID, campaignID string, params repository.MessageListParams) ([]domain.Message, int64, error)
	ListEvents(ctx context.Context, orgID, messageID string) ([]domain.MessageEvent, error)
}

type CampaignHandler struct {
	service CampaignService
}

func NewCampaignHandler(service CampaignService) (*CampaignHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("campaign service is required")
	}
	return &CampaignHandler{service: service}, nil
}

func RegisterCampaignRoutes(router fiber.Router, service CampaignService) error {
	h, err := NewCampaignHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1", transport.RequireOrg())
	v1.Post("/campaigns/:id/schedule", h.ScheduleCampaign)
	v1.Post("/campaigns/:id/start", h.StartCampaign)
	v1.Post("/campaigns/:id/stop", h.StopCampaign)
	v1.Post("/campaigns/:id/pause", h.PauseCampaign)
	v1.Post("/campaigns/:id/resume", h.ResumeCampaign)
	v1.Get("/campaigns/:id/stats", h.GetCampaignStats)
	v1.Get("/campaigns/:id/messages", h.ListCampaignMessages)
	v1.Get("/messages/:id/events", h.ListMessageEvents)

	return nil
}

type scheduleCampaignResponse struct {
	CampaignID      string `json:"campaignId"`
	Status          string `json:"status"`
	MessagesCreated int    `json:"messagesCreated"`
}

type startCampaignResponse struct {
	CampaignID     string `json:"campaignId"`
	Status         string `json:"status"`
	MessagesQueued int    `json:"messagesQueued"`
}

type stopCampaignResponse struct {
	CampaignID        string `json:"campaignId"`
	Status            string `json:"status"`
	MessagesCancelled int    `json:"messagesCancelled"`
}

type campaignStatsResponse struct {
	CampaignID string            `json:"campaignId"`
	Status     string            `json:"status"`
	Total      int               `json:"total"`
	Counts     []statusCountItem `json:"counts"`
}

type statusCountItem struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

type messageResponse struct {
	ID                string     `json:"id"`
	CampaignID        string     `json:"campaignId"`
	GuestID           string     `json:"guestId"`
	Channel           string     `json:"channel"`
	Content           string     `json:"content"`
	Status            string     `json:"status"`
	ProviderMessageID *string    `json:"providerMessageId,omitempty"`
	ScheduledAt       *time.Time `json:"scheduledAt,omitempty"`
	RetryCount        int        `json:"retryCount"`
	SentAt            *time.Time `json:"sentAt,omitempty"`
	DeliveredAt       *time.Time `json:"deliveredAt,omitempty"`
	ReadAt            *time.Time `json:"readAt,omitempty"`
	FailedAt          *time.Time `json:"failedAt,omitempty"`
	ErrorMessage      *string    `json:"errorMessage,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

type listMessagesResponse struct {
	Data []messageResponse `json:"data"`
	Meta listMeta          `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

type messageEventResponse struct {
	ID        string          `json:"id"`
	MessageID string          `json:"messageId"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

type listEventsResponse struct {
	Data []messageEventResponse `json:"data"`
}

func (h *CampaignHandler) ScheduleCampaign(c *fiber.Ctx) error {
	result, err := h.service.Schedule(c.Context(), transport.OrgID(c), campaignIDParam(c))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(scheduleCampaignResponse{
		CampaignID:      result.CampaignID,
		Status:          result.Status.String(),
		MessagesCreated: result.MessagesCreated,
	})
}

func (h *CampaignHandler) StartCampaign(c *fiber.Ctx) error {
	result, err := h.service.Start(c.Context(), transport.OrgID(c), campaignIDParam(c))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(startCampaignResponse{
		CampaignID:     result.CampaignID,
		Status:         result.Status.String(),
		MessagesQueued: result.MessagesQueued,
	})
}

func (h *CampaignHandler) StopCampaign(c *fiber.Ctx) error {
	result, err := h.service.Stop(c.Context(), transport.OrgID(c), campaignIDParam(c))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(stopCampaignResponse{
		CampaignID:        result.CampaignID,
		Status:            result.Status.String(),
		MessagesCancelled: result.MessagesCancelled,
	})
}

func (h *CampaignHandler) PauseCampaign(c *fiber.Ctx) error {
	campaignID := campaignIDParam(c)
	if err := h.service.Pause(c.Context(), transport.OrgID(c), campaignID); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"campaignId": campaignID,
		"status":     domain.CampaignStatusPaused.String(),
	})
}

func (h *CampaignHandler) ResumeCampaign(c *fiber.Ctx) error {
	campaignID := campaignIDParam(c)
	if err := h.service.Resume(c.Context(), transport.OrgID(c), campaignID); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"campaignId": campaignID,
		"status":     domain.CampaignStatusActive.String(),
	})
}

func (h *CampaignHandler) GetCampaignStats(c *fiber.Ctx) error {
	stats, err := h.service.Stats(c.Context(), transport.OrgID(c), campaignIDParam(c))
	if err != nil {
		return toHTTPError(err)
	}

	items := make([]statusCountItem, 0, len(stats.Counts))
	for _, count := range stats.Counts {
		items = append(items, statusCountItem{
			Status: count.Status.String(),
			Count:  count.Count,
		})
	}

	return c.Status(fiber.StatusOK).JSON(campaignStatsResponse{
		CampaignID: stats.CampaignID,
		Status:     stats.Status.String(),
		Total:      stats.Total,
		Counts:     items,
	})
}

func (h *CampaignHandler) ListCampaignMessages(c *fiber.Ctx) error {
	params, err := parseMessageListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	messages, total, err := h.service.ListMessages(c.Context(), transport.OrgID(c), campaignIDParam(c), params)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(listMessagesResponse{
		Data: toMessageResponses(messages),
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func (h *CampaignHandler) ListMessageEvents(c *fiber.Ctx) error {
	events, err := h.service.ListEvents(c.Context(), transport.OrgID(c), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}

	items := make([]messageEventResponse, 0, len(events))
	for _, event := range events {
		items = append(items, toMessageEventResponse(event))
	}

	return c.Status(fiber.StatusOK).JSON(listEventsResponse{Data: items})
}

func campaignIDParam(c *fiber.Ctx) string {
	return strings.TrimSpace(c.Params("id"))
}

func parseMessageListParams(c *fiber.Ctx) (repository.MessageListParams, error) {
	params := repository.MessageListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.MessageListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.MessageListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseMessageStatusFromString(rawStatus)
		if err != nil {
			return repository.MessageListParams{}, err
		}
		params.Status = &status
	}

	return params, nil
}

func toMessageResponses(messages []domain.Message) []messageResponse {
	responses := make([]messageResponse, 0, len(messages))
	for _, message := range messages {
		m := message
		responses = append(responses, toMessageResponse(&m))
	}
	return responses
}

func toMessageResponse(m *domain.Message) messageResponse {
	if m == nil {
		return messageResponse{}
	}

	return messageResponse{
		ID:                m.ID,
		CampaignID:        m.CampaignID,
		GuestID:           m.GuestID,
		Channel:           m.Channel.String(),
		Content:           m.Content,
		Status:            m.Status.String(),
		ProviderMessageID: m.ProviderMsgID,
		ScheduledAt:       m.ScheduledAt,
		RetryCount:        m.RetryCount,
		SentAt:            m.SentAt,
		DeliveredAt:       m.DeliveredAt,
		ReadAt:            m.ReadAt,
		FailedAt:          m.FailedAt,
		ErrorMessage:      m.ErrorMessage,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func toMessageEventResponse(e domain.MessageEvent) messageEventResponse {
	response := messageEventResponse{
		ID:        e.ID,
		MessageID: e.MessageID,
		Type:      e.Type.String(),
		CreatedAt: e.CreatedAt,
	}
	if payload := strings.TrimSpace(e.Payload); payload != "" {
		response.Payload = json.RawMessage(payload)
	}
	return response
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
