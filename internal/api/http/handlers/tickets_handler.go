package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/helpdeskhq/support-desk/internal/api/dto"
	"github.com/helpdeskhq/support-desk/internal/auth"
	"github.com/helpdeskhq/support-desk/internal/domain"
	"github.com/helpdeskhq/support-desk/internal/service"
	apperrors "github.com/helpdeskhq/support-desk/pkg/util"
)

// TicketsHandler exposes ticket endpoints for every role; the service decides what each
// caller may see and change.
type TicketsHandler struct {
	service *service.TicketService
	assign  *service.AssignmentService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService, assignmentService *service.AssignmentService) *TicketsHandler {
	return &TicketsHandler{service: ticketService, assign: assignmentService}
}

// CreateTicket POST /api/tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.CreateTicket(c.UserContext(), actor, service.TicketCreateInput{
		Title:            req.Title,
		Description:      req.Description,
		Category:         req.Category,
		PriorityOverride: req.Priority,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// ListTickets GET /api/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	filter, err := parseTicketQuery(c)
	if err != nil {
		return err
	}
	tickets, err := h.service.ListTickets(c.UserContext(), actor, filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /api/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.GetTicket(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// UpdateTicket PUT /api/tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	assignee, err := parseAssignee(req.AssignedTo)
	if err != nil {
		return err
	}
	ticket, err := h.service.UpdateTicket(c.UserContext(), actor, c.Params("id"), service.TicketUpdateInput{
		Title:           req.Title,
		Description:     req.Description,
		Category:        req.Category,
		Priority:        req.Priority,
		Status:          req.Status,
		Assignee:        assignee,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// ResolveTicket POST /api/tickets/:id/resolve.
func (h *TicketsHandler) ResolveTicket(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.ResolveTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.ResolveTicket(c.UserContext(), actor, c.Params("id"), service.ResolutionInput{
		SolutionDescription: req.SolutionDescription,
		Type:                req.ResolutionType,
		RootCause:           req.RootCause,
		StepsTaken:          req.StepsTaken,
		TimeSpentMinutes:    rawScalar(req.TimeSpentMinutes),
		ExpectedVersion:     req.ExpectedVersion,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// DeleteTicket DELETE /api/tickets/:id.
func (h *TicketsHandler) DeleteTicket(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	if err := h.service.DeleteTicket(c.UserContext(), actor, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// AddComment POST /api/tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.CreateCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.AddComment(c.UserContext(), actor, c.Params("id"), req.Text)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// AutoAssign POST /api/tickets/:id/auto-assign.
func (h *TicketsHandler) AutoAssign(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	ticket, err := h.assign.AutoAssignTicket(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// SelfAssign POST /api/tickets/:id/assign-self.
func (h *TicketsHandler) SelfAssign(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	ticket, err := h.assign.SelfAssignTicket(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// History GET /api/tickets/:id/history.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	limit, offset := parsePage(c)
	entries, err := h.service.ListHistory(c.UserContext(), actor, c.Params("id"), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": historyResponses(entries)})
}

// PreviewPriority POST /api/tickets/preview-priority.
func (h *TicketsHandler) PreviewPriority(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.PreviewPriorityRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	result, err := h.service.PreviewPriority(c.UserContext(), actor, req.Title, req.Description, req.Category)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.PriorityPreviewResponse{
		Priority:        result.Priority,
		Impact:          result.Impact,
		Urgency:         result.Urgency,
		MatchedKeywords: result.MatchedKeywords,
	}})
}

// Statistics GET /api/tickets/statistics-by-priority.
func (h *TicketsHandler) Statistics(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	stats, err := h.service.PriorityStatistics(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stats})
}

func principal(c *fiber.Ctx) (*domain.User, error) {
	user, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return user, nil
}

// parseAssignee maps the raw assigned_to value: missing leaves the assignee untouched,
// null or "" clears it.
func parseAssignee(raw json.RawMessage) (*string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		empty := ""
		return &empty, nil
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return nil, apperrors.NewValidationError("invalid payload", map[string]any{"assigned_to": "must be a string or null"})
	}
	return &id, nil
}

// rawScalar returns a JSON number or string as text for the service to validate.
func rawScalar(raw json.RawMessage) string {
	text := strings.TrimSpace(string(raw))
	if text == "null" {
		return ""
	}
	if unquoted, err := strconv.Unquote(text); err == nil {
		return unquoted
	}
	return text
}

func parseTicketQuery(c *fiber.Ctx) (service.TicketListFilter, error) {
	filter := service.TicketListFilter{}
	details := map[string]any{}
	for _, part := range splitList(c.Query("status")) {
		status, ok := domain.ParseStatus(part)
		if !ok {
			details["status"] = part
			continue
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	for _, part := range splitList(c.Query("priority")) {
		p, ok := domain.ParsePriority(part)
		if !ok {
			details["priority"] = part
			continue
		}
		filter.Priorities = append(filter.Priorities, p)
	}
	for _, part := range splitList(c.Query("category")) {
		category, ok := domain.ParseCategory(part)
		if !ok {
			details["category"] = part
			continue
		}
		filter.Categories = append(filter.Categories, category)
	}
	if len(details) > 0 {
		return filter, apperrors.NewValidationError("invalid filter", details)
	}
	if assignee := strings.TrimSpace(c.Query("assigned_to")); assignee != "" {
		filter.AssignedTo = &assignee
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		filter.SearchTerm = &search
	}
	filter.Limit, filter.Offset = parsePage(c)
	return filter, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parsePage(c *fiber.Ctx) (limit, offset int) {
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	return pageSize, (page - 1) * pageSize
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:                 ticket.ID,
		ExternalKey:        ticket.ExternalKey,
		Title:              ticket.Title,
		Category:           ticket.Category,
		Status:             ticket.Status,
		Priority:           ticket.Priority,
		PriorityOverridden: ticket.PriorityOverridden,
		CreatedBy:          ticket.CreatedBy,
		AssignedTo:         ticket.AssignedTo,
		Version:            ticket.Version,
		CreatedAt:          ticket.CreatedAt,
		UpdatedAt:          ticket.UpdatedAt,
	}
}

func ticketDetail(ticket *domain.Ticket) dto.TicketDetailResponse {
	comments := make([]dto.CommentResponse, 0, len(ticket.Comments))
	for _, comment := range ticket.Comments {
		comments = append(comments, dto.CommentResponse{
			ID:         comment.ID,
			AuthorID:   comment.AuthorID,
			AuthorName: comment.AuthorName,
			Text:       comment.Text,
			CreatedAt:  comment.CreatedAt,
		})
	}
	var resolution *dto.ResolutionResponse
	if res := ticket.Resolution; res != nil {
		resolution = &dto.ResolutionResponse{
			SolutionDescription: res.SolutionDescription,
			Type:                res.Type,
			RootCause:           res.RootCause,
			StepsTaken:          res.StepsTaken,
			TimeSpentMinutes:    res.TimeSpentMinutes,
			ResolvedBy:          res.ResolvedBy,
			ResolvedAt:          res.ResolvedAt,
		}
	}
	return dto.TicketDetailResponse{
		TicketSummary: ticketSummary(ticket),
		Description:   ticket.Description,
		Impact:        ticket.Impact,
		Urgency:       ticket.Urgency,
		ClosedAt:      ticket.ClosedAt,
		Resolution:    resolution,
		Comments:      comments,
	}
}

func historyResponses(entries []domain.TicketHistory) []dto.TicketHistoryResponse {
	resp := make([]dto.TicketHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, dto.TicketHistoryResponse{
			ID:          entry.ID,
			ChangedByID: entry.ChangedByID,
			ChangeType:  entry.ChangeType,
			OldValue:    entry.OldValue,
			NewValue:    entry.NewValue,
			CreatedAt:   entry.CreatedAt,
		})
	}
	return resp
}
