package envelopes

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"esign-backend/internal/shared/server/middleware"
	"esign-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches envelope routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/envelopes", h.submit)
	rg.GET("/envelopes/:id", h.get)
	rg.GET("/envelopes/:id/history", h.history)
	rg.POST("/envelopes/:id/fill", h.fill)
	rg.POST("/envelopes/:id/void", h.void)
	rg.DELETE("/envelopes/:id", h.remove)
	rg.POST("/envelopes/:id/resend", h.resend)
	rg.POST("/envelopes/:id/remind", h.remind)
	rg.POST("/envelopes/:id/expiration", h.extend)

	rg.GET("/sign/:token", h.validateToken)
	rg.POST("/sign/:token/viewed", h.markViewed)
	rg.POST("/sign/:token/decline", h.decline)
}

type submitRecipientRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Type     string `json:"type"`
	Priority int    `json:"priority"`
}

type submitFieldOptionRequest struct {
	Label string `json:"label"`
}

type submitRadioRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type submitFieldRequest struct {
	RecipientEmail string                     `json:"recipientEmail"`
	UUID           string                     `json:"uuid"`
	Type           string                     `json:"type"`
	X              float64                    `json:"x"`
	Y              float64                    `json:"y"`
	Width          float64                    `json:"width"`
	Height         float64                    `json:"height"`
	PageIndex      int                        `json:"pageIndex"`
	ZoomX          float64                    `json:"zoomX"`
	ZoomY          float64                    `json:"zoomY"`
	ScaleX         float64                    `json:"scaleX"`
	ScaleY         float64                    `json:"scaleY"`
	FontFamily     string                     `json:"fontFamily"`
	FontSize       float64                    `json:"fontSize"`
	Rows           int                        `json:"rows"`
	Options        []submitFieldOptionRequest `json:"options"`
	Radios         []submitRadioRequest       `json:"radios"`
}

type submitRequest struct {
	EnvelopeID       string                   `json:"envelopeId"`
	Title            string                   `json:"title"`
	PDFKey           string                   `json:"pdfKey"`
	PriorityRequired bool                     `json:"priorityRequired"`
	AttachAuditLog   bool                     `json:"attachAuditLog"`
	ExpirationDate   *time.Time               `json:"expirationDate"`
	IsTemplate       bool                     `json:"isTemplate"`
	Draft            bool                     `json:"draft"`
	OwnerName        string                   `json:"ownerName"`
	OwnerEmail       string                   `json:"ownerEmail"`
	CompanyID        string                   `json:"companyId"`
	Recipients       []submitRecipientRequest `json:"recipients"`
	Fields           []submitFieldRequest     `json:"fields"`
}

func (h *Handler) submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "invalid request body", nil)
		return
	}

	input := SubmitInput{
		EnvelopeID:       strings.TrimSpace(req.EnvelopeID),
		OwnerID:          middleware.UserIDFromContext(c),
		OwnerName:        strings.TrimSpace(req.OwnerName),
		OwnerEmail:       strings.TrimSpace(req.OwnerEmail),
		CompanyID:        strings.TrimSpace(req.CompanyID),
		Title:            strings.TrimSpace(req.Title),
		PriorityRequired: req.PriorityRequired,
		AttachAuditLog:   req.AttachAuditLog,
		PDFKey:           strings.TrimSpace(req.PDFKey),
		ExpirationDate:   req.ExpirationDate,
		IsTemplate:       req.IsTemplate,
		Draft:            req.Draft,
		IP:               c.ClientIP(),
		Browser:          c.Request.UserAgent(),
	}
	for _, rcpt := range req.Recipients {
		input.Recipients = append(input.Recipients, Recipient{
			Email:    strings.TrimSpace(rcpt.Email),
			Name:     strings.TrimSpace(rcpt.Name),
			Role:     RecipientRole(rcpt.Role),
			Type:     RecipientType(rcpt.Type),
			Priority: rcpt.Priority,
		})
	}
	for _, f := range req.Fields {
		field := Field{
			RecipientID: strings.TrimSpace(f.RecipientEmail),
			UUID:        f.UUID,
			Type:        FieldType(f.Type),
			X:           f.X,
			Y:           f.Y,
			Width:       f.Width,
			Height:      f.Height,
			PageIndex:   f.PageIndex,
			ZoomX:       f.ZoomX,
			ZoomY:       f.ZoomY,
			ScaleX:      f.ScaleX,
			ScaleY:      f.ScaleY,
			FontFamily:  f.FontFamily,
			FontSize:    f.FontSize,
			Rows:        f.Rows,
		}
		for _, opt := range f.Options {
			field.Options = append(field.Options, FieldOption{Label: opt.Label})
		}
		for _, radio := range f.Radios {
			field.Radios = append(field.Radios, RadioButton{X: radio.X, Y: radio.Y})
		}
		input.Fields = append(input.Fields, field)
	}

	env, err := h.Svc.SubmitEnvelope(c.Request.Context(), input)
	if err != nil {
		h.respondError(c, err, "failed to submit envelope")
		return
	}

	respond.Created(c, gin.H{
		"envelopeId": env.ID,
		"status":     env.Status,
		"version":    env.Version,
	})
}

func (h *Handler) get(c *gin.Context) {
	agg, err := h.Svc.GetAggregate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "failed to fetch envelope")
		return
	}
	respond.JSON(c, http.StatusOK, toAggregateResponse(agg))
}

func (h *Handler) history(c *gin.Context) {
	events, err := h.Svc.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "failed to fetch history")
		return
	}

	resp := make([]gin.H, 0, len(events))
	for _, event := range events {
		resp = append(resp, gin.H{
			"action":    event.Action,
			"actorName": event.ActorName,
			"ip":        event.IP,
			"browser":   event.Browser,
			"createdAt": event.CreatedAt,
		})
	}
	respond.JSON(c, http.StatusOK, resp)
}

type fillRequest struct {
	RecipientID string `json:"recipientId"`
	Token       string `json:"token"`
	Values      []struct {
		FieldID          string `json:"fieldId"`
		Value            string `json:"value"`
		SelectedOptionID string `json:"selectedOptionId"`
	} `json:"values"`
}

func (h *Handler) fill(c *gin.Context) {
	var req fillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "invalid request body", nil)
		return
	}

	input := FillInput{
		EnvelopeID:  c.Param("id"),
		RecipientID: strings.TrimSpace(req.RecipientID),
		Token:       strings.TrimSpace(req.Token),
		IP:          c.ClientIP(),
		Browser:     c.Request.UserAgent(),
	}
	for _, val := range req.Values {
		input.Values = append(input.Values, FieldValue{
			FieldID:          val.FieldID,
			Value:            val.Value,
			SelectedOptionID: val.SelectedOptionID,
		})
	}

	if err := h.Svc.FillFields(c.Request.Context(), input); err != nil {
		h.respondError(c, err, "failed to submit fields")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"status": "ok"})
}

type reasonRequest struct {
	Reason    string `json:"reason"`
	ActorName string `json:"actorName"`
}

func (h *Handler) void(c *gin.Context) {
	var req reasonRequest
	_ = c.ShouldBindJSON(&req)

	err := h.Svc.VoidEnvelope(c.Request.Context(), c.Param("id"), req.Reason, req.ActorName, middleware.UserIDFromContext(c))
	if err != nil {
		h.respondError(c, err, "failed to void envelope")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"status": StatusVoided})
}

func (h *Handler) remove(c *gin.Context) {
	var req reasonRequest
	_ = c.ShouldBindJSON(&req)

	err := h.Svc.DeleteEnvelope(c.Request.Context(), c.Param("id"), req.Reason, req.ActorName, middleware.UserIDFromContext(c))
	if err != nil {
		h.respondError(c, err, "failed to delete envelope")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"status": StatusDeleted})
}

func (h *Handler) resend(c *gin.Context) {
	var req reasonRequest
	_ = c.ShouldBindJSON(&req)

	err := h.Svc.Resend(c.Request.Context(), c.Param("id"), req.ActorName, middleware.UserIDFromContext(c))
	if err != nil {
		h.respondError(c, err, "failed to resend notifications")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) remind(c *gin.Context) {
	if err := h.Svc.SendReminder(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err, "failed to send reminder")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"status": "ok"})
}

type extendRequest struct {
	ExpirationDate time.Time `json:"expirationDate"`
}

func (h *Handler) extend(c *gin.Context) {
	var req extendRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ExpirationDate.IsZero() {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "expirationDate is required", nil)
		return
	}

	if err := h.Svc.ExtendExpiration(c.Request.Context(), c.Param("id"), req.ExpirationDate); err != nil {
		h.respondError(c, err, "failed to extend expiration")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) validateToken(c *gin.Context) {
	summary, err := h.Svc.ValidateRoutingToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.respondError(c, err, "failed to validate token")
		return
	}

	fields := make([]gin.H, 0, len(summary.Fields))
	for _, f := range summary.Fields {
		fields = append(fields, toFieldResponse(f))
	}
	respond.JSON(c, http.StatusOK, gin.H{
		"envelopeId": summary.Envelope.ID,
		"title":      summary.Envelope.Title,
		"status":     summary.Envelope.Status,
		"pdfKey":     summary.Envelope.PDFKey,
		"recipient": gin.H{
			"recipientId": summary.Recipient.ID,
			"name":        summary.Recipient.Name,
			"email":       summary.Recipient.Email,
			"role":        summary.Recipient.Role,
			"status":      summary.Recipient.Status,
		},
		"fields": fields,
	})
}

func (h *Handler) markViewed(c *gin.Context) {
	err := h.Svc.MarkViewed(c.Request.Context(), c.Param("token"), c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		h.respondError(c, err, "failed to record view")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) decline(c *gin.Context) {
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Reason) == "" {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "reason is required", nil)
		return
	}

	err := h.Svc.DeclineEnvelope(c.Request.Context(), c.Param("token"), req.Reason, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		h.respondError(c, err, "failed to decline envelope")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"status": StatusDeclined})
}

func (h *Handler) respondError(c *gin.Context, err error, fallback string) {
	var notEditable *NotEditableError
	var alreadyFilled *AlreadyFilledError
	var editConflict *EditConflictError
	var declineRefused *DeclineRefusedError

	switch {
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, ErrorCodeNotFound, "envelope not found", nil)
	case errors.Is(err, ErrInvalidToken):
		respond.Error(c, http.StatusUnauthorized, ErrorCodeInvalidToken, "invalid routing token", nil)
	case errors.Is(err, ErrEnvelopeLocked):
		respond.Error(c, http.StatusLocked, ErrorCodeLocked, "envelope is busy, retry shortly", nil)
	case errors.As(err, &alreadyFilled):
		respond.Error(c, http.StatusConflict, ErrorCodeAlreadyFilled, alreadyFilled.Error(), gin.H{"status": StatusCompleted})
	case errors.As(err, &notEditable):
		respond.Error(c, http.StatusConflict, ErrorCodeNotEditable, notEditable.Error(), gin.H{"status": notEditable.Status})
	case errors.As(err, &editConflict):
		respond.Error(c, http.StatusConflict, ErrorCodeEditConflict, editConflict.Error(), gin.H{"recipientEmail": editConflict.RecipientEmail})
	case errors.As(err, &declineRefused):
		respond.Error(c, http.StatusConflict, ErrorCodeNotEditable, declineRefused.Error(), nil)
	default:
		respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, fallback, nil)
	}
}

func toAggregateResponse(agg Aggregate) gin.H {
	recipients := make([]gin.H, 0, len(agg.Recipients))
	for _, rcpt := range agg.Recipients {
		recipients = append(recipients, gin.H{
			"recipientId": rcpt.ID,
			"email":       rcpt.Email,
			"name":        rcpt.Name,
			"role":        rcpt.Role,
			"type":        rcpt.Type,
			"priority":    rcpt.Priority,
			"status":      rcpt.Status,
			"isDeclined":  rcpt.IsDeclined,
			"viewedAt":    rcpt.ViewedAt,
		})
	}
	fields := make([]gin.H, 0, len(agg.Fields))
	for _, f := range agg.Fields {
		fields = append(fields, toFieldResponse(f))
	}

	env := agg.Envelope
	return gin.H{
		"envelopeId":       env.ID,
		"title":            env.Title,
		"status":           env.Status,
		"priorityRequired": env.PriorityRequired,
		"pdfKey":           env.PDFKey,
		"version":          env.Version,
		"attachAuditLog":   env.AttachAuditLog,
		"expirationDate":   env.ExpirationDate,
		"auditLogKey":      env.AuditLogKey,
		"combinedKey":      env.CombinedKey,
		"voidReason":       env.VoidReason,
		"createdAt":        env.CreatedAt,
		"recipients":       recipients,
		"fields":           fields,
	}
}

func toFieldResponse(f Field) gin.H {
	options := make([]gin.H, 0, len(f.Options))
	for _, opt := range f.Options {
		options = append(options, gin.H{"optionId": opt.ID, "label": opt.Label})
	}
	radios := make([]gin.H, 0, len(f.Radios))
	for _, radio := range f.Radios {
		radios = append(radios, gin.H{"radioId": radio.ID, "x": radio.X, "y": radio.Y})
	}
	return gin.H{
		"fieldId":    f.ID,
		"uuid":       f.UUID,
		"type":       f.Type,
		"x":          f.X,
		"y":          f.Y,
		"width":      f.Width,
		"height":     f.Height,
		"pageIndex":  f.PageIndex,
		"fontFamily": f.FontFamily,
		"fontSize":   f.FontSize,
		"rows":       f.Rows,
		"value":      f.Value,
		"status":     f.Status,
		"options":    options,
		"radios":     radios,
	}
}
