package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/stafflink/wabridge/internal/config"
	"github.com/stafflink/wabridge/internal/whatsapp"
)

// maxWebhookBody caps the raw body read for signature verification.
const maxWebhookBody = 4 << 20

// EventProcessor consumes the flattened event sequence of one payload.
type EventProcessor interface {
	Process(ctx context.Context, events []whatsapp.Event)
}

// WebhookHandler terminates the WhatsApp Cloud API webhook: the GET
// subscription handshake and the signed POST delivery endpoint.
type WebhookHandler struct {
	appSecret   string
	verifyToken string
	parser      *whatsapp.Parser
	processor   EventProcessor
	logger      *slog.Logger
}

func NewWebhookHandler(log *slog.Logger, cfg config.WhatsAppConfig, parser *whatsapp.Parser, processor EventProcessor) *WebhookHandler {
	return &WebhookHandler{
		appSecret:   cfg.AppSecret,
		verifyToken: cfg.VerifyToken,
		parser:      parser,
		processor:   processor,
		logger:      log.With(slog.String("handler", "whatsapp_webhook")),
	}
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	e.GET("/webhook/whatsapp", h.HandleVerify)
	e.POST("/webhook/whatsapp", h.HandleEvent)
}

// HandleVerify answers the provider's subscription handshake: when the mode
// and token match, the raw challenge is echoed back verbatim.
func (h *WebhookHandler) HandleVerify(c echo.Context) error {
	mode := c.QueryParam("hub.mode")
	token := c.QueryParam("hub.verify_token")
	challenge := c.QueryParam("hub.challenge")

	if mode != "subscribe" || token == "" || token != h.verifyToken {
		h.logger.Warn("webhook verification rejected", slog.String("mode", mode))
		return echo.NewHTTPError(http.StatusForbidden, "verification failed")
	}
	h.logger.Info("webhook verification accepted")
	return c.String(http.StatusOK, challenge)
}

// HandleEvent receives one signed webhook delivery. An invalid signature is
// the only rejection; once authenticated the payload is acknowledged with 200
// regardless of per-event outcomes, so the provider never redelivers work we
// have already accepted.
func (h *WebhookHandler) HandleEvent(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		h.logger.Warn("webhook body read failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}

	signature := c.Request().Header.Get(whatsapp.SignatureHeader)
	if !whatsapp.VerifySignature(body, signature, h.appSecret) {
		h.logger.Warn("webhook signature rejected",
			slog.String("remote_ip", c.RealIP()))
		return echo.NewHTTPError(http.StatusForbidden, "invalid signature")
	}

	payload, err := h.parser.Decode(body)
	if err != nil {
		h.logger.Warn("webhook payload undecodable", slog.Any("error", err))
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}

	events := h.parser.Flatten(payload)
	h.processor.Process(c.Request().Context(), events)

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
