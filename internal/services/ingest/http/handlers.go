// Package http serves the provider webhook surface
package http

import (
	"encoding/json"
	"io"
	stdhttp "net/http"

	"gitpulse/internal/adapters/github"
	"gitpulse/internal/modkit/httpkit"
	"gitpulse/internal/modkit/scope"
	perr "gitpulse/internal/platform/errors"
	"gitpulse/internal/platform/logger"
	phttp "gitpulse/internal/platform/net/http"
	"gitpulse/internal/services/ingest/domain"
)

// maxPayload bounds webhook bodies, ordinary pushes stay well under
const maxPayload = 2 << 20

// Handlers serves the webhook endpoints over the feed port
type Handlers struct {
	Log  logger.Logger
	Feed domain.FeedPort
}

// Register mounts the webhook endpoints on the given router
func Register(r httpkit.Router, h *Handlers) {
	r.Post("/github", phttp.Handle(h.github))
}

// Ack is the body returned for deliveries acknowledged without processing
type Ack struct {
	Message string `json:"message"`
}

// swagger:route POST /webhooks/github Webhooks githubWebhook
// @Summary Accept a GitHub webhook delivery
// @Description Verifies the HMAC signature over the raw body, answers pings,
// @Description and reconciles push events against the repo cursor
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param X-GitHub-Event header string true "Event type"
// @Param X-Hub-Signature-256 header string false "HMAC signature over the body"
// @Success 200 {object} domain.PushResult "ok"
// @Failure 400 "malformed payload"
// @Failure 403 "signature mismatch"
// @Router /webhooks/github [post]
func (h *Handlers) github(r *stdhttp.Request) phttp.Response {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayload))
	if err != nil {
		return phttp.Error(perr.Newf(perr.ErrorCodeValidation, "ingest: read webhook body: %v", err))
	}
	if err := h.Feed.VerifySignature(body, r.Header.Get("X-Hub-Signature-256")); err != nil {
		return phttp.Error(err)
	}

	switch event := r.Header.Get("X-GitHub-Event"); event {
	case "ping":
		return phttp.OK(Ack{Message: "pong"})
	case "push":
	default:
		h.Log.Debug().Str("event", event).Msg("ignoring webhook event type")
		return phttp.OK(Ack{Message: "ignoring event type: " + event})
	}

	var push github.PushEvent
	if err := json.Unmarshal(body, &push); err != nil {
		return phttp.Error(perr.JSONErrf("ingest: decode push payload: %v", err))
	}

	// the delivery id rides the context so reconciliation logs can be
	// matched back to the provider's redelivery UI
	ctx := r.Context()
	if delivery := r.Header.Get("X-GitHub-Delivery"); delivery != "" {
		ctx = scope.With(ctx, map[string]string{"delivery": delivery})
	}

	res, err := h.Feed.ProcessPush(ctx, push)
	if err != nil {
		return phttp.Error(err)
	}
	return phttp.OK(res)
}
