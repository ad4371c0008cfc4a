// Package http provides http transport for the sensor ops surface
package http

import (
	stdhttp "net/http"

	"gitpulse/internal/modkit/httpkit"
	"gitpulse/internal/services/api/sensor/domain"
)

// Register mounts the sensor ops endpoints
func Register(r httpkit.Router, s domain.ServicePort) {
	h := &handlers{svc: s}
	httpkit.Get(r, "/cursors", h.cursors)
	httpkit.Get(r, "/peers", h.peers)
	httpkit.Post(r, "/backfill", h.backfill)
}

type handlers struct{ svc domain.ServicePort }

// swagger:route GET /sensor/cursors Sensor sensorCursors
// @Summary Per repository reconciliation cursors
// @Tags Sensor
// @Produce json
// @Success 200 {object} domain.CursorsResponse "ok"
// @Router /sensor/cursors [get]
func (h *handlers) cursors(r *stdhttp.Request) (any, error) {
	return h.svc.Cursors(r.Context())
}

// swagger:route GET /sensor/peers Sensor sensorPeers
// @Summary Overlay peers known to the node
// @Tags Sensor
// @Produce json
// @Success 200 {object} domain.PeersResponse "ok"
// @Router /sensor/peers [get]
func (h *handlers) peers(r *stdhttp.Request) (any, error) {
	return h.svc.Peers(r.Context())
}

// swagger:route POST /sensor/backfill Sensor sensorBackfill
// @Summary Trigger an asynchronous backfill pass
// @Tags Sensor
// @Produce json
// @Success 200 {object} domain.BackfillStartedResponse "ok"
// @Failure 409 {object} httpkit.Envelope "a run is already in flight"
// @Router /sensor/backfill [post]
func (h *handlers) backfill(r *stdhttp.Request) (any, error) {
	return h.svc.StartBackfill(r.Context())
}
