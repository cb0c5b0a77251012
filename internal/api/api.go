package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"transit-sim/internal/game"
	"transit-sim/internal/geo"
	"transit-sim/internal/sim"
	"transit-sim/internal/transit"
)

// Simulation runs fn against the world on the simulation goroutine.
type Simulation interface {
	Do(ctx context.Context, fn func(*game.World) error) error
}

type ErrorResponse struct {
	Error   string         `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

type Handler struct {
	sim Simulation
	log zerolog.Logger
}

func NewHandler(s Simulation, log zerolog.Logger) *Handler {
	return &Handler{sim: s, log: log.With().Str("component", "api").Logger()}
}

// Router mounts every endpoint behind CORS for the given origins.
func (h *Handler) Router(origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/stops", h.GetStops)
		r.Get("/stops/nearest", h.GetNearestStop)
		r.Get("/lines", h.GetLines)
		r.Get("/lines/free", h.GetFreeLine)
		r.Get("/state", h.GetState)
		r.Get("/route", h.GetRoute)

		r.Route("/lines/{id}", func(r chi.Router) {
			r.Post("/stops", h.DrawStop)
			r.Post("/loop", h.SetLoop)
			r.Post("/activate", h.Activate)
			r.Post("/deactivate", h.Deactivate)
			r.Delete("/", h.ResetLine)
		})

		r.Post("/game/pause", h.Pause)
		r.Post("/game/resume", h.Resume)
		r.Post("/game/reset", h.Reset)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, transit.ErrUnknownLine), errors.Is(err, transit.ErrUnknownStop):
		status = http.StatusNotFound
	case errors.Is(err, transit.ErrTooFewStops),
		errors.Is(err, transit.ErrLineActive),
		errors.Is(err, transit.ErrPassengersAboard),
		errors.Is(err, transit.ErrDuplicateStop),
		errors.Is(err, game.ErrStopNotPlaced),
		errors.Is(err, game.ErrGameOver):
		status = http.StatusConflict
	case errors.Is(err, sim.ErrStopped):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

// do runs fn with a bounded wait for the simulation goroutine.
func (h *Handler) do(r *http.Request, fn func(*game.World) error) error {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	return h.sim.Do(ctx, fn)
}

func parseBBox(raw string) (geo.Bounds, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return geo.Bounds{}, fmt.Errorf("invalid bbox: %q", raw)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return geo.Bounds{}, fmt.Errorf("invalid bbox: %q", raw)
		}
		v[i] = f
	}
	return geo.Bounds{South: v[0], West: v[1], North: v[2], East: v[3]}, nil
}

func lineID(r *http.Request) (transit.LineID, error) {
	raw := chi.URLParam(r, "id")
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("invalid line id: " + strconv.Quote(raw))
	}
	return transit.LineID(n), nil
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	var state string
	err := h.do(r, func(world *game.World) error {
		state = world.State().String()
		return nil
	})
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":    "error",
			"timestamp": time.Now().UTC(),
			"error":     err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"game":      state,
		"timestamp": time.Now().UTC(),
	})
}

// GetStops handles GET /api/stops
// An optional bbox=south,west,north,east restricts the result.
func (h *Handler) GetStops(w http.ResponseWriter, r *http.Request) {
	var bounds *geo.Bounds
	if raw := r.URL.Query().Get("bbox"); raw != "" {
		b, err := parseBBox(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		bounds = &b
	}
	var stops []game.StopView
	if err := h.do(r, func(world *game.World) error {
		if bounds != nil {
			stops = world.StopViewsIn(*bounds)
		} else {
			stops = world.StopViews()
		}
		return nil
	}); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stops": stops, "count": len(stops)})
}

// GetNearestStop handles GET /api/stops/nearest?lat=&lon=
func (h *Handler) GetNearestStop(w http.ResponseWriter, r *http.Request) {
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if errLat != nil || errLon != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "lat and lon parameters are required"})
		return
	}
	var (
		stop   game.StopView
		meters float64
		found  bool
	)
	if err := h.do(r, func(world *game.World) error {
		stop, meters, found = world.NearestStop(geo.Point{Lat: lat, Lon: lon})
		return nil
	}); err != nil {
		h.writeError(w, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "no stop on the map"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stop": stop, "meters": meters})
}

// GetFreeLine handles GET /api/lines/free
func (h *Handler) GetFreeLine(w http.ResponseWriter, r *http.Request) {
	var (
		id    transit.LineID
		found bool
	)
	if err := h.do(r, func(world *game.World) error {
		id, found = world.FreeLine()
		return nil
	}); err != nil {
		h.writeError(w, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "no free line"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id})
}

// GetLines handles GET /api/lines
func (h *Handler) GetLines(w http.ResponseWriter, r *http.Request) {
	var lines []game.LineView
	if err := h.do(r, func(world *game.World) error {
		lines = world.LineViews()
		return nil
	}); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lines": lines, "count": len(lines)})
}

// GetState handles GET /api/state
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	var state game.StateView
	if err := h.do(r, func(world *game.World) error {
		state = world.StateView()
		return nil
	}); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// GetRoute handles GET /api/route?from=&to=
func (h *Handler) GetRoute(w http.ResponseWriter, r *http.Request) {
	from := transit.StopID(r.URL.Query().Get("from"))
	to := transit.StopID(r.URL.Query().Get("to"))
	if from == "" || to == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "from and to parameters are required"})
		return
	}
	var (
		view  game.RouteView
		found bool
	)
	if err := h.do(r, func(world *game.World) error {
		p, ok, err := world.Route(from, to)
		if err != nil {
			return err
		}
		view, found = game.NewRouteView(p), ok
		return nil
	}); err != nil {
		h.writeError(w, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Error:   "no route",
			Details: map[string]any{"from": from, "to": to},
		})
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type drawStopRequest struct {
	StopID  transit.StopID `json:"stopId"`
	Nearest bool           `json:"nearest"`
}

// DrawStop handles POST /api/lines/{id}/stops
func (h *Handler) DrawStop(w http.ResponseWriter, r *http.Request) {
	id, err := lineID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	var req drawStopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StopID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "body must be {\"stopId\": string, \"nearest\": bool}"})
		return
	}
	h.mutateLine(w, r, id, func(world *game.World) error {
		return world.DrawStop(id, req.StopID, req.Nearest)
	})
}

type loopRequest struct {
	Loop bool `json:"loop"`
}

// SetLoop handles POST /api/lines/{id}/loop
func (h *Handler) SetLoop(w http.ResponseWriter, r *http.Request) {
	id, err := lineID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	var req loopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "body must be {\"loop\": bool}"})
		return
	}
	h.mutateLine(w, r, id, func(world *game.World) error {
		return world.SetLoop(id, req.Loop)
	})
}

// Activate handles POST /api/lines/{id}/activate
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	h.lineAction(w, r, (*game.World).Activate)
}

// Deactivate handles POST /api/lines/{id}/deactivate
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.lineAction(w, r, (*game.World).Deactivate)
}

// ResetLine handles DELETE /api/lines/{id}
func (h *Handler) ResetLine(w http.ResponseWriter, r *http.Request) {
	h.lineAction(w, r, (*game.World).ResetLine)
}

func (h *Handler) lineAction(w http.ResponseWriter, r *http.Request, action func(*game.World, transit.LineID) error) {
	id, err := lineID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	h.mutateLine(w, r, id, func(world *game.World) error {
		return action(world, id)
	})
}

// mutateLine applies fn and answers with the line's updated view.
func (h *Handler) mutateLine(w http.ResponseWriter, r *http.Request, id transit.LineID, fn func(*game.World) error) {
	var view game.LineView
	err := h.do(r, func(world *game.World) error {
		if err := fn(world); err != nil {
			return err
		}
		for _, v := range world.LineViews() {
			if v.ID == id {
				view = v
			}
		}
		return nil
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Pause handles POST /api/game/pause
func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	h.gameAction(w, r, (*game.World).Pause)
}

// Resume handles POST /api/game/resume
func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	h.gameAction(w, r, (*game.World).Resume)
}

// Reset handles POST /api/game/reset
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	h.gameAction(w, r, func(world *game.World) error {
		world.Reset()
		return nil
	})
}

func (h *Handler) gameAction(w http.ResponseWriter, r *http.Request, fn func(*game.World) error) {
	var state game.StateView
	err := h.do(r, func(world *game.World) error {
		if err := fn(world); err != nil {
			return err
		}
		state = world.StateView()
		return nil
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}
