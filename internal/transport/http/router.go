package httptransport

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"duel-arena/internal/metrics"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

type RouterOptions struct {
	Checks         map[string]Check
	MetricsEnabled bool
}

func NewRouter(a Arena, live http.HandlerFunc, opts RouterOptions) *chi.Mux {
	duels := NewDuelHandlers(a)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.With(APILogMiddleware()).Get("/healthz", Health(opts.Checks))
	if opts.MetricsEnabled {
		r.Handle("/metrics", metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(APILogMiddleware())
		r.Post("/duels", duels.Create())
		r.Get("/duels/{duel_id}", duels.Get())
		r.Get("/duels/{duel_id}/state", duels.State())
		r.Post("/duels/{duel_id}/accept", duels.Accept())
		r.Post("/duels/{duel_id}/decline", duels.Decline())
		r.Post("/duels/{duel_id}/cancel", duels.Cancel())
		r.Post("/duels/{duel_id}/ready", duels.Ready())
		r.Post("/duels/{duel_id}/actions", duels.Action())
		r.Post("/duels/{duel_id}/forfeit", duels.Forfeit())
		r.Get("/accounts/{player_id}", duels.Account())
		if live != nil {
			r.Get("/duels/{duel_id}/live", live)
		}
	})
	return r
}

func LogRoutes(r chi.Router) {
	type routeDef struct {
		Method string
		Path   string
	}
	routes := make([]routeDef, 0, 16)
	err := chi.Walk(r, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, routeDef{Method: method, Path: route})
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("walk routes failed")
		return
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path == routes[j].Path {
			return routes[i].Method < routes[j].Method
		}
		return routes[i].Path < routes[j].Path
	})
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Registered routes (%d):\n", len(routes)))
	for _, rt := range routes {
		b.WriteString(fmt.Sprintf("  %-6s %s\n", rt.Method, rt.Path))
	}
	fmt.Print(b.String())
}
