package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/david/campsite-finder/internal/auth"
	"github.com/david/campsite-finder/internal/catalog"
	"github.com/david/campsite-finder/internal/geo"
	"github.com/david/campsite-finder/internal/models"
	"github.com/david/campsite-finder/internal/search"
	"github.com/david/campsite-finder/internal/sources"
	"github.com/david/campsite-finder/internal/stream"
)

// Geocoder resolves a free-text location.
type Geocoder interface {
	Geocode(ctx context.Context, location string) (geo.Point, error)
}

// CatalogBuilder rebuilds the park catalog into a store.
type CatalogBuilder interface {
	BuildAll(ctx context.Context, store *catalog.Store) (map[models.Source]int, error)
}

// Deps are the collaborators the HTTP layer is wired to.
type Deps struct {
	Catalog     *catalog.Store
	Children    *catalog.ChildrenCache
	Clients     map[models.Source]sources.Client
	Emitter     *stream.Emitter
	Geocoder    Geocoder
	Builder     CatalogBuilder // nil disables the rebuild endpoint
	Auth        *auth.Service
	Gatherer    prometheus.Gatherer
	CORSOrigins []string
}

type Server struct {
	Echo *echo.Echo
	deps Deps

	upgrader websocket.Upgrader

	// Background job tracking
	jobMu      sync.Mutex
	runningJob *backgroundJob
}

func NewServer(d Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	allowedOrigins := d.CORSOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	s := &Server{
		Echo: e,
		deps: d,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)
	if s.deps.Gatherer != nil {
		s.Echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
	}

	api := s.Echo.Group("/api")
	api.POST("/geocode", s.handleGeocode)
	api.POST("/search", s.handleSearch)
	api.GET("/search/ws", s.handleSearchWS)
	api.POST("/availability/next", s.handleLookahead)
	api.GET("/catalog", s.handleCatalog)
	api.GET("/catalog/status", s.handleCatalogStatus)
	api.GET("/parks/:source/:parkId/children", s.handleChildren)

	admin := api.Group("/admin")
	admin.Use(s.deps.Auth.AdminMiddleware)
	admin.POST("/catalog/rebuild", s.handleRebuildCatalog)
	admin.GET("/job/:id", s.handleJobStatus)
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Cancel != nil {
		s.runningJob.Cancel()
	}
	s.jobMu.Unlock()
	return s.Echo.Shutdown(ctx)
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := map[string]bool{}
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set["*"] || set[origin]
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type geocodeRequest struct {
	Location string `json:"location"`
}

func (s *Server) handleGeocode(c echo.Context) error {
	var req geocodeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	p, err := s.deps.Geocoder.Geocode(c.Request().Context(), req.Location)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"latitude":  p.Latitude,
		"longitude": p.Longitude,
		"location":  req.Location,
	})
}

// resolveCenter turns a normalized request into the search center,
// geocoding only when no coordinates were given.
func (s *Server) resolveCenter(ctx context.Context, req search.Request) (search.Center, error) {
	if req.HasCoordinates() {
		loc := req.Location
		if loc == "" {
			loc = strconv.FormatFloat(*req.Latitude, 'f', 4, 64) + ", " + strconv.FormatFloat(*req.Longitude, 'f', 4, 64)
		}
		return search.Center{Lat: *req.Latitude, Lon: *req.Longitude, Location: loc}, nil
	}
	p, err := s.deps.Geocoder.Geocode(ctx, req.Location)
	if err != nil {
		return search.Center{}, err
	}
	return search.Center{Lat: p.Latitude, Lon: p.Longitude, Location: req.Location}, nil
}

func (s *Server) handleSearch(c echo.Context) error {
	var req search.Request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := req.Normalize(); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	ctx := c.Request().Context()
	center, err := s.resolveCenter(ctx, req)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	stream.PrepareSSE(c.Response().Header())
	c.Response().WriteHeader(http.StatusOK)
	if err := s.deps.Emitter.RunSearch(ctx, req, center, stream.NewSSEWriter(c.Response())); err != nil {
		log.Printf("[API] search stream ended early: %v", err)
	}
	return nil
}

func (s *Server) handleSearchWS(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		log.Printf("[API] websocket upgrade failed: %v", err)
		return nil
	}
	defer conn.Close()
	ws := stream.NewWSWriter(conn)

	var req search.Request
	if err := conn.ReadJSON(&req); err != nil {
		_ = ws.Send(search.ErrorEvent("Invalid request"))
		_ = ws.Close()
		return nil
	}
	if err := req.Normalize(); err != nil {
		_ = ws.Send(search.ErrorEvent(err.Error()))
		_ = ws.Close()
		return nil
	}

	ctx, cancel := ws.WatchClose(c.Request().Context())
	defer cancel()
	center, err := s.resolveCenter(ctx, req)
	if err != nil {
		_ = ws.Send(search.ErrorEvent(err.Error()))
		_ = ws.Close()
		return nil
	}
	if err := s.deps.Emitter.RunSearch(ctx, req, center, ws); err != nil {
		log.Printf("[API] websocket stream ended early: %v", err)
		return nil
	}
	_ = ws.Close()
	return nil
}

func (s *Server) handleLookahead(c echo.Context) error {
	var req search.LookaheadRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := req.Normalize(); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	stream.PrepareSSE(c.Response().Header())
	c.Response().WriteHeader(http.StatusOK)
	if err := s.deps.Emitter.RunLookahead(c.Request().Context(), req, stream.NewSSEWriter(c.Response())); err != nil {
		log.Printf("[API] lookahead stream ended early: %v", err)
	}
	return nil
}

func (s *Server) handleCatalog(c echo.Context) error {
	parks, err := s.deps.Catalog.Parks(c.Request().Context(), c.QueryParam("q"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if parks == nil {
		parks = []models.CatalogPark{}
	}
	return c.JSON(http.StatusOK, parks)
}

func (s *Server) handleCatalogStatus(c echo.Context) error {
	st, err := s.deps.Catalog.Status(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) handleChildren(c echo.Context) error {
	src, err := models.ParseSource(c.Param("source"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	client, ok := s.deps.Clients[src]
	if !ok {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": fmt.Sprintf("%s is not configured", src.Label())})
	}

	children, err := s.deps.Children.GetOrLoad(c.Request().Context(), src, c.Param("parkId"), client.Children)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, children)
	case errors.Is(err, catalog.ErrParkNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case sources.IsRateLimited(err):
		return c.JSON(http.StatusTooManyRequests, map[string]string{"error": fmt.Sprintf("%s rate limit hit (429). Wait a minute and try again.", src.Label())})
	default:
		log.Printf("[API] children %s/%s failed: %v", src, c.Param("parkId"), err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
}
