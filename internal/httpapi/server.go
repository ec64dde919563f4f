// Package httpapi exposes the read side of the cluster store plus a small
// write surface (payload ingest, maintenance trigger) over HTTP. All cluster
// mutations still go through the dedupe engine; handlers never write cluster
// state themselves.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/collate/internal/db"
	"horse.fit/collate/internal/dedupe"
	"horse.fit/collate/internal/globaltime"
	"horse.fit/collate/internal/ingest"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type Server struct {
	pool    *db.Pool
	engine  *dedupe.Engine
	ingest  *ingest.Service
	logger  zerolog.Logger
	opts    Options
}

func NewServer(pool *db.Pool, engine *dedupe.Engine, ingestService *ingest.Service, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8080
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	return &Server{
		pool:   pool,
		engine: engine,
		ingest: ingestService,
		logger: logger,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	e.GET("/healthz", s.handleHealth)

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/stats", s.handleStats)
	api.GET("/clusters", s.handleClusters)
	api.GET("/clusters/:cluster_key", s.handleClusterDetail)
	api.GET("/clusters/:cluster_key/decisions", s.handleClusterDecisions)
	api.GET("/items/:item_uuid/cluster", s.handleItemCluster)
	api.GET("/items/:item_uuid/decisions", s.handleItemDecisions)
	api.POST("/items", s.handleIngestItem)
	api.POST("/admin/recompute", s.handleRecompute)

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("collate api server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("collate api server stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	return success(c, map[string]any{
		"service": "collate",
		"time":    globaltime.UTC(),
	})
}

func (s *Server) handleStats(c echo.Context) error {
	counts, err := s.pool.CountItemsByState(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("query item state counts failed")
		return internalError(c, "Failed to load stats")
	}

	var clusters, members, decisions int64
	const q = `
SELECT
	(SELECT COUNT(*) FROM collate_core.dedupe_clusters),
	(SELECT COUNT(*) FROM collate_core.dedupe_members),
	(SELECT COUNT(*) FROM collate_core.dedupe_decisions)
`
	if err := s.pool.QueryRow(c.Request().Context(), q).Scan(&clusters, &members, &decisions); err != nil {
		s.logger.Error().Err(err).Msg("query cluster stats failed")
		return internalError(c, "Failed to load stats")
	}

	return success(c, map[string]any{
		"items_by_state": counts,
		"clusters":       clusters,
		"members":        members,
		"decisions":      decisions,
	})
}

func (s *Server) handleClusters(c echo.Context) error {
	limit, err := parsePositiveInt(c.QueryParam("limit"), defaultListLimit, 1, maxListLimit)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	since, err := parseTimeFilter(c.QueryParam("since"))
	if err != nil {
		return failValidation(c, map[string]string{"since": "must be RFC3339 or YYYY-MM-DD"})
	}
	if since == nil {
		defaulted := globaltime.UTC().Add(-24 * time.Hour)
		since = &defaulted
	}

	clusters, err := s.pool.ListClustersChangedSince(c.Request().Context(), *since, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("query clusters failed")
		return internalError(c, "Failed to load clusters")
	}

	return success(c, map[string]any{
		"items": clusters,
		"since": since,
		"limit": limit,
	})
}

func (s *Server) handleClusterDetail(c echo.Context) error {
	clusterKey := strings.TrimSpace(c.Param("cluster_key"))
	if clusterKey == "" {
		return failValidation(c, map[string]string{"cluster_key": "is required"})
	}

	detail, err := s.pool.GetClusterDetailByKey(c.Request().Context(), clusterKey)
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return failNotFound(c, "Cluster not found")
		}
		s.logger.Error().Err(err).Str("cluster_key", clusterKey).Msg("query cluster detail failed")
		return internalError(c, "Failed to load cluster")
	}
	return success(c, detail)
}

func (s *Server) handleClusterDecisions(c echo.Context) error {
	clusterKey := strings.TrimSpace(c.Param("cluster_key"))
	if clusterKey == "" {
		return failValidation(c, map[string]string{"cluster_key": "is required"})
	}
	limit, err := parsePositiveInt(c.QueryParam("limit"), defaultListLimit, 1, maxListLimit)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	records, err := s.pool.ListDecisionsForCluster(c.Request().Context(), clusterKey, limit)
	if err != nil {
		s.logger.Error().Err(err).Str("cluster_key", clusterKey).Msg("query cluster decisions failed")
		return internalError(c, "Failed to load decisions")
	}
	return success(c, map[string]any{"items": records})
}

func (s *Server) handleItemCluster(c echo.Context) error {
	itemUUID := strings.TrimSpace(c.Param("item_uuid"))
	if itemUUID == "" {
		return failValidation(c, map[string]string{"item_uuid": "is required"})
	}

	detail, err := s.pool.GetClusterForItem(c.Request().Context(), itemUUID)
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return failNotFound(c, "Item has no cluster")
		}
		s.logger.Error().Err(err).Str("item_uuid", itemUUID).Msg("query item cluster failed")
		return internalError(c, "Failed to load cluster")
	}
	return success(c, detail)
}

func (s *Server) handleItemDecisions(c echo.Context) error {
	itemUUID := strings.TrimSpace(c.Param("item_uuid"))
	if itemUUID == "" {
		return failValidation(c, map[string]string{"item_uuid": "is required"})
	}
	limit, err := parsePositiveInt(c.QueryParam("limit"), defaultListLimit, 1, maxListLimit)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	records, err := s.pool.ListDecisionsForItem(c.Request().Context(), itemUUID, limit)
	if err != nil {
		s.logger.Error().Err(err).Str("item_uuid", itemUUID).Msg("query item decisions failed")
		return internalError(c, "Failed to load decisions")
	}
	return success(c, map[string]any{"items": records})
}

func (s *Server) handleIngestItem(c echo.Context) error {
	if s.ingest == nil {
		return internalError(c, "Ingest is not available")
	}

	body, err := readBody(c)
	if err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}

	result, err := s.ingest.IngestOne(c.Request().Context(), body)
	if err != nil {
		return failValidation(c, map[string]string{"payload": err.Error()})
	}
	if result.Inserted {
		return created(c, result)
	}
	return success(c, result)
}

func (s *Server) handleRecompute(c echo.Context) error {
	if s.engine == nil {
		return internalError(c, "Engine is not available")
	}

	result, err := s.engine.RecomputeClusters(c.Request().Context())
	if err != nil {
		if errors.Is(err, dedupe.ErrWriterBusy) {
			return fail(c, http.StatusConflict, "Dedupe writer is busy, retry later", nil)
		}
		s.logger.Error().Err(err).Msg("cluster recompute failed")
		return internalError(c, "Recompute failed")
	}
	return success(c, result)
}

const maxIngestBodyBytes = 1 << 20

func readBody(c echo.Context) ([]byte, error) {
	req := c.Request()
	if req.Body == nil {
		return nil, fmt.Errorf("request body is empty")
	}

	body, err := io.ReadAll(io.LimitReader(req.Body, maxIngestBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	if len(body) > maxIngestBodyBytes {
		return nil, fmt.Errorf("request body too large")
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("request body is empty")
	}
	return body, nil
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}

func parseTimeFilter(raw string) (*time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}

	if ts, err := time.Parse(time.RFC3339, trimmed); err == nil {
		utc := ts.UTC()
		return &utc, nil
	}
	if day, err := time.Parse("2006-01-02", trimmed); err == nil {
		utc := day.UTC()
		return &utc, nil
	}
	return nil, fmt.Errorf("invalid time format")
}
