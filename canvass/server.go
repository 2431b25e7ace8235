// Copyright 2025 The GroundGame Authors
// SPDX-License-Identifier: Apache-2.0

package canvass

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/fieldthebern/groundgame/spatial"
	"github.com/gin-gonic/gin"
	"github.com/uber/h3-go/v4"
	"go.uber.org/zap"
)

// DefaultListLimit caps GET /api/addresses when no limit is given.
const DefaultListLimit = 500

// CallerHeader identifies the canvasser when the request body names no
// caller. Requests without either never supersede each other.
const CallerHeader = "X-Canvasser-ID"

// Server exposes the canvass flow over a local JSON API.
type Server struct {
	resolver  *AddressResolver
	submitter *Submitter
	repo      AddressRepository
	now       func() time.Time
	logger    *zap.Logger

	anonymous atomic.Uint64
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerClock replaces time.Now for eligibility checks.
func WithServerClock(now func() time.Time) ServerOption {
	return func(s *Server) { s.now = now }
}

// WithServerLogger sets the logger.
func WithServerLogger(l *zap.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a Server. repo may be nil, which disables the address
// store endpoints.
func NewServer(resolver *AddressResolver, submitter *Submitter, repo AddressRepository, opts ...ServerOption) *Server {
	s := &Server{
		resolver:  resolver,
		submitter: submitter,
		repo:      repo,
		now:       time.Now,
		logger:    zap.NewNop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Handler returns the gin engine with every route registered.
func (s *Server) Handler() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())

	api := r.Group("/api")
	api.POST("/resolve", s.resolve)
	api.POST("/reverse", s.reverse)
	api.POST("/eligibility", s.eligibility)
	api.POST("/submit", s.submit)
	api.GET("/addresses", s.listAddresses)
	api.POST("/addresses", s.saveAddress)
	api.GET("/addresses/:key", s.getAddress)

	return r
}

// Run serves the API on addr until it fails.
func (s *Server) Run(addr string) error {
	s.logger.Info("serving canvass api", zap.String("addr", addr))

	return s.Handler().Run(addr)
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()

		ctx.Next()

		s.logger.Debug("request",
			zap.String("method", ctx.Request.Method),
			zap.String("path", ctx.FullPath()),
			zap.Int("status", ctx.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

type errorResponse struct {
	Kind    string `json:"kind"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message"`
}

// callerOf returns the caller named by the body or CallerHeader, or a key
// unique to this request.
func (s *Server) callerOf(ctx *gin.Context, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}

	if h := ctx.GetHeader(CallerHeader); h != "" {
		return h
	}

	return fmt.Sprintf("anonymous-%d", s.anonymous.Add(1))
}

// rejectionStatus is 422 for user-facing rejections, except geocoder
// failures caused by the provider throttling or timing out.
func rejectionStatus(ce *Error) int {
	if ce.Kind != GeocodeFailure || ce.Err == nil {
		return http.StatusUnprocessableEntity
	}

	switch {
	case IsRateLimitError(ce.Err):
		return http.StatusTooManyRequests
	case IsQuotaExceededError(ce.Err), IsTimeoutError(ce.Err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnprocessableEntity
	}
}

// writeError maps canvass failures to responses: user-facing rejections are
// 422 (429 or 503 when the geocoder is throttled or down), a superseded
// resolution is 409 and anything else is 500.
func (s *Server) writeError(ctx *gin.Context, err error) {
	var ce *Error

	switch {
	case errors.As(err, &ce):
		ctx.JSON(rejectionStatus(ce), errorResponse{
			Kind:    ce.Kind.String(),
			Title:   ce.Title,
			Message: ce.Message,
		})
	case errors.Is(err, ErrSuperseded):
		ctx.JSON(http.StatusConflict, errorResponse{Kind: "superseded", Message: err.Error()})
	default:
		s.logger.Error("request failed", zap.String("path", ctx.FullPath()), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse{Kind: "internal", Message: err.Error()})
	}
}

func badRequest(ctx *gin.Context, msg string) {
	ctx.JSON(http.StatusBadRequest, errorResponse{Kind: "bad_request", Message: msg})
}

func (s *Server) resolve(ctx *gin.Context) {
	var req ResolveRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err.Error())

		return
	}

	req.Caller = s.callerOf(ctx, req.Caller)

	res, err := s.resolver.Resolve(ctx.Request.Context(), req)
	if err != nil {
		s.writeError(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, res)
}

type reverseRequest struct {
	Location         spatial.Point  `json:"location"`
	PreviousLocation *spatial.Point `json:"previous_location,omitempty"`
	Placemark        *Placemark     `json:"placemark,omitempty"`
}

type reverseResponse struct {
	Placemark  Placemark `json:"placemark"`
	StreetLine string    `json:"street_line"`
	Refreshed  bool      `json:"refreshed"`
}

// reverse returns the placemark for the canvasser's position. A placemark
// sent by the client is echoed back while the position moved less than a
// meter.
func (s *Server) reverse(ctx *gin.Context) {
	var req reverseRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err.Error())

		return
	}

	if !req.Location.Valid() {
		badRequest(ctx, "location is out of range")

		return
	}

	if !NeedsReverseGeocode(&req.Location, req.PreviousLocation, req.Placemark) {
		ctx.JSON(http.StatusOK, reverseResponse{
			Placemark:  *req.Placemark,
			StreetLine: req.Placemark.StreetLine(),
		})

		return
	}

	pm, err := s.resolver.ReverseResolve(ctx.Request.Context(), req.Location)
	if err != nil {
		s.writeError(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, reverseResponse{Placemark: *pm, StreetLine: pm.StreetLine(), Refreshed: true})
}

type eligibilityResponse struct {
	Eligibility
	Message string `json:"message,omitempty"`
}

func (s *Server) eligibility(ctx *gin.Context) {
	var addr Address
	if err := ctx.ShouldBindJSON(&addr); err != nil {
		badRequest(ctx, err.Error())

		return
	}

	e := CheckEligibility(addr, s.now())
	ctx.JSON(http.StatusOK, eligibilityResponse{Eligibility: e, Message: e.Message()})
}

func (s *Server) submit(ctx *gin.Context) {
	var req SubmitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err.Error())

		return
	}

	req.Caller = s.callerOf(ctx, req.Caller)

	outcome, err := s.submitter.Submit(ctx.Request.Context(), req)
	if err != nil {
		s.writeError(ctx, err)

		return
	}

	if s.repo != nil {
		if _, err := s.repo.Save(outcome.Address); err != nil {
			s.logger.Warn("storing submitted address", zap.Error(err))
		}
	}

	ctx.JSON(http.StatusOK, outcome)
}

// AddressView is a stored address with its display fields.
type AddressView struct {
	Key       string         `json:"key"`
	Address   Address        `json:"address"`
	Title     string         `json:"title"`
	Subtitle  string         `json:"subtitle"`
	Marker    MarkerCategory `json:"marker"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewAddressView builds the display view of a stored address.
func NewAddressView(s *StoredAddress) AddressView {
	return AddressView{
		Key:       s.Key,
		Address:   s.Address,
		Title:     s.Address.Title(),
		Subtitle:  s.Address.Subtitle(),
		Marker:    s.Address.MarkerCategory(),
		UpdatedAt: s.UpdatedAt,
	}
}

func (s *Server) storeEnabled(ctx *gin.Context) bool {
	if s.repo == nil {
		ctx.JSON(http.StatusNotFound, errorResponse{Kind: "not_found", Message: "address store is disabled"})

		return false
	}

	return true
}

// parseFilter reads result, cell (hex) or lat/lng/res, limit and offset.
// An id query is handled before, by findByID.
func parseFilter(ctx *gin.Context) (AddressFilter, error) {
	filter := AddressFilter{Limit: DefaultListLimit}

	if v := ctx.Query("result"); v != "" {
		r := ParseVisitResult(v)
		if r.String() != v {
			return filter, fmt.Errorf("unknown result %q", v)
		}

		filter.Result = &r
	}

	switch {
	case ctx.Query("cell") != "":
		raw, err := strconv.ParseUint(ctx.Query("cell"), 16, 64)
		if err != nil {
			return filter, errors.New("cell must be a hexadecimal H3 index")
		}

		filter.Cell = h3.Cell(int64(raw))
		if !filter.Cell.IsValid() {
			return filter, errors.New("cell is not a valid H3 index")
		}
	case ctx.Query("lat") != "" || ctx.Query("lng") != "":
		lat, errLat := strconv.ParseFloat(ctx.Query("lat"), 64)
		lng, errLng := strconv.ParseFloat(ctx.Query("lng"), 64)

		if errLat != nil || errLng != nil {
			return filter, errors.New("lat and lng must both be numbers")
		}

		res, err := strconv.Atoi(ctx.DefaultQuery("res", "9"))
		if err != nil || res < MinCellResolution || res > MaxCellResolution {
			return filter, errors.New("res must be between 7 and 10")
		}

		cell, err := spatial.NewPoint(lat, lng).Cell(res)
		if err != nil {
			return filter, err
		}

		filter.Cell = cell
	}

	if v := ctx.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, errors.New("limit must be a non-negative integer")
		}

		filter.Limit = n
	}

	if v := ctx.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, errors.New("offset must be a non-negative integer")
		}

		filter.Offset = n
	}

	return filter, nil
}

func (s *Server) listAddresses(ctx *gin.Context) {
	if !s.storeEnabled(ctx) {
		return
	}

	var (
		stored []*StoredAddress
		err    error
	)

	if id := ctx.Query("id"); id != "" {
		stored, err = s.findByID(id)
	} else {
		var filter AddressFilter

		filter, err = parseFilter(ctx)
		if err != nil {
			badRequest(ctx, err.Error())

			return
		}

		stored, err = s.repo.List(filter)
	}

	if err != nil {
		s.writeError(ctx, err)

		return
	}

	views := make([]AddressView, 0, len(stored))
	for _, a := range stored {
		views = append(views, NewAddressView(a))
	}

	ctx.JSON(http.StatusOK, gin.H{"addresses": views, "count": len(views)})
}

// findByID returns the address with the given remote id, if stored.
func (s *Server) findByID(id string) ([]*StoredAddress, error) {
	stored, err := s.repo.GetByID(id)
	if errors.Is(err, ErrAddressNotFound) {
		return []*StoredAddress{}, nil
	}

	if err != nil {
		return nil, err
	}

	return []*StoredAddress{stored}, nil
}

func (s *Server) getAddress(ctx *gin.Context) {
	if !s.storeEnabled(ctx) {
		return
	}

	stored, err := s.repo.Get(ctx.Param("key"))
	if errors.Is(err, ErrAddressNotFound) {
		ctx.JSON(http.StatusNotFound, errorResponse{Kind: "not_found", Message: err.Error()})

		return
	}

	if err != nil {
		s.writeError(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, NewAddressView(stored))
}

func (s *Server) saveAddress(ctx *gin.Context) {
	if !s.storeEnabled(ctx) {
		return
	}

	var addr Address
	if err := ctx.ShouldBindJSON(&addr); err != nil {
		badRequest(ctx, err.Error())

		return
	}

	if _, err := AddressKey(addr); err != nil {
		badRequest(ctx, err.Error())

		return
	}

	if addr.Point != nil && !addr.Point.Valid() {
		badRequest(ctx, "coordinate is out of range")

		return
	}

	stored, err := s.repo.Save(addr)
	if err != nil {
		s.writeError(ctx, err)

		return
	}

	ctx.JSON(http.StatusCreated, NewAddressView(stored))
}
