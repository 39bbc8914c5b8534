package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"fieldtrack/internal/attendance"
	"fieldtrack/internal/db/models"
	"fieldtrack/internal/geo"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

type Handler struct {
	Service *attendance.Service
	// Health reports storage reachability. Nil means always healthy.
	Health func(ctx context.Context) error
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	h.Register(r)
	return r
}

func (h *Handler) Register(r gin.IRouter) {
	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	api.POST("/attendance/checkin", h.CheckIn)
	api.POST("/attendance/arrival", h.Arrival)
	api.POST("/attendance/heartbeat", h.Heartbeat)
	api.POST("/attendance/checkout", h.CheckOut)

	api.GET("/attendance", h.List)
	api.GET("/attendance/:id", h.Get)

	manual := api.Group("", requireActor())
	manual.POST("/attendance", h.CreateManual)
	manual.PATCH("/attendance/:id", h.Update)
	manual.POST("/attendance/:id/cancel", h.Cancel)

	api.GET("/interventions", h.Interventions)
}

type positionRequest struct {
	AgentID string   `json:"agentId" binding:"required,uuid"`
	SiteID  string   `json:"siteId" binding:"required,uuid"`
	Lat     *float64 `json:"lat" binding:"required"`
	Lon     *float64 `json:"lon" binding:"required"`
}

func (p positionRequest) ids() (uuid.UUID, uuid.UUID) {
	return uuid.MustParse(p.AgentID), uuid.MustParse(p.SiteID)
}

func (p positionRequest) point() geo.Point {
	return geo.Point{Lat: *p.Lat, Lon: *p.Lon}
}

type checkOutRequest struct {
	AgentID string   `json:"agentId" binding:"required,uuid"`
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
}

type manualRequest struct {
	AgentID      string                  `json:"agentId" binding:"required,uuid"`
	SiteID       string                  `json:"siteId" binding:"required,uuid"`
	Day          string                  `json:"day"`
	ArrivalTime  *time.Time              `json:"arrivalTime"`
	CheckInTime  *time.Time              `json:"checkInTime"`
	CheckOutTime *time.Time              `json:"checkOutTime"`
	Status       models.AttendanceStatus `json:"status"`
	Note         string                  `json:"note"`
}

type updateRequest struct {
	CheckInTime  *time.Time               `json:"checkInTime"`
	CheckOutTime *time.Time               `json:"checkOutTime"`
	Note         *string                  `json:"note"`
	Status       *models.AttendanceStatus `json:"status"`
}

type cancelRequest struct {
	Note string `json:"note"`
}

func (h *Handler) Healthz(c *gin.Context) {
	if h.Health != nil {
		if err := h.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) CheckIn(c *gin.Context) {
	var req positionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	agentID, siteID := req.ids()
	rec, err := h.Service.CheckIn(c.Request.Context(), agentID, siteID, req.point())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) Arrival(c *gin.Context) {
	var req positionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	agentID, siteID := req.ids()
	rec, err := h.Service.MarkArrival(c.Request.Context(), agentID, siteID, req.point())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) Heartbeat(c *gin.Context) {
	var req positionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	agentID, siteID := req.ids()
	rec, err := h.Service.Heartbeat(c.Request.Context(), agentID, siteID, req.point())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) CheckOut(c *gin.Context) {
	var req checkOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var pos *geo.Point
	if req.Lat != nil && req.Lon != nil {
		pos = &geo.Point{Lat: *req.Lat, Lon: *req.Lon}
	}
	rec, err := h.Service.CheckOut(c.Request.Context(), uuid.MustParse(req.AgentID), pos)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) List(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	views, err := h.Service.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	view, err := h.Service.FindOne(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) CreateManual(c *gin.Context) {
	var req manualRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	in := attendance.ManualInput{
		AgentID:      uuid.MustParse(req.AgentID),
		SiteID:       uuid.MustParse(req.SiteID),
		ArrivalTime:  req.ArrivalTime,
		CheckInTime:  req.CheckInTime,
		CheckOutTime: req.CheckOutTime,
		Status:       req.Status,
		Note:         req.Note,
	}
	if req.Day != "" {
		day, err := time.Parse(dateLayout, req.Day)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid day, expected YYYY-MM-DD"})
			return
		}
		in.Day = &day
	}

	rec, err := h.Service.CreateManual(c.Request.Context(), actorFrom(c), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *Handler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := h.Service.Update(c.Request.Context(), actorFrom(c), id, attendance.UpdateInput{
		CheckInTime:  req.CheckInTime,
		CheckOutTime: req.CheckOutTime,
		Note:         req.Note,
		Status:       req.Status,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) Cancel(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req cancelRequest
	// The body is optional.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	rec, err := h.Service.Cancel(c.Request.Context(), actorFrom(c), id, req.Note)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) Interventions(c *gin.Context) {
	siteID, err := uuid.Parse(c.Query("siteId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "siteId is required"})
		return
	}
	day, err := time.Parse(dateLayout, c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date is required, expected YYYY-MM-DD"})
		return
	}
	views, err := h.Service.Interventions(c.Request.Context(), siteID, day)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

const (
	actorKey        = "actor"
	headerActorID   = "X-Actor-ID"
	headerActorRole = "X-Actor-Role"
)

// requireActor rejects manual operations without a supervisor or admin identity.
func requireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerActorID)
		if id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + headerActorID + " header"})
			return
		}
		role := models.CreatedBy(c.GetHeader(headerActorRole))
		if role != models.CreatedBySupervisor && role != models.CreatedByAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "supervisor or admin role required"})
			return
		}
		c.Set(actorKey, attendance.Actor{ID: id, Role: role})
		c.Next()
	}
}

func actorFrom(c *gin.Context) attendance.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(attendance.Actor); ok {
			return actor
		}
	}
	return attendance.Actor{}
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

func parseFilter(c *gin.Context) (models.AttendanceFilter, error) {
	var filter models.AttendanceFilter
	for key, dst := range map[string]**uuid.UUID{
		"agentId":  &filter.AgentID,
		"siteId":   &filter.SiteID,
		"clientId": &filter.ClientID,
	} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, errors.New("invalid " + key)
		}
		*dst = &id
	}
	if raw := c.Query("status"); raw != "" {
		filter.Status = models.AttendanceStatus(raw)
		if !filter.Status.Valid() {
			return filter, errors.New("invalid status")
		}
	}
	for key, dst := range map[string]**time.Time{
		"from": &filter.From,
		"to":   &filter.To,
	} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		day, err := time.Parse(dateLayout, raw)
		if err != nil {
			return filter, errors.New("invalid " + key + ", expected YYYY-MM-DD")
		}
		*dst = &day
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return filter, errors.New("invalid limit")
		}
		filter.Limit = limit
	}
	return filter, nil
}

// writeError maps service errors to HTTP responses.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, attendance.ErrSiteNotFound),
		errors.Is(err, attendance.ErrRecordNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrOpenAttendanceExists),
		errors.Is(err, models.ErrAttendanceClosed),
		errors.Is(err, models.ErrAttendanceChanged):
		status = http.StatusConflict
	case errors.Is(err, attendance.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, attendance.ErrOutOfWindow),
		errors.Is(err, attendance.ErrTooFarFromSite),
		errors.Is(err, attendance.ErrSiteCoordinatesMissing),
		errors.Is(err, attendance.ErrNoOpenSession),
		errors.Is(err, attendance.ErrAlreadyCheckedIn),
		errors.Is(err, attendance.ErrSiteInactive):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		log.Printf("Error handling %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
