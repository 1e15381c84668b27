package directory

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mbp/nursecall/internal/platform/apperr"
	"github.com/mbp/nursecall/internal/platform/auth"
	"github.com/mbp/nursecall/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/users", h.ListUsers)
	api.GET("/users/:id", h.GetUser)
	api.GET("/rooms", h.ListRooms)
	api.GET("/rooms/:id", h.GetRoom)
	api.GET("/patients", h.ListPatients)
	api.GET("/patients/:id", h.GetPatient)
	api.GET("/staff", h.ListStaff)
	api.GET("/staff/:id", h.GetStaff)

	// Occupancy and availability are floor operations any authenticated
	// user may perform; availability is further limited to self or admin.
	api.PUT("/rooms/:id/patient", h.AssignPatient)
	api.DELETE("/rooms/:id/patient", h.VacateRoom)
	api.PUT("/staff/:id/availability", h.SetAvailability)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/users", h.CreateUser)
	admin.POST("/rooms", h.CreateRoom)
	admin.POST("/patients", h.CreatePatient)
	admin.POST("/staff", h.CreateStaff)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Users --

type createUserRequest struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

func (h *Handler) CreateUser(c echo.Context) error {
	var req createUserRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u := &User{Email: req.Email, FullName: req.FullName, Role: req.Role}
	if err := h.svc.CreateUser(c.Request().Context(), u); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) GetUser(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	u, err := h.svc.GetUser(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) ListUsers(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListUsers(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

// -- Patients --

type createPatientRequest struct {
	FullName            string  `json:"full_name"`
	MedicalRecordNumber string  `json:"medical_record_number"`
	DateOfBirth         *string `json:"date_of_birth"`
	Gender              *string `json:"gender"`
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var req createPatientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p := &Patient{FullName: req.FullName, MedicalRecordNumber: req.MedicalRecordNumber, Gender: req.Gender}
	if req.DateOfBirth != nil && *req.DateOfBirth != "" {
		dob, err := parseDate(*req.DateOfBirth)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "date_of_birth must be YYYY-MM-DD")
		}
		p.DateOfBirth = &dob
	}
	if err := h.svc.CreatePatient(c.Request().Context(), p); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPatients(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

// -- Rooms --

type createRoomRequest struct {
	RoomNumber string  `json:"room_number"`
	Floor      *string `json:"floor"`
	Ward       *string `json:"ward"`
	BedCount   int     `json:"bed_count"`
}

func (h *Handler) CreateRoom(c echo.Context) error {
	var req createRoomRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r := &Room{RoomNumber: req.RoomNumber, Floor: req.Floor, Ward: req.Ward, BedCount: req.BedCount}
	if err := h.svc.CreateRoom(c.Request().Context(), r); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) GetRoom(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	r, err := h.svc.GetRoom(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) ListRooms(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListRooms(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

type assignPatientRequest struct {
	PatientID uuid.UUID `json:"patient_id"`
}

func (h *Handler) AssignPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req assignPatientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.PatientID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}
	r, err := h.svc.AssignPatient(c.Request().Context(), id, req.PatientID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) VacateRoom(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	r, err := h.svc.VacateRoom(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, r)
}

// -- Staff --

type createStaffRequest struct {
	UserID        uuid.UUID `json:"user_id"`
	Department    *string   `json:"department"`
	ContactNumber *string   `json:"contact_number"`
	IsAvailable   *bool     `json:"is_available"`
	ShiftStart    *string   `json:"shift_start"`
	ShiftEnd      *string   `json:"shift_end"`
}

func (h *Handler) CreateStaff(c echo.Context) error {
	var req createStaffRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	st := &Staff{
		UserID:        req.UserID,
		Department:    req.Department,
		ContactNumber: req.ContactNumber,
		IsAvailable:   true,
		ShiftStart:    req.ShiftStart,
		ShiftEnd:      req.ShiftEnd,
	}
	if req.IsAvailable != nil {
		st.IsAvailable = *req.IsAvailable
	}
	if err := h.svc.CreateStaff(c.Request().Context(), st); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, st)
}

func (h *Handler) GetStaff(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	st, err := h.svc.GetStaff(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) ListStaff(c echo.Context) error {
	pg := pagination.FromContext(c)
	availableOnly := false
	if raw := c.QueryParam("available"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "available must be true or false")
		}
		availableOnly = v
	}
	items, total, err := h.svc.ListStaff(c.Request().Context(), availableOnly, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

type availabilityRequest struct {
	IsAvailable *bool `json:"is_available"`
}

func (h *Handler) SetAvailability(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req availabilityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.IsAvailable == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "is_available is required")
	}

	ctx := c.Request().Context()
	actor, _ := auth.ActorFromContext(ctx)
	if !actor.IsAdmin() {
		st, err := h.svc.GetStaff(ctx, id)
		if err != nil {
			return apperr.HTTPError(err)
		}
		if st.UserID != actor.UserID {
			return apperr.HTTPError(apperr.Forbidden("only the staff member or an admin may change availability"))
		}
	}

	st, err := h.svc.SetAvailability(ctx, id, *req.IsAvailable)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, st)
}
