package scheduling

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/clinova/clinic-scheduling/pkg/monitoring"
	"github.com/clinova/clinic-scheduling/pkg/timeutil"
	"github.com/clinova/clinic-scheduling/pkg/types"
)

// APIResponse is the uniform response envelope
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

// APIError is the error payload inside a failed envelope
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// setupRoutes configures all HTTP routes
func (s *Service) setupRoutes() {
	s.router.Use(s.loggingMiddleware)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.authMiddleware)

	// Slots
	api.HandleFunc("/slots", s.handleGetSlots).Methods("GET")
	api.HandleFunc("/slots/multi-treatment", s.handleGetMultiTreatmentSlots).Methods("POST")

	// Conflicts
	api.HandleFunc("/conflicts/patient", s.handleCheckPatientOverlap).Methods("POST")
	api.HandleFunc("/conflicts/practitioner", s.handleCheckPractitionerAvailability).Methods("POST")

	// Appointments
	api.HandleFunc("/appointments", s.handleCreateAppointment).Methods("POST")
	api.HandleFunc("/appointments/multi-treatment", s.handleCreateMultiTreatment).Methods("POST")
	api.HandleFunc("/appointments/{id}", s.handleUpdateAppointment).Methods("PUT")
	api.HandleFunc("/appointments/{id}", s.handleCancelAppointment).Methods("DELETE")
	api.HandleFunc("/appointments/{id}/status", s.handleTransitionStatus).Methods("POST")
	api.HandleFunc("/appointments/{id}/cancel-segment", s.handleCancelSegment).Methods("POST")

	// Linked groups
	api.HandleFunc("/appointment-groups/{id}", s.handleGetGroup).Methods("GET")
	api.HandleFunc("/appointment-groups/{id}", s.handleUpdateGroup).Methods("PUT")
	api.HandleFunc("/appointment-groups/{id}", s.handleCancelGroup).Methods("DELETE")

	// Patient-wide cancellation
	api.HandleFunc("/patients/{id}/appointments", s.handleCancelAllFuture).Methods("DELETE")

	// Calendar
	api.HandleFunc("/calendar", s.handleGetCalendar).Methods("GET")

	// Booking workflow
	api.HandleFunc("/bookings", s.handleOpenBooking).Methods("POST")
	api.HandleFunc("/bookings/{id}/steps/{step}", s.handleAdvanceBooking).Methods("POST")
	api.HandleFunc("/bookings/{id}/commit", s.handleCommitBooking).Methods("POST")
	api.HandleFunc("/bookings/{id}", s.handleAbandonBooking).Methods("DELETE")

	// Health
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	if s.config.Monitoring.Enabled {
		s.router.Handle(s.config.Monitoring.MetricsPath, monitoring.Handler()).Methods("GET")
	}
}

func (s *Service) handleGetSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date := q.Get("date")
	if date == "" {
		s.writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "date is required", nil))
		return
	}
	category := types.AppointmentCategory(q.Get("category"))
	resourceID := q.Get("resource_id")
	if resourceID == "" {
		// Legacy clients send provider_id or machine_id directly.
		resourceID = q.Get("provider_id")
	}
	if resourceID == "" {
		resourceID = q.Get("machine_id")
	}
	duration, _ := strconv.Atoi(q.Get("duration"))

	slots, err := s.GetSlots(date, category, resourceID, duration)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, http.StatusOK, slots)
}

type multiTreatmentSlotsRequest struct {
	Date           string                   `json:"date"`
	PractitionerID string                   `json:"practitioner_id"`
	ProviderID     string                   `json:"provider_id"`
	Treatments     []types.TreatmentRequest `json:"treatments"`
}

func (s *Service) handleGetMultiTreatmentSlots(w http.ResponseWriter, r *http.Request) {
	var req multiTreatmentSlotsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "invalid request body", nil))
		return
	}
	if req.PractitionerID == "" {
		req.PractitionerID = req.ProviderID
	}

	slots, err := s.GetMultiTreatmentSlots(req.Date, req.PractitionerID, req.Treatments)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, http.StatusOK, slots)
}

type patientOverlapRequest struct {
	PatientID  string       `json:"patient_id"`
	Date       string       `json:"date"`
	Segments   []types.Slot `json:"segments"`
	ExcludeIDs []string     `json:"exclude_ids"`
}

func (s *Service) handleCheckPatientOverlap(w http.ResponseWriter, r *http.Request) {
	var req patientOverlapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "invalid request body", nil))
		return
	}
	if req.PatientID == "" || req.Date == "" {
		s.writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "patient_id and date are required", nil))
		return
	}

	report, err := s.CheckPatientOverlap(req.PatientID, req.Date, req.Segments, req.ExcludeIDs)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, http.StatusOK, report)
}

type practitionerAvailabilityRequest struct {
	PractitionerID string              `json:"practitioner_id"`
	ProviderID     string              `json:"provider_id"`
	Date           string              `json:"date"`
	Start          *timeutil.ClockTime `json:"start_time"`
	End            *timeutil.ClockTime `json:"end_time"`
	ExcludeID      string              `json:"exclude_id"`
}

func (s *Service) handleCheckPractitionerAvailability(w http.ResponseWriter, r *http.Request) {
	var req practitionerAvailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "invalid request body", nil))
		return
	}
	if req.PractitionerID == "" {
		req.PractitionerID = req.ProviderID
	}
	if req.PractitionerID == "" || req.Date == "" || req.Start == nil || req.End == nil {
		s.writeError(w, types.NewValidationError(types.ErrCodeInvalidInput,
			"practitioner_id, date, start_time and end_time are required", nil))
		return
	}

	report, err := s.CheckPractitionerAvailability(req.PractitionerID, req.Date,
		types.Slot{Start: *req.Start, End: *req.End}, req.ExcludeID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, http.StatusOK, report)
}

type createAppointmentRequest struct {
	types.Appointment
	ProviderID       string `json:"provider_id"`
	SkipPatientCheck bool   `json:"skip_patient_check"`
}

func (s *Service) handleCreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "invalid request body", nil))
		return
	}
	if req.PractitionerID == "" {
		req.PractitionerID = req.ProviderID
	}

	created, err := s.CreateAppointment(&req.Appointment, actorFrom(r), req.SkipPatientCheck)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, http.StatusCreated, created)
}

type updateAppointmentRequest struct {
	types.AppointmentUpdates
	ProviderID       *string `json:"provider_id"`
	SkipPatientCheck bool    `json:"skip_patient_check"`
}

func (s *Service) handleUpdateAppointment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req updateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "invalid request body", nil))
		return
	}
	if req.PractitionerID == nil {
		req.PractitionerID = req.ProviderID
	}

	updated, err := s.UpdateAppointment(id, &req.AppointmentUpdates, actorFrom(r), req.SkipPatientCheck)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, http.StatusOK, updated)
}

func (s *Service) handleCancelAppointment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.CancelAppointment(id, actorFrom(r)); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, http.StatusOK, map[string]string{"id": id, "status": string(types.StatusCancelled)})
}

func (s *Service) handleTransitionStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		Status types.AppointmentStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		s.writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "status is required", nil))
		return
	}

	apt, err := s.TransitionStatus(id, req.Status, actorFrom(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, http.StatusOK, apt)
}

func (s *Service) handleCancelSegment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	recalculate := r.URL.Query().Get("recalculate") == "true"

	group, err := s.CancelGroupSegment(id, recalculate, actorFrom(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, http.StatusOK, group)
}

func (s *Service) handleCreateMultiTreatment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		types.GroupCreateRequest
		ProviderID string `json:"provider_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "invalid request body", nil))
		return
	}
	if req.PractitionerID == "" {
		req.PractitionerID = req.ProviderID
	}

	created, err := s.CreateMultiTreatmentAppointment(&req.GroupCreateRequest, actorFrom(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, http.StatusCreated, created)
}

func (s *Service) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	group, err := s.GetAppointmentGroup(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, http.StatusOK, group)
}

func (s *Service) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req updateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "invalid request body", nil))
		return
	}
	if req.PractitionerID == nil {
		req.PractitionerID = req.ProviderID
	}

	group, err := s.UpdateAppointmentGroup(id, &req.AppointmentUpdates, actorFrom(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, http.StatusOK, group)
}

func (s *Service) handleCancelGroup(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.CancelAppointmentGroup(id, actorFrom(r)); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, http.StatusOK, map[string]string{"group_id": id, "status": string(types.StatusCancelled)})
}

func (s *Service) handleCancelAllFuture(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("scope") != "future" {
		s.writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "scope=future is required", nil))
		return
	}
	patientID := mux.Vars(r)["id"]

	cancelled, err := s.CancelAllFuture(patientID, actorFrom(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, http.StatusOK, map[string]int{"cancelled": cancelled})
}

func (s *Service) handleGetCalendar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := &types.AppointmentFilters{
		PatientID:      q.Get("patient_id"),
		PractitionerID: q.Get("practitioner_id"),
		MachineID:      q.Get("machine_id"),
		Status:         types.AppointmentStatus(q.Get("status")),
		Category:       types.AppointmentCategory(q.Get("category")),
		FromDate:       q.Get("from_date"),
		ToDate:         q.Get("to_date"),
	}
	if filters.PractitionerID == "" {
		filters.PractitionerID = q.Get("provider_id")
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		filters.Limit = limit
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil {
		filters.Offset = offset
	}

	appointments, err := s.GetCalendar(filters)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, http.StatusOK, appointments)
}

func (s *Service) handleOpenBooking(w http.ResponseWriter, r *http.Request) {
	session := s.bookings.Open()
	s.writeSuccess(w, http.StatusCreated, session)
}

func (s *Service) handleAdvanceBooking(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var payload BookingStepPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "invalid request body", nil))
		return
	}

	session, err := s.bookings.Advance(vars["id"], BookingStep(vars["step"]), &payload)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, http.StatusOK, session)
}

func (s *Service) handleCommitBooking(w http.ResponseWriter, r *http.Request) {
	created, err := s.bookings.Commit(mux.Vars(r)["id"], actorFrom(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeSuccess(w, http.StatusCreated, created)
}

func (s *Service) handleAbandonBooking(w http.ResponseWriter, r *http.Request) {
	s.bookings.Abandon(mux.Vars(r)["id"])
	s.writeSuccess(w, http.StatusOK, map[string]string{"status": "abandoned"})
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "healthy", "service": "scheduling"}
	if s.health != nil {
		if err := s.health(); err != nil {
			s.writeJSON(w, http.StatusServiceUnavailable, APIResponse{
				Success: false,
				Error:   &APIError{Code: types.ErrCodeInternalError, Message: "database unavailable"},
			})
			return
		}
	}
	s.writeSuccess(w, http.StatusOK, status)
}

func (s *Service) writeSuccess(w http.ResponseWriter, status int, data interface{}) {
	s.writeJSON(w, status, APIResponse{Success: true, Data: data})
}

// writeError maps error classes onto HTTP statuses: validation 400,
// not-found 404, conflict 409, everything else 500.
func (s *Service) writeError(w http.ResponseWriter, err error) {
	var schedErr *types.SchedulingError
	if !errors.As(err, &schedErr) {
		s.logger.WithError(err).Error("Unhandled error")
		s.writeJSON(w, http.StatusInternalServerError, APIResponse{
			Success: false,
			Error:   &APIError{Code: types.ErrCodeInternalError, Message: "internal server error"},
		})
		return
	}

	status := http.StatusInternalServerError
	switch schedErr.Type {
	case types.ErrorTypeValidation:
		status = http.StatusBadRequest
	case types.ErrorTypeNotFound:
		status = http.StatusNotFound
	case types.ErrorTypeConflict:
		status = http.StatusConflict
	}
	if schedErr.Type == types.ErrorTypeInternal {
		s.logger.WithError(schedErr).Error("Internal error")
	}

	s.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   &APIError{Code: schedErr.Code, Message: schedErr.Message, Details: schedErr.Details},
	})
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}
