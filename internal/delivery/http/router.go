package http

import (
	"net/http"

	"opd-token-allocation/internal/delivery/http/handler"
	"opd-token-allocation/internal/delivery/http/middleware"

	"github.com/gorilla/mux"
)

type Router struct {
	router            *mux.Router
	tokenHandler      *handler.TokenHandler
	slotHandler       *handler.SlotHandler
	doctorHandler     *handler.DoctorHandler
	patientHandler    *handler.PatientHandler
	healthHandler     *handler.HealthHandler
	authMiddleware    *middleware.AuthMiddleware
	corsMiddleware    *middleware.CORSMiddleware
	loggingMiddleware *middleware.LoggingMiddleware
}

func NewRouter(
	tokenHandler *handler.TokenHandler,
	slotHandler *handler.SlotHandler,
	doctorHandler *handler.DoctorHandler,
	patientHandler *handler.PatientHandler,
	healthHandler *handler.HealthHandler,
	authMiddleware *middleware.AuthMiddleware,
	corsMiddleware *middleware.CORSMiddleware,
	loggingMiddleware *middleware.LoggingMiddleware,
) *Router {
	return &Router{
		router:            mux.NewRouter(),
		tokenHandler:      tokenHandler,
		slotHandler:       slotHandler,
		doctorHandler:     doctorHandler,
		patientHandler:    patientHandler,
		healthHandler:     healthHandler,
		authMiddleware:    authMiddleware,
		corsMiddleware:    corsMiddleware,
		loggingMiddleware: loggingMiddleware,
	}
}

func (r *Router) Setup() *mux.Router {
	// API versioning
	api := r.router.PathPrefix("/api/v1").Subrouter()

	// Health check
	api.HandleFunc("/health", r.healthHandler.Health).Methods(http.MethodGet)

	// Token routes (public)
	api.HandleFunc("/tokens/allocate", r.tokenHandler.AllocateToken).Methods(http.MethodPost)
	api.HandleFunc("/tokens/doctor/{doctorId}/date/{date}/slot/{slot}", r.tokenHandler.ListSlotTokens).Methods(http.MethodGet)
	api.HandleFunc("/tokens/{id}", r.tokenHandler.GetToken).Methods(http.MethodGet)
	api.HandleFunc("/tokens/{id}/events", r.tokenHandler.GetTokenEvents).Methods(http.MethodGet)
	api.HandleFunc("/tokens/{id}/cancel", r.tokenHandler.CancelToken).Methods(http.MethodPut)
	api.HandleFunc("/slot-capacity/{doctorId}/{slot}/{date}", r.slotHandler.GetCapacity).Methods(http.MethodGet)

	// Doctor and patient registry (public reads, patient self-registration)
	api.HandleFunc("/doctors", r.doctorHandler.GetAllDoctors).Methods(http.MethodGet)
	api.HandleFunc("/doctors/{id}", r.doctorHandler.GetDoctor).Methods(http.MethodGet)
	api.HandleFunc("/patients", r.patientHandler.CreatePatient).Methods(http.MethodPost)
	api.HandleFunc("/patients", r.patientHandler.GetAllPatients).Methods(http.MethodGet)
	api.HandleFunc("/patients/{id}", r.patientHandler.GetPatient).Methods(http.MethodGet)

	// Staff routes (protected)
	staff := api.NewRoute().Subrouter()
	staff.Use(r.authMiddleware.Authenticate)
	staff.Use(r.authMiddleware.RequireStaff)

	staff.HandleFunc("/tokens/{id}/no-show", r.tokenHandler.MarkNoShow).Methods(http.MethodPut)
	staff.HandleFunc("/tokens/{id}/emergency", r.tokenHandler.InsertEmergency).Methods(http.MethodPut)
	staff.HandleFunc("/tokens/{id}/start", r.tokenHandler.StartToken).Methods(http.MethodPut)
	staff.HandleFunc("/tokens/{id}/complete", r.tokenHandler.CompleteToken).Methods(http.MethodPut)
	staff.HandleFunc("/slot-capacity/{doctorId}/{slot}/{date}", r.slotHandler.SetCapacity).Methods(http.MethodPut)
	staff.HandleFunc("/slots/{doctorId}/{slot}/{date}/delay", r.slotHandler.ReportDelay).Methods(http.MethodPost)
	staff.HandleFunc("/doctors", r.doctorHandler.CreateDoctor).Methods(http.MethodPost)

	// Preflight requests match no API route; this lets the CORS middleware answer them.
	r.router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, req *http.Request) {})

	r.router.Use(r.loggingMiddleware.Handle)
	r.router.Use(r.corsMiddleware.Handle)

	return r.router
}
