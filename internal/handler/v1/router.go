package v1

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/docbook/docbook/internal/config"
	"github.com/docbook/docbook/internal/service"
	"github.com/docbook/docbook/pkg/auth"
	"github.com/docbook/docbook/pkg/metrics"
)

type RouterDeps struct {
	Availability *service.AvailabilityService
	Slots        *service.SlotService
	Reservations *service.ReservationService
	JWT          *auth.JWTManager
	Config       *config.Config
	Metrics      *metrics.Collector
	Logger       *zap.Logger
}

// NewRouter wires the full HTTP surface: health and metrics endpoints plus
// the versioned API behind authentication.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(deps.Logger))
	r.Use(MetricsMiddleware(deps.Metrics))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     deps.Config.CORS.AllowedMethods,
		AllowHeaders:     deps.Config.CORS.AllowedHeaders,
		AllowCredentials: true,
		MaxAge:           deps.Config.CORS.MaxAge,
	}))
	r.Use(RateLimiter(deps.Config.RateLimit))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.MetricsHandler()))

	availabilityHandler := NewAvailabilityHandler(deps.Availability)
	slotHandler := NewSlotHandler(deps.Slots)
	appointmentHandler := NewAppointmentHandler(deps.Reservations, deps.Config.Reservation)

	api := r.Group("/api/v1", auth.Authenticate(deps.JWT))

	doctors := api.Group("/doctors/:doctorID")
	{
		doctors.GET("/slots", slotHandler.GetSlots)
		doctors.GET("/availability", availabilityHandler.ListRules)

		manage := doctors.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleStaff))
		manage.POST("/availability", availabilityHandler.DefineRule)
		manage.PUT("/availability", availabilityHandler.ReplaceRules)
		manage.GET("/appointments", appointmentHandler.ListForDoctor)
	}

	api.DELETE("/availability/:ruleID",
		auth.RequireRole(auth.RoleDoctor, auth.RoleStaff),
		availabilityHandler.RemoveRule,
	)

	appointments := api.Group("/appointments")
	{
		appointments.POST("/hold", appointmentHandler.Hold)
		appointments.POST("", auth.RequireRole(auth.RoleStaff), appointmentHandler.Schedule)
		appointments.GET("/:appointmentID", appointmentHandler.Get)
		appointments.GET("/:appointmentID/events", appointmentHandler.History)
		appointments.POST("/:appointmentID/confirm", appointmentHandler.Confirm)
		appointments.POST("/:appointmentID/cancel", appointmentHandler.Cancel)
		appointments.POST("/:appointmentID/reschedule", appointmentHandler.Reschedule)
		appointments.POST("/:appointmentID/complete",
			auth.RequireRole(auth.RoleDoctor, auth.RoleStaff),
			appointmentHandler.Complete,
		)
		appointments.POST("/:appointmentID/no-show",
			auth.RequireRole(auth.RoleDoctor, auth.RoleStaff),
			appointmentHandler.MarkNoShow,
		)
	}

	api.GET("/patients/:patientID/appointments", appointmentHandler.ListForPatient)

	return r
}
