package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"coaching/internal/auth"
	"coaching/internal/httpmiddleware"
	"coaching/internal/log"
	"coaching/internal/metrics"
)

// RouterOptions configures the middleware chain.
type RouterOptions struct {
	AllowOrigins []string
	// Limiter is optional; nil disables rate limiting.
	Limiter httpmiddleware.Limiter
	Logger  *log.Logger
}

// Router builds the gin engine with every route mounted.
func (h *Handler) Router(opts RouterOptions) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = h.log
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(log.GinMiddleware(opts.Logger, "/healthz", "/metrics"))
	r.Use(metrics.GinMiddleware())

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: len(opts.AllowOrigins) > 0,
		MaxAge:           12 * time.Hour,
	}
	if len(opts.AllowOrigins) > 0 {
		corsCfg.AllowOrigins = opts.AllowOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	r.Use(cors.New(corsCfg))
	r.Use(httpmiddleware.SecurityHeaders())
	if opts.Limiter != nil {
		r.Use(httpmiddleware.RateLimit(opts.Limiter))
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", h.Healthz)

	v1 := r.Group("/v1")
	v1.POST("/auth/register", h.Register)
	v1.POST("/auth/login", h.Login)
	v1.POST("/auth/refresh", h.Refresh)

	courses := routesFor(h, h.catalog.Courses)
	exams := routesFor(h, h.catalog.Exams)
	notifications := routesFor(h, h.catalog.Notifications)
	materials := routesFor(h, h.catalog.StudyMaterials)
	series := routesFor(h, h.catalog.TestSeries)

	v1.GET("/courses", courses.list)
	v1.GET("/courses/:id", courses.get)
	v1.GET("/exams", exams.list)
	v1.GET("/exams/:id", exams.get)
	v1.GET("/notifications", notifications.list)
	v1.GET("/study-materials", materials.list)
	v1.GET("/study-materials/:id", materials.get)
	v1.GET("/test-series", series.list)
	v1.GET("/test-series/:id", series.get)

	authed := v1.Group("", auth.Authenticate(h.tokens))
	authed.POST("/payments", auth.RequireRole(auth.RoleStudent, auth.RoleAdmin), h.RecordPayment)
	authed.GET("/notifications/stream", h.NotificationsStream)

	admin := authed.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.GET("/students", h.ListStudents)
	admin.GET("/students/export", h.ExportStudents)
	admin.GET("/students/:id", h.GetStudent)
	admin.PATCH("/students/:id", h.UpdateStudent)
	admin.DELETE("/students/:id", h.DeleteStudent)
	admin.GET("/students/:id/fees", h.StudentFees)
	admin.GET("/students/:id/attendance", h.StudentAttendance)
	admin.POST("/students/:id/attendance", h.MarkDaily)
	admin.GET("/attendance/trend", h.BatchTrend)

	admin.POST("/teachers", h.CreateTeacher)
	admin.GET("/teachers", h.ListTeachers)
	admin.GET("/teachers/:id", h.GetTeacher)
	admin.PATCH("/teachers/:id", h.UpdateTeacher)
	admin.DELETE("/teachers/:id", h.DeleteTeacher)
	admin.POST("/teachers/:id/salary", h.PaySalary)
	admin.GET("/teachers/:id/salary", h.SalaryStatus)

	mountAdmin(admin, "/courses", courses)
	mountAdmin(admin, "/exams", exams)
	mountAdmin(admin, "/test-series", series)
	mountAdmin(admin, "/study-materials", materials)
	admin.POST("/notifications", h.Broadcast)
	admin.DELETE("/notifications/:id", notifications.remove)

	teacher := authed.Group("", auth.RequireRole(auth.RoleTeacher))
	teacher.GET("/teacher/me", h.TeacherMe)
	teacher.GET("/teacher/students", h.TeacherStudents)
	teacher.POST("/teacher/attendance", h.MarkBatch)
	teacher.POST("/teacher/students/:id/attendance", h.TeacherMarkDaily)
	teacher.GET("/teacher/trend", h.TeacherTrend)

	uploads := authed.Group("", auth.RequireRole(auth.RoleTeacher, auth.RoleAdmin))
	uploads.POST("/study-materials/upload", h.UploadStudyMaterial)

	student := authed.Group("/me", auth.RequireRole(auth.RoleStudent))
	student.GET("", h.Me)
	student.GET("/fees", h.MyFees)
	student.GET("/payments", h.MyPayments)
	student.GET("/attendance", h.MyAttendance)
	student.GET("/fees/stream", h.FeesStream)
	student.GET("/attendance/stream", h.AttendanceStream)

	return r
}

func mountAdmin(g *gin.RouterGroup, path string, r collectionRoutes) {
	g.POST(path, r.create)
	g.PUT(path+"/:id", r.replace)
	g.DELETE(path+"/:id", r.remove)
}
