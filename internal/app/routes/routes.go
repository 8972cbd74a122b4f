package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yigit/registrar/internal/app/controllers"
	"github.com/yigit/registrar/internal/app/models/dto"
	"github.com/yigit/registrar/internal/middleware"
)

// Controllers groups the handlers mounted by SetupRouter
type Controllers struct {
	Enrollments *controllers.EnrollmentController
	Imports     *controllers.ImportController
	FailedJobs  *controllers.FailedJobController
}

// SetupRouter configures all application routes
func SetupRouter(router *gin.Engine, c Controllers) {
	router.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, dto.NewSuccessResponse(gin.H{"status": "ok"}))
	})

	v1 := router.Group("/api/v1")

	sections := v1.Group("/sections/:id")
	{
		sections.POST("/enrollments", c.Enrollments.Enroll)
		sections.POST("/promotions", c.Enrollments.Promote)
		sections.GET("/waitlist", c.Enrollments.Waitlist)
		sections.POST("/imports/grades", middleware.RequireRequestingUser(), c.Imports.ImportGrades)
	}

	v1.DELETE("/enrollments/:id", c.Enrollments.Drop)

	importRoutes := v1.Group("/imports")
	{
		importRoutes.POST("/courses", middleware.RequireRequestingUser(), c.Imports.ImportCourses)
		importRoutes.GET("/:importId/errors", c.Imports.ErrorLog)
	}

	v1.GET("/failed-jobs", c.FailedJobs.List)
}
