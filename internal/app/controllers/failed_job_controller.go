package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yigit/registrar/internal/app/models/dto"
	"github.com/yigit/registrar/internal/middleware"
	"github.com/yigit/registrar/internal/pkg/helpers"
	"github.com/yigit/registrar/internal/pkg/queue"
)

// FailedJobController lists jobs that exhausted their retries
type FailedJobController struct {
	store queue.FailedJobStore
}

// NewFailedJobController creates a new FailedJobController
func NewFailedJobController(store queue.FailedJobStore) *FailedJobController {
	return &FailedJobController{store: store}
}

// List handles GET /failed-jobs?page=&size=
func (c *FailedJobController) List(ctx *gin.Context) {
	page, size := helpers.ParsePaginationParams(ctx)
	offset, limit := helpers.CalculateOffsetLimit(page, size)

	jobs, total, err := c.store.List(ctx.Request.Context(), limit, offset)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(dto.PaginatedResponse{
		Items:      jobs,
		Pagination: helpers.NewPaginationInfo(total, page, limit),
	}))
}
