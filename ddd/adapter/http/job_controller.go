package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"medkit-service/ddd/application/app"
	"medkit-service/ddd/application/cqe"
	"medkit-service/pkg/errno"
	"medkit-service/pkg/manager"
	"medkit-service/pkg/middleware"
	"medkit-service/pkg/restapi"
)

func init() {
	manager.RegisterControllerPlugin(&JobControllerPlugin{})
}

type JobControllerPlugin struct{}

func (p *JobControllerPlugin) Name() string {
	return "jobControllerPlugin"
}

func (p *JobControllerPlugin) MustCreateController(deps *manager.Dependencies) manager.Controller {
	jobApp, ok := deps.JobApp.(app.JobApp)
	if !ok {
		panic("job controller requires app.JobApp")
	}
	return NewJobController(jobApp)
}

// JobController 作业接口
type JobController struct {
	jobApp app.JobApp
}

func NewJobController(jobApp app.JobApp) *JobController {
	return &JobController{jobApp: jobApp}
}

func (c *JobController) RegisterRoutes(router gin.IRouter) {
	jobs := router.Group("/api/v1/jobs")
	{
		jobs.POST("", c.CreateJob)
		jobs.GET("/:id", c.GetJob)
		jobs.POST("/:id/cancel", c.CancelJob)
		jobs.GET("/:id/progress", c.GetJobProgress)
		jobs.GET("/:id/output", c.DownloadOutput)
	}
}

// CreateJob accepts JSON for downloads and multipart (field "file") for conversions.
func (c *JobController) CreateJob(ctx *gin.Context) {
	var req cqe.CreateJobReq
	if strings.HasPrefix(ctx.ContentType(), "multipart/") {
		if err := ctx.ShouldBind(&req); err != nil {
			restapi.Failed(ctx, errno.NewBizError(errno.ErrInvalidParam, err))
			return
		}
		if req.Kind == "" {
			req.Kind = "conversion"
		}
		if fh, err := ctx.FormFile("file"); err == nil {
			f, err := fh.Open()
			if err != nil {
				restapi.Failed(ctx, errno.NewBizError(errno.ErrInvalidParam, err))
				return
			}
			defer f.Close()
			req.Upload = f
			req.UploadName = fh.Filename
			req.UploadSize = fh.Size
		}
	} else if err := ctx.ShouldBindJSON(&req); err != nil {
		restapi.Failed(ctx, errno.NewBizError(errno.ErrInvalidParam, err))
		return
	}
	if req.OwnerID == "" {
		req.OwnerID = ctx.GetString(middleware.OwnerKey)
	}

	resp, err := c.jobApp.CreateJob(ctx.Request.Context(), &req)
	if err != nil {
		if resp != nil {
			restapi.FailedWithData(ctx, err, resp)
			return
		}
		restapi.Failed(ctx, err)
		return
	}
	restapi.Success(ctx, resp)
}

func (c *JobController) GetJob(ctx *gin.Context) {
	resp, err := c.jobApp.GetStatus(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		restapi.Failed(ctx, err)
		return
	}
	restapi.Success(ctx, resp)
}

func (c *JobController) CancelJob(ctx *gin.Context) {
	id := ctx.Param("id")
	if err := c.jobApp.Cancel(ctx.Request.Context(), id); err != nil {
		restapi.Failed(ctx, err)
		return
	}
	restapi.Success(ctx, gin.H{"job_id": id, "cancel_requested": true})
}

func (c *JobController) GetJobProgress(ctx *gin.Context) {
	resp, err := c.jobApp.GetProgress(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		restapi.Failed(ctx, err)
		return
	}
	restapi.Success(ctx, resp)
}

func (c *JobController) DownloadOutput(ctx *gin.Context) {
	out, err := c.jobApp.GetOutput(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		restapi.Failed(ctx, err)
		return
	}
	defer out.Body.Close()
	ctx.DataFromReader(http.StatusOK, out.Size, out.ContentType, out.Body, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%s", strconv.Quote(out.FileName)),
	})
}
