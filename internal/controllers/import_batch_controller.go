package controllers

import (
	"net/http"
	"strconv"

	"github.com/QualityUnit/flowbatch/internal/services"
	"github.com/QualityUnit/flowbatch/pkg/domain"

	"github.com/gin-gonic/gin"
)

type importBatchController struct{ svc services.BatchService }

func NewImportBatchController(svc services.BatchService) *importBatchController {
	return &importBatchController{svc}
}

// Handle accepts a multipart upload under the "file" field, or the raw CSV as
// the request body. Batch parameters ride along as form/query values.
func (h *importBatchController) Handle(c *gin.Context) {
	flow := domain.FlowRef{
		FlowID:      c.DefaultQuery("flowId", c.PostForm("flowId")),
		WorkspaceID: c.DefaultQuery("workspaceId", c.PostForm("workspaceId")),
	}
	if flow.FlowID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "flowId is required"})
		return
	}
	cfg := domain.BatchConfig{
		Parallelism:       queryInt(c, "parallelism", 0),
		SingletonMode:     queryBool(c, "singleton"),
		WriteOutputToFile: queryBool(c, "writeOutput"),
		OutputDirectory:   c.DefaultQuery("outputDir", c.PostForm("outputDir")),
	}

	if file, err := c.FormFile("file"); err == nil {
		f, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot open upload"})
			return
		}
		defer f.Close()
		res, err := h.svc.ImportCSV(c.Request.Context(), flow, cfg, f)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, res)
		return
	}

	res, err := h.svc.ImportCSV(c.Request.Context(), flow, cfg, c.Request.Body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func queryInt(c *gin.Context, name string, def int) int {
	v := c.DefaultQuery(name, c.PostForm(name))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func queryBool(c *gin.Context, name string) bool {
	v := c.DefaultQuery(name, c.PostForm(name))
	b, _ := strconv.ParseBool(v)
	return b
}
