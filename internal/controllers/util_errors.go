package controllers

import (
	"errors"
	"net/http"

	"github.com/QualityUnit/flowbatch/internal/executor"
	"github.com/QualityUnit/flowbatch/internal/importer"
	"github.com/QualityUnit/flowbatch/internal/repository"
	"github.com/QualityUnit/flowbatch/internal/services"

	"github.com/gin-gonic/gin"
)

// respondError maps service errors onto HTTP statuses. Anything unrecognized
// is treated as a bad request, mirroring how the services validate input.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, services.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, services.ErrBatchRunning),
		errors.Is(err, services.ErrBatchNotRunning),
		errors.Is(err, services.ErrTaskNotTerminal):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, importer.ErrNoTasks),
		errors.Is(err, executor.ErrNoTasks),
		errors.Is(err, executor.ErrMissingFilenames):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}
