package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Brownie44l1/food-api/internal/predict"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const RequestTooLargeMessage = "Request body too large"

type Predictor interface {
	Predict(ctx context.Context, req predict.Request) (*predict.Response, error)
}

// Info is reported by the health endpoint.
type Info struct {
	Classes        int
	CatalogEntries int
}

type Handler struct {
	predictor Predictor
	info      Info
}

func NewHandler(predictor Predictor, info Info) *Handler {
	return &Handler{
		predictor: predictor,
		info:      info,
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "healthy",
		"classes":         h.info.Classes,
		"catalog_entries": h.info.CatalogEntries,
	})
}

func (h *Handler) Predict(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, http.StatusRequestEntityTooLarge, RequestTooLargeMessage)
			return
		}
		log.Warn().Err(err).Msg("failed to read request body")
	}

	// an unreadable, empty or mistyped body leaves ImageURL empty, which the
	// service reports as a missing field
	var req predict.Request
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			log.Debug().Err(err).Msg("request body is not a valid prediction request")
			req = predict.Request{}
		}
	}

	// once started the pipeline runs to completion even if the client leaves
	ctx := context.WithoutCancel(c.Request.Context())
	resp, err := h.predictor.Predict(ctx, req)
	if err != nil {
		respondError(c, statusFor(err), err.Error())
		return
	}
	c.JSON(http.StatusOK, resp)
}

func statusFor(err error) int {
	var inputErr *predict.InputError
	var acqErr *predict.AcquisitionError
	switch {
	case errors.As(err, &inputErr), errors.As(err, &acqErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, status int, message string) {
	if status == http.StatusInternalServerError {
		message = predict.InternalErrorMessage
	}
	c.JSON(status, gin.H{"error": message})
}
