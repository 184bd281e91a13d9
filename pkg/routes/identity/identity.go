package identity

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	identitypkg "github.com/Ramsey-B/fern/pkg/identity"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/utils"
)

type Identifier interface {
	Identify(ctx context.Context, obs identitypkg.Observation) (*identitypkg.Result, error)
}

// Handler handles the identify endpoint
type Handler struct {
	identifier Identifier
	logger     ectologger.Logger
}

func NewHandler(identifier Identifier, logger ectologger.Logger) *Handler {
	return &Handler{
		identifier: identifier,
		logger:     logger,
	}
}

// Register registers the identity routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("/identify", h.Identify)
}

// Identify consolidates an email / phone number observation
// @Summary Identify a contact
// @Description Links the observation to the person it belongs to and returns the consolidated contact
// @Tags Identity
// @Accept json
// @Produce json
// @Param body body models.IdentifyRequest true "Observation"
// @Success 200 {object} models.IdentifyResponse
// @Failure 400 {object} httperror.HTTPError
// @Failure 500 {object} httperror.HTTPError
// @Failure 503 {object} httperror.HTTPError
// @Router /api/identify [post]
func (h *Handler) Identify(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := utils.BindRequest[models.IdentifyRequest](c)
	if err != nil {
		return err
	}

	email, phone := req.Observation()
	result, err := h.identifier.Identify(ctx, identitypkg.NewObservation(email, phone))
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, models.IdentifyResponse{Contact: *result.View})
}

func toHTTPError(err error) error {
	switch identitypkg.KindOf(err) {
	case identitypkg.KindInvalidRequest:
		return httperror.NewHTTPError(http.StatusBadRequest, identitypkg.ErrMissingIdentifier.Error())
	case identitypkg.KindStoreUnavailable:
		return httperror.WrapError(http.StatusServiceUnavailable, err)
	default:
		return httperror.WrapError(http.StatusInternalServerError, err)
	}
}
