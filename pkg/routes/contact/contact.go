package contact

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/identity"
	"github.com/Ramsey-B/fern/pkg/models"
)

type Lister interface {
	List(ctx context.Context) ([]models.Contact, error)
}

// Handler serves the raw contact rows
type Handler struct {
	lister Lister
}

func NewHandler(lister Lister) *Handler {
	return &Handler{lister: lister}
}

func (h *Handler) Register(g *echo.Group) {
	g.GET("/contacts", h.List)
}

// List returns every stored contact
// @Summary List contacts
// @Tags Contacts
// @Produce json
// @Success 200 {array} models.Contact
// @Failure 500 {object} httperror.HTTPError
// @Router /api/contacts [get]
func (h *Handler) List(c echo.Context) error {
	contacts, err := h.lister.List(c.Request().Context())
	if err != nil {
		status := http.StatusInternalServerError
		if identity.IsKind(err, identity.KindStoreUnavailable) {
			status = http.StatusServiceUnavailable
		}
		return httperror.WrapError(status, err)
	}
	if contacts == nil {
		contacts = []models.Contact{}
	}
	return c.JSON(http.StatusOK, contacts)
}
