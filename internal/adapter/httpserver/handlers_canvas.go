package httpserver

import (
	"github.com/labstack/echo/v4"

	"github.com/pscheid92/pixelwall/internal/domain"
	apperrors "github.com/pscheid92/pixelwall/internal/platform/errors"
)

type cellView struct {
	Token string
	Color domain.Color
}

type canvasPage struct {
	Cells    []cellView
	Size     int
	CellSize int
	Width    int
	Online   int
	Identity string
	Prefix   string
}

func newCanvasPage(view domain.CanvasView, identity string) canvasPage {
	cells := make([]cellView, len(view.Cells))
	for i, color := range view.Cells {
		cells[i] = cellView{Token: domain.CellToken(i), Color: color}
	}
	return canvasPage{
		Cells:    cells,
		Size:     view.Size,
		CellSize: view.CellSize,
		Width:    view.Size * view.CellSize,
		Online:   view.Online,
		Identity: identity,
		Prefix:   domain.CellTokenPrefix,
	}
}

func (s *Server) handleCanvas(c echo.Context) error {
	identity, err := s.identities.Ensure(c)
	if err != nil {
		return apperrors.InternalError("failed to issue identity", err)
	}

	return s.renderTemplate(c, "index.html", newCanvasPage(s.app.View(), identity))
}
