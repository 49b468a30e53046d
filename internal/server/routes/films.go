package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/filmgraph/backend/internal/server/middleware"
	"github.com/filmgraph/backend/pkg/common"
	"github.com/filmgraph/backend/pkg/films"
)

// GetFilmsHandler lists films in natural order.
func GetFilmsHandler(c echo.Context) error {
	type getFilmsParams struct {
		Limit int `query:"limit" validate:"gte=0"`
	}

	type getFilmsResponse struct {
		Message string       `json:"message"`
		Films   []films.Film `json:"films"`
	}

	params := new(getFilmsParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, getFilmsResponse{Message: "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, getFilmsResponse{Message: "Invalid request params"})
	}

	app := c.(*middleware.AppContext).App
	list, err := app.Films.List(c.Request().Context(), params.Limit)
	if err != nil {
		return respondError(c, err)
	}
	if list == nil {
		list = []films.Film{}
	}
	return c.JSON(http.StatusOK, getFilmsResponse{Message: "OK", Films: list})
}

func GetFilmHandler(c echo.Context) error {
	type getFilmResponse struct {
		Message string      `json:"message"`
		Film    *films.Film `json:"film,omitempty"`
	}

	app := c.(*middleware.AppContext).App
	film, err := app.Films.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, getFilmResponse{Message: "OK", Film: film})
}

// CreateFilmHandler validates and inserts a film.
func CreateFilmHandler(c echo.Context) error {
	type createFilmResponse struct {
		Message string `json:"message"`
		ID      string `json:"id,omitempty"`
	}

	data := new(common.Film)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, createFilmResponse{Message: "Invalid request body"})
	}

	app := c.(*middleware.AppContext).App
	id, err := app.Films.Create(c.Request().Context(), *data)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, createFilmResponse{Message: "Film created", ID: id})
}

// EditFilmHandler applies a partial update. An unknown id is a 404 and
// leaves the store unchanged.
func EditFilmHandler(c echo.Context) error {
	type editFilmResponse struct {
		Message string `json:"message"`
		Matched int64  `json:"matched"`
	}

	patch := new(common.FilmPatch)
	if err := c.Bind(patch); err != nil {
		return c.JSON(http.StatusBadRequest, editFilmResponse{Message: "Invalid request body"})
	}

	app := c.(*middleware.AppContext).App
	n, err := app.Films.Update(c.Request().Context(), c.Param("id"), *patch)
	if err != nil {
		return respondError(c, err)
	}
	if n == 0 {
		return c.JSON(http.StatusNotFound, editFilmResponse{Message: "Film not found"})
	}
	return c.JSON(http.StatusOK, editFilmResponse{Message: "Film updated", Matched: n})
}

func DeleteFilmHandler(c echo.Context) error {
	type deleteFilmResponse struct {
		Message string `json:"message"`
	}

	app := c.(*middleware.AppContext).App
	out, err := app.Films.Delete(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	if out == common.DeleteNotFound {
		return c.JSON(http.StatusNotFound, deleteFilmResponse{Message: "Film not found"})
	}
	return c.JSON(http.StatusOK, deleteFilmResponse{Message: "Film deleted"})
}
