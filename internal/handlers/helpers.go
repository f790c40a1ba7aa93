package handlers

import (
	"net/http"
	"strconv"

	"github.com/anonto42/recipe-swap/backend/internal/commenttree"
	"github.com/anonto42/recipe-swap/backend/internal/middleware"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

func getUserIDFromContext(c echo.Context) uint {
	return middleware.UserID(c)
}

// currentUser returns the authenticated user's ID in the string form the
// comment tree uses, or "" for anonymous requests.
func currentUser(c echo.Context) string {
	id := getUserIDFromContext(c)
	if id == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(id), 10)
}

// commentError maps comment tree and store failures to HTTP errors.
func commentError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, commenttree.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Comment not found")
	case errors.Is(err, commenttree.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, "You are not authorized to modify this comment")
	case errors.Is(err, commenttree.ErrUnauthenticated):
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	case errors.Is(err, commenttree.ErrWrite):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func countComments(cs []commenttree.Comment) int {
	n := len(cs)
	for _, c := range cs {
		n += len(c.Replies)
	}
	return n
}
