package rest

import (
	"errors"
	"io"
	"net/http"

	"github.com/uptrace/bunrouter"
)

type NotFoundError struct {
	Message string
}

func (e NotFoundError) Error() string {
	return e.Message
}

type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}

type HTTPError struct {
	StatusCode int `json:"-"`

	Message string `json:"message"`
}

func (e HTTPError) Error() string {
	return e.Message
}

func NewHTTPError(err error) HTTPError {
	var (
		httpErr       HTTPError
		notFoundErr   NotFoundError
		validationErr ValidationError
	)
	switch {
	case errors.As(err, &httpErr):
		return httpErr
	case errors.As(err, &notFoundErr):
		return HTTPError{
			StatusCode: http.StatusNotFound,
			Message:    notFoundErr.Message,
		}
	case errors.As(err, &validationErr):
		return HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    validationErr.Message,
		}
	case errors.Is(err, io.EOF):
		return HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "EOF reading HTTP request body",
		}
	}

	return HTTPError{
		StatusCode: http.StatusInternalServerError,
		Message:    "Internal server error",
	}
}

func errorHandler(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, req bunrouter.Request) error {
		err := next(w, req)
		if err != nil {
			httpErr := NewHTTPError(err)
			_ = JSON(w, httpErr.StatusCode, httpErr)
		}
		return err // return the err in case there other middlewares
	}
}
