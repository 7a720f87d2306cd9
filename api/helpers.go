package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
	"go.uber.org/zap"

	"kuanb/gosm-matcher/matching"
	"kuanb/gosm-matcher/road"
)

type envelope map[string]any

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Index   *int   `json:"index,omitempty"`
	} `json:"error"`
}

var (
	transOnce sync.Once
	trans     ut.Translator
)

func translator() ut.Translator {
	transOnce.Do(func() {
		english := en.New()
		uni := ut.New(english, english)
		trans, _ = uni.GetTranslator("en")
		_ = enTranslations.RegisterDefaultTranslations(road.Validator(), trans)
	})
	return trans
}

func translateError(err error, trans ut.Translator) []error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []error{err}
	}
	errs := make([]error, 0, len(verrs))
	for _, e := range verrs {
		errs = append(errs, fmt.Errorf("%s: %s", e.Namespace(), e.Translate(trans)))
	}
	return errs
}

// validateRequest checks a decoded request body against its validate tags.
func validateRequest(req any) error {
	trans := translator()
	if err := road.Validator().Struct(req); err != nil {
		vv := translateError(err, trans)
		vvString := make([]string, 0, len(vv))
		for _, v := range vv {
			vvString = append(vvString, v.Error())
		}
		return fmt.Errorf("validation error: %v", vvString)
	}
	return nil
}

func (api *API) writeJSON(w http.ResponseWriter, status int, data any, headers http.Header) error {
	js, err := json.Marshal(data)
	if err != nil {
		return err
	}
	for key, value := range headers {
		w.Header()[key] = value
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	_, err = w.Write(append(js, '\n'))
	return err
}

func (api *API) errorResponse(w http.ResponseWriter, r *http.Request, status int, err error) {
	var resp errorResponse
	resp.Error.Code = http.StatusText(status)
	resp.Error.Message = err.Error()

	var matchErr *matching.MatchError
	if errors.As(err, &matchErr) {
		idx := matchErr.Index
		resp.Error.Index = &idx
	}
	if werr := api.writeJSON(w, status, resp, nil); werr != nil {
		api.log.Error("write error response", zap.String("path", r.URL.Path), zap.Error(werr))
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (api *API) BadRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	api.errorResponse(w, r, http.StatusBadRequest, err)
}

func (api *API) ServerErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	api.log.Error("server error", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
	api.errorResponse(w, r, http.StatusInternalServerError, errors.New("the server encountered a problem and could not process your request"))
}

func (api *API) NotFoundResponse(w http.ResponseWriter, r *http.Request, err error) {
	api.errorResponse(w, r, http.StatusNotFound, err)
}

// getStatusCode writes err with the status its kind maps to.
func (api *API) getStatusCode(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		api.ServerErrorResponse(w, r, err)
		return
	}
	api.errorResponse(w, r, status, err)
}

func statusFor(err error) int {
	var (
		missing  *road.MissingFieldError
		invalid  *road.InvalidFieldError
		csvError *csv.ParseError
	)
	switch {
	case errors.As(err, &missing), errors.As(err, &invalid), errors.As(err, &csvError),
		errors.Is(err, matching.ErrInvalidPoint):
		return http.StatusBadRequest
	case errors.Is(err, matching.ErrEmptyInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
