package httpadapter

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
)

// requestValidator checks incoming /v1 requests against the OpenAPI contract
// before they reach a handler.
type requestValidator struct {
	router routers.Router
}

func newRequestValidator(doc *openapi3.T) (*requestValidator, error) {
	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("build openapi router: %w", err)
	}
	return &requestValidator{router: router}, nil
}

func (v *requestValidator) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, pathParams, err := v.router.FindRoute(r)
		if err != nil {
			if isRouteError(err, routers.ErrMethodNotAllowed) {
				writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
				return
			}
			// Unknown paths fall through to the mux 404.
			next.ServeHTTP(w, r)
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    r,
			PathParams: pathParams,
			Route:      route,
			Options: &openapi3filter.Options{
				// Multipart bodies are streamed by the upload handler.
				ExcludeRequestBody: strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/"),
				MultiError:         false,
				AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
			},
		}
		if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": validationMessage(err)})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isRouteError(err, target error) bool {
	if errors.Is(err, target) {
		return true
	}
	var routeErr *routers.RouteError
	return errors.As(err, &routeErr) && routeErr.Error() == target.Error()
}

func validationMessage(err error) string {
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		switch {
		case reqErr.Parameter != nil:
			return fmt.Sprintf("invalid parameter %q: %s", reqErr.Parameter.Name, causeMessage(reqErr))
		case reqErr.RequestBody != nil:
			return "invalid request body: " + causeMessage(reqErr)
		}
	}
	return err.Error()
}

func causeMessage(reqErr *openapi3filter.RequestError) string {
	var schemaErr *openapi3.SchemaError
	if errors.As(reqErr.Err, &schemaErr) {
		return schemaErr.Reason
	}
	if reqErr.Err != nil {
		return reqErr.Err.Error()
	}
	return reqErr.Reason
}
