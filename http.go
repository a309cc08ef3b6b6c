package accounts

import (
	stderrors "errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
)

// ErrorResponse is the JSON body returned for every failed request.
type ErrorResponse struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message"`
	TextCode  string            `json:"text_code,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// respondError maps an error to its HTTP status and serializes the public
// view of it. Internal detail never leaves the process.
func respondError(c *fiber.Ctx, err error) error {
	status := HTTPStatus(err)

	body := ErrorResponse{
		Message: PublicMessage(err),
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		if status < http.StatusInternalServerError || richErr.TextCode == TextCodeDeliveryFailed {
			body.TextCode = richErr.TextCode
		}
		if raw, ok := richErr.Metadata["fields"].(map[string]string); ok && len(raw) > 0 {
			body.Fields = raw
		}
	}

	if rid, ok := c.Locals("requestid").(string); ok {
		body.RequestID = rid
	}

	return c.Status(status).JSON(body)
}

// respondValidation wraps ozzo validation output into a 400 response with a
// per-field breakdown.
func respondValidation(c *fiber.Ctx, err error) error {
	richErr := goerrors.Wrap(err, goerrors.CategoryValidation, "validation failed").
		WithCode(goerrors.CodeBadRequest)
	if fields := FormatValidationErrors(err); len(fields) > 0 {
		richErr = richErr.WithMetadata(map[string]any{"fields": fields})
	}
	return respondError(c, richErr)
}

// ErrorHandler is the fiber app-level error handler. Handlers normally
// respond themselves; this catches what escapes them.
func ErrorHandler(logger Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if err == nil {
			return nil
		}

		var fiberErr *fiber.Error
		if stderrors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(ErrorResponse{
				Message: fiberErr.Message,
			})
		}

		if logger != nil && HTTPStatus(err) >= http.StatusInternalServerError {
			logger.Error("unhandled request error: path=%s error=%v", c.Path(), err)
		}

		return respondError(c, err)
	}
}
