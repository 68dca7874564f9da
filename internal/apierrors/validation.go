package apierrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// ValidationErrorResponse is returned when request binding fails
type ValidationErrorResponse struct {
	Error  string   `json:"error"`
	Code   string   `json:"code"`
	Fields []string `json:"fields,omitempty"`
}

// RespondWithValidationError handles Gin binding/validation errors and returns
// structured validation error responses. Use it when ShouldBindJSON or similar
// binding functions fail.
func RespondWithValidationError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		fields := make([]string, 0, len(validationErrs))
		for _, fieldErr := range validationErrs {
			fields = append(fields, describeFieldError(fieldErr))
		}
		c.JSON(http.StatusBadRequest, ValidationErrorResponse{
			Error:  "Request validation failed",
			Code:   "VALIDATION_ERROR",
			Fields: fields,
		})
		return
	}

	c.JSON(http.StatusBadRequest, ValidationErrorResponse{
		Error: "Invalid request body",
		Code:  "INVALID_BODY",
	})
}

func describeFieldError(fieldErr validator.FieldError) string {
	field := strings.ToLower(fieldErr.Field())
	switch fieldErr.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "uuid":
		return fmt.Sprintf("%s must be a valid UUID", field)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "min":
		return fmt.Sprintf("%s must have at least %s items", field, fieldErr.Param())
	default:
		return fmt.Sprintf("%s failed validation (%s)", field, fieldErr.Tag())
	}
}
