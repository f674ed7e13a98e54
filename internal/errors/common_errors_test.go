package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "error with cause",
			err:  NewParsingError("failed to parse month column", fmt.Errorf("invalid syntax")),
			want: "[PARSING] failed to parse month column: invalid syntax",
		},
		{
			name: "error without cause",
			err:  NewAppValidationError("no usable month columns"),
			want: "[VALIDATION] no usable month columns",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := fs.ErrNotExist
	err := NewStorageError("failed to open series file", cause)

	assert.True(t, errors.Is(err, fs.ErrNotExist))

	var appErr *AppError
	require.True(t, errors.As(fmt.Errorf("load: %w", err), &appErr))
	assert.Equal(t, ErrTypeStorage, appErr.Type)
}

func TestAppError_WithContext(t *testing.T) {
	err := NewAnalysisError("district analysis failed", fmt.Errorf("boom")).
		WithContext("district", "Songpa-gu").
		WithContext("months", 48)

	assert.Equal(t, "Songpa-gu", err.Context["district"])
	assert.Equal(t, 48, err.Context["months"])
}

func TestAppErrorConstructors(t *testing.T) {
	cause := fmt.Errorf("underlying")

	tests := []struct {
		name     string
		err      *AppError
		wantType ErrorType
	}{
		{name: "network", err: NewNetworkError("download failed", cause), wantType: ErrTypeNetwork},
		{name: "parsing", err: NewParsingError("bad cell value", cause), wantType: ErrTypeParsing},
		{name: "storage", err: NewStorageError("write failed", cause), wantType: ErrTypeStorage},
		{name: "validation", err: NewAppValidationError("invalid row"), wantType: ErrTypeValidation},
		{name: "not found", err: NewNotFoundError("series workbook"), wantType: ErrTypeNotFound},
		{name: "config", err: NewConfigError("bad config file", cause), wantType: ErrTypeConfig},
		{name: "analysis", err: NewAnalysisError("backtest failed", cause), wantType: ErrTypeAnalysis},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.err.Type)
			assert.NotEmpty(t, tt.err.Message)
		})
	}
}

func TestNewNotFoundError_Message(t *testing.T) {
	err := NewNotFoundError("series workbook")
	assert.Equal(t, "[NOT_FOUND] series workbook not found", err.Error())
}
