package engine

import (
	"path/filepath"

	"github.com/go-playground/validator/v10"
)

// RequestValidator adapts go-playground/validator to echo.Validator
type RequestValidator struct {
	validator *validator.Validate
}

// NewRequestValidator returns the validator installed on the echo instance
func NewRequestValidator() *RequestValidator {
	return &RequestValidator{validator: validator.New()}
}

// Validate checks the struct tags of a bound request
func (rv *RequestValidator) Validate(i interface{}) error {
	return rv.validator.Struct(i)
}

// MergeRequest is the body of POST /api/merge
type MergeRequest struct {
	FilePaths  []string `json:"filePaths" validate:"dive,required"`
	OutputPath string   `json:"outputPath" validate:"required"`
}

// MergePagesRequest is the body of POST /api/merge/pages
type MergePagesRequest struct {
	InputPath  string `json:"inputPath" validate:"required"`
	OutputPath string `json:"outputPath" validate:"required"`
	Pages      []int  `json:"pages"`
}

// RescaleRequest mirrors RescaleLimit with optional fields
type RescaleRequest struct {
	MaxWidth  *int `json:"maxWidth"`
	MaxHeight *int `json:"maxHeight"`
}

// ImageConfigRequest mirrors ImageToPdfConfig with optional fields
type ImageConfigRequest struct {
	Rescale         *RescaleRequest `json:"rescale"`
	KeepAspectRatio *bool           `json:"keepAspectRatio"`
}

// ImagesToPdfRequest is the body of POST /api/images/pdf
type ImagesToPdfRequest struct {
	ImagePaths []string            `json:"imagePaths" validate:"dive,required"`
	OutputPath string              `json:"outputPath" validate:"required"`
	Config     *ImageConfigRequest `json:"config"`
}

// ProtectionRequest is the body of the protection routes. Passwords are
// never logged or stored with the job.
type ProtectionRequest struct {
	FilePath      string `json:"filePath" validate:"required"`
	UserPassword  string `json:"userPassword"`
	OwnerPassword string `json:"ownerPassword"`
	Password      string `json:"password"`
}

// RenderRequest is the body of POST /api/render/pages and /api/render/long
type RenderRequest struct {
	InputPath  string `json:"inputPath" validate:"required"`
	OutputPath string `json:"outputPath"`
	Pages      []int  `json:"pages"`
	Format     string `json:"format" validate:"omitempty,oneof=png PNG jpg JPG jpeg JPEG"`
	Quality    *int   `json:"quality"`
}

// ToConfig applies the defaulting rules: no config block means the worker
// defaults, a missing limit means no limit and keepAspectRatio defaults to true.
func (r *ImageConfigRequest) ToConfig() *ImageToPdfConfig {
	if r == nil {
		return nil
	}
	config := ImageToPdfConfig{KeepAspectRatio: true}
	if r.Rescale != nil {
		if r.Rescale.MaxWidth != nil {
			config.Rescale.MaxWidth = *r.Rescale.MaxWidth
		}
		if r.Rescale.MaxHeight != nil {
			config.Rescale.MaxHeight = *r.Rescale.MaxHeight
		}
	}
	if r.KeepAspectRatio != nil {
		config.KeepAspectRatio = *r.KeepAspectRatio
	}
	return &config
}

// ToConfig builds a clamped RasterConfig. An absent pages field renders every
// page, an explicit empty list is kept so the worker can reject it.
func (r *RenderRequest) ToConfig() RasterConfig {
	quality := 100
	if r.Quality != nil {
		quality = *r.Quality
	}
	return NewRasterConfig(r.Pages, ParseImageFormat(r.Format), quality)
}

// resolveOutput anchors relative output paths under the configured output directory
func (serverHandler *ServerHandler) resolveOutput(path string) string {
	if path == "" {
		return serverHandler.ServerConfig.OutputPath
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(serverHandler.ServerConfig.OutputPath, path)
}
