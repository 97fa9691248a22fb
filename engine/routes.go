package engine

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/oklog/ulid/v2"

	"github.com/drummonds/pdfworker/config"
	"github.com/drummonds/pdfworker/database"
)

// ServerHandler will inject the variables needed into routes
type ServerHandler struct {
	DB           database.Repository
	Echo         *echo.Echo
	ServerConfig config.ServerConfig
	Worker       *Worker
}

// codeInvalidRequest is reported when the body cannot be bound or validated
const codeInvalidRequest = "INVALID_REQUEST"

// errorResponse is the body of every failed operation
type errorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Operation string `json:"operation,omitempty"`
	JobID     string `json:"jobId,omitempty"`
}

// statusForKind maps the error taxonomy onto HTTP status codes
func statusForKind(kind Kind) int {
	switch kind {
	case KindEmptyInput, KindOutOfRange:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidPassword:
		return http.StatusUnauthorized
	case KindAlreadyProtected, KindNotProtected:
		return http.StatusConflict
	case KindInvalidSize:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// RegisterRoutes adds the document operation and job routes under /api
func (serverHandler *ServerHandler) RegisterRoutes() {
	e := serverHandler.Echo
	e.Validator = NewRequestValidator()

	// Document operation routes
	e.POST("/api/merge", serverHandler.MergeDocuments)
	e.POST("/api/merge/pages", serverHandler.MergeSelectedPages)
	e.POST("/api/images/pdf", serverHandler.ImagesToPdf)

	// Protection routes
	e.POST("/api/protection/check", serverHandler.CheckProtection)
	e.POST("/api/protection/sniff", serverHandler.SniffProtection)
	e.POST("/api/protection/lock", serverHandler.LockDocument)
	e.POST("/api/protection/unlock", serverHandler.UnlockDocument)

	// Rendering routes
	e.POST("/api/render/pages", serverHandler.RenderPages)
	e.POST("/api/render/long", serverHandler.RenderLongImage)

	// Job tracking API routes
	e.GET("/api/jobs", serverHandler.GetRecentJobs)
	e.GET("/api/jobs/active", serverHandler.GetActiveJobs)
	e.GET("/api/jobs/:id", serverHandler.GetJob)

	// Admin routes
	e.GET("/api/health", serverHandler.GetHealth)
	e.GET("/api/about", serverHandler.GetAboutInfo)
}

// bindRequest binds and validates the JSON body into req, the returned
// response is non-nil when the request must be rejected
func bindRequest(c echo.Context, op string, req interface{}) *errorResponse {
	if err := c.Bind(req); err != nil {
		return &errorResponse{Code: codeInvalidRequest, Message: "Invalid request body", Operation: op}
	}
	if err := c.Validate(req); err != nil {
		return &errorResponse{Code: codeInvalidRequest, Message: err.Error(), Operation: op}
	}
	return nil
}

// respond writes the job result or the mapped error
func respond(c echo.Context, op string, jobID ulid.ULID, result interface{}, err error) error {
	var zero ulid.ULID
	jobIDStr := ""
	if jobID != zero {
		jobIDStr = jobID.String()
	}
	if err != nil {
		kind := KindOf(err)
		if kind == "" {
			kind = KindIOError
		}
		return c.JSON(statusForKind(kind), errorResponse{
			Code:      string(kind),
			Message:   err.Error(),
			Operation: op,
			JobID:     jobIDStr,
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"jobId":  jobIDStr,
		"result": result,
	})
}

// outputResult is the result of operations that write a single file
type outputResult struct {
	OutputPath string `json:"outputPath"`
}

// MergeDocuments concatenates every page of every file, in order
// @Summary Merge PDF files
// @Description Concatenate every page of every file, in file order then page order
// @Tags Documents
// @Accept json
// @Produce json
// @Param request body MergeRequest true "Request body"
// @Success 200 {object} map[string]interface{} "Merged document path"
// @Failure 400 {object} errorResponse "Empty file list or invalid request"
// @Failure 404 {object} errorResponse "A source file does not exist"
// @Failure 500 {object} errorResponse "Write or read failure"
// @Router /merge [post]
func (serverHandler *ServerHandler) MergeDocuments(c echo.Context) error {
	const op = "mergeAll"
	var req MergeRequest
	if rejected := bindRequest(c, op, &req); rejected != nil {
		return c.JSON(http.StatusBadRequest, rejected)
	}
	output := serverHandler.resolveOutput(req.OutputPath)

	message := fmt.Sprintf("Merging %d files", len(req.FilePaths))
	jobID, result, err := serverHandler.runJobWithTracking(database.JobTypeMerge, op, message, func(ProgressFunc) (interface{}, error) {
		path, err := serverHandler.Worker.MergeAll(req.FilePaths, output)
		if err != nil {
			return nil, err
		}
		return outputResult{OutputPath: path}, nil
	})
	return respond(c, op, jobID, result, err)
}

// MergeSelectedPages builds a document from pages of one file in the requested order
// @Summary Merge selected pages
// @Description Build a document from zero-based pages of one file, in the requested order, repeats allowed
// @Tags Documents
// @Accept json
// @Produce json
// @Param request body MergePagesRequest true "Request body"
// @Success 200 {object} map[string]interface{} "Output document path"
// @Failure 400 {object} errorResponse "Empty or out of range selection"
// @Failure 404 {object} errorResponse "Input file does not exist"
// @Failure 500 {object} errorResponse "Write or read failure"
// @Router /merge/pages [post]
func (serverHandler *ServerHandler) MergeSelectedPages(c echo.Context) error {
	const op = "mergeSelectedPages"
	var req MergePagesRequest
	if rejected := bindRequest(c, op, &req); rejected != nil {
		return c.JSON(http.StatusBadRequest, rejected)
	}
	output := serverHandler.resolveOutput(req.OutputPath)

	message := fmt.Sprintf("Selecting %d pages", len(req.Pages))
	jobID, result, err := serverHandler.runJobWithTracking(database.JobTypeMergePages, op, message, func(progress ProgressFunc) (interface{}, error) {
		path, err := serverHandler.Worker.MergeSelectedPages(req.InputPath, output, req.Pages, progress)
		if err != nil {
			return nil, err
		}
		return outputResult{OutputPath: path}, nil
	})
	return respond(c, op, jobID, result, err)
}

// ImagesToPdf converts images into a PDF with one page per image
// @Summary Convert images to PDF
// @Description One page per image, resized by the rescale policy; undecodable images are skipped
// @Tags Documents
// @Accept json
// @Produce json
// @Param request body ImagesToPdfRequest true "Request body"
// @Success 200 {object} map[string]interface{} "Output document path"
// @Failure 400 {object} errorResponse "Empty image list or nothing decodable"
// @Failure 404 {object} errorResponse "An image does not exist"
// @Failure 500 {object} errorResponse "Write failure"
// @Router /images/pdf [post]
func (serverHandler *ServerHandler) ImagesToPdf(c echo.Context) error {
	const op = "imagesToPdf"
	var req ImagesToPdfRequest
	if rejected := bindRequest(c, op, &req); rejected != nil {
		return c.JSON(http.StatusBadRequest, rejected)
	}
	output := serverHandler.resolveOutput(req.OutputPath)

	message := fmt.Sprintf("Converting %d images", len(req.ImagePaths))
	jobID, result, err := serverHandler.runJobWithTracking(database.JobTypeImagesToPdf, op, message, func(ProgressFunc) (interface{}, error) {
		path, err := serverHandler.Worker.ImagesToPdf(req.ImagePaths, output, req.Config.ToConfig())
		if err != nil {
			return nil, err
		}
		return outputResult{OutputPath: path}, nil
	})
	return respond(c, op, jobID, result, err)
}

// protectionResult reports the protection state of a file
type protectionResult struct {
	FilePath  string `json:"filePath"`
	Protected bool   `json:"protected"`
}

// CheckProtection reports whether a document needs a password to open
// @Summary Check protection
// @Description Open the document without a password and report whether it is protected
// @Tags Protection
// @Accept json
// @Produce json
// @Param request body ProtectionRequest true "Request body"
// @Success 200 {object} map[string]interface{} "Protection state"
// @Failure 400 {object} errorResponse "Invalid request"
// @Failure 404 {object} errorResponse "File does not exist"
// @Failure 500 {object} errorResponse "Unreadable document"
// @Router /protection/check [post]
func (serverHandler *ServerHandler) CheckProtection(c echo.Context) error {
	const op = "isProtected"
	var req ProtectionRequest
	if rejected := bindRequest(c, op, &req); rejected != nil {
		return c.JSON(http.StatusBadRequest, rejected)
	}

	jobID, result, err := serverHandler.runJobWithTracking(database.JobTypeProtectionCheck, op, "Checking protection", func(ProgressFunc) (interface{}, error) {
		protected, err := serverHandler.Worker.IsProtected(req.FilePath)
		if err != nil {
			return nil, err
		}
		return protectionResult{FilePath: req.FilePath, Protected: protected}, nil
	})
	return respond(c, op, jobID, result, err)
}

// SniffProtection guesses the protection state from the file trailer only
// @Summary Sniff encryption
// @Description Guess encryption from the last trailer dictionary without parsing the document
// @Tags Protection
// @Accept json
// @Produce json
// @Param request body ProtectionRequest true "Request body"
// @Success 200 {object} map[string]interface{} "Protection guess"
// @Failure 400 {object} errorResponse "Invalid request"
// @Failure 404 {object} errorResponse "File does not exist"
// @Failure 500 {object} errorResponse "Empty or unreadable file"
// @Router /protection/sniff [post]
func (serverHandler *ServerHandler) SniffProtection(c echo.Context) error {
	const op = "looksEncrypted"
	var req ProtectionRequest
	if rejected := bindRequest(c, op, &req); rejected != nil {
		return c.JSON(http.StatusBadRequest, rejected)
	}

	jobID, result, err := serverHandler.runJobWithTracking(database.JobTypeSniff, op, "Inspecting trailer", func(ProgressFunc) (interface{}, error) {
		encrypted, err := LooksEncrypted(req.FilePath)
		if err != nil {
			return nil, err
		}
		return protectionResult{FilePath: req.FilePath, Protected: encrypted}, nil
	})
	return respond(c, op, jobID, result, err)
}

// LockDocument encrypts a document in place
// @Summary Lock a document
// @Description Encrypt in place with AES 128 and full permissions, the owner password defaults to the user password
// @Tags Protection
// @Accept json
// @Produce json
// @Param request body ProtectionRequest true "Request body"
// @Success 200 {object} map[string]interface{} "Document locked"
// @Failure 400 {object} errorResponse "No password given"
// @Failure 404 {object} errorResponse "File does not exist"
// @Failure 409 {object} errorResponse "Already protected"
// @Failure 500 {object} errorResponse "Write failure"
// @Router /protection/lock [post]
func (serverHandler *ServerHandler) LockDocument(c echo.Context) error {
	const op = "lock"
	var req ProtectionRequest
	if rejected := bindRequest(c, op, &req); rejected != nil {
		return c.JSON(http.StatusBadRequest, rejected)
	}

	jobID, result, err := serverHandler.runJobWithTracking(database.JobTypeLock, op, "Locking document", func(ProgressFunc) (interface{}, error) {
		if err := serverHandler.Worker.Lock(req.FilePath, req.UserPassword, req.OwnerPassword); err != nil {
			return nil, err
		}
		return protectionResult{FilePath: req.FilePath, Protected: true}, nil
	})
	return respond(c, op, jobID, result, err)
}

// UnlockDocument removes all security from a document in place
// @Summary Unlock a document
// @Description Remove all security in place, a wrong password leaves the file untouched
// @Tags Protection
// @Accept json
// @Produce json
// @Param request body ProtectionRequest true "Request body"
// @Success 200 {object} map[string]interface{} "Document unlocked"
// @Failure 401 {object} errorResponse "Invalid password"
// @Failure 404 {object} errorResponse "File does not exist"
// @Failure 409 {object} errorResponse "Not protected"
// @Failure 500 {object} errorResponse "Write failure"
// @Router /protection/unlock [post]
func (serverHandler *ServerHandler) UnlockDocument(c echo.Context) error {
	const op = "unlock"
	var req ProtectionRequest
	if rejected := bindRequest(c, op, &req); rejected != nil {
		return c.JSON(http.StatusBadRequest, rejected)
	}
	password := req.Password
	if password == "" {
		password = req.UserPassword
	}

	jobID, result, err := serverHandler.runJobWithTracking(database.JobTypeUnlock, op, "Unlocking document", func(ProgressFunc) (interface{}, error) {
		unlocked, err := serverHandler.Worker.Unlock(req.FilePath, password)
		if err != nil {
			return nil, err
		}
		return protectionResult{FilePath: req.FilePath, Protected: !unlocked}, nil
	})
	return respond(c, op, jobID, result, err)
}

// RenderPages writes one image per selected page
// @Summary Render pages to images
// @Description Write one PNG or JPEG per selected page into the output directory
// @Tags Rendering
// @Accept json
// @Produce json
// @Param request body RenderRequest true "Request body"
// @Success 200 {object} map[string]interface{} "Output image paths"
// @Failure 400 {object} errorResponse "Empty or out of range selection"
// @Failure 404 {object} errorResponse "Input file does not exist"
// @Failure 500 {object} errorResponse "Render or write failure"
// @Router /render/pages [post]
func (serverHandler *ServerHandler) RenderPages(c echo.Context) error {
	const op = "pagesToImages"
	var req RenderRequest
	if rejected := bindRequest(c, op, &req); rejected != nil {
		return c.JSON(http.StatusBadRequest, rejected)
	}
	outputDir := serverHandler.resolveOutput(req.OutputPath)
	rasterConfig := req.ToConfig()

	jobID, result, err := serverHandler.runJobWithTracking(database.JobTypeRenderPages, op, "Rendering pages", func(progress ProgressFunc) (interface{}, error) {
		rasterConfig.Progress = progress
		paths, err := serverHandler.Worker.PagesToImages(req.InputPath, outputDir, &rasterConfig)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"outputPaths": paths}, nil
	})
	return respond(c, op, jobID, result, err)
}

// RenderLongImage stacks the selected pages into one tall image
// @Summary Render a long image
// @Description Stack the selected pages top to bottom into one image as wide as the widest page
// @Tags Rendering
// @Accept json
// @Produce json
// @Param request body RenderRequest true "Request body"
// @Success 200 {object} map[string]interface{} "Output image path"
// @Failure 400 {object} errorResponse "Missing output path or bad selection"
// @Failure 404 {object} errorResponse "Input file does not exist"
// @Failure 422 {object} errorResponse "Combined image too large"
// @Failure 500 {object} errorResponse "Render or write failure"
// @Router /render/long [post]
func (serverHandler *ServerHandler) RenderLongImage(c echo.Context) error {
	const op = "pagesToLongImage"
	var req RenderRequest
	if rejected := bindRequest(c, op, &req); rejected != nil {
		return c.JSON(http.StatusBadRequest, rejected)
	}
	if strings.TrimSpace(req.OutputPath) == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Code: codeInvalidRequest, Message: "outputPath is required", Operation: op})
	}
	output := serverHandler.resolveOutput(req.OutputPath)
	rasterConfig := req.ToConfig()

	jobID, result, err := serverHandler.runJobWithTracking(database.JobTypeRenderLong, op, "Rendering long image", func(progress ProgressFunc) (interface{}, error) {
		rasterConfig.Progress = progress
		path, err := serverHandler.Worker.PagesToLongImage(req.InputPath, output, &rasterConfig)
		if err != nil {
			return nil, err
		}
		return outputResult{OutputPath: path}, nil
	})
	return respond(c, op, jobID, result, err)
}

// GetHealth reports whether the job database answers
// @Summary Health check
// @Description Report whether the job database is reachable
// @Tags Admin
// @Produce json
// @Success 200 {object} map[string]interface{} "Healthy"
// @Failure 503 {object} map[string]interface{} "Database unreachable"
// @Router /health [get]
func (serverHandler *ServerHandler) GetHealth(c echo.Context) error {
	if err := serverHandler.DB.Ping(); err != nil {
		Logger.Error("Health check failed", "error", err)
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unavailable",
			"error":  "database unreachable",
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "ok",
	})
}

// GetAboutInfo returns information about the application configuration
// @Summary Get application information
// @Description Retrieve the database, output directory and worker configuration
// @Tags Admin
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{} "Application information"
// @Router /about [get]
func (serverHandler *ServerHandler) GetAboutInfo(c echo.Context) error {
	aboutInfo := map[string]interface{}{
		"databaseType":  serverHandler.ServerConfig.DatabaseType,
		"databaseHost":  serverHandler.ServerConfig.DatabaseHost,
		"databaseName":  serverHandler.ServerConfig.DatabaseDbname,
		"outputPath":    serverHandler.ServerConfig.OutputPath,
		"renderer":      serverHandler.ServerConfig.Renderer,
		"renderScale":   serverHandler.Worker.RenderScale,
		"imageDefaults": serverHandler.Worker.ImageDefaults,
	}

	return c.JSON(http.StatusOK, aboutInfo)
}
