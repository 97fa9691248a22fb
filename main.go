package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	config "github.com/drummonds/pdfworker/config"
	database "github.com/drummonds/pdfworker/database"
	engine "github.com/drummonds/pdfworker/engine"
	"github.com/drummonds/pdfworker/engine/pdfdoc"
	"github.com/drummonds/pdfworker/engine/pdfrenderer"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// injectGlobals injects all of our globals into their packages
func injectGlobals(logger *slog.Logger) {
	Logger = logger
	database.Logger = Logger
	config.Logger = Logger
	engine.Logger = Logger
	pdfdoc.Logger = Logger
	pdfrenderer.Logger = Logger
}

// @title pdfworker API
// @version 1.0
// @description PDF assembly, protection and rasterization service
// @description Every operation is recorded as a job that can be queried afterwards

// @host localhost:8000
// @BasePath /api
// @schemes http

// @tag.name Documents
// @tag.description Merge and image to PDF operations

// @tag.name Protection
// @tag.description Password protection checks, lock and unlock

// @tag.name Rendering
// @tag.description Page rasterization

// @tag.name Jobs
// @tag.description Job tracking

// @tag.name Admin
// @tag.description Health and configuration

// newServer wires the echo instance, error handler and routes around a handler
func newServer(serverHandler *engine.ServerHandler) *echo.Echo {
	e := serverHandler.Echo

	// JSON 404 for API consumers
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
		}

		if code == http.StatusNotFound && strings.HasPrefix(c.Request().URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, map[string]string{
				"error":   "Not Found",
				"message": "The requested API endpoint does not exist",
				"path":    c.Request().URL.Path,
			})
			return
		}

		// For other errors, use default handler
		e.DefaultHTTPErrorHandler(err, c)
	}

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.DefaultCORSConfig))

	//Start the API routes - all under /api/* prefix for clarity
	serverHandler.RegisterRoutes()
	return e
}

func main() {
	serverConfig, logger := config.SetupServer()
	injectGlobals(logger) //inject the logger into all of the packages

	// Setup database (postgres, cockroachdb, sqlite)
	Logger.Info("Setting up database", "type", serverConfig.DatabaseType)
	db, err := database.NewRepository(serverConfig)
	if err != nil {
		Logger.Error("Unable to set up database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	Logger.Info("Database setup complete")

	renderer, err := pdfrenderer.NewRenderer(serverConfig.Renderer)
	if err != nil {
		// merge and protection routes still work without a renderer
		Logger.Error("Unable to initialise renderer, rendering routes disabled", "renderer", serverConfig.Renderer, "error", err)
		renderer = nil
	}
	worker := engine.NewWorkerFromConfig(serverConfig.WorkerConfig, renderer)
	defer worker.Close()

	e := echo.New()
	Logger.Info("Echo created")

	serverHandler := engine.ServerHandler{DB: db, Echo: e, ServerConfig: serverConfig, Worker: worker} //injecting the database into the handler for routes
	Logger.Info("About to initialize schedules")
	scheduler := serverHandler.InitializeSchedules(db) //initialize all the cron jobs
	defer scheduler.Stop()
	Logger.Info("Schedules initialized, about to run startup checks")
	if err := serverHandler.StartupChecks(); err != nil { //Run all the sanity checks
		Logger.Error("Startup checks failed", "error", err)
		os.Exit(1)
	}
	Logger.Info("Startup checks complete")

	newServer(&serverHandler)

	if serverConfig.ListenAddrIP == "" {
		Logger.Info("No Ip Addr set, binding on ALL addresses")
	}

	Logger.Info("Starting HTTP server")

	// Try to start server with automatic port increment if port is in use
	maxRetries := 5
	startPort := serverConfig.ListenAddrPort
	var startErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		addr := fmt.Sprintf("%s:%s", serverConfig.ListenAddrIP, serverConfig.ListenAddrPort)
		Logger.Info("Attempting to start server", "address", addr, "attempt", attempt+1)

		startErr = e.Start(addr)

		// Check if error is "address already in use"
		if startErr != nil && isAddressInUse(startErr) {
			Logger.Warn("Port already in use, trying next port",
				"port", serverConfig.ListenAddrPort,
				"attempt", attempt+1,
				"max_attempts", maxRetries)

			// Increment port for next attempt
			portNum := 0
			fmt.Sscanf(serverConfig.ListenAddrPort, "%d", &portNum)
			portNum++
			serverConfig.ListenAddrPort = fmt.Sprintf("%d", portNum)

			if attempt == maxRetries-1 {
				Logger.Error("Failed to find available port after maximum retries",
					"start_port", startPort,
					"end_port", serverConfig.ListenAddrPort,
					"max_retries", maxRetries)
				os.Exit(1)
			}
		} else if startErr != nil && startErr != http.ErrServerClosed {
			// Some other error occurred
			Logger.Error("Failed to start server", "error", startErr)
			os.Exit(1)
		} else {
			break
		}
	}
}

// isAddressInUse checks if the error is due to address already in use
func isAddressInUse(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "address already in use")
}
