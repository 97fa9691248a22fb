package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// ServerConfig contains all of the server settings
type ServerConfig struct {
	ListenAddrIP       string
	ListenAddrPort     string
	DatabaseType       string
	DatabaseHost       string
	DatabasePort       string
	DatabaseUser       string
	DatabasePassword   string `json:"-"`
	DatabaseDbname     string
	DatabaseSslmode    string
	OutputPath         string // absolute path where server side outputs land
	JobRetentionHours  int
	JobCleanupInterval int // minutes
	WorkerConfig
}

// WorkerConfig holds the settings of the document worker, shared by the server and the CLI
type WorkerConfig struct {
	Renderer        string // pdfium or fitz
	RenderScale     float64
	ImageMaxWidth   int
	ImageMaxHeight  int
	ImageKeepAspect bool
	PdfcpuConfigDir string
	// LongImageMaxPixels bounds the stacked render canvas
	LongImageMaxPixels int
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolVal
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intVal
}

// getEnvFloat gets a float environment variable with a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return floatVal
}

// loadWorkerConfig reads the worker settings from the environment
func loadWorkerConfig() WorkerConfig {
	workerConfig := WorkerConfig{
		Renderer:           strings.ToLower(getEnv("RENDERER", "pdfium")),
		RenderScale:        getEnvFloat("RENDER_SCALE", 3),
		ImageMaxWidth:      getEnvInt("IMAGE_MAX_WIDTH", 595*2),
		ImageMaxHeight:     getEnvInt("IMAGE_MAX_HEIGHT", 842*2),
		ImageKeepAspect:    getEnvBool("IMAGE_KEEP_ASPECT", true),
		PdfcpuConfigDir:    getEnv("PDFCPU_CONFIG_DIR", "disable"),
		LongImageMaxPixels: getEnvInt("LONG_IMAGE_MAX_PIXELS", 1<<28),
	}
	if workerConfig.RenderScale <= 0 {
		workerConfig.RenderScale = 3
	}
	return workerConfig
}

// SetupServer loads configuration and returns ServerConfig and Logger
func SetupServer() (ServerConfig, *slog.Logger) {
	serverConfigLive := ServerConfig{}

	// Load .env file (silently ignore if doesn't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("config.env")

	logger := setupLogging()
	Logger = logger

	// Server configuration
	serverConfigLive.ListenAddrPort = getEnv("SERVER_PORT", "8000")
	serverConfigLive.ListenAddrIP = getEnv("SERVER_ADDR", "")

	// Database configuration, only jobs are stored so sqlite is the default
	serverConfigLive.DatabaseType = getEnv("DATABASE_TYPE", "sqlite")
	serverConfigLive.DatabaseHost = getEnv("DATABASE_HOST", "localhost")
	serverConfigLive.DatabasePort = getEnv("DATABASE_PORT", "5432")
	serverConfigLive.DatabaseUser = getEnv("DATABASE_USER", "pdfworker")
	serverConfigLive.DatabasePassword = getEnv("DATABASE_PASSWORD", "")
	serverConfigLive.DatabaseDbname = getEnv("DATABASE_NAME", "databases/pdfworker.sqlite")
	serverConfigLive.DatabaseSslmode = getEnv("DATABASE_SSLMODE", "disable")

	logger.Info("Database configuration loaded", "type", serverConfigLive.DatabaseType)

	outputDir := filepath.ToSlash(getEnv("OUTPUT_PATH", "output"))
	outputDirAbs, err := filepath.Abs(outputDir)
	if err != nil {
		logger.Error("Failed creating absolute path for output directory", "error", err)
		outputDirAbs = outputDir
	}
	serverConfigLive.OutputPath = outputDirAbs

	serverConfigLive.JobRetentionHours = getEnvInt("JOB_RETENTION_HOURS", 24)
	serverConfigLive.JobCleanupInterval = getEnvInt("JOB_CLEANUP_INTERVAL", 60)
	serverConfigLive.WorkerConfig = loadWorkerConfig()

	fmt.Println("\n========================================")
	fmt.Println("   pdfworker - PDF Processing Service")
	fmt.Println("========================================")
	fmt.Printf("Server will start on: %s:%s\n", serverConfigLive.ListenAddrIP, serverConfigLive.ListenAddrPort)
	if serverConfigLive.ListenAddrIP == "" {
		fmt.Println("(Listening on all network interfaces)")
	}
	fmt.Printf("Detailed logs: %s\n", getEnv("LOG_FILE", "pdfworker.log"))
	fmt.Println("Initializing...")

	logger.Info("Worker configuration loaded",
		"renderer", serverConfigLive.Renderer,
		"renderScale", serverConfigLive.RenderScale,
		"imageMaxWidth", serverConfigLive.ImageMaxWidth,
		"imageMaxHeight", serverConfigLive.ImageMaxHeight,
		"outputPath", serverConfigLive.OutputPath)

	return serverConfigLive, logger
}

// SetupWorker loads configuration for a single command line run. Logs go to
// stderr unless LOG_OUTPUT says otherwise so stdout stays machine readable.
func SetupWorker() (WorkerConfig, *slog.Logger) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("config.env")

	if os.Getenv("LOG_OUTPUT") == "" {
		os.Setenv("LOG_OUTPUT", "stderr")
	}
	if os.Getenv("LOG_LEVEL") == "" {
		os.Setenv("LOG_LEVEL", "warn")
	}
	logger := setupLogging()
	Logger = logger

	workerConfig := loadWorkerConfig()
	logger.Debug("Worker configuration loaded", "renderer", workerConfig.Renderer, "renderScale", workerConfig.RenderScale)
	return workerConfig, logger
}

// parseLevel maps LOG_LEVEL onto a slog level, unknown values mean debug
func parseLevel(logLevel string) slog.Level {
	switch strings.ToLower(logLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

// setupLogging configures the application logger
func setupLogging() *slog.Logger {
	level := parseLevel(getEnv("LOG_LEVEL", "debug"))
	handlerOptions := &slog.HandlerOptions{Level: level}

	logOutput := getEnv("LOG_OUTPUT", "file")
	var logWriter io.Writer

	switch logOutput {
	case "stdout":
		logWriter = os.Stdout
	case "stderr":
		logWriter = os.Stderr
	default:
		logPath, err := filepath.Abs(filepath.ToSlash(getEnv("LOG_FILE", "pdfworker.log")))
		if err != nil {
			fmt.Printf("Error creating log file path: %v\n", err)
			logWriter = os.Stdout
		} else {
			logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err != nil {
				fmt.Printf("Failed to open log file: %v\n", err)
				logWriter = os.Stdout
			} else {
				logWriter = logFile
				fmt.Println("Logging to file: ", logPath)
			}
		}
	}

	handler := slog.NewTextHandler(logWriter, handlerOptions)
	return slog.New(handler)
}
