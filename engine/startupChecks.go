package engine

import (
	"fmt"
	"os"
	"path/filepath"
)

// StartupChecks performs all the checks to make sure everything works
func (serverHandler *ServerHandler) StartupChecks() error {
	if err := outputDirectoryChecks(serverHandler.ServerConfig.OutputPath); err != nil {
		return err
	}
	if err := workerChecks(serverHandler.Worker); err != nil {
		return err
	}
	if err := serverHandler.DB.Ping(); err != nil {
		Logger.Error("Job database is not reachable", "error", err)
		return err
	}
	return nil
}

// workerChecks makes sure both capabilities were wired
func workerChecks(worker *Worker) error {
	if worker == nil {
		return fmt.Errorf("document worker is not configured")
	}
	if worker.Documents == nil {
		return fmt.Errorf("document engine is not configured")
	}
	if worker.Renderer == nil {
		Logger.Warn("Renderer not configured, rendering routes will fail")
		return nil
	}
	Logger.Info("Document worker ready", "renderScale", worker.RenderScale)
	return nil
}

// outputDirectoryChecks ensures the output directory exists and is writable
func outputDirectoryChecks(outputPath string) error {
	if outputPath == "" {
		Logger.Warn("Output path not configured, relative output paths resolve against the working directory")
		return nil
	}

	// Check if directory exists
	outputInfo, err := os.Stat(outputPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Create the directory
			Logger.Info("Creating output directory", "path", outputPath)
			err = os.MkdirAll(outputPath, 0755)
			if err != nil {
				Logger.Error("Failed to create output directory", "path", outputPath, "error", err)
				return err
			}
			Logger.Info("Output directory created successfully", "path", outputPath)
			return probeWritable(outputPath)
		}
		Logger.Error("Error checking output directory", "path", outputPath, "error", err)
		return err
	}

	// Check if it's actually a directory
	if !outputInfo.IsDir() {
		Logger.Error("Output path exists but is not a directory", "path", outputPath)
		return fmt.Errorf("output path is not a directory: %s", outputPath)
	}

	Logger.Info("Output directory exists", "path", outputPath)
	return probeWritable(outputPath)
}

// probeWritable creates and removes a scratch file in dir
func probeWritable(dir string) error {
	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		Logger.Error("Output directory is not writable", "path", dir, "error", err)
		return fmt.Errorf("output directory is not writable: %w", err)
	}
	name := probe.Name()
	probe.Close()
	return os.Remove(filepath.Clean(name))
}
