package main

import (
	"embed"
	"io/fs"
	"log/slog"
	"os"

	"hpicli/internal/app"
)

// Embedded dashboard files
//
//go:embed all:frontend/*
var frontendFiles embed.FS

func main() {
	// Serve the embedded dashboard; fall back to API-only if the embed is
	// broken (e.g. frontend not built)
	frontendFS, err := fs.Sub(frontendFiles, "frontend")
	if err != nil {
		slog.Info("Frontend embedding failed, serving API only", slog.String("error", err.Error()))
		frontendFS = nil
	}

	application, err := app.NewApplication(frontendFS)
	if err != nil {
		slog.Error("Failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		slog.Error("Application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
