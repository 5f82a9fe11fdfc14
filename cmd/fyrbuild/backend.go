package main

import (
	"io"

	"github.com/pkg/errors"
	"github.com/vs-ude/fyrbuild/internal/backends/backend"
	"github.com/vs-ude/fyrbuild/internal/backends/c99"
	"github.com/vs-ude/fyrbuild/internal/backends/objfile"
	"github.com/vs-ude/fyrbuild/internal/backends/vulkan"
	"github.com/vs-ude/fyrbuild/internal/config"
)

type configPrinter interface {
	PrintCurrentConfig(w io.Writer)
}

func setupBackend(cfg *config.Config) (backend.Backend, error) {
	switch cfg.Options.Backend {
	case "c99":
		b, err := c99.NewBackend(cfg)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "spirv":
		return vulkan.NewBackend(), nil
	case "obj", "":
		return objfile.NewBackend(), nil
	}
	return nil, errors.Errorf("unknown backend %q", cfg.Options.Backend)
}
