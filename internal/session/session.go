package session

import (
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/vs-ude/fyrbuild/internal/config"
	"github.com/vs-ude/fyrbuild/internal/errlog"
	"github.com/vs-ude/fyrbuild/internal/metrics"
	"golang.org/x/term"
)

// Session is the state shared by every stage of one compilation.
// Only the error log and the metrics are mutated after creation.
type Session struct {
	// ID identifies the session in logs and names its scratch files.
	ID      string
	Config  *config.Config
	Log     *errlog.ErrorLog
	Outputs *OutputFilenames
	Metrics *metrics.Codegen
	// Stdout receives outputs whose path is `-`.
	Stdout io.Writer
	// StdoutIsTerminal reports whether Stdout is an interactive terminal.
	StdoutIsTerminal func() bool
}

// New creates a session writing to the process's standard output.
func New(cfg *config.Config, stem string) (*Session, error) {
	outputs, err := NewOutputFilenames(cfg.Options.OutDir, stem, cfg.Options.OutputFile, cfg.Options.Emit)
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:      uuid.New().String(),
		Config:  cfg,
		Log:     errlog.NewErrorLog(),
		Outputs: outputs,
		Metrics: metrics.New(),
		Stdout:  os.Stdout,
		StdoutIsTerminal: func() bool {
			return term.IsTerminal(int(os.Stdout.Fd()))
		},
	}, nil
}

// Options ...
func (s *Session) Options() *config.Options {
	return &s.Config.Options
}

// IncrementalDir returns the incremental cache directory, empty if there is none.
func (s *Session) IncrementalDir() string {
	return s.Config.IncrementalDir()
}
