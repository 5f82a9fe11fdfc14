package driver

import (
	"io"
	"os"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/vs-ude/fyrbuild/internal/errlog"
	"github.com/vs-ude/fyrbuild/internal/incremental"
	"github.com/vs-ude/fyrbuild/internal/session"
)

// materializer turns the per-module temporaries into the requested outputs.
type materializer struct {
	sess    *session.Session
	results *CodegenResults
}

// copyIfOneUnit copies the temporary of the only module to the requested output.
// With several modules, the numbered temporaries are the output and an explicit
// destination is reported as ignored.
func (m *materializer) copyIfOneUnit(t session.OutputType, keepNumbered bool) {
	outputs := m.sess.Outputs
	if len(m.results.Modules) == 1 {
		module := m.results.Modules[0]
		src := module.Path(t)
		if src == "" {
			return
		}
		dst := outputs.Path(t)
		if err := m.copyTo(t, src, dst); err != nil {
			return
		}
		if !keepNumbered && !m.sess.Options().SaveTemps {
			m.remove(src)
		}
		return
	}
	if outputs.ContainsExplicitName(t) {
		m.sess.Log.AddWarning(errlog.WarningIgnoringEmitPath, t.Extension())
	} else if outputs.SingleOutputFile != nil {
		m.sess.Log.AddWarning(errlog.WarningIgnoringOutput, t.Extension())
	}
}

func (m *materializer) copyTo(t session.OutputType, src string, dst session.OutFileName) error {
	if dst.Stdout {
		if !t.IsTextOutput() && m.sess.StdoutIsTerminal() {
			m.sess.Log.AddError(errlog.ErrorBinaryOutputToTty, t.Shorthand())
			return errlog.ErrAborted
		}
		err := copyToWriter(src, m.sess.Stdout)
		if err != nil {
			m.sess.Log.AddError(errlog.ErrorCopyPath, src, dst.String(), err.Error())
		}
		return err
	}
	if err := incremental.CopyFile(src, dst.Path); err != nil {
		m.sess.Log.AddError(errlog.ErrorCopyPath, src, dst.String(), err.Error())
		return err
	}
	glog.V(3).Infof("Wrote %v", dst.Path)
	return nil
}

func copyToWriter(src string, w io.Writer) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return errors.Wrap(err, "write to stdout")
}

func (m *materializer) remove(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		m.sess.Log.AddError(errlog.ErrorRemoveFile, path, err.Error())
	}
}

// run materializes every requested output and removes the temporaries that are not needed anymore.
// Errors are logged and do not stop other output types.
func (m *materializer) run() {
	outputs := m.sess.Outputs
	opts := m.sess.Options()
	for _, t := range outputs.Types() {
		switch t {
		case session.OutputObject:
			m.copyIfOneUnit(t, true)
		case session.OutputAssembly, session.OutputIR, session.OutputBitcode:
			m.copyIfOneUnit(t, false)
		}
	}
	if opts.SaveTemps {
		return
	}
	several := len(m.results.Modules) > 1
	keepNumberedObjects := outputs.Contains(session.OutputExe) ||
		(outputs.Contains(session.OutputObject) && several)
	keepNumberedBitcode := outputs.Contains(session.OutputBitcode) && several
	for _, module := range m.results.Modules {
		if !keepNumberedObjects {
			m.remove(module.Object)
		}
		if !keepNumberedBitcode {
			m.remove(module.Bytecode)
		}
	}
	if a := m.results.AllocatorModule; a != nil && !outputs.Contains(session.OutputBitcode) {
		m.remove(a.Bytecode)
	}
}
