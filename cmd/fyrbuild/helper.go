package main

import (
	"fmt"
	"io"

	"github.com/vs-ude/fyrbuild/internal/errlog"
)

func printDiagnostics(w io.Writer, log *errlog.ErrorLog) {
	fmt.Fprint(w, log.ToString())
	if log.HasErrors() {
		fmt.Fprintln(w, "ERROR")
	}
}
