// Progress and diagnostic output.
// Conversions run concurrently, so every line goes through logf, which holds
// a mutex to keep lines from interleaving.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// logOut is the writer for informational/progress output.
// In silent mode it is set to io.Discard so only errors reach the user.
var logOut io.Writer = os.Stderr

// logMu serialises writes to logOut.
var logMu sync.Mutex

// logf writes a formatted line to logOut. A trailing newline is added when
// the format does not end with one.
func logf(format string, args ...any) {
	logMu.Lock()
	defer logMu.Unlock()
	if !strings.HasSuffix(format, "\n") {
		format += "\n"
	}
	fmt.Fprintf(logOut, format, args...)
}

// displayPath returns path relative to root for log lines, or path itself
// when it is not under root.
func displayPath(root, path string) string {
	if root == "" {
		return path
	}
	rel := strings.TrimPrefix(path, strings.TrimSuffix(root, string(os.PathSeparator))+string(os.PathSeparator))
	if rel == "" {
		return path
	}
	return rel
}
