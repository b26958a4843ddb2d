package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

var (
	noticeColor = color.New(color.FgYellow).SprintFunc()
	infoColor   = color.New(color.FgCyan).SprintFunc()
	errorColor  = color.New(color.FgRed, color.Bold).SprintFunc()
)

// Notifier prints operator-facing messages such as skipped tags during an
// update. It matches update.Options.Notify.
type Notifier func(format string, args ...any)

// NewNotifier returns a Notifier writing "[!] message" lines to w.
func NewNotifier(w io.Writer) Notifier {
	return func(format string, args ...any) {
		if IsSilent() {
			return
		}
		fmt.Fprintf(w, "%s %s\n", noticeColor("[!]"), strings.TrimRight(fmt.Sprintf(format, args...), "\n"))
	}
}

// Info writes a "[+] message" line.
func Info(w io.Writer, format string, args ...any) {
	if IsSilent() {
		return
	}
	fmt.Fprintf(w, "%s %s\n", infoColor("[+]"), fmt.Sprintf(format, args...))
}

// Errorf writes a "[x] message" line. Errors are printed even in silent
// mode.
func Errorf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", errorColor("[x]"), fmt.Sprintf(format, args...))
}
