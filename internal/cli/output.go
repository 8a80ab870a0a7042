package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/d60-Lab/postsync/internal/store"
	"github.com/d60-Lab/postsync/internal/syncclient"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // a sync operation failed
	ExitCommandError = 2 // bad flags, arguments or configuration
)

// Error codes printed for failures that are not sync errors.
const (
	CodeUsage  = "usage"
	CodeConfig = "config"
)

// DisplayTimeLayout renders created_at the way the browser client did
// (ja-JP locale: year/month/day without zero padding).
const DisplayTimeLayout = "2006/1/2 15:04:05"

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error

	// set once the error was already written by an OutputFormatter
	reported bool
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		if e.Message == "" {
			return e.Err.Error()
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError creates an ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps err with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

func reportedError(code int, err error) *ExitError {
	return &ExitError{Code: code, Err: err, reported: true}
}

// GetExitCode extracts the exit code from an error. Errors that are not an
// ExitError come from cobra's own flag and argument checks.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

// OutputFormatter writes the collection and errors as text, JSON or YAML.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics and text-mode errors (defaults to Writer)
	Verbose   bool
	Location  *time.Location

	// shell completions render from several goroutines
	mu sync.Mutex
}

// CLIResponse is the envelope for json and yaml output.
type CLIResponse struct {
	Status string    `json:"status" yaml:"status"`
	Data   any       `json:"data,omitempty" yaml:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty" yaml:"error,omitempty"`
}

// CLIError is the error structure for structured output.
type CLIError struct {
	Code    string `json:"code" yaml:"code"`
	Message string `json:"message" yaml:"message"`
}

type postView struct {
	ID        store.ID `json:"id" yaml:"id"`
	Content   string   `json:"content" yaml:"content"`
	CreatedAt string   `json:"created_at" yaml:"created_at"`
}

// Posts renders the collection in order.
func (f *OutputFormatter) Posts(posts []store.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Format == "text" || f.Format == "" {
		return f.postsText(posts)
	}
	views := make([]postView, 0, len(posts))
	for _, p := range posts {
		views = append(views, postView{
			ID:        p.ID,
			Content:   p.Content,
			CreatedAt: f.machineTime(p.CreatedAt),
		})
	}
	return f.encode(CLIResponse{Status: "ok", Data: views})
}

func (f *OutputFormatter) postsText(posts []store.Post) error {
	if len(posts) == 0 {
		_, err := fmt.Fprintln(f.Writer, "No posts.")
		return err
	}
	tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCONTENT\tCREATED AT")
	for _, p := range posts {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ID, singleLine(p.Content), f.displayTime(p.CreatedAt))
	}
	return tw.Flush()
}

// Error writes a failure with the given code.
func (f *OutputFormatter) Error(code, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Format == "text" || f.Format == "" {
		_, err := fmt.Fprintf(f.errWriter(), "Error [%s]: %s\n", code, message)
		return err
	}
	return f.encode(CLIResponse{
		Status: "error",
		Error:  &CLIError{Code: code, Message: message},
	})
}

// SyncError writes a failed sync operation, coded by its kind.
func (f *OutputFormatter) SyncError(err error) error {
	return f.Error(syncclient.KindOf(err).String(), err.Error())
}

// Line writes a plain line in text mode; structured formats ignore it.
func (f *OutputFormatter) Line(format string, args ...any) {
	if f.Format != "text" && f.Format != "" {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	fmt.Fprintf(f.Writer, format+"\n", args...)
}

// VerboseLog outputs a message only if verbose mode is enabled.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	fmt.Fprintf(f.errWriter(), format+"\n", args...)
}

func (f *OutputFormatter) encode(v any) error {
	switch f.Format {
	case "yaml":
		enc := yaml.NewEncoder(f.Writer)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

func (f *OutputFormatter) errWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

func (f *OutputFormatter) location() *time.Location {
	if f.Location != nil {
		return f.Location
	}
	return time.Local
}

func (f *OutputFormatter) displayTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(f.location()).Format(DisplayTimeLayout)
}

func (f *OutputFormatter) machineTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(f.location()).Format(time.RFC3339)
}

var lineReplacer = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ")

func singleLine(s string) string { return lineReplacer.Replace(s) }
