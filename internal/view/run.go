// Package view prints a transcript record by record for humans.
package view

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"agenthooks/internal/eventlog"
	"agenthooks/internal/format"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

// Options defines the configurable parameters for rendering a view.
type Options struct {
	Path         string
	Format       string
	Wrap         int
	MaxEvents    int
	KindArg      string
	ToolsOnly    bool
	ForceColor   bool
	ForceNoColor bool
	Pager        bool
	RawFile      bool
	Out          io.Writer
	OutFile      *os.File
}

// Run renders a transcript according to the provided options.
func Run(opts Options) error {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	if opts.RawFile {
		return copyFile(opts.Out, opts.Path)
	}

	kinds, err := parseKindArg(opts.KindArg)
	if err != nil {
		return err
	}

	formatMode := strings.ToLower(opts.Format)
	if formatMode == "" {
		formatMode = "text"
	}
	if formatMode != "text" && formatMode != "raw" {
		return fmt.Errorf("unsupported format: %s", opts.Format)
	}

	records, err := collect(opts, kinds)
	if err != nil {
		return err
	}

	if formatMode == "raw" {
		lines := make([]string, 0, len(records))
		for _, rec := range records {
			lines = append(lines, rec.Raw)
		}
		return writeLines(opts.Out, lines)
	}

	useColor := resolveColorChoice(opts)
	width := opts.Wrap
	if opts.Pager {
		width = determineWidth(opts.OutFile, opts.Wrap)
	}

	var sb strings.Builder
	for idx, rec := range records {
		if idx > 0 {
			sb.WriteString("\n")
		}
		printRecord(&sb, rec, idx+1, width, useColor)
	}
	if sb.Len() == 0 {
		return nil
	}

	if opts.Pager && opts.OutFile != nil && isatty.IsTerminal(opts.OutFile.Fd()) {
		return pipeThroughPager(strings.Split(strings.TrimSuffix(sb.String(), "\n"), "\n"), useColor)
	}
	_, err = io.WriteString(opts.Out, sb.String())
	return err
}

// collect reads the matching records, keeping only the last MaxEvents when set.
func collect(opts Options, kinds map[eventlog.Kind]struct{}) ([]eventlog.Record, error) {
	ring := newRecordRing(opts.MaxEvents)
	var all []eventlog.Record
	err := eventlog.Iterate(opts.Path, func(rec eventlog.Record) error {
		if !recordMatches(rec, kinds, opts.ToolsOnly) {
			return nil
		}
		if opts.MaxEvents > 0 {
			ring.push(rec)
			return nil
		}
		all = append(all, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if opts.MaxEvents > 0 {
		return ring.slice(), nil
	}
	return all, nil
}

// parseKindArg turns a comma separated list of record kinds into a set. An
// empty argument or "all" means no filter.
func parseKindArg(arg string) (map[eventlog.Kind]struct{}, error) {
	values := parseCSV(arg)
	if len(values) == 0 || (len(values) == 1 && values[0] == "all") {
		return nil, nil
	}

	set := make(map[eventlog.Kind]struct{}, len(values))
	for _, token := range values {
		kind := eventlog.Kind(token)
		if !kind.Known() {
			return nil, fmt.Errorf("unknown record kind %q", token)
		}
		set[kind] = struct{}{}
	}
	return set, nil
}

func parseCSV(arg string) []string {
	if strings.TrimSpace(arg) == "" {
		return nil
	}
	parts := strings.Split(arg, ",")
	output := make([]string, 0, len(parts))
	for _, part := range parts {
		token := strings.TrimSpace(strings.ToLower(part))
		if token != "" {
			output = append(output, token)
		}
	}
	return output
}

func recordMatches(rec eventlog.Record, kinds map[eventlog.Kind]struct{}, toolsOnly bool) bool {
	if kinds != nil {
		if _, ok := kinds[rec.Kind]; !ok {
			return false
		}
	}
	if toolsOnly && len(rec.ToolUses) == 0 && len(rec.ToolResults) == 0 {
		return false
	}
	return true
}

type recordRing struct {
	data   []eventlog.Record
	start  int
	length int
}

func newRecordRing(capacity int) *recordRing {
	if capacity <= 0 {
		return &recordRing{}
	}
	return &recordRing{data: make([]eventlog.Record, capacity)}
}

func (r *recordRing) push(rec eventlog.Record) {
	if len(r.data) == 0 {
		return
	}
	idx := (r.start + r.length) % len(r.data)
	r.data[idx] = rec
	if r.length < len(r.data) {
		r.length++
		return
	}
	r.start = (r.start + 1) % len(r.data)
}

func (r *recordRing) slice() []eventlog.Record {
	if r.length == 0 {
		return nil
	}
	result := make([]eventlog.Record, r.length)
	for i := 0; i < r.length; i++ {
		result[i] = r.data[(r.start+i)%len(r.data)]
	}
	return result
}

func determineWidth(out *os.File, wrap int) int {
	if wrap > 0 {
		return wrap
	}
	if out != nil {
		if w, _, err := term.GetSize(int(out.Fd())); err == nil && w > 0 {
			return w
		}
	}
	if colsStr := os.Getenv("COLUMNS"); colsStr != "" {
		if v, err := strconv.Atoi(colsStr); err == nil && v > 0 {
			return v
		}
	}
	return 80
}

func pipeThroughPager(lines []string, colorEnabled bool) error {
	text := strings.Join(lines, "\n")
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}

	pagerCmd := os.Getenv("PAGER")
	var cmd *exec.Cmd
	if pagerCmd == "" {
		args := []string{"less"}
		if colorEnabled {
			args = append(args, "-R")
		}
		cmd = exec.Command(args[0], args[1:]...) // #nosec G204
	} else {
		cmd = exec.Command("sh", "-c", pagerCmd) // #nosec G204
	}

	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create pager pipe: %w", err)
	}
	go func() {
		defer stdin.Close()
		io.WriteString(stdin, text) //nolint:errcheck
	}()

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run pager: %w", err)
	}

	return nil
}

func writeLines(out io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}

func printRecord(out io.Writer, rec eventlog.Record, index int, wrap int, useColor bool) {
	label := strings.ToLower(rec.Role)
	if label == "" {
		label = string(rec.Kind)
	}
	if rec.IsSidechain {
		label += "*"
	}

	ts := "-"
	if !rec.Timestamp.IsZero() {
		ts = rec.Timestamp.Format(time.RFC3339)
	}
	headerPlain := fmt.Sprintf("[#%03d] %s | %s", index, label, ts)

	indexText := fmt.Sprintf("#%03d", index)
	labelText := label
	tsText := ts
	separator := "|"

	if useColor {
		indexText = colorize(true, ansiBoldWhite, indexText)
		labelText = colorize(true, recordColor(rec), labelText)
		tsText = colorize(true, ansiTimestamp, tsText)
		separator = colorize(true, ansiSeparator, "|")
	}

	fmt.Fprintf(out, "[%s] %s %s %s\n", indexText, labelText, separator, tsText)
	fmt.Fprintln(out, strings.Repeat("-", len(headerPlain)))

	linePrefix := "| "
	emptyPrefix := "|"
	if useColor {
		separatorColor := colorize(true, ansiSeparator, "|")
		linePrefix = separatorColor + " "
		emptyPrefix = separatorColor
	}

	lines := format.RenderRecordLines(rec, wrap)
	if len(lines) == 0 {
		fmt.Fprintf(out, "%s%s\n", linePrefix, "(no content)")
		return
	}
	for _, line := range lines {
		if line == "" {
			fmt.Fprintln(out, emptyPrefix)
			continue
		}
		fmt.Fprintf(out, "%s%s\n", linePrefix, line)
	}
}

const (
	ansiReset     = "\x1b[0m"
	ansiBoldWhite = "\x1b[1;97m"
	ansiTimestamp = "\x1b[38;5;245m"
	ansiSeparator = "\x1b[38;5;240m"
	ansiAssistant = "\x1b[38;5;44m"
	ansiUser      = "\x1b[38;5;220m"
	ansiTool      = "\x1b[38;5;207m"
)

func colorize(enabled bool, code string, text string) string {
	if !enabled {
		return text
	}
	return code + text + ansiReset
}

func recordColor(rec eventlog.Record) string {
	if len(rec.ToolUses) > 0 || len(rec.ToolResults) > 0 {
		return ansiTool
	}
	switch rec.Kind {
	case eventlog.KindAssistant:
		return ansiAssistant
	case eventlog.KindUser:
		return ansiUser
	default:
		return ansiSeparator
	}
}

func resolveColorChoice(opts Options) bool {
	if opts.ForceColor {
		return true
	}
	if opts.ForceNoColor {
		return false
	}
	return shouldUseColorAuto(opts.Out)
}

func shouldUseColorAuto(out io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	file, ok := out.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func copyFile(dst io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(dst, f)
	return err
}
