// Package fileops derives the files a transcript created, edited and deleted
// from its file-mutating tool invocations.
package fileops

import (
	"slices"
	"strings"

	"agenthooks/internal/model"
	"agenthooks/internal/transcript"
)

// Options names the tools that mutate files.
type Options struct {
	Create []string
	Modify []string
	Delete []string
	Shell  []string
}

// DefaultOptions matches Claude Code's built-in tools.
func DefaultOptions() Options {
	return Options{
		Create: []string{"Write"},
		Modify: []string{"Edit", "MultiEdit", "NotebookEdit"},
		Delete: []string{"Delete", "DeleteFile"},
		Shell:  []string{"Bash"},
	}
}

type action int

const (
	actionNone action = iota
	actionCreate
	actionModify
	actionDelete
)

func (o Options) classify(name string) action {
	switch {
	case slices.Contains(o.Create, name):
		return actionCreate
	case slices.Contains(o.Modify, name):
		return actionModify
	case slices.Contains(o.Delete, name):
		return actionDelete
	default:
		return actionNone
	}
}

// Extract scans the transcript's invocations in order and classifies every
// touched path. A path created and later modified stays created; a path
// created and later deleted is reported as both.
func Extract(t *transcript.Transcript, opts Options) model.FileOps {
	ops := model.NewFileOps()
	seen := make(map[string]struct{})

	for _, inv := range t.Invocations() {
		if slices.Contains(opts.Shell, inv.Name) {
			for _, p := range RemovedPaths(inv.Command()) {
				ops.Deleted[p] = struct{}{}
			}
			continue
		}

		act := opts.classify(inv.Name)
		if act == actionNone {
			continue
		}
		path := inv.FilePath()
		if path == "" {
			continue
		}

		switch act {
		case actionCreate:
			if _, ok := seen[path]; ok {
				markEdited(ops, path)
			} else {
				ops.Created[path] = struct{}{}
			}
		case actionModify:
			markEdited(ops, path)
		case actionDelete:
			ops.Deleted[path] = struct{}{}
		}
		seen[path] = struct{}{}
	}

	return ops
}

// markEdited records an edit unless the path's final state is "new".
func markEdited(ops model.FileOps, path string) {
	if _, created := ops.Created[path]; created {
		return
	}
	ops.Edited[path] = struct{}{}
}

// RemovedPaths returns the operands of rm and git rm commands found in a
// shell command line. Flags, globs and variable references are ignored.
func RemovedPaths(command string) []string {
	if strings.TrimSpace(command) == "" {
		return nil
	}

	var paths []string
	for _, segment := range splitCommands(command) {
		fields := strings.Fields(segment)
		switch {
		case len(fields) >= 1 && fields[0] == "rm":
			fields = fields[1:]
		case len(fields) >= 2 && fields[0] == "git" && fields[1] == "rm":
			fields = fields[2:]
		default:
			continue
		}
		for _, f := range fields {
			f = strings.Trim(f, `"'`)
			if f == "" || f == "--" || strings.HasPrefix(f, "-") || strings.ContainsAny(f, "*?$`") {
				continue
			}
			paths = append(paths, f)
		}
	}
	return paths
}

func splitCommands(command string) []string {
	return strings.FieldsFunc(command, func(r rune) bool {
		return r == ';' || r == '&' || r == '|' || r == '\n'
	})
}
