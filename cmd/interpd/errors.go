// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"io/fs"
	"strings"

	"interpd/internal/environment"
	"interpd/internal/issue"
	"interpd/internal/marker"
	"interpd/internal/toolrepo"
)

func unknownEnvironmentError(name string, known []string) error {
	return issue.NewErrorContext().
		WithOperation("select environment").
		WithResource(name).
		WithIssue(issue.EnvironmentUnknownId).
		WithSuggestion("Available environments: " + strings.Join(known, ", ")).
		WithSuggestion("Run 'interpd envs' to see every alias").
		Wrap(&environment.UnknownEnvironmentError{Name: name, Known: known}).
		BuildError()
}

func invalidEnvironmentError(name string, err error) error {
	ctx := issue.NewErrorContext().
		WithOperation("create environment").
		WithResource(name).
		Wrap(err)
	if errors.Is(err, marker.ErrInvalidDelimiters) {
		ctx = ctx.WithIssue(issue.InvalidMarkersId).
			WithSuggestion("Fix the markers section of your configuration")
	}
	return ctx.BuildError()
}

// stepError classifies an error returned by Environment.Step.
func stepError(name string, err error) error {
	ctx := issue.NewErrorContext().
		WithOperation("run code").
		WithResource(name).
		Wrap(err)
	switch {
	case errors.Is(err, environment.ErrStartup):
		ctx = ctx.WithIssue(issue.InterpreterNotFoundId).
			WithSuggestion("Install the interpreter or set environments." + name + ".executable in config.cue")
	case errors.Is(err, fs.ErrPermission):
		ctx = ctx.WithIssue(issue.PermissionDeniedId)
	}
	return ctx.BuildError()
}

func toolError(operation, name string, err error) error {
	ctx := issue.NewErrorContext().
		WithOperation(operation).
		WithResource(name).
		Wrap(err)
	switch {
	case errors.Is(err, toolrepo.ErrToolNotFound):
		ctx = ctx.WithIssue(issue.ToolNotFoundId).
			WithSuggestion("Run 'interpd tool list' to see the stored tools")
	case errors.Is(err, toolrepo.ErrToolExists):
		ctx = ctx.WithIssue(issue.ToolExistsId).
			WithSuggestion("Delete the existing tool first or choose another name")
	case errors.Is(err, toolrepo.ErrInvalidTool):
		ctx = ctx.WithIssue(issue.ToolInvalidId)
	case errors.Is(err, fs.ErrPermission):
		ctx = ctx.WithIssue(issue.PermissionDeniedId)
	}
	return ctx.BuildError()
}
