// SPDX-License-Identifier: MPL-2.0

// Package environment drives language interpreters as subprocesses and turns
// their console output into a typed stream of OutputEvent values.
//
// Interactive variants (Shell, PowerShell, Virtual) keep one interpreter
// process alive across submissions. Submitted code is annotated with marker
// statements (see package marker) so the interpreter narrates which line is
// executing and when the submission is done. Two reader goroutines, one per
// output stream, feed a single ordered channel that the caller drains through
// the iter.Seq returned by Step.
//
// The OneShot variant writes each submission to a temporary file and runs
// the interpreter once against it, yielding at most one output and one error
// event.
//
// Callers must drain the sequence returned by Step or call Terminate;
// an abandoned sequence keeps the interpreter process alive.
package environment
