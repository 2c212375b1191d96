// SPDX-License-Identifier: MPL-2.0

// Package marker implements the progress-marker side channel used to observe
// code running inside an interpreter that has no progress-reporting API.
//
// Submitted code is annotated line by line: every executable line is preceded
// by a statement, written in the interpreter's own syntax, that prints an
// active-line marker (##active_line<N>##). One statement printing the
// end-of-execution sentinel is appended after the last line. The driver then
// recognises both tokens in the interpreter's ordinary output.
//
// A line counts as executable when it is non-blank after trimming and does not
// start with the dialect's comment token. Block structure is not understood,
// so the header line of a multi-line construct gets a marker of its own.
package marker
