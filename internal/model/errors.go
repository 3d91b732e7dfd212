package model

import (
	"errors"
	"fmt"
)

// ParseError reports malformed or unsupported input syntax. It is fatal
// and aborts the run before any downstream stage.
type ParseError struct {
	File  string
	Line  int
	Token string
	Msg   string
}

func (e *ParseError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("%s:%d: %s (near %q)", e.File, e.Line, e.Msg, e.Token)
	}
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
}

// CombinationalLoopError reports a purely combinational cycle, a design
// error in the input.
type CombinationalLoopError struct {
	Nets []string // nets with no assignable level, at least one is on the loop
}

func (e *CombinationalLoopError) Error() string {
	return fmt.Sprintf("combinational loop detected involving %d net(s), e.g. %s", len(e.Nets), e.Nets[0])
}

// UnknownCellError reports a gate whose cell type has no entry in the
// analyzer's rule table.
type UnknownCellError struct {
	Gate string
	Cell string
}

func (e *UnknownCellError) Error() string {
	return fmt.Sprintf("gate %s: no rule for cell type %q", e.Gate, e.Cell)
}

// AnalysisError reports a structural inconsistency found by the analyzer,
// e.g. a net with no driver that is not a primary input.
type AnalysisError struct {
	Net string
	Msg string
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("net %s: %s", e.Net, e.Msg)
}

// InsufficientNetsError reports a top-K request exceeding the number of
// candidate nets.
type InsufficientNetsError struct {
	Requested int
	Available int
}

func (e *InsufficientNetsError) Error() string {
	return fmt.Sprintf("requested top %d nets but only %d candidates available", e.Requested, e.Available)
}

// NetNotFoundError reports a selected net missing from the parsed graph at
// synthesis time. Fatal for the single insertion only; the run continues.
type NetNotFoundError struct {
	Net string
}

func (e *NetNotFoundError) Error() string {
	return fmt.Sprintf("net %q not found in parsed netlist", e.Net)
}

// ErrBoundaryNotFound reports a missing module closing marker. No insertion
// can be placed, so it is fatal for the whole run.
var ErrBoundaryNotFound = errors.New("endmodule boundary not found in netlist")

// ErrScoringUnavailable reports that no scoring model could be constructed.
var ErrScoringUnavailable = errors.New("scoring model unavailable")
