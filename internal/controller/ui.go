// Package controller provides the console output surface of the pipeline.
package controller

import (
	"bytes"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	m "github.com/hwsec-lab/trojanforge/internal/model"
)

// UI is the display boundary for pipeline progress and results.
// Implementations can use different output methods; the domain only talks
// to this interface.
type UI interface {
	Header(title string)
	Printf(format string, args ...any)
	ParseStats(mod *m.Module)
	Warnings(warnings []string)
	TopNets(ranking *m.Ranking, limit int)
	InsertionResults(meta *m.InsertionMetadata)
}

// ConsoleUI writes through the cobra command so tests can capture output.
type ConsoleUI struct {
	cmd *cobra.Command
}

// NewConsoleUI creates a ConsoleUI bound to cmd's output streams.
func NewConsoleUI(cmd *cobra.Command) *ConsoleUI {
	return &ConsoleUI{cmd: cmd}
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// Header prints a styled section header.
func (u *ConsoleUI) Header(title string) {
	u.cmd.Println(headerStyle.Render(title))
}

// Printf prints formatted text.
func (u *ConsoleUI) Printf(format string, args ...any) {
	u.cmd.Printf(format, args...)
}

// ParseStats summarizes a parsed module.
func (u *ConsoleUI) ParseStats(mod *m.Module) {
	u.cmd.Printf("Module %s: %d gates, %d nets, %d primary inputs, %d primary outputs\n",
		mod.Name, len(mod.Gates), len(mod.Nets), len(mod.PrimaryInputs()), len(mod.PrimaryOutputs()))
}

// Warnings lists non-fatal parser diagnostics.
func (u *ConsoleUI) Warnings(warnings []string) {
	for _, w := range warnings {
		u.cmd.Println(warningStyle.Render("warning: " + w))
	}
}

// TopNets renders the highest ranked nets as a table.
func (u *ConsoleUI) TopNets(ranking *m.Ranking, limit int) {
	if limit <= 0 || limit > len(ranking.TargetNets) {
		limit = len(ranking.TargetNets)
	}

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"#", "Net", "Score"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnAlignment([]int{tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})
	for i, rn := range ranking.TargetNets[:limit] {
		table.Append([]string{fmt.Sprintf("%d", i+1), rn.Name, fmt.Sprintf("%.4f", rn.Score)})
	}
	table.Render()
	u.cmd.Print(buf.String())
}

// InsertionResults renders one row per successful insertion plus a footer
// with the success count.
func (u *ConsoleUI) InsertionResults(meta *m.InsertionMetadata) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"ID", "Trigger", "Payload", "Payload Net", "Gates", "Output"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	for _, rec := range meta.Insertions {
		table.Append([]string{
			fmt.Sprintf("%d", rec.ID),
			string(rec.Trigger),
			string(rec.Payload),
			rec.PayloadNet,
			fmt.Sprintf("%d", rec.EstimatedGates),
			rec.OutputFile,
		})
	}
	table.SetFooter([]string{
		"", "", "", "",
		fmt.Sprintf("%d/%d", meta.NumTrojans, meta.RequestedTrojans),
		"inserted",
	})
	table.Render()
	u.cmd.Print(buf.String())
}
