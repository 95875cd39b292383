// Command dmmctl is a read-only companion to dimmon: it parses a config
// file and the starter remainder (when it is a StarterSpec TOML
// document) and pretty-prints the declared module list and node/hook
// graph. It never creates a kernel.Runtime or opens a socket.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v3"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/rcc-msu/dimmon/pkg/config"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	nodeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	titleCaser  = cases.Title(language.Und)
)

// header renders a section label, title-cased the locale-aware way
// (cases.Title handles runs our own strings.Title-equivalent wouldn't,
// e.g. node type segments picked up from a config file written in a
// non-English locale) rather than assuming plain ASCII capitalization.
func header(label string) string {
	return headerStyle.Render(titleCaser.String(label))
}

func main() {
	app := &cli.Command{
		Name:  "dmmctl",
		Usage: "inspect a dimmon config file without starting a runtime",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "configuration file path",
				Value: "dimmon.conf",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return inspect(os.Stdout, c.String("config"))
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func inspect(w io.Writer, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, header("config"), dimStyle.Render(path))
	fmt.Fprintln(w, header("starter"), nodeStyle.Render(cfg.StarterType))
	if len(cfg.ModulePaths) > 0 {
		fmt.Fprintln(w, header("modules"))
		for _, m := range cfg.ModulePaths {
			fmt.Fprintln(w, " ", dimStyle.Render(m))
		}
	}

	remainder, err := config.OpenRemainder(cfg)
	if err != nil {
		return fmt.Errorf("opening remainder: %w", err)
	}
	defer remainder.Close()

	raw, err := io.ReadAll(remainder)
	if err != nil {
		return fmt.Errorf("reading remainder: %w", err)
	}

	spec, err := config.ParseStarterSpec(raw)
	if err != nil {
		// Not every starter understands a StarterSpec remainder (a custom
		// starter type may use its own format); that isn't an error for
		// this tool, just nothing further to show.
		fmt.Fprintln(w, dimStyle.Render("(remainder is not a recognized starter spec; nothing further to inspect)"))
		return nil
	}

	if len(spec.Nodes) > 0 {
		fmt.Fprintln(w, header("nodes"))
		for _, n := range spec.Nodes {
			fmt.Fprintf(w, "  %s %s\n", nodeStyle.Render(n.Name), dimStyle.Render(n.Type))
		}
	}
	if len(spec.Hooks) > 0 {
		fmt.Fprintln(w, header("hooks"))
		for _, h := range spec.Hooks {
			fmt.Fprintf(w, "  %s.%s -> %s.%s\n", h.SrcNode, h.SrcHook, h.DstNode, h.DstHook)
		}
	}
	if len(spec.Timers) > 0 {
		fmt.Fprintln(w, header("timers"))
		for _, t := range spec.Timers {
			fmt.Fprintf(w, "  %s every %dms\n", t.Node, t.IntervalMS)
		}
	}
	return nil
}
