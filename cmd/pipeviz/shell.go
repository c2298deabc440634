package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sarchlab/pipeviz/timing/core"
	"github.com/sarchlab/pipeviz/timing/pipeline"
)

func newShellCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Step the simulation interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, _, err := a.newCore()
			if err != nil {
				return err
			}

			sh := newShell(session, cmd.OutOrStdout())

			p := prompt.New(
				sh.execute,
				sh.complete,
				prompt.OptionPrefix("pipeviz> "),
				prompt.OptionTitle("pipeviz"),
				prompt.OptionSetExitCheckerOnInput(func(string, bool) bool {
					return sh.quit
				}),
				prompt.OptionAddKeyBind(prompt.KeyBind{
					Key: prompt.ControlD,
					Fn: func(*prompt.Buffer) {
						sh.quit = true
					},
				}),
			)

			fmt.Fprintln(sh.out, "Type 'help' for commands.")
			p.Run()

			return nil
		},
	}
}

var shellCommands = []prompt.Suggest{
	{Text: "step", Description: "simulate n cycles (default 1)"},
	{Text: "reset", Description: "start over at cycle 1"},
	{Text: "describe", Description: "explain one instruction by id"},
	{Text: "diagram", Description: "show the pipeline diagram"},
	{Text: "stats", Description: "show cycle, stall, and CPI counters"},
	{Text: "hazards", Description: "show or change hazard probabilities"},
	{Text: "history", Description: "list the commands entered so far"},
	{Text: "help", Description: "list commands"},
	{Text: "exit", Description: "leave the shell"},
}

// shell interprets the commands of the interactive prompt.
type shell struct {
	core    *core.Core
	out     io.Writer
	history []string
	quit    bool
}

func newShell(c *core.Core, out io.Writer) *shell {
	return &shell{core: c, out: out}
}

func (s *shell) complete(d prompt.Document) []prompt.Suggest {
	if strings.Contains(d.TextBeforeCursor(), " ") {
		return nil
	}
	return prompt.FilterHasPrefix(shellCommands, d.GetWordBeforeCursor(), true)
}

func (s *shell) execute(in string) {
	args := strings.Fields(in)
	if len(args) == 0 {
		return
	}
	s.history = append(s.history, strings.Join(args, " "))

	if err := s.dispatch(args[0], args[1:]); err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
	}
}

func (s *shell) dispatch(name string, args []string) error {
	switch name {
	case "step", "s":
		return s.step(args)
	case "reset":
		s.core.Reset()
		fmt.Fprintln(s.out, "Simulation reset to cycle 1.")
	case "describe", "d":
		return s.describe(args)
	case "diagram":
		fmt.Fprint(s.out, s.core.Diagram())
	case "stats":
		printSummary(s.out, s.core.Stats())
	case "hazards":
		return s.hazards(args)
	case "history":
		for i, line := range s.history {
			fmt.Fprintf(s.out, "%3d. %s\n", i+1, line)
		}
	case "help":
		for _, c := range shellCommands {
			fmt.Fprintf(s.out, "  %-10s %s\n", c.Text, c.Description)
		}
	case "exit", "quit":
		s.quit = true
	default:
		return fmt.Errorf("unknown command %q", name)
	}

	return nil
}

func (s *shell) step(args []string) error {
	n := 1
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 1 {
			return fmt.Errorf("invalid cycle count %q", args[0])
		}
		n = v
	}

	for i := 0; i < n; i++ {
		report, err := s.core.Step()
		if err != nil {
			return err
		}

		fmt.Fprint(s.out, report.Narrative)
		if report.Replenished {
			fmt.Fprintln(s.out, "All instructions completed, a new batch was generated.")
		}
	}

	return nil
}

func (s *shell) describe(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: describe <id>")
	}

	id, err := strconv.ParseUint(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid instruction id %q", args[0])
	}

	text, err := s.core.Describe(id)
	if errors.Is(err, pipeline.ErrNotFound) {
		return fmt.Errorf("no instruction #%d", id)
	}
	if err != nil {
		return err
	}

	fmt.Fprint(s.out, text)
	return nil
}

// hazards prints the probabilities, or sets one with
// "hazards <raw|structural|control|background> <p>".
func (s *shell) hazards(args []string) error {
	cfg := s.core.Config().Hazard

	if len(args) == 0 {
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = s.out.Write(data)
		return err
	}
	if len(args) != 2 {
		return errors.New("usage: hazards [raw|structural|control|background <p>]")
	}

	p, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid probability %q", args[1])
	}

	switch args[0] {
	case "raw":
		cfg.RAWProbability = p
	case "structural":
		cfg.StructuralProbability = p
	case "control":
		cfg.ControlProbability = p
	case "background":
		cfg.BackgroundProbability = p
	default:
		return fmt.Errorf("unknown hazard %q", args[0])
	}

	if err := s.core.SetHazardConfig(&cfg); err != nil {
		return err
	}

	fmt.Fprintf(s.out, "%s probability set to %v.\n", args[0], p)
	return nil
}
