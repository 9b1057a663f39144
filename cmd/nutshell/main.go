// Command nutshell is the reference host for the engine: a one-shot
// runner, a standalone compiler, a bytecode disassembler, and a REPL,
// built the way the retrieved node CLI wires urfave/cli, structured
// logging, and TOML configuration together (§11).
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/peterh/liner"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/kristofer/nutshell/internal/bcio"
	"github.com/kristofer/nutshell/internal/config"
	"github.com/kristofer/nutshell/internal/disasm"
	"github.com/kristofer/nutshell/internal/stdlib"
	"github.com/kristofer/nutshell/pkg/bytecode"
	"github.com/kristofer/nutshell/pkg/compiler"
	"github.com/kristofer/nutshell/pkg/value"
	"github.com/kristofer/nutshell/pkg/vm"
)

func main() {
	configureLogging()

	app := &cli.App{
		Name:  "nutshell",
		Usage: "compile and run the nutshell scripting engine",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "gc-threshold", Usage: "allocation-pressure auto-collect threshold (0 disables)"},
			&cli.StringFlag{Name: "config", Value: "nutshell.toml", Usage: "path to an optional TOML config file"},
		},
		Commands: []*cli.Command{
			runCommand(),
			compileCommand(),
			unassembleCommand(),
		},
		Action: func(c *cli.Context) error {
			return repl(c)
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}

func configureLogging() {
	if isatty(os.Stdout) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
}

func isatty(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func sourceFilesFlag() *cli.StringSliceFlag {
	return &cli.StringSliceFlag{Name: "s", Usage: "source file (repeatable, concatenated in order)"}
}

func readSources(paths []string) (string, error) {
	if len(paths) == 0 {
		return "", errors.New("at least one -s source file is required")
	}
	var b strings.Builder
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return "", errors.Wrapf(err, "reading source %s", p)
		}
		b.Write(data)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func loadConfigAndApplyFlags(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cfg, err
	}
	if c.IsSet("gc-threshold") {
		cfg.HeapGCThreshold = c.Int("gc-threshold")
	}
	return cfg, nil
}

func newHost(cfg config.Config) *vm.VM {
	m := vm.New()
	m.GCThreshold = cfg.HeapGCThreshold
	m.MaxStackFrames = cfg.StackFrames
	stdlib.Install(m)
	return m
}

// exitCode implements §6's mapping: numeric result truncates to int,
// boolean maps to 0/1, everything else is 0 on success.
func exitCode(result value.Value) int {
	switch result.Kind() {
	case value.KindNumber:
		return int(result.Number())
	case value.KindBoolean:
		if result.Bool() {
			return 1
		}
		return 0
	default:
		return 0
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "compile and execute one or more source files",
		Flags: []cli.Flag{sourceFilesFlag()},
		Action: func(c *cli.Context) error {
			src, err := readSources(c.StringSlice("s"))
			if err != nil {
				return err
			}
			asm, err := compiler.Compile(src)
			if err != nil {
				return err
			}
			cfg, err := loadConfigAndApplyFlags(c)
			if err != nil {
				return err
			}
			m := newHost(cfg)
			result, err := m.Run(asm.Buffer(), asm.Xref, 0)
			if err != nil {
				fmt.Fprintln(os.Stderr, color.RedString("%v", err))
				os.Exit(1)
			}
			fmt.Println(color.GreenString(stdlib.Display(result)))
			os.Exit(exitCode(result))
			return nil
		},
	}
}

func compileCommand() *cli.Command {
	return &cli.Command{
		Name:  "compile",
		Usage: "compile source files to raw bytecode and xref, without running them",
		Flags: []cli.Flag{
			sourceFilesFlag(),
			&cli.StringFlag{Name: "b", Usage: "output bytecode path", Required: true},
			&cli.StringFlag{Name: "x", Usage: "output xref path"},
		},
		Action: func(c *cli.Context) error {
			src, err := readSources(c.StringSlice("s"))
			if err != nil {
				return err
			}
			asm, err := compiler.Compile(src)
			if err != nil {
				return err
			}
			if err := bcio.SaveBytecode(c.String("b"), asm.Buffer()); err != nil {
				return err
			}
			if x := c.String("x"); x != "" {
				if err := bcio.SaveXref(x, asm.Xref); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func unassembleCommand() *cli.Command {
	return &cli.Command{
		Name:  "unassemble",
		Usage: "disassemble a compiled bytecode file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "b", Usage: "bytecode path", Required: true},
			&cli.StringFlag{Name: "x", Usage: "xref path (optional)"},
		},
		Action: func(c *cli.Context) error {
			buf, err := bcio.LoadBytecode(c.String("b"))
			if err != nil {
				return err
			}
			entries := loadXrefOrNil(c.String("x"))
			tree, err := disasm.Tree(buf, entries)
			if err != nil {
				return err
			}
			fmt.Println(tree.String())
			return nil
		},
	}
}

func loadXrefOrNil(path string) []bytecode.XrefEntry {
	if path == "" {
		return nil
	}
	entries, err := bcio.LoadXref(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("warning: %v", err))
		return nil
	}
	return entries
}

func repl(c *cli.Context) error {
	cfg, err := loadConfigAndApplyFlags(c)
	if err != nil {
		return err
	}
	m := newHost(cfg)

	sessionID := uuid.New().String()
	sessionLog := log.With().Str("session", sessionID).Logger()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	fmt.Println("nutshell REPL -", sessionID)
	for {
		text, err := line.Prompt("> ")
		if err == liner.ErrPromptAborted || err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		line.AppendHistory(text)

		asm, err := compiler.Compile(text)
		if err != nil {
			sessionLog.Debug().Err(err).Msg("repl.compile_error")
			fmt.Println(color.RedString("%v", err))
			continue
		}
		result, err := m.Run(asm.Buffer(), asm.Xref, 0)
		if err != nil {
			sessionLog.Debug().Err(err).Msg("repl.runtime_error")
			fmt.Println(color.RedString("%v", err))
			continue
		}
		fmt.Println(color.GreenString(stdlib.Display(result)))
	}
}
