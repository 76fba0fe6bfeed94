// Command shrimp generates RenderMan shaders from shader-block scenes.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/chazu/shrimp/pkg/config"
	"github.com/chazu/shrimp/pkg/library"
	"github.com/chazu/shrimp/pkg/logx"
	"github.com/chazu/shrimp/pkg/watch"
)

// errInvalidScene makes validate exit non-zero without a second message.
var errInvalidScene = errors.New("scene has errors")

type cli struct {
	configPath string
	logLevel   string
	renderer   string
	shaderDir  string

	app *App
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errInvalidScene) {
			fmt.Fprintln(os.Stderr, "shrimp:", err)
		}
		os.Exit(1)
	}
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "shrimp",
		Short:         "Generate RenderMan shaders from shader-block scenes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(stderr)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVarP(&c.configPath, "config", "c", "", "configuration file (default: first of "+fmt.Sprint(config.DefaultFiles)+")")
	pf.StringVar(&c.logLevel, "log-level", "", "debug, info, warn or error")
	pf.StringVarP(&c.renderer, "renderer", "r", "", "target renderer")
	pf.StringVarP(&c.shaderDir, "out", "o", "", "directory receiving generated shaders")

	root.AddCommand(
		c.generateCommand(),
		c.compileCommand(),
		c.validateCommand(),
		c.convertCommand(),
		c.blocksCommand(),
		c.watchCommand(),
	)
	return root
}

// setup loads the configuration, applies flag overrides and installs the
// logger.
func (c *cli) setup(stderr io.Writer) error {
	var (
		cfg *config.Config
		err error
	)
	if c.configPath != "" {
		cfg, err = config.Load(c.configPath)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	if c.renderer != "" {
		cfg.Renderer = c.renderer
	}
	if c.shaderDir != "" {
		cfg.ShaderDir = c.shaderDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logx.Install(stderr, level)

	c.app, err = NewApp(cfg)
	return err
}

func (c *cli) generateCommand() *cobra.Command {
	var stdout bool
	cmd := &cobra.Command{
		Use:   "generate <scene>",
		Short: "Write the shading-language source of every connected stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if stdout {
				shaders, err := c.app.Generate(args[0])
				if err != nil {
					return err
				}
				for _, sh := range shaders {
					fmt.Fprint(cmd.OutOrStdout(), sh.Source)
				}
				return nil
			}
			artifacts, err := c.app.Build(cmd.Context(), args[0], false)
			for _, a := range artifacts {
				fmt.Fprintln(cmd.OutOrStdout(), a.SourcePath)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&stdout, "stdout", false, "print the sources instead of writing files")
	return cmd
}

func (c *cli) compileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "compile <scene>",
		Short: "Generate and compile every connected stage with the selected renderer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			artifacts, err := c.app.Build(cmd.Context(), args[0], true)
			for _, a := range artifacts {
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", a.SourcePath, a.OutputPath)
			}
			return err
		},
	}
}

func (c *cli) validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <scene>",
		Short: "Report structural problems of a scene",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := c.app.Validate(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range res.Errors {
				fmt.Fprintln(out, e)
			}
			for _, w := range res.Warnings {
				fmt.Fprintln(out, w)
			}
			if !res.OK() {
				return errInvalidScene
			}
			fmt.Fprintln(out, "ok")
			return nil
		},
	}
}

func (c *cli) convertCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "convert <scene> <out.xml>",
		Short: "Save a scene script as an XML scene",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.app.Convert(args[0], args[1])
		},
	}
}

func (c *cli) blocksCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blocks",
		Short: "Inspect the block library",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every library block",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lib := c.app.Library()
			for _, name := range lib.Names() {
				e, err := lib.Lookup(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s %s\n", name, e.Block.Description)
			}
			return nil
		},
	}, &cobra.Command{
		Use:   "show <name>",
		Short: "Print the XML definition of a library block",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := c.app.Library().Lookup(args[0])
			if err != nil {
				return err
			}
			return library.DefinitionOf(e.Block).Encode(cmd.OutOrStdout())
		},
	})
	return cmd
}

func (c *cli) watchCommand() *cobra.Command {
	var compile bool
	cmd := &cobra.Command{
		Use:   "watch <scene>",
		Short: "Regenerate shaders whenever the scene file changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			rebuild := func(ctx context.Context, path string) {
				artifacts, err := c.app.Build(ctx, args[0], compile)
				if err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), "shrimp:", err)
					return
				}
				for _, a := range artifacts {
					fmt.Fprintln(out, a.SourcePath)
				}
			}
			w, err := watch.New(args, 0, rebuild)
			if err != nil {
				return err
			}
			rebuild(cmd.Context(), args[0])
			return w.Run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&compile, "compile", false, "compile after every regeneration")
	return cmd
}
