package app

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit %d", e.code)
}

var Version = "dev"

func Execute(args []string, out io.Writer, errOut io.Writer) int {
	return ExecuteWithInput(args, os.Stdin, out, errOut)
}

func ExecuteWithInput(args []string, in io.Reader, out io.Writer, errOut io.Writer) int {
	app := App{In: in, Out: out, Err: errOut}
	flags := GlobalFlags{}
	var showVersion bool

	root := &cobra.Command{
		Use:           "joinflow",
		Short:         "Browser checks for the studio join and membership flows",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().BoolVarP(&showVersion, "version", "V", false, "version")
	root.PersistentFlags().StringVarP(&flags.EnvFile, "config", "c", "", "environments file")
	root.PersistentFlags().StringVar(&flags.DotEnv, "dotenv", "", "dotenv file (default .env)")
	root.PersistentFlags().StringVarP(&flags.Environment, "env", "e", "", "environment name")
	root.PersistentFlags().StringVarP(&flags.BaseURL, "base-url", "u", "", "base URL, overrides --env")
	root.PersistentFlags().StringVarP(&flags.ScreenshotDir, "screenshot-dir", "o", "", "screenshot directory")
	root.PersistentFlags().BoolVarP(&flags.JSON, "json", "j", false, "json output")
	root.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "quiet output")
	root.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "verbose output")
	root.PersistentFlags().StringVarP(&flags.Browser, "browser", "b", "", "browser: chrome, firefox or edge")
	root.PersistentFlags().BoolVarP(&flags.Headless, "headless", "H", false, "run headless")
	root.PersistentFlags().BoolVarP(&flags.Headed, "headed", "E", false, "run headed")
	root.PersistentFlags().StringVarP(&flags.Timeout, "timeout", "t", "", "action timeout")

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if showVersion {
			fmt.Fprintln(out, Version)
			return exitError{code: exitSuccess}
		}
		return nil
	}

	runCmd := &cobra.Command{
		Use:   "run [SCENARIO...]",
		Short: "Run scenarios, all of them by default",
		RunE: func(cmd *cobra.Command, args []string) error {
			perScenario, _ := cmd.Flags().GetDuration("scenario-timeout")
			flags.Engine, _ = cmd.Flags().GetString("engine")
			cfg, err := app.prepare(flags)
			if err != nil {
				fmt.Fprintln(errOut, err)
				return exitError{code: exitUsage}
			}
			code := app.runScenarios(cfg, flags, args, perScenario)
			return exitOrNil(code)
		},
	}
	runCmd.Flags().Duration("scenario-timeout", 0, "time limit per scenario")
	runCmd.Flags().String("engine", enginePlaywright, "browser engine: playwright or fake")
	root.AddCommand(runCmd)

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List scenarios",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return exitOrNil(app.runList(flags))
		},
	})

	blobCmd := &cobra.Command{
		Use:   "blob",
		Short: "Encode and decode membership data blobs",
	}
	blobCmd.AddCommand(&cobra.Command{
		Use:   "decode URL|BLOB",
		Short: "Decode a data blob or the data parameter of a link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return exitOrNil(app.runBlobDecode(args[0]))
		},
	})
	blobEncodeCmd := &cobra.Command{
		Use:   "encode [FILE]",
		Short: "Encode a JSON document (stdin by default) as a data blob",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			link, _ := cmd.Flags().GetString("link")
			sample, _ := cmd.Flags().GetBool("sample")
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return exitOrNil(app.runBlobEncode(path, link, sample))
		},
	}
	blobEncodeCmd.Flags().StringP("link", "l", "", "print this link with the blob in its data parameter")
	blobEncodeCmd.Flags().BoolP("sample", "s", false, "encode a generated membership instead of reading JSON")
	blobCmd.AddCommand(blobEncodeCmd)
	root.AddCommand(blobCmd)

	shotsCmd := &cobra.Command{
		Use:   "shots",
		Short: "Manage failure screenshots",
	}
	shotsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List screenshots",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.prepare(flags)
			if err != nil {
				fmt.Fprintln(errOut, err)
				return exitError{code: exitFailure}
			}
			return exitOrNil(app.runShotsList(cfg.Artifacts(), flags))
		},
	})
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove screenshots older than the configured max age",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			cfg, err := app.prepare(flags)
			if err != nil {
				fmt.Fprintln(errOut, err)
				return exitError{code: exitFailure}
			}
			return exitOrNil(app.runShotsPrune(cfg.Artifacts(), flags, dryRun))
		},
	}
	pruneCmd.Flags().BoolP("dry-run", "n", false, "preview")
	shotsCmd.AddCommand(pruneCmd)
	root.AddCommand(shotsCmd)

	root.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "Install Playwright driver and browsers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return exitOrNil(app.runInstall(flags))
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and browser install",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.prepare(flags)
			if err != nil {
				fmt.Fprintln(errOut, err)
				return exitError{code: exitFailure}
			}
			return exitOrNil(app.runDoctor(cfg, flags))
		},
	})

	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			return exit.code
		}
		fmt.Fprintln(errOut, err)
		return exitUsage
	}
	return exitSuccess
}

func exitOrNil(code int) error {
	if code == exitSuccess {
		return nil
	}
	return exitError{code: code}
}
