package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"golang.org/x/term"

	"github.com/coreperf-io/coreperf/client"
	"github.com/coreperf-io/coreperf/client/bundle"
	"github.com/coreperf-io/coreperf/client/encryption"
	"github.com/coreperf-io/coreperf/client/logger"
)

func main() {
	app := cli.NewApp()
	app.Name = "coreperf"
	app.Usage = "Run workloads on remote cores and fetch their performance reports"
	app.Version = client.Version
	app.Commands = []cli.Command{
		{
			Name:   "run",
			Usage:  "submit an experiment and wait for its results",
			Flags:  getRunFlags(),
			Action: runExperiment,
		},
		{
			Name:      "decrypt",
			Usage:     "decrypt a downloaded result bundle in place",
			ArgsUsage: "FILE",
			Flags:     getDecryptFlags(),
			Action:    decryptBundle,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "coreperf: %v\n", err)
		os.Exit(1)
	}
}

func getRunFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "load configuration from `FILE`",
		},
		cli.StringFlag{
			Name:  "core",
			Usage: "run the experiment on `CORE`",
		},
		cli.StringSliceFlag{
			Name:  "workload, w",
			Usage: "ELF executable to run, repeatable or comma separated",
		},
		cli.StringFlag{
			Name:  "name, n",
			Usage: "store results under `NAME` (default: the experiment ID)",
		},
		cli.BoolFlag{
			Name:  "no-unpack",
			Usage: "keep the encrypted result bundle instead of unpacking it",
		},
		cli.StringFlag{
			Name:  "dir, d",
			Usage: "create experiment directories in `DIR`",
		},
		cli.StringFlag{
			Name:  "level, l",
			Usage: "logging level [debug|info|warn|error]",
		},
	}
}

func getDecryptFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "password, p",
			Usage: "one-time password from the experiment's config.json",
		},
		cli.StringFlag{
			Name:  "key, k",
			Usage: "decrypt an upload package with the RSA private key in `FILE`",
		},
		cli.StringFlag{
			Name:  "extract, x",
			Usage: "extract the decrypted bundle into `DIR`",
		},
		cli.StringFlag{
			Name:  "level, l",
			Usage: "logging level [debug|info|warn|error]",
			Value: "info",
		},
	}
}

func runExperiment(c *cli.Context) error {
	config, err := client.NewConfig(c.String("config"))
	if err != nil {
		return err
	}
	if level := c.String("level"); level != "" {
		config.LogLevel, err = client.GetLogLevel(level)
		if err != nil {
			return err
		}
	}
	if dir := c.String("dir"); dir != "" {
		config.ExperimentsDir = dir
	}
	if config.APIKey == "" {
		if config.APIKey, err = promptAPIKey(); err != nil {
			return err
		}
	}
	workloads, err := normalizeWorkloads(c.StringSlice("workload"))
	if err != nil {
		return err
	}
	if len(workloads) == 0 {
		return errors.New("at least one --workload is required")
	}

	log := newLogger(config)
	log.Debugf("Settings: %s", config)
	sub, err := client.NewSubmission(config, client.WithLogger(log))
	if err != nil {
		return err
	}
	for _, w := range workloads {
		if err := sub.AddWorkload(w); err != nil {
			return err
		}
	}
	if err := sub.SetCore(c.String("core")); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	result, err := sub.Run(ctx, c.String("name"), !c.Bool("no-unpack"))
	if err != nil {
		return err
	}

	if result.ResultsDir != "" {
		log.Infof("Results unpacked to %s", result.ResultsDir)
	} else {
		log.Infof("Encrypted results saved to %s", result.BundlePath)
	}
	if result.Summary != nil {
		out, err := json.MarshalIndent(result.Summary, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to encode summary")
		}
		fmt.Println(string(out))
	}
	return nil
}

func decryptBundle(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("expected exactly one FILE argument")
	}
	path := c.Args().First()
	level, err := client.GetLogLevel(c.String("level"))
	if err != nil {
		return err
	}
	log := logger.NewLogger(level)

	switch {
	case c.String("key") != "":
		pem, err := os.ReadFile(c.String("key"))
		if err != nil {
			return errors.Wrap(err, "failed to read private key")
		}
		if err := encryption.NewHybridEncryptor(log).DecryptInPlace(pem, path); err != nil {
			return err
		}
	case c.String("password") != "":
		if err := encryption.NewPasswordCipher(log).DecryptWithPassword(path, []byte(c.String("password"))); err != nil {
			return err
		}
	default:
		return errors.New("either --password or --key is required")
	}
	log.Infof("Decrypted %s", path)

	if dir := c.String("extract"); dir != "" {
		n, err := bundle.Extract(path, dir)
		if err != nil {
			return err
		}
		log.Infof("Extracted %d files into %s", n, dir)
	}
	return nil
}

// newLogger creates the logger for a run, honoring the silent setting.
func newLogger(config *client.Config) logger.Logger {
	log := logger.NewLogger(config.LogLevel)
	if config.LogSilent {
		log.Silent(true)
	}
	return log
}

// promptAPIKey reads the API key from the terminal without echoing it.
func promptAPIKey() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no API key configured and stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, "API key: ")
	key, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", errors.Wrap(err, "failed to read API key")
	}
	return strings.TrimSpace(string(key)), nil
}

// normalizeWorkloads flattens repeated and comma separated --workload values.
func normalizeWorkloads(values []string) ([]string, error) {
	var workloads []string
	for _, value := range values {
		for _, w := range strings.Split(value, ",") {
			w = strings.TrimSpace(w)
			if w == "" {
				return nil, errors.Errorf("empty workload path in %q", value)
			}
			workloads = append(workloads, w)
		}
	}
	return workloads, nil
}
