// accountd is the accountability daemon for verifiable ETLQ pipelines. It
// accepts execution traces, proves them and keeps the append-only ledger of
// outcomes.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/urfave/cli/v2"

	"github.com/eureka-network/proof-experiments/common/log"
	"github.com/eureka-network/proof-experiments/core"
	"github.com/eureka-network/proof-experiments/prover"
)

// default output of the operational commands; the daemon uses its own logger.
var output io.Writer = os.Stdout

// Automatically set through -ldflags
var (
	version   = "master"
	gitCommit = "none"
	buildDate = "unknown"
)

func banner() {
	fmt.Fprintf(output, "accountd %v (date %v, commit %v)\n", version, buildDate, gitCommit)
}

var folderFlag = &cli.StringFlag{
	Name:  "folder",
	Value: core.DefaultConfigFolder(),
	Usage: "Folder to keep the ledger database and circuit key material, with absolute path.",
}

var verboseFlag = &cli.BoolFlag{
	Name:  "verbose",
	Usage: "If set, verbosity is at the debug level",
}

var jsonLogFlag = &cli.BoolFlag{
	Name:  "json-log",
	Usage: "Emit logs as JSON instead of console format.",
}

var listenFlag = &cli.StringFlag{
	Name:  "listen",
	Usage: "Set the listening (binding) address of the HTTP API.",
}

var backendFlag = &cli.StringFlag{
	Name:  "backend",
	Usage: "Proof backend used for submissions: 'circuit' or 'vm'.",
}

var provingTimeoutFlag = &cli.StringFlag{
	Name:  "proving-timeout",
	Usage: fmt.Sprintf("Deadline for a single proof generation job, in duration format. Default is %s.", core.DefaultProvingTimeout),
}

var memoryFlag = &cli.BoolFlag{
	Name:  "memory",
	Usage: "Keep the ledger in memory only. Entries do not survive a restart.",
}

var configFlag = &cli.StringFlag{
	Name:  "config",
	Usage: "TOML configuration file. Command line flags override its values.",
}

var commitmentFlag = &cli.StringFlag{
	Name:  "commitment",
	Usage: "Expected commitment in hex. The envelope is rejected when it is bound to anything else.",
}

var connectFlag = &cli.StringFlag{
	Name:  "connect",
	Value: "http://" + core.DefaultListenAddr,
	Usage: "Base URL of a running accountd daemon.",
}

var appCommands = []*cli.Command{
	{
		Name:  "start",
		Usage: "Start the accountability daemon.",
		Flags: toArray(folderFlag, listenFlag, backendFlag, provingTimeoutFlag,
			memoryFlag, configFlag, verboseFlag, jsonLogFlag),
		Action: func(c *cli.Context) error {
			banner()
			return startCmd(c)
		},
	},
	{
		Name:      "check",
		Usage:     "Verify a proof envelope offline against the local key material.",
		ArgsUsage: "<envelope-file> is the binary envelope to verify.",
		Flags:     toArray(folderFlag, commitmentFlag, verboseFlag),
		Action:    checkCmd,
	},
	{
		Name:      "submit",
		Usage:     "Submit a recorded execution trace to a running daemon.",
		ArgsUsage: "<trace-file> is the canonical trace encoding to submit.",
		Flags:     toArray(connectFlag),
		Action:    submitCmd,
	},
}

// CLI builds the accountd command line application.
func CLI() *cli.App {
	app := cli.NewApp()
	app.Name = "accountd"
	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Fprintf(output, "accountd %v (date %v, commit %v)\n", version, buildDate, gitCommit)
	}
	app.Version = version
	app.Usage = "accountability service for verifiable search pipelines"
	app.Commands = appCommands
	app.Flags = toArray(verboseFlag, folderFlag)
	return app
}

// fileConfig mirrors the subset of the daemon configuration that can live in
// a TOML file.
type fileConfig struct {
	Folder         string `toml:"folder"`
	Listen         string `toml:"listen"`
	Backend        string `toml:"backend"`
	ProvingTimeout string `toml:"proving_timeout"`
	Memory         bool   `toml:"memory"`
}

func contextToConfig(c *cli.Context) (*core.Config, error) {
	var opts []core.ConfigOption

	level := log.InfoLevel
	if c.Bool(verboseFlag.Name) {
		level = log.DebugLevel
	}
	log.ConfigureDefaultLogger(os.Stderr, level, c.Bool(jsonLogFlag.Name))
	opts = append(opts, core.WithLogger(log.DefaultLogger()))

	var fc fileConfig
	if c.IsSet(configFlag.Name) {
		if _, err := toml.DecodeFile(c.String(configFlag.Name), &fc); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	if folder := pick(c, folderFlag.Name, fc.Folder); folder != "" {
		opts = append(opts, core.WithConfigFolder(folder))
	}
	if listen := pick(c, listenFlag.Name, fc.Listen); listen != "" {
		opts = append(opts, core.WithListenAddress(listen))
	}
	if backend := pick(c, backendFlag.Name, fc.Backend); backend != "" {
		kind, err := prover.ParseKind(backend)
		if err != nil {
			return nil, err
		}
		opts = append(opts, core.WithBackend(kind))
	}
	if timeout := pick(c, provingTimeoutFlag.Name, fc.ProvingTimeout); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return nil, fmt.Errorf("parsing proving timeout: %w", err)
		}
		opts = append(opts, core.WithProvingTimeout(d))
	}
	if c.Bool(memoryFlag.Name) || fc.Memory {
		opts = append(opts, core.WithMemoryStore())
	}
	return core.NewConfig(opts...), nil
}

// pick prefers an explicitly set flag over the config file value.
func pick(c *cli.Context, flag, fromFile string) string {
	if c.IsSet(flag) {
		return c.String(flag)
	}
	return fromFile
}

func toArray(flags ...cli.Flag) []cli.Flag {
	return flags
}
