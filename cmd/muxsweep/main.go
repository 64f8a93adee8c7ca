package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/stabnet/muxsweep/internal/config"
	"github.com/stabnet/muxsweep/internal/dmm"
	_ "github.com/stabnet/muxsweep/internal/logsetup"
	"github.com/stabnet/muxsweep/internal/mqtt"
	"github.com/stabnet/muxsweep/internal/mux"
	"github.com/stabnet/muxsweep/internal/results"
	"github.com/stabnet/muxsweep/internal/sweep"
	"github.com/stabnet/muxsweep/internal/version"
	"github.com/stabnet/muxsweep/internal/visa"
)

// SessionOpener lets tests substitute fake instrument sessions.
type SessionOpener func(resource string, opts visa.Options) (visa.Session, error)

func defaultSessionOpener(resource string, opts visa.Options) (visa.Session, error) {
	return visa.Open(resource, opts)
}

// CLI is the command line interface with injectable dependencies.
type CLI struct {
	config      *config.Config
	openSession SessionOpener
	stdout      io.Writer
	stderr      io.Writer
}

// NewCLI creates a new CLI instance.
func NewCLI(cfg *config.Config, openSession SessionOpener, stdout, stderr io.Writer) *CLI {
	return &CLI{
		config:      cfg,
		openSession: openSession,
		stdout:      stdout,
		stderr:      stderr,
	}
}

// CommandArgs represents parsed command line arguments.
type CommandArgs struct {
	Command    string
	Args       []string
	Slot       int
	Channel    int
	Samples    int
	Settle     time.Duration
	Label      string
	Program    bool
	SkipFailed bool
	Config     *config.Config
}

// ParseArgs parses command line arguments using pflag.CommandLine.
func ParseArgs(args []string) (*CommandArgs, error) {
	return ParseArgsWithFlagSet(args, pflag.CommandLine)
}

// ParseArgsWithFlagSet parses command line arguments with a custom flag
// set (for testing).
func ParseArgsWithFlagSet(args []string, fs *pflag.FlagSet) (*CommandArgs, error) {
	versionFlag := fs.Bool("version", false, "Show version and exit")
	helpFlag := fs.BoolP("help", "h", false, "Show help")

	cfg := config.NewConfig()
	cfg.AddFlags(fs)

	slot := fs.Int("slot", 0, "Slot number (for select)")
	channel := fs.Int("channel", 0, "Channel number (for select)")
	samples := fs.IntP("samples", "n", 1, "Samples per channel (for measure)")
	settle := fs.Duration("settle", 0, "Settle time after switching before a reading (for measure)")
	label := fs.String("label", "channel_sweep", "Run label recorded with every sample")
	program := fs.Bool("program", false, "Program the device-side scan list instead of stepping channels (for scan)")
	skipFailed := fs.Bool("skip-failed", false, "Skip failing channels instead of aborting the run (for measure)")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	if *versionFlag {
		return &CommandArgs{Command: "version", Config: cfg}, nil
	}
	if *helpFlag {
		return &CommandArgs{Command: "help", Config: cfg}, nil
	}

	remainingArgs := fs.Args()
	if len(remainingArgs) == 0 {
		return &CommandArgs{Command: "help", Config: cfg}, nil
	}

	if err := cfg.LoadConfigWithFlagSet(fs); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &CommandArgs{
		Command:    remainingArgs[0],
		Args:       remainingArgs[1:],
		Slot:       *slot,
		Channel:    *channel,
		Samples:    *samples,
		Settle:     *settle,
		Label:      *label,
		Program:    *program,
		SkipFailed: *skipFailed,
		Config:     cfg,
	}, nil
}

// Execute runs the specified command.
func (c *CLI) Execute(cmdArgs *CommandArgs) error {
	switch cmdArgs.Command {
	case "version":
		version.ShowVersion()
		return nil
	case "help":
		c.showHelp()
		return nil
	case "id":
		return c.cmdID()
	case "select":
		return c.cmdSelect(cmdArgs.Slot, cmdArgs.Channel)
	case "scan":
		return c.cmdScan(cmdArgs.Args, cmdArgs.Program)
	case "measure":
		return c.cmdMeasure(cmdArgs.Args, cmdArgs.Samples, cmdArgs.Settle, cmdArgs.Label, cmdArgs.SkipFailed)
	default:
		return fmt.Errorf("unknown command: %s", cmdArgs.Command)
	}
}

func (c *CLI) showHelp() {
	//nolint:errcheck
	fmt.Fprintf(c.stdout, `muxsweep - Relay multiplexer and multimeter sweep tool

Usage: muxsweep [flags] <command> [arguments]

Commands:
  id                          Identify the multiplexer and the meter
  select --slot N --channel M Close one relay channel
  scan <card>                 Step through all channels of a card
  measure <card>              Sweep a card and record meter readings
  help                        Show this help
  version                     Show version information

Flags:
      --config string      Config file to use (default %q)
      --timeout-ms int     Instrument response timeout in milliseconds
      --output-dir string  Directory for result files
      --slot int           Slot number (for select)
      --channel int        Channel number (for select)
  -n, --samples int        Samples per channel (for measure) (default 1)
      --settle duration    Settle time after switching before a reading
      --label string       Run label recorded with every sample (default "channel_sweep")
      --program            Program the device-side scan list (for scan)
      --skip-failed        Skip failing channels instead of aborting (for measure)
  -h, --help               Show help
      --version            Show version and exit
`, config.DefaultConfigFile())
}

// openMux opens the multiplexer session and establishes the all-open
// baseline. The caller must Close the returned controller on every path.
func (c *CLI) openMux() (*mux.Controller, error) {
	cards, err := c.config.CardSet()
	if err != nil {
		return nil, err
	}

	session, err := c.openSession(c.config.ICS.ResourceString(), c.config.SessionOptions())
	if err != nil {
		return nil, err
	}

	ctrl := mux.NewController(session, cards)
	if err := ctrl.Reset(); err != nil {
		session.Close() //nolint:errcheck
		return nil, err
	}
	return ctrl, nil
}

func (c *CLI) openMeter() (*dmm.Client, error) {
	if !c.config.HasDMM() {
		return nil, fmt.Errorf("no dmm configured (set dmm.resource in %s)", c.config.ConfigFile)
	}

	session, err := c.openSession(c.config.DMM.Resource, c.config.SessionOptions())
	if err != nil {
		return nil, err
	}

	return dmm.NewClient(session,
		dmm.WithFunction(c.config.DMM.Function),
		dmm.WithDigits(c.config.DMM.Digits),
	), nil
}

func (c *CLI) cmdID() error {
	ctrl, err := c.openMux()
	if err != nil {
		return err
	}
	defer ctrl.Close() //nolint:errcheck

	muxID, err := ctrl.Identify()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "multiplexer: %s\n", muxID) //nolint:errcheck

	if !c.config.HasDMM() {
		return nil
	}

	meter, err := c.openMeter()
	if err != nil {
		return err
	}
	defer meter.Close() //nolint:errcheck

	meterID, err := meter.Identify()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "meter: %s\n", meterID) //nolint:errcheck
	return nil
}

func (c *CLI) cmdSelect(slot, channel int) error {
	if slot == 0 {
		return fmt.Errorf("select command requires --slot")
	}

	ctrl, err := c.openMux()
	if err != nil {
		return err
	}
	defer ctrl.Close() //nolint:errcheck

	sel := mux.ChannelSelector{Slot: slot, Channel: channel}
	if err := ctrl.CloseChannel(sel); err != nil {
		return err
	}

	fmt.Fprintf(c.stdout, "Selected %s (%s)\n", sel, sel.Spec()) //nolint:errcheck
	return nil
}

func (c *CLI) cmdScan(args []string, program bool) error {
	if len(args) != 1 {
		return fmt.Errorf("scan command requires exactly one card argument")
	}
	cardName := args[0]

	ctrl, err := c.openMux()
	if err != nil {
		return err
	}
	defer ctrl.Close() //nolint:errcheck

	card, err := ctrl.Cards().ByName(cardName)
	if err != nil {
		return err
	}
	selectors := card.Selectors()

	if program {
		if err := ctrl.ProgramScan(selectors); err != nil {
			return err
		}
		state, err := ctrl.RelayState()
		if err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "Scan list programmed for card %s (%d channels)\n", cardName, len(selectors)) //nolint:errcheck
		fmt.Fprintf(c.stdout, "Relay state: %s\n", state)                                                  //nolint:errcheck
		return nil
	}

	if err := ctrl.Scan(selectors); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Scanned card %s (%d channels)\n", cardName, len(selectors)) //nolint:errcheck
	return nil
}

// printSink echoes each sample to stdout as it is acquired.
type printSink struct {
	w io.Writer
}

func (p printSink) Append(r sweep.Record) error {
	_, err := fmt.Fprintf(p.w, "%s:%d sample=%d -> %s\n",
		r.Card, r.Channel, r.Sample, strconv.FormatFloat(r.Value, 'g', -1, 64))
	return err
}

func (c *CLI) cmdMeasure(args []string, samples int, settle time.Duration, label string, skipFailed bool) error {
	if len(args) != 1 {
		return fmt.Errorf("measure command requires exactly one card argument")
	}
	cardName := args[0]

	ctrl, err := c.openMux()
	if err != nil {
		return err
	}
	defer ctrl.Close() //nolint:errcheck

	card, err := ctrl.Cards().ByName(cardName)
	if err != nil {
		return err
	}

	meter, err := c.openMeter()
	if err != nil {
		return err
	}
	defer meter.Close() //nolint:errcheck

	csvSink, err := results.NewCSVSink(label, c.config.OutputDir)
	if err != nil {
		return err
	}
	defer csvSink.Close() //nolint:errcheck

	sinks := sweep.MultiSink{csvSink, sweep.BestEffort{Sink: printSink{w: c.stdout}}}

	if c.config.HasMQTT() {
		publisher, err := mqtt.NewPublisher(mqtt.Config{
			BrokerURL: c.config.MQTT.Broker,
			ClientID:  c.config.MQTT.ClientID,
			Topic:     c.config.MQTT.Topic,
		})
		if err != nil {
			return err
		}
		defer publisher.Disconnect(250)
		sinks = append(sinks, sweep.BestEffort{Sink: publisher})
	}

	policy := sweep.AbortRun
	if skipFailed {
		policy = sweep.SkipChannel
	}

	seq := sweep.NewSequencer(ctrl, meter, sinks, sweep.WithFailurePolicy(policy))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	plan := sweep.Plan{
		Label:     label,
		Card:      card.Name,
		Selectors: card.Selectors(),
		Samples:   samples,
		Settle:    settle,
		Function:  meter.Function(),
	}

	summary, runErr := seq.Run(ctx, plan)

	if summary != nil {
		fmt.Fprintf(c.stdout, "\n%d records written to %s\n", summary.Records, csvSink.Path()) //nolint:errcheck
		for _, skipped := range summary.Skipped {
			fmt.Fprintf(c.stderr, "skipped %s: %v\n", skipped.Selector, skipped.Err) //nolint:errcheck
		}
	}

	return runErr
}

func main() {
	cmdArgs, err := ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err) //nolint:errcheck
		os.Exit(1)
	}

	cli := NewCLI(cmdArgs.Config, defaultSessionOpener, os.Stdout, os.Stderr)

	if err := cli.Execute(cmdArgs); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err) //nolint:errcheck
		os.Exit(1)
	}
}
