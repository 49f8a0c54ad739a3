package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/pyroscope-io/pyroscope/pkg/cli"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/attribute"

	runnerapp "github.com/lin-stream/streamspy/internal/app"
	"github.com/lin-stream/streamspy/pkg/app/config"
	"github.com/lin-stream/streamspy/pkg/component/exporter"
	promexporter "github.com/lin-stream/streamspy/pkg/component/exporter/prom"
	sqlitexporter "github.com/lin-stream/streamspy/pkg/component/exporter/sqlite"
	"github.com/lin-stream/streamspy/pkg/component/queue"
	"github.com/lin-stream/streamspy/pkg/component/sampler"
	"github.com/lin-stream/streamspy/pkg/component/source"
	"github.com/lin-stream/streamspy/pkg/component/uploader"
	yamlconfig "github.com/lin-stream/streamspy/pkg/config"
	"github.com/lin-stream/streamspy/pkg/core/model"
	"github.com/lin-stream/streamspy/pkg/log"
)

type Cmd struct {
	cfg     *config.Config
	RootCmd *cobra.Command
}

func NewCmd() *Cmd {
	var cfg config.Config
	rootCmd := NewRootCmd(&cfg)
	rootCmd.SilenceErrors = true
	return &Cmd{
		cfg:     &cfg,
		RootCmd: rootCmd,
	}
}

func newViper() *viper.Viper {
	return cli.NewViper("streamspy")
}

var (
	headerClr *color.Color
	itemClr   *color.Color
	descClr   *color.Color
	defClr    *color.Color
)

func SubCmdInit(cmd *Cmd) {
	subcommands := []*cobra.Command{
		newStreamCmd(&cmd.cfg.STREAM),
		newFolderCmd(&cmd.cfg.FOLDER),
		newVersionCmd(),
	}

	for _, c := range subcommands {
		if c == nil {
			continue
		}
		addHelpSubcommand(c)
		c.HasHelpSubCommands()
		cmd.RootCmd.AddCommand(c)
	}

	logrus.SetReportCaller(true)
	logrus.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000000",
		FullTimestamp:   true,
		CallerPrettyfier: func(f *runtime.Frame) (string, string) {
			filename := f.File
			if len(filename) > 38 {
				filename = filename[38:]
			}
			return "", fmt.Sprintf(" %s:%d", filename, f.Line)
		},
	})
}

// signalContext cancels the run on the first INT/TERM so the pipeline
// drains and still writes its report.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Loger.Info("received signal %v, stopping run", sig)
		cancel()
	}()
	return ctx, cancel
}

func outdirOrDefault(outdir string) string {
	if outdir != "" {
		return outdir
	}
	if yamlconfig.GetConfig() != nil {
		return yamlconfig.GetConfig().Report.Outdir
	}
	return "results"
}

// buildExporters assembles the sinks a run writes to while it is going:
// csv always, sqlite and prometheus when configured.
func buildExporters(outdir, sqlitePath, promAddr, bucket, prefix string) ([]exporter.Exporter, *promexporter.PromExporter, error) {
	csvExp, err := exporter.NewCsvExporter(outdir)
	if err != nil {
		return nil, nil, err
	}
	exporters := []exporter.Exporter{csvExp}

	if sqlitePath != "" {
		sqliteCfg := sqlitexporter.NewConfig()
		sqliteCfg.Path = sqlitePath
		sqliteExp, err := sqlitexporter.NewSqliteExporter(sqliteCfg)
		if err != nil {
			return nil, nil, err
		}
		exporters = append(exporters, sqliteExp)
	}

	var promExp *promexporter.PromExporter
	if promAddr != "" {
		promCfg := promexporter.NewConfig()
		promCfg.Addr = promAddr
		promCfg.Labels = []attribute.KeyValue{
			attribute.String("bucket", bucket),
			attribute.String("prefix", prefix),
		}
		promExp = promexporter.NewPromExporter(promCfg)
		promExp.Start()
		exporters = append(exporters, promExp)
	}
	return exporters, promExp, nil
}

func shutdownExporters(exporters []exporter.Exporter) {
	for _, e := range exporters {
		if err := e.Shutdown(); err != nil {
			log.Loger.Warn("exporter shutdown failed:%v", err)
		}
	}
}

func printReport(r *model.RunReport, path string) {
	fmt.Printf("stop reason:       %s\n", r.StopReason)
	fmt.Printf("frames produced:   %d\n", r.Produced)
	fmt.Printf("frames uploaded:   %d\n", r.Success)
	fmt.Printf("frames failed:     %d\n", r.Failed)
	fmt.Printf("frames dropped:    %d\n", r.Dropped)
	fmt.Printf("frames abandoned:  %d\n", r.Abandoned)
	fmt.Printf("bytes uploaded:    %d\n", r.BytesUploaded)
	fmt.Printf("wall seconds:      %.2f\n", r.WallSeconds())
	fmt.Printf("throughput mbps:   %.2f\n", r.ThroughputMbpsWall())
	fmt.Printf("summary:           %s\n", path)
}

func runStream(cfg *config.STREAM) error {
	if cfg.Bucket == "" {
		return fmt.Errorf("stream needs --bucket")
	}
	log.Loger.SetLevel(log.LevelTransform(cfg.LogLevel))

	policy, err := queue.ParsePolicy(cfg.QueuePolicy)
	if err != nil {
		return err
	}

	var src source.FrameSource
	if cfg.Folder != "" {
		src, err = source.NewFolderSource(cfg.Folder, 0)
		if err != nil {
			return err
		}
	} else {
		src = source.NewSyntheticSource(cfg.FrameBytes)
	}
	defer src.Close()

	s3cfg := uploader.NewS3Config()
	s3cfg.Region = cfg.Region
	s3cfg.Endpoint = cfg.Endpoint
	store, err := uploader.NewS3Store(s3cfg)
	if err != nil {
		return err
	}

	outdir := outdirOrDefault(cfg.Outdir)
	exporters, promExp, err := buildExporters(outdir, cfg.Sqlite, cfg.PromAddr, cfg.Bucket, cfg.Prefix)
	if err != nil {
		return err
	}
	defer shutdownExporters(exporters)

	opts := runnerapp.NewOptions()
	opts.Source = src
	opts.Store = store
	opts.QueueSize = cfg.QueueSize
	opts.GraceTimeout = cfg.GraceTimeout
	opts.Exporters = exporters
	opts.Prom = promExp

	opts.ProducerCfg.Prefix = cfg.Prefix
	opts.ProducerCfg.Policy = policy
	opts.ProducerCfg.MaxRunTime = time.Duration(cfg.MaxSeconds) * time.Second
	opts.ProducerCfg.MaxBytes = int64(cfg.MaxMb) * 1024 * 1024

	opts.RetrierCfg.Bucket = cfg.Bucket
	opts.RetrierCfg.MaxAttempts = cfg.Retries + 1
	opts.RetrierCfg.PerAttemptTimeout = cfg.Timeout

	opts.PoolCfg = &uploader.PoolConfig{Workers: cfg.Concurrency}

	opts.ControllerCfg.InitFps = cfg.InitFps
	opts.ControllerCfg.MinFps = cfg.MinFps
	opts.ControllerCfg.MaxFps = cfg.MaxFps

	opts.SamplerCfg = &sampler.Config{Interval: cfg.SysInterval, Nic: cfg.Nic}

	p, err := runnerapp.NewPipeline(opts)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	report, err := p.Run(ctx)
	if err != nil {
		return err
	}

	path, err := exporter.WriteSummary(outdir, report, exporter.SummaryOpts{
		Concurrency: cfg.Concurrency,
		Prefix:      cfg.Prefix,
		Nic:         cfg.Nic,
		SysInterval: cfg.SysInterval,
	})
	if err != nil {
		return err
	}
	printReport(report, path)
	return nil
}

func runFolder(cfg *config.FOLDER) error {
	if cfg.Bucket == "" {
		return fmt.Errorf("folder needs --bucket")
	}
	if cfg.Folder == "" {
		return fmt.Errorf("folder needs --folder")
	}
	log.Loger.SetLevel(log.LevelTransform(cfg.LogLevel))

	src, err := source.NewFolderSource(cfg.Folder, 0)
	if err != nil {
		return err
	}
	defer src.Close()

	s3cfg := uploader.NewS3Config()
	s3cfg.Region = cfg.Region
	s3cfg.Endpoint = cfg.Endpoint
	store, err := uploader.NewS3Store(s3cfg)
	if err != nil {
		return err
	}

	outdir := outdirOrDefault(cfg.Outdir)
	exporters, promExp, err := buildExporters(outdir, cfg.Sqlite, cfg.PromAddr, cfg.Bucket, cfg.Prefix)
	if err != nil {
		return err
	}
	defer shutdownExporters(exporters)

	opts := runnerapp.NewOptions()
	opts.Source = src
	opts.Store = store
	opts.QueueSize = cfg.QueueSize
	opts.GraceTimeout = cfg.GraceTimeout
	opts.Exporters = exporters
	opts.Prom = promExp

	opts.RetrierCfg.Bucket = cfg.Bucket
	opts.RetrierCfg.MaxAttempts = cfg.Retries + 1
	opts.RetrierCfg.PerAttemptTimeout = cfg.Timeout

	opts.PoolCfg = &uploader.PoolConfig{Workers: cfg.Concurrency}
	opts.SamplerCfg = &sampler.Config{Interval: cfg.SysInterval, Nic: cfg.Nic}

	p, err := runnerapp.NewPipeline(opts)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	report, err := p.RunFolder(ctx, src, cfg.Prefix)
	if err != nil {
		return err
	}

	path, err := exporter.WriteSummary(outdir, report, exporter.SummaryOpts{
		Concurrency: cfg.Concurrency,
		Prefix:      cfg.Prefix,
		Nic:         cfg.Nic,
		SysInterval: cfg.SysInterval,
	})
	if err != nil {
		return err
	}
	printReport(report, path)
	return nil
}

func newStreamCmd(cfg *config.STREAM) *cobra.Command {
	vpr := newViper()
	streamCmd := &cobra.Command{
		Use:   "stream [flags]",
		Short: "Paced frame-stream upload benchmark with adaptive fps",
		Args:  cobra.NoArgs,

		RunE: cli.CreateCmdRunFn(cfg, vpr, func(_ *cobra.Command, _ []string) error {
			return runStream(cfg)
		}),
	}

	cli.PopulateFlagSet(cfg, streamCmd.Flags(), vpr)
	return streamCmd
}

func newFolderCmd(cfg *config.FOLDER) *cobra.Command {
	vpr := newViper()
	folderCmd := &cobra.Command{
		Use:   "folder [flags]",
		Short: "Upload every file of a folder once and measure it",
		Args:  cobra.NoArgs,

		RunE: cli.CreateCmdRunFn(cfg, vpr, func(_ *cobra.Command, _ []string) error {
			return runFolder(cfg)
		}),
	}

	cli.PopulateFlagSet(cfg, folderCmd.Flags(), vpr)
	return folderCmd
}

func NewRootCmd(cfg *config.Config) *cobra.Command {
	vpr := newViper()
	rootCmd := &cobra.Command{
		Use: "streamspy [flags] <subcommand>",
		Run: func(cmd *cobra.Command, _ []string) {
			if cfg.Version {
				printVersion(cmd)
			} else {
				printHelpMessage(cmd, nil)
			}
		},
	}

	rootCmd.SetUsageFunc(printUsageMessage)
	rootCmd.SetHelpFunc(printHelpMessage)
	cli.PopulateFlagSet(cfg, rootCmd.Flags(), vpr)
	return rootCmd
}

func printUsageMessage(cmd *cobra.Command) error {
	printHelpMessage(cmd, nil)
	return nil
}

func printHelpMessage(cmd *cobra.Command, _ []string) {
	cmd.Println(DefaultUsageFunc(cmd.Flags(), cmd))
}

func addHelpSubcommand(cmd *cobra.Command) {
	cmd.AddCommand(&cobra.Command{
		Use: "help",
		Run: func(_ *cobra.Command, _ []string) {
			printHelpMessage(cmd, nil)
		},
	})
}

func DefaultUsageFunc(sf *pflag.FlagSet, c *cobra.Command) string {
	var b strings.Builder

	if hasSubCommands(c) {
		headerClr.Fprintf(&b, "SUBCOMMANDS\n")
		tw := tabwriter.NewWriter(&b, 0, 2, 2, ' ', 0)
		for _, subcommand := range c.Commands() {
			if !subcommand.Hidden {
				fmt.Fprintf(tw, "  %s\t%s\n", itemClr.Sprintf(subcommand.Name()), subcommand.Short)
			}
		}
		tw.Flush()
		fmt.Fprintf(&b, "\n")
	}

	if countFlags(c.Flags()) > 0 {
		tw := tabwriter.NewWriter(&b, 0, 2, 2, ' ', 0)
		fmt.Fprintf(tw, "%s\t  %s@new-line@\n", headerClr.Sprintf("FLAGS"), defClr.Sprint("DEFAULT VALUES"))

		sf.VisitAll(func(f *pflag.Flag) {
			if f.Hidden {
				return
			}
			def := f.DefValue

			def = defClr.Sprint(def)
			fmt.Fprintf(tw, "  %s\t%s", itemClr.Sprintf("--"+f.Name), def)
			if f.Usage != "" {
				fmt.Fprintf(tw, "@new-line@    ")
				descClr.Fprint(tw, f.Usage)
			}
			descClr.Fprint(tw, "@new-line@")
			fmt.Fprint(tw, "\n")
		})
		tw.Flush()
	}

	if hasSubCommands(c) {
		b.WriteString("Run 'streamspy SUBCOMMAND --help' for more information on a subcommand.\n")
	}

	return strings.ReplaceAll(b.String(), "@new-line@", "\n")
}

func hasSubCommands(cmd *cobra.Command) bool {
	return cmd.HasSubCommands() && !(len(cmd.Commands()) == 1 && cmd.Commands()[0].Name() == "help")
}

func countFlags(fs *pflag.FlagSet) (n int) {
	fs.VisitAll(func(*pflag.Flag) { n++ })
	return n
}

func init() {
	headerClr = color.New(color.FgGreen)
	itemClr = color.New(color.Bold)
	descClr = color.New()
	defClr = color.New(color.FgYellow)
}
