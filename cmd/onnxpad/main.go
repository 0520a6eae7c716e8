// Package main provides the onnxpad CLI.
//
// Usage:
//
//	onnxpad [flags] model.onnx [more.onnx ...]
//	onnxpad version
//
// Each model is written next to its source as <name>_barracuda.onnx unless
// -o names the destination of a single model.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"

	"github.com/born-ml/onnxpad/onnxpad"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const version = "v0.1.0"

type config struct {
	output   string
	suffix   string
	strict   bool
	checkOps bool
	jobs     int
	metrics  string
	verbose  bool
	info     bool
	dryRun   bool
	files    []string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 && args[0] == "version" {
		fmt.Fprintf(stdout, "onnxpad %s\n", version)
		return 0
	}

	cfg, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 2
	}

	logger := logrus.New()
	logger.SetOutput(stderr)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if cfg.verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	if cfg.info {
		return printInfo(cfg.files, stdout, logger)
	}
	return convertAll(cfg, logger)
}

func parseFlags(args []string, stderr io.Writer) (*config, error) {
	cfg := &config{}
	fs := flag.NewFlagSet("onnxpad", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.output, "o", "", "output path (single input only)")
	fs.StringVar(&cfg.suffix, "suffix", onnxpad.DefaultSuffix, "suffix added to output file names")
	fs.BoolVar(&cfg.strict, "strict", false, "reject Pad nodes a channel concat cannot reproduce")
	fs.BoolVar(&cfg.checkOps, "check-ops", false, "fail if the result uses operators Barracuda lacks")
	fs.IntVar(&cfg.jobs, "j", runtime.GOMAXPROCS(0), "models converted in parallel")
	fs.StringVar(&cfg.metrics, "metrics", "", "write Prometheus metrics to this textfile")
	fs.BoolVar(&cfg.verbose, "v", false, "log every rewritten node")
	fs.BoolVar(&cfg.info, "info", false, "print model information and exit")
	fs.BoolVar(&cfg.dryRun, "dry-run", false, "convert and validate without writing")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: onnxpad [flags] model.onnx [more.onnx ...]\n       onnxpad version\n\nFlags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.files = fs.Args()
	if len(cfg.files) == 0 {
		fs.Usage()
		return nil, errors.New("no input models")
	}
	if cfg.output != "" && len(cfg.files) > 1 {
		return nil, errors.New("-o needs exactly one input model")
	}
	if cfg.jobs < 1 {
		cfg.jobs = 1
	}
	return cfg, nil
}

func printInfo(files []string, stdout io.Writer, logger *logrus.Logger) int {
	status := 0
	for _, path := range files {
		info, err := onnxpad.GetModelInfo(path)
		if err != nil {
			logger.WithField("file", path).Error(err)
			status = 1
			continue
		}
		fmt.Fprintf(stdout, "%s\n", path)
		fmt.Fprintf(stdout, "  producer: %s %s\n", info.ProducerName, info.ProducerVersion)
		fmt.Fprintf(stdout, "  ir: %d  opset: %d\n", info.IRVersion, info.OpsetVersion)
		fmt.Fprintf(stdout, "  inputs: %v\n", info.InputNames)
		fmt.Fprintf(stdout, "  outputs: %v\n", info.OutputNames)
		fmt.Fprintf(stdout, "  nodes: %d  initializers: %d\n", info.NodeCount, info.WeightCount)

		ops := make([]string, 0, len(info.OpCounts))
		for op := range info.OpCounts {
			ops = append(ops, op)
		}
		sort.Strings(ops)
		for _, op := range ops {
			fmt.Fprintf(stdout, "    %-24s %d\n", op, info.OpCounts[op])
		}
	}
	return status
}

func convertAll(cfg *config, logger *logrus.Logger) int {
	reg := prometheus.NewRegistry()
	metrics := onnxpad.NewMetrics(reg)

	var g errgroup.Group
	g.SetLimit(cfg.jobs)
	for _, src := range cfg.files {
		src := src
		g.Go(func() error {
			log := logger.WithField("file", src)
			opts := onnxpad.Options{
				Strict:   cfg.strict,
				CheckOps: cfg.checkOps,
				Logger:   log,
				Metrics:  metrics,
			}
			if err := convertOne(cfg, src, opts, log); err != nil {
				log.Error(err)
				return err
			}
			return nil
		})
	}
	err := g.Wait()

	if cfg.metrics != "" {
		if werr := prometheus.WriteToTextfile(cfg.metrics, reg); werr != nil {
			logger.WithError(werr).Error("write metrics")
			return 1
		}
	}
	if err != nil {
		return 1
	}
	return 0
}

func convertOne(cfg *config, src string, opts onnxpad.Options, log logrus.FieldLogger) error {
	if cfg.dryRun {
		model, err := onnxpad.Load(src)
		if err != nil {
			return err
		}
		report, err := onnxpad.Convert(model, opts)
		if err != nil {
			return err
		}
		log.WithField("rewritten", report.Stats.Total()).Info("dry run ok")
		return nil
	}

	dst := cfg.output
	if dst == "" {
		dst = onnxpad.OutputPath(src, cfg.suffix)
	}
	report, err := onnxpad.ConvertFile(src, dst, opts)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"output":    report.Destination,
		"rewritten": report.Stats.Total(),
	}).Info("converted")
	return nil
}
