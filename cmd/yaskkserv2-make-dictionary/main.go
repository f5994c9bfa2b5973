// Command yaskkserv2-make-dictionary builds a sealed container (spec §4.3,
// §4.4) from one or more textual SKK jisyo source files.
//
// CLI wiring follows the teacher's main.go/cmd-*.go shape: a single
// urfave/cli/v2 command with positional source paths and an output-path
// flag.
package main

import (
	"os"
	"sort"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/wachikun/yaskkserv2/internal/codec"
	"github.com/wachikun/yaskkserv2/internal/container"
	"github.com/wachikun/yaskkserv2/internal/dictbuild"
)

func main() {
	app := &cli.App{
		Name:        "yaskkserv2-make-dictionary",
		Description: "build a yaskkserv2 dictionary container from one or more SKK jisyo files",
		ArgsUsage:   "<source-jisyo>... ",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dictionary-filename", Value: "dictionary.yaskkserv2", Usage: "output container path"},
			&cli.StringFlag{Name: "encoding-table", Required: true, Usage: "path to the packed legacy/UTF-8 codec table"},
			&cli.BoolFlag{Name: "utf8", Usage: "emit a UTF-8-encoded container instead of legacy-encoded"},
			&cli.BoolFlag{Name: "verbose", Usage: "log every skipped or corrected source line"},
		},
		Action: runBuild,
	}

	if err := app.Run(os.Args); err != nil {
		klog.Fatal(err)
	}
}

func runBuild(c *cli.Context) error {
	sources := c.Args().Slice()
	if len(sources) == 0 {
		return cli.Exit("must provide one or more source jisyo files", 1)
	}
	sort.Strings(sources)

	tableBytes, err := os.ReadFile(c.String("encoding-table"))
	if err != nil {
		return cli.Exit("read encoding table: "+err.Error(), 1)
	}
	table, err := codec.ParseTable(tableBytes)
	if err != nil {
		return cli.Exit("parse encoding table: "+err.Error(), 1)
	}

	outputEncoding := container.EncodingEuc
	if c.Bool("utf8") {
		outputEncoding = container.EncodingUtf8
	}

	cfg := dictbuild.Config{
		SourcePaths:    sources,
		OutputPath:     c.String("dictionary-filename"),
		OutputEncoding: outputEncoding,
		Codec:          codec.New(table),
		CodecTable:     tableBytes,
		Verbose:        c.Bool("verbose"),
	}

	if err := dictbuild.Build(cfg); err != nil {
		klog.Fatalf("yaskkserv2-make-dictionary: build failed: %v", err)
	}
	klog.Infof("yaskkserv2-make-dictionary: wrote %s from %d source(s)", cfg.OutputPath, len(sources))
	return nil
}
