// Command tempuslate renders a template against a JSON document.
//
//	tempuslate --data response.json --template receipt.txt [--out receipt.out] [--max-steps N]
//
// A data path of "-" reads the document from standard input. Output goes
// to standard output unless --out names a file, which is replaced
// atomically once rendering succeeds.
package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/CTAG07/sdxstore/pkg/templating"
	"github.com/natefinch/atomic"
	"github.com/spf13/pflag"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type options struct {
	dataPath     string
	templatePath string
	outPath      string
	maxSteps     int
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("tempuslate", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&opts.dataPath, "data", "d", "./test.json", `JSON document to render ("-" for stdin)`)
	flagSet.StringVarP(&opts.templatePath, "template", "t", "./template.txt", "template file")
	flagSet.StringVarP(&opts.outPath, "out", "o", "", "write output to this file instead of stdout")
	flagSet.IntVar(&opts.maxSteps, "max-steps", 0, "stop after this many render steps (0 for no limit)")
	if err := flagSet.Parse(args); err != nil {
		return opts, err
	}
	if extra := flagSet.Args(); len(extra) > 0 {
		return opts, fmt.Errorf("unexpected argument: %s", extra[0])
	}
	return opts, nil
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	if err = render(opts, stdin, stdout); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func render(opts options, stdin io.Reader, stdout io.Writer) error {
	doc, err := readDocument(opts.dataPath, stdin)
	if err != nil {
		return err
	}
	template, err := os.ReadFile(opts.templatePath)
	if err != nil {
		return fmt.Errorf("failed to read template: %w", err)
	}

	renderer := templating.Renderer{MaxSteps: opts.maxSteps}
	if opts.outPath == "" {
		return renderer.Render(stdout, string(template), doc)
	}

	var buf bytes.Buffer
	if err = renderer.Render(&buf, string(template), doc); err != nil {
		return err
	}
	if err = atomic.WriteFile(opts.outPath, &buf); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func readDocument(path string, stdin io.Reader) (any, error) {
	if path == "-" {
		return templating.Decode(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	defer func() { _ = f.Close() }()
	return templating.Decode(f)
}
