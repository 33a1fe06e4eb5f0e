// Package app turns the tutorial's command line into a run request and drives that
// request through the job launcher for the lifetime of the fx application.
package app

import (
	"flag"
	"fmt"
	"io"
	"strings"

	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
)

// CommandLine is the parsed command line of the tutorial binary.
//
//	tutorial [-env file] [-next] [-async] [-serve] [jobName] [name(type)=value ...]
type CommandLine struct {
	EnvFile string
	// JobName overrides batch.job_name. Empty falls back to the configuration.
	JobName string
	Params  model.JobParameters
	// Next derives the parameters from the job's incrementer instead of Params.
	Next bool
	// Async forces polling mode regardless of batch.async.
	Async bool
	// Serve keeps the application running for the HTTP API instead of running one job.
	Serve bool
}

// ParseCommandLine parses args, without the program name. The first positional argument
// without '=' is the job name; the others are job parameters.
func ParseCommandLine(args []string, output io.Writer) (CommandLine, error) {
	var cl CommandLine
	fs := flag.NewFlagSet("tutorial", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&cl.EnvFile, "env", ".env", "path of the .env file")
	fs.BoolVar(&cl.Next, "next", false, "start the next instance using the job's incrementer")
	fs.BoolVar(&cl.Async, "async", false, "launch in the background and poll the execution")
	fs.BoolVar(&cl.Serve, "serve", false, "serve the HTTP API instead of running a job")
	if err := fs.Parse(args); err != nil {
		return cl, err
	}

	rest := fs.Args()
	if len(rest) > 0 && !strings.Contains(rest[0], "=") {
		cl.JobName = rest[0]
		rest = rest[1:]
	}
	params, err := model.ParseJobParameters(rest)
	if err != nil {
		return cl, err
	}
	cl.Params = params
	if cl.Next && len(rest) > 0 {
		return cl, fmt.Errorf("-next derives the job parameters, but %d were given", len(rest))
	}
	return cl, nil
}
