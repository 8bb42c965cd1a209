// Command provisionctl runs tenant email-domain operations from a shell.
//
//	provisionctl [-config path] provision <handle>
//	provisionctl [-config path] deprovision <handle>
//	provisionctl [-config path] runs <handle> [limit]
//	provisionctl normalize <raw>
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/ignite/tenant-domains/internal/bootstrap"
	"github.com/ignite/tenant-domains/internal/config"
	"github.com/ignite/tenant-domains/internal/handle"
	"github.com/ignite/tenant-domains/internal/provisioning"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: provisionctl [-config path] <command> <handle>

commands:
  provision <handle>      create send.<handle>.<base> and publish its records
  deprovision <handle>    remove the records and the provider domain
  runs <handle> [limit]   show journaled runs
  normalize <raw>         print the normalized handle
`)
	os.Exit(2)
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 2 {
		usage()
	}
	cmd, arg := flag.Arg(0), flag.Arg(1)

	if cmd == "normalize" {
		fmt.Println(handle.Normalize(arg))
		return
	}

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *verbose {
		cfg.Logging.Level = "debug"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer app.Close()

	var out interface{}
	exitCode := 0

	switch cmd {
	case "provision":
		res, err := app.Service.ProvisionEmailDomain(ctx, arg)
		if err != nil {
			log.Fatalf("provision: %v", err)
		}
		if !res.OverallSuccess {
			exitCode = 1
		}
		out = res
	case "deprovision":
		res, err := app.Service.DeprovisionEmailDomain(ctx, arg)
		if err != nil {
			log.Fatalf("deprovision: %v", err)
		}
		if hasFailure(res.Failed()) {
			exitCode = 1
		}
		out = res
	case "runs":
		limit := 0
		if flag.NArg() > 2 {
			if limit, err = strconv.Atoi(flag.Arg(2)); err != nil {
				log.Fatalf("limit: %v", err)
			}
		}
		runs, err := app.Service.History(ctx, arg, limit)
		if err != nil {
			log.Fatalf("runs: %v", err)
		}
		out = runs
	default:
		usage()
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatalf("encode: %v", err)
	}
	if exitCode != 0 {
		app.Close()
		os.Exit(exitCode)
	}
}

// hasFailure reports an unsuccessful step that was not a skip.
func hasFailure(failed []provisioning.StepOutcome) bool {
	for _, s := range failed {
		if !provisioning.IsSkip(s.Error) {
			return true
		}
	}
	return false
}
