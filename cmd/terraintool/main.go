// terraintool is a CLI utility for terrain region stores.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Faultbox/terrainer/internal/config"
	"github.com/Faultbox/terrainer/internal/logger"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "gen", "generate":
		cmdGen(args)
	case "info":
		cmdInfo(args)
	case "verify":
		cmdVerify(args)
	case "simulate", "sim":
		cmdSimulate(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`terraintool - terrain region store utility

Usage:
  terraintool <command> [options]

Commands:
  gen [options]                Generate a synthetic region store
  info <region.bin>...         Show region headers
  verify [options]             Scan a store and check every minmax pyramid
  simulate [options]           Run a scripted flight through selection and streaming

Shared options:
  -config <file>   Config file (default ./terrain.yaml)
  -dir <dir>       Region directory
  -far-view <d>    Far view distance
  -locked          Open regions read-only
  -debug           Enable debug logging

Examples:
  terraintool gen -dir ./world -lods 4
  terraintool info ./world/region_0_0.bin
  terraintool verify -dir ./world
  terraintool simulate -dir ./world -frames 600 -camera fly -trace frames.jsonl.zst`)
}

// setup parses a subcommand's flags, loads the config and starts logging.
func setup(fs *flag.FlagSet, flags *config.Flags, args []string) *config.Config {
	fs.Parse(args)

	cfg, err := config.Load(flags)
	if err != nil {
		fatalf("Config error: %v", err)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fatalf("Logger error: %v", err)
	}
	return cfg
}

func fatalf(format string, args ...any) {
	logger.Sync()
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
