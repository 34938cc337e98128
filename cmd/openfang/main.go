// Openfang is the core bridge binary: it loads a YAML configuration
// describing enabled channel adapters and router bindings, then either runs
// the bridge loop or executes one of the management subcommands below.
//
// Usage:
//
//	openfang [--config path] <subcommand> [args...]
//
// Subcommands:
//
//	channel {list|setup|test|enable|disable}
//	vault {init|set|list|remove}
//	run
//
// Environment variables:
//
//	OPENFANG_CONFIG  - path to the YAML config file (default: ./openfang.yaml)
//	OPENFANG_VAULT_PASSPHRASE - passphrase used to unlock the credential vault
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openfang/openfang/internal/openfang/app"
)

// Exit codes per the CLI surface contract: 0 success, 1 handled error, 2 usage error.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return exitUsage
	}

	configPath := envOr("OPENFANG_CONFIG", "./openfang.yaml")
	if args[0] == "--config" && len(args) >= 2 {
		configPath = args[1]
		args = args[2:]
		if len(args) == 0 {
			usage()
			return exitUsage
		}
	}
	sub := args[0]
	rest := args[1:]

	switch sub {
	case "run":
		return runBridge(configPath)
	case "channel":
		return runChannelCmd(configPath, rest)
	case "vault":
		return runVaultCmd(configPath, rest)
	case "help", "-h", "--help":
		usage()
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", sub)
		usage()
		return exitUsage
	}
}

func runBridge(configPath string) int {
	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitError
	}

	a, err := app.New(cfg, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitError
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("received shutdown signal")
		cancel()
	}()

	if err := a.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		a.Stop(context.Background())
		return exitError
	}

	a.Stop(context.Background())
	return exitOK
}

func runChannelCmd(configPath string, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: openfang channel {list|setup|test|enable|disable}")
		return exitUsage
	}

	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitError
	}
	a, err := app.New(cfg, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitError
	}

	switch args[0] {
	case "list":
		for tag, ad := range a.Adapters() {
			fmt.Printf("%-12s %s\n", tag, ad.Name())
		}
		return exitOK

	case "test":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: openfang channel test <tag>")
			return exitUsage
		}
		found := false
		for tag, ad := range a.Adapters() {
			if string(tag) == args[1] {
				found = true
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if _, err := ad.Start(ctx); err != nil {
					fmt.Fprintf(os.Stderr, "channel %q failed to start: %v\n", args[1], err)
					return exitError
				}
				fmt.Printf("channel %q started successfully\n", args[1])
			}
		}
		if !found {
			fmt.Fprintf(os.Stderr, "channel %q is not configured\n", args[1])
			return exitError
		}
		return exitOK

	case "setup":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: openfang channel setup <tag> <credentials.toml>")
			return exitUsage
		}
		return runChannelSetup(a, args[1], args[2])

	case "enable", "disable":
		fmt.Fprintf(os.Stderr, "channel %s: edit %s and rerun; there is no interactive wizard\n", args[0], configPath)
		return exitOK

	default:
		fmt.Fprintf(os.Stderr, "unknown channel subcommand %q\n", args[0])
		return exitUsage
	}
}

func runChannelSetup(a *app.App, tag, credentialPath string) int {
	cf, err := app.LoadCredentialFile(credentialPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitError
	}
	if len(cf.Secrets) == 0 {
		fmt.Fprintf(os.Stderr, "credential file %s declares no [secrets]\n", credentialPath)
		return exitUsage
	}

	passphrase := os.Getenv("OPENFANG_VAULT_PASSPHRASE")
	if passphrase == "" {
		fmt.Fprintln(os.Stderr, "OPENFANG_VAULT_PASSPHRASE must be set")
		return exitUsage
	}
	v := a.Vault()
	if err := v.Unlock(passphrase); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitError
	}

	for name, value := range cf.Secrets {
		key := app.VaultKey(tag, name)
		if err := v.Set(key, []byte(value)); err != nil {
			fmt.Fprintf(os.Stderr, "error: set %s: %v\n", key, err)
			return exitError
		}
	}
	fmt.Printf("channel %q: stored %d secret(s) from %s\n", tag, len(cf.Secrets), credentialPath)
	return exitOK
}

func runVaultCmd(configPath string, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: openfang vault {init|set|list|remove}")
		return exitUsage
	}

	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitError
	}
	a, err := app.New(cfg, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitError
	}
	v := a.Vault()
	passphrase := os.Getenv("OPENFANG_VAULT_PASSPHRASE")
	if passphrase == "" {
		fmt.Fprintln(os.Stderr, "OPENFANG_VAULT_PASSPHRASE must be set")
		return exitUsage
	}

	switch args[0] {
	case "init":
		if err := v.Init(passphrase); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return exitError
		}
		return exitOK

	case "set":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: openfang vault set <name> <value>")
			return exitUsage
		}
		if err := v.Unlock(passphrase); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return exitError
		}
		if err := v.Set(args[1], []byte(args[2])); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return exitError
		}
		return exitOK

	case "list":
		if err := v.Unlock(passphrase); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return exitError
		}
		for _, name := range v.ListKeys() {
			fmt.Println(name)
		}
		return exitOK

	case "remove":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: openfang vault remove <name>")
			return exitUsage
		}
		if err := v.Unlock(passphrase); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return exitError
		}
		if err := v.Remove(args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return exitError
		}
		return exitOK

	default:
		fmt.Fprintf(os.Stderr, "unknown vault subcommand %q\n", args[0])
		return exitUsage
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: openfang [--config path] <channel|vault|run> ...")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
