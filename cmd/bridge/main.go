// Command bridge runs the Discord bridge.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"net/http/pprof"

	"github.com/VictoriaMetrics/metrics"
	"github.com/hashicorp/go-envparse"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/vulpinegames/kubebridge/pkg/bridge"
	"github.com/vulpinegames/kubebridge/pkg/chat/discord"
)

var opt struct {
	Help bool
}

func init() {
	pflag.BoolVarP(&opt.Help, "help", "h", false, "Show this help text")
}

func main() {
	pflag.Parse()

	if pflag.NArg() > 1 || opt.Help {
		fmt.Printf("usage: %s [options] [env_file]\n\noptions:\n%s\nnote: if env_file is provided, config from the environment is ignored\n", os.Args[0], pflag.CommandLine.FlagUsages())
		if opt.Help {
			os.Exit(2)
		}
		os.Exit(0)
	}

	var e []string
	if pflag.NArg() == 0 {
		e = os.Environ()
	} else {
		if x, err := readEnv(pflag.Arg(0)); err == nil {
			e = x
		} else {
			fmt.Fprintf(os.Stderr, "error: read env file: %v\n", err)
			os.Exit(1)
		}
	}

	var c bridge.Config
	if err := c.UnmarshalEnv(e); err != nil {
		fmt.Fprintf(os.Stderr, "error: parse config: %v\n", err)
		os.Exit(1)
	}

	log := configureLogging(c.LogPretty, c.Debug)

	adapter, err := discord.New(c.DiscordToken, c.DiscordGuildID, log.With().Str("component", "discord").Logger())
	if err != nil {
		log.Err(err).Msg("failed to initialize discord adapter")
		os.Exit(1)
	}

	b := bridge.New(&c, adapter, log.With().Str("component", "bridge").Logger())

	if c.DebugServerAddr != "" {
		go runDebugServer(c.DebugServerAddr, b)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Err(err).Msg("bridge error")
		os.Exit(1)
	}
}

func configureLogging(pretty, debug bool) zerolog.Logger {
	var w = zerolog.MultiLevelWriter(os.Stdout)
	if pretty {
		w = zerolog.MultiLevelWriter(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

func runDebugServer(addr string, b *bridge.Bridge) {
	fmt.Fprintf(os.Stderr, "warning: running insecure debug server on %q\n", addr)

	dbg := http.NewServeMux()
	dbg.HandleFunc("/debug/pprof/", pprof.Index)
	dbg.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	dbg.HandleFunc("/debug/pprof/profile", pprof.Profile)
	dbg.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	dbg.HandleFunc("/debug/pprof/trace", pprof.Trace)
	dbg.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		metrics.WriteProcessMetrics(w)
		b.WritePrometheus(w)
	})

	if err := http.ListenAndServe(addr, dbg); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to start debug server: %v\n", err)
	}
}

func readEnv(name string) ([]string, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := envparse.Parse(f)
	if err != nil {
		return nil, err
	}

	var r []string
	for k, v := range m {
		r = append(r, k+"="+v)
	}
	return r, nil
}
