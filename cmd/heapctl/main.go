// Command heapctl exercises a heap manager from the command line: load a
// config, optionally start the HTTP/3 diagnostics endpoint, run a demo
// allocation workload, and print the resulting statistics.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"unsafe"

	"github.com/orizon-lang/heapmgr/internal/allocator"
	"github.com/orizon-lang/heapmgr/internal/cli"
)

func main() {
	var (
		showVersion bool
		jsonOutput  bool
		configFile  string
		diagAddr    string
		watch       bool
		workload    int
	)

	flag.BoolVar(&showVersion, "version", false, "show version information")
	flag.BoolVar(&jsonOutput, "json", false, "output version/stats in JSON format")
	flag.StringVar(&configFile, "config", "", "heap manager configuration file (JSON)")
	flag.StringVar(&diagAddr, "diag", "", "start the HTTP/3 diagnostics server on this address (overrides config)")
	flag.BoolVar(&watch, "watch", false, "hot-reload the config file while running")
	flag.IntVar(&workload, "workload", 1000, "number of demo allocate/free cycles to run")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Drives a heapmgr HeapManager through a demo workload.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if showVersion {
		cli.PrintVersion("heapctl", jsonOutput)
		return
	}

	logger := cli.NewLogger(true, false)

	cfg := defaultOrLoadedConfig(configFile, logger)
	if diagAddr != "" {
		cfg.DiagAddr = diagAddr
	}

	source, err := cfg.NewBreakSource()
	if err != nil {
		cli.ExitWithError("failed to construct break source: %v", err)
	}

	h := allocator.New(source, allocator.WithSpeculativeTries(cfg.SpeculativeTries))

	var watcher interface{ Close() error }

	if watch && configFile != "" {
		cw, errC, err := allocator.WatchConfig(configFile, h)
		if err != nil {
			cli.ExitWithError("failed to watch config: %v", err)
		}

		watcher = cw

		go func() {
			for err := range errC {
				logger.Warn("config reload: %v", err)
			}
		}()
	}

	var diag *allocator.DiagServer

	if cfg.DiagAddr != "" {
		diag, err = allocator.StartDiagServer(h, cfg.DiagAddr)
		if err != nil {
			cli.ExitWithError("failed to start diagnostics server: %v", err)
		}

		logger.Info("diagnostics listening on %s", diag.Addr())
	}

	runWorkload(h, workload)

	stats := h.Stats()
	if jsonOutput {
		data, err := json.Marshal(stats)
		if err != nil {
			cli.ExitWithError("failed to marshal stats to JSON: %v", err)
		}

		fmt.Println(string(data))
	} else {
		fmt.Printf("alloc_count=%d free_count=%d extend_count=%d active_regions=%d\n",
			stats.AllocCount, stats.FreeCount, stats.ExtendCount, stats.ActiveRegions)
	}

	if diag != nil {
		waitForSignal(logger)
		_ = diag.Close()
	}

	if watcher != nil {
		_ = watcher.Close()
	}
}

func defaultOrLoadedConfig(path string, logger *cli.Logger) allocator.Config {
	defaults := allocator.Config{SchemaVersion: "1.0.0", SpeculativeTries: 3}
	if path == "" {
		return defaults
	}

	cfg, err := allocator.LoadConfig(path)
	if err != nil {
		logger.Warn("using defaults: %v", err)
		return defaults
	}

	return cfg
}

// runWorkload allocates and frees a mix of sizes to exercise split,
// coalesce, and arena extension paths.
func runWorkload(h *allocator.HeapManager, n int) {
	sizes := []uintptr{24, 48, 100, 256, 1000, 4096}
	ptrs := make([]unsafe.Pointer, 0, n)

	for i := 0; i < n; i++ {
		s := sizes[i%len(sizes)]

		p := h.Allocate(s)
		if p == nil {
			continue
		}

		ptrs = append(ptrs, p)

		if i%3 == 0 && len(ptrs) > 0 {
			h.Free(ptrs[0])
			ptrs = ptrs[1:]
		}
	}

	for _, p := range ptrs {
		h.Free(p)
	}
}

func waitForSignal(logger *cli.Logger) {
	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, os.Interrupt, syscall.SIGTERM)

	logger.Info("serving diagnostics, press ctrl-c to stop")

	<-sigC
}
