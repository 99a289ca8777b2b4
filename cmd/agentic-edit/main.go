package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"agentic-edit/internal/config"
	"agentic-edit/internal/events"
	"agentic-edit/internal/history"
	"agentic-edit/internal/logger"
	"agentic-edit/internal/tools"
)

var log = logger.Named("cli")

func main() {
	logger.Configure()
	root, err := parseRootArgs(os.Args[1:])
	if err != nil {
		log.Fatalf("parse args: %v", err)
	}

	cfg, err := config.Load(root.cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg = config.ApplyKVOverrides(cfg, root.overrides)
	if root.workdir != "" {
		cfg.Workdir = root.workdir
	}
	if root.policy != "" {
		cfg.PolicyFile = root.policy
	}
	if cfg.LogLevel != "" {
		if err := logger.SetLevel(cfg.LogLevel); err != nil {
			log.Warnf("invalid log level %q: %v", cfg.LogLevel, err)
		}
	}

	if logFile, _, err := logger.SetupFile(cfg.LogPath); err != nil {
		log.Warnf("failed to initialize log file: %v", err)
	} else {
		defer logFile.Close()
	}
	toolsLogPath := cfg.ToolsLogPath
	if toolsLogPath == "" {
		toolsLogPath = tools.DefaultToolsLogPath
	}
	if toolsCloser, err := tools.SetupToolsLog(toolsLogPath); err != nil {
		log.Warnf("failed to initialize tools log (%s): %v", toolsLogPath, err)
	} else if toolsCloser != nil {
		defer toolsCloser.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := buildServices(cfg)
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	defer svc.Close()

	bus := events.NewBusSize(1024)
	defer bus.Close()
	if root.eventsLog != "" {
		entry, closer := events.OpenTraceLog(root.eventsLog)
		if closer != nil {
			defer closer.Close()
		}
		events.Trace(ctx, bus, entry)
	}

	log.Infof("serving tools for %s (sandbox=%s approval=%s)", svc.session.Workspace.Root(), svc.session.Policy.SandboxMode, svc.session.Policy.ApprovalPolicy)
	srv := newServer(svc, bus, os.Stdout)
	if root.history != "" {
		srv.withJournal(history.New(root.history))
	}
	var in io.Reader = os.Stdin
	if root.replay != "" {
		entries, err := history.New(root.replay).Load("")
		if err != nil {
			log.Fatalf("load replay journal: %v", err)
		}
		log.Infof("replaying %d requests from %s", len(entries), root.replay)
		in = strings.NewReader(strings.Join(history.Requests(entries), "\n"))
	}
	if err := srv.serve(ctx, in); err != nil {
		log.Fatalf("serve: %v", err)
	}
}
