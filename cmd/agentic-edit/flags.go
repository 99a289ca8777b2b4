package main

import (
	"flag"
	"strings"
)

type stringSlice []string

func (s *stringSlice) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSlice) Set(v string) error {
	*s = append(*s, v)
	return nil
}

type rootArgs struct {
	cfgPath   string
	workdir   string
	policy    string
	eventsLog string
	history   string
	replay    string
	overrides []string
}

func parseRootArgs(args []string) (rootArgs, error) {
	fs := flag.NewFlagSet("agentic-edit", flag.ContinueOnError)
	var root rootArgs
	var overrides stringSlice
	fs.StringVar(&root.cfgPath, "config", "", "Path to config.toml (default ~/.agentic-edit/config.toml)")
	fs.StringVar(&root.workdir, "C", "", "Workspace root (overrides config workdir)")
	fs.StringVar(&root.policy, "policy", "", "Policy profile YAML (overrides config policy_file)")
	fs.StringVar(&root.eventsLog, "events-log", "", "Write every tool event to this log file")
	fs.StringVar(&root.history, "history", "", "Journal every request to this JSONL file")
	fs.StringVar(&root.replay, "replay", "", "Serve the requests recorded in this journal instead of stdin")
	fs.Var(&overrides, "c", "Override config value key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return rootArgs{}, err
	}
	root.overrides = overrides
	return root, nil
}
