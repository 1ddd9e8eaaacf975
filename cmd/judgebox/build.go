package main

import (
	"os"

	"github.com/criyle/judgebox/capability"
	"github.com/criyle/judgebox/cmd/judgebox/config"
	"github.com/criyle/judgebox/env"
	"github.com/criyle/judgebox/envexec"
	"github.com/criyle/judgebox/iochan"
	"github.com/criyle/judgebox/runner"
	"go.uber.org/zap"
	"golang.org/x/net/bpf"
)

func newGate(conf *config.Config) (*capability.Gate, []bpf.RawInstruction) {
	policy, err := capability.LoadPolicy(conf.PolicyConf, conf.ExitCode)
	if err != nil {
		logger.Fatal("Load capability policy failed", zap.Error(err))
	}
	syscalls, err := capability.LoadSyscallPolicy(conf.SeccompConf)
	if err != nil {
		logger.Fatal("Load seccomp policy failed", zap.Error(err))
	}
	gate := capability.New(policy, syscalls, logger)
	if conf.DisableSeccomp {
		logger.Warn("Seccomp filter disabled")
		return gate, nil
	}
	filter, err := gate.Filter()
	if err != nil {
		logger.Fatal("Assemble seccomp filter failed", zap.Error(err))
	}
	logger.Info("Capability gate created",
		zap.Int("exitCode", policy.ExitCode),
		zap.Strings("readable", policy.ReadablePrefixes),
		zap.Bool("customSyscalls", syscalls != nil),
		zap.Int("filterLen", len(filter)))
	return gate, filter
}

func newRunner(conf *config.Config, gate *capability.Gate, filter []bpf.RawInstruction) *runner.Runner {
	e, err := env.New(env.Config{
		WorkDir: conf.WorkDir,
		Seccomp: filter,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal("Create environment failed", zap.Error(err))
	}
	args, err := conf.Args()
	if err != nil {
		logger.Fatal("Parse extra args failed", zap.Error(err))
	}
	var stack envexec.Size
	if conf.StackLimit != nil {
		stack = *conf.StackLimit
	}
	rc := runner.Config{
		Environment:         e,
		Channels:            iochan.New(int64(*conf.OutputLimit)),
		Gate:                gate,
		Slack:               conf.DeadlineSlack,
		MemoryCheckInterval: conf.MemoryInterval,
		ExtraArgs:           args,
		Env:                 os.Environ(),
		OutputLimit:         *conf.OutputLimit,
		ExtraMemoryLimit:    *conf.ExtraMemoryLimit,
		StackLimit:          stack,
		Logger:              logger,
	}
	if conf.EnableMetrics {
		rc.Observer = caseObserve
	}
	return runner.New(rc)
}
