// Package config loads the broker's tunables — tick interval, failure
// interval, fail threshold, worker pool size, claim retry policy — from
// an optional YAML file, applied over a set of built-in defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JBlaschke/nsm-rs-sub000/internal/heartbeat"
	"github.com/JBlaschke/nsm-rs-sub000/internal/nsmerr"
)

// Heartbeat mirrors heartbeat.Config with YAML-friendly duration fields.
type Heartbeat struct {
	TickIntervalMS    int `yaml:"tick_interval_ms"`
	FailureIntervalMS int `yaml:"failure_interval_ms"`
	FailThreshold     int `yaml:"fail_threshold"`
	Workers           int `yaml:"workers"`
}

// Claim holds the CLAIM retry policy.
type Claim struct {
	PollIntervalMS int `yaml:"poll_interval_ms"`
	PollAttempts   int `yaml:"poll_attempts"`
}

// Broker is the top-level tunables document.
type Broker struct {
	Heartbeat Heartbeat `yaml:"heartbeat"`
	Claim     Claim     `yaml:"claim"`
	// TimeoutSeconds is the registry's claim staleness threshold.
	TimeoutSeconds int64 `yaml:"timeout_seconds"`
}

// Default returns the broker's built-in defaults, used when no config
// file is supplied.
func Default() Broker {
	return Broker{
		Heartbeat: Heartbeat{
			TickIntervalMS:    int(heartbeat.DefaultTickInterval.Milliseconds()),
			FailureIntervalMS: int(heartbeat.DefaultFailureInterval.Milliseconds()),
			FailThreshold:     heartbeat.DefaultFailThreshold,
			Workers:           heartbeat.DefaultWorkers,
		},
		Claim: Claim{
			PollIntervalMS: 1000,
			PollAttempts:   6,
		},
		TimeoutSeconds: 60,
	}
}

// Load reads path as YAML over top of Default(), so a config file may
// override only the fields it mentions. A missing path is not an error —
// it returns the defaults.
func Load(path string) (Broker, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Broker{}, nsmerr.Transport(nsmerr.ErrConfig, fmt.Errorf("read config %q: %w", path, err))
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Broker{}, nsmerr.Transport(nsmerr.ErrConfig, fmt.Errorf("parse config %q: %w", path, err))
	}
	return cfg, nil
}

// HeartbeatConfig converts the YAML tunables to heartbeat.Config.
func (b Broker) HeartbeatConfig() heartbeat.Config {
	return heartbeat.Config{
		TickInterval:    time.Duration(b.Heartbeat.TickIntervalMS) * time.Millisecond,
		FailureInterval: time.Duration(b.Heartbeat.FailureIntervalMS) * time.Millisecond,
		FailThreshold:   b.Heartbeat.FailThreshold,
		Workers:         b.Heartbeat.Workers,
	}
}

// ClaimPollInterval converts the claim retry policy's interval field.
func (b Broker) ClaimPollInterval() time.Duration {
	return time.Duration(b.Claim.PollIntervalMS) * time.Millisecond
}

// ClaimPollAttempts is the number of CLAIM pairing attempts before giving
// up and returning an empty ACK.
func (b Broker) ClaimPollAttempts() int {
	return b.Claim.PollAttempts
}
