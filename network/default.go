// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Process-wide Network used by the facade package.

package network

import (
	"fmt"
	"sync"

	"github.com/momentics/hioload-net/api"
)

var (
	defaultMu  sync.Mutex
	defaultCfg = DefaultConfig()
	defaultNet *Network
)

// Configure sets the configuration of the default Network. It fails once
// the default Network is running.
func Configure(cfg Config) error {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultNet != nil {
		return fmt.Errorf("default network already started: %w", api.ErrAlreadyExists)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	defaultCfg = cfg
	return nil
}

// Default returns the process-wide Network, creating it on first use.
func Default() (*Network, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultNet != nil {
		return defaultNet, nil
	}
	n, err := New(defaultCfg)
	if err != nil {
		return nil, err
	}
	defaultNet = n
	return n, nil
}

// CloseDefault closes the process-wide Network. A later Default call starts
// a fresh one.
func CloseDefault() error {
	defaultMu.Lock()
	n := defaultNet
	defaultNet = nil
	defaultMu.Unlock()
	if n == nil {
		return nil
	}
	return n.Close()
}
