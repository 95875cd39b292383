// Package config parses the dimmon configuration file format: a list of
// module paths, a starter node type name, and a verbatim remainder handed
// to the starter node as a file descriptor. Hand-rolled with bufio.Scanner
// rather than a general-purpose format, because the grammar below (module
// lines / == / starter line / == / raw remainder) has no off-the-shelf
// parser and the line count at the second separator must be reported
// exactly to the STARTUP message.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const maxLineLen = 4096

// Config is the parsed form of a dimmon configuration file.
type Config struct {
	// ModulePaths are the dynamic-module lines read before the first ==.
	// dimmon links node types in at build time (see pkg/kernel's registry
	// and cmd/dimmon/main.go), so these are kept only for diagnostic
	// parity with the original file format: logged at startup, never
	// dlopen'd.
	ModulePaths []string

	// StarterType names the registered node type that receives STARTUP.
	StarterType string

	// RemainderPath is the file the verbatim remainder was read from;
	// RemainderLine is the 1-indexed line number at which the remainder
	// begins. The STARTUP payload (kernel.StartupPayload) carries
	// RemainderLine together with a descriptor opened by OpenRemainder;
	// the path itself is not carried.
	RemainderPath string
	RemainderLine int
}

// Load reads and parses path, matching §6's configuration file format.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config %s: %w", path, err)
	}
	defer f.Close()

	cfg := &Config{RemainderPath: path}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, maxLineLen), maxLineLen)

	lineNo := 0
	sawFirstSeparator := false

	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if len(line) > maxLineLen {
			return nil, fmt.Errorf("config %s line %d: line too long", path, lineNo)
		}
		trimmed := strings.TrimSpace(line)

		if !sawFirstSeparator {
			switch {
			case trimmed == "":
				continue
			case strings.HasPrefix(trimmed, "#"), strings.HasPrefix(trimmed, "--"):
				continue
			case trimmed == "==":
				sawFirstSeparator = true
			default:
				cfg.ModulePaths = append(cfg.ModulePaths, trimmed)
			}
			continue
		}

		if cfg.StarterType == "" {
			if trimmed == "" {
				continue
			}
			if len(trimmed) > 32 {
				return nil, fmt.Errorf("config %s line %d: starter type name exceeds 32 bytes", path, lineNo)
			}
			cfg.StarterType = trimmed
			continue
		}

		if trimmed != "==" {
			return nil, fmt.Errorf("config %s line %d: expected == after starter type, got %q", path, lineNo, line)
		}
		cfg.RemainderLine = lineNo + 1
		break
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if !sawFirstSeparator {
		return nil, fmt.Errorf("config %s: missing first == separator", path)
	}
	if cfg.StarterType == "" {
		return nil, fmt.Errorf("config %s: missing starter node type", path)
	}
	if cfg.RemainderLine == 0 {
		return nil, fmt.Errorf("config %s: missing second == separator", path)
	}
	return cfg, nil
}

// OpenRemainder reopens the config file and seeks to the byte offset at
// which the verbatim remainder begins, returning a file descriptor the
// caller can hand to the starter node via STARTUP. The caller owns the
// returned file.
func OpenRemainder(cfg *Config) (*os.File, error) {
	f, err := os.Open(cfg.RemainderPath)
	if err != nil {
		return nil, fmt.Errorf("reopening config %s: %w", cfg.RemainderPath, err)
	}
	r := bufio.NewReader(f)
	var offset int64
	for i := 0; i < cfg.RemainderLine-1; i++ {
		line, err := r.ReadBytes('\n')
		offset += int64(len(line))
		if err != nil && (err != io.EOF || len(line) == 0) {
			f.Close()
			return nil, fmt.Errorf("config %s: remainder line %d not found", cfg.RemainderPath, cfg.RemainderLine)
		}
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("config %s: seeking to remainder: %w", cfg.RemainderPath, err)
	}
	return f, nil
}

// StarterSpec is a declarative node/hook graph a starter node type may
// parse out of the verbatim remainder, using it to drive NODE_CREATE /
// NODE_CONNECT / TIMER_CREATE control messages instead of hand-coding a
// pipeline in Go. This is an addition on top of §6 (which only specifies
// that the remainder is handed to the starter as raw bytes); the kernel
// itself never interprets this format.
type StarterSpec struct {
	Nodes   []StarterNode `toml:"node"`
	Hooks   []StarterHook `toml:"hook"`
	Timers  []StarterTimer `toml:"timer"`
}

// StarterNode declares one node to create.
type StarterNode struct {
	Name   string         `toml:"name"`
	Type   string         `toml:"type"`
	Config map[string]any `toml:"config"`
}

// StarterHook declares one connection between a named out-hook and
// in-hook, creating either implicitly if the target node type allows it
// (see pkg/kernel's connectByName).
type StarterHook struct {
	SrcNode string `toml:"src_node"`
	SrcHook string `toml:"src_hook"`
	DstNode string `toml:"dst_node"`
	DstHook string `toml:"dst_hook"`
}

// StarterTimer declares a periodic timer wired to subscribe one node.
type StarterTimer struct {
	Node       string `toml:"node"`
	IntervalMS int    `toml:"interval_ms"`
}

// ParseStarterSpec parses raw as a StarterSpec TOML document.
func ParseStarterSpec(raw []byte) (*StarterSpec, error) {
	var spec StarterSpec
	if err := toml.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("parsing starter spec: %w", err)
	}
	return &spec, nil
}
