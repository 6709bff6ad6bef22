package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"scrapeflow/lib/configutil"
	"scrapeflow/lib/engine"
	"scrapeflow/lib/har"
	"scrapeflow/lib/restyutil"
	"time"
)

type LogsConfig struct {
	Response        bool `json:"response" yaml:"response"`
	ResponseHeaders bool `json:"response_headers" yaml:"response_headers"`
	RequestHeaders  bool `json:"request_headers" yaml:"request_headers"`
}

type Config struct {
	BaseURL          string                       `json:"base_url" yaml:"base_url"`
	Headers          map[string]string            `json:"headers" yaml:"headers"`
	Cookie           string                       `json:"cookie" yaml:"cookie"`
	HeaderSets       map[string]map[string]string `json:"header_sets" yaml:"header_sets"`
	UserAgent        string                       `json:"user_agent" yaml:"user_agent"`
	Timeout          string                       `json:"timeout" yaml:"timeout"`
	CloudflareBypass bool                         `json:"cloudflare_bypass" yaml:"cloudflare_bypass"`
	Logs             LogsConfig                   `json:"logs" yaml:"logs"`
	// HAR file every exchange is recorded to
	Record string `json:"record" yaml:"record"`
	// directory every exchange is dumped to as a readable text file
	RecordDir string `json:"record_dir" yaml:"record_dir"`
}

func loadConfig(path string) (Config, error) {
	cfg, err := configutil.ReadConfig[Config](path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Debug("engine config not found, using defaults", "path", path)
		return Config{}, nil
	}
	return cfg, err
}

// outputs fans a captured exchange out to every output.
type outputs []restyutil.InstrumentOutput

func (o outputs) Write(id string, entry har.Entry) {
	for _, out := range o {
		out.Write(id, entry)
	}
}

func (o outputs) Flush() error {
	var errs []error
	for _, out := range o {
		f, ok := out.(interface{ Flush() error })
		if !ok {
			continue
		}
		errs = append(errs, f.Flush())
	}
	return errors.Join(errs...)
}

// Options converts the config into engine options, recordPath overrides
// the configured HAR record file.
func (c Config) Options(recordPath string) (engine.Options, error) {
	opts := engine.Options{
		BaseURL:          c.BaseURL,
		Headers:          c.Headers,
		Cookie:           c.Cookie,
		HeaderSets:       c.HeaderSets,
		UserAgent:        c.UserAgent,
		CloudflareBypass: c.CloudflareBypass,
		Logs: engine.Logs{
			Response:        c.Logs.Response,
			ResponseHeaders: c.Logs.ResponseHeaders,
			RequestHeaders:  c.Logs.RequestHeaders,
		},
	}

	if c.Timeout != "" {
		timeout, err := time.ParseDuration(c.Timeout)
		if err != nil {
			return engine.Options{}, fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
		}
		opts.Timeout = timeout
	}

	if recordPath == "" {
		recordPath = c.Record
	}
	var record outputs
	if recordPath != "" {
		record = append(record, har.NewRecorder(recordPath))
	}
	if c.RecordDir != "" {
		dir, err := restyutil.NewFilesystemOutput(c.RecordDir)
		if err != nil {
			return engine.Options{}, err
		}
		record = append(record, dir)
	}
	if len(record) > 0 {
		opts.Record = record
	}

	return opts, nil
}

func newEngine(recordPath string) (*engine.Engine, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	opts, err := cfg.Options(recordPath)
	if err != nil {
		return nil, err
	}
	return engine.New(opts)
}
