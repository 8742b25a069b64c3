package opselenese

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/go-playground/validator/v10"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/op-selenese/flags"
	"github.com/ethereum-optimism/infra/op-selenese/service"
	"github.com/ethereum-optimism/infra/op-selenese/types"
)

// Config holds the application configuration
type Config struct {
	BaseURL   string `validate:"required,url"`
	TestCase  string `validate:"required_without=TestSuite,excluded_with=TestSuite"`
	TestSuite string `validate:"required_without=TestCase,excluded_with=TestCase"`

	ServerHost   string               `validate:"required"`
	ServerPort   int                  `validate:"gt=0,lt=65536"`
	Capabilities []types.Capabilities `validate:"dive"` // empty means one "Any browser" configuration

	CommandInterval time.Duration `validate:"gte=0"`
	StartInterval   time.Duration `validate:"gte=0"`
	WaitTimeout     time.Duration `validate:"gt=0"`
	RetryDelay      time.Duration `validate:"gt=0"`
	CloseRetries    int           `validate:"gt=0"`

	ResultsFile   string
	LogDir        string `validate:"required"`
	ScreenshotDir string // empty disables failure screenshots

	RunInterval      time.Duration `validate:"gte=0"` // Interval between runs
	RunOnce          bool          // Exit after one run
	ShowProgress     bool
	ProgressInterval time.Duration `validate:"gte=0"`

	Service service.Config `validate:"-"`
	Log     log.Logger     `validate:"-"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("platform", func(fl validator.FieldLevel) bool {
		return types.IsPlatform(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// Check validates the configuration.
func (c *Config) Check() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, describe(fe))
		}
		return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Namespace())
	case "required_without", "excluded_with":
		return "exactly one of TestCase or TestSuite must be set"
	case "url":
		return fmt.Sprintf("%s must be an absolute URL, got %q", fe.Namespace(), fe.Value())
	case "platform":
		return fmt.Sprintf("%s must be one of %s, got %q", fe.Namespace(), strings.Join(types.Platforms, ", "), fe.Value())
	default:
		return fmt.Sprintf("%s must satisfy %s=%s", fe.Namespace(), fe.Tag(), fe.Param())
	}
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	var caps []types.Capabilities
	for _, raw := range ctx.StringSlice(flags.Capabilities.Name) {
		c, err := types.ParseCapabilities(raw)
		if err != nil {
			return nil, err
		}
		caps = append(caps, c)
	}
	if path := ctx.String(flags.CapabilitiesFile.Name); path != "" {
		fromFile, err := LoadCapabilitiesFile(path)
		if err != nil {
			return nil, err
		}
		caps = append(caps, fromFile...)
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	cfg := &Config{
		BaseURL:          ctx.String(flags.BaseURL.Name),
		TestCase:         ctx.String(flags.TestCase.Name),
		TestSuite:        ctx.String(flags.TestSuite.Name),
		ServerHost:       ctx.String(flags.ServerHost.Name),
		ServerPort:       ctx.Int(flags.ServerPort.Name),
		Capabilities:     caps,
		CommandInterval:  ctx.Duration(flags.CommandInterval.Name),
		StartInterval:    ctx.Duration(flags.StartInterval.Name),
		WaitTimeout:      ctx.Duration(flags.WaitTimeout.Name),
		RetryDelay:       ctx.Duration(flags.RetryDelay.Name),
		CloseRetries:     ctx.Int(flags.CloseRetries.Name),
		ResultsFile:      ctx.String(flags.ResultsFile.Name),
		LogDir:           ctx.String(flags.LogDir.Name),
		ScreenshotDir:    ctx.String(flags.ScreenshotDir.Name),
		RunInterval:      runInterval,
		RunOnce:          runInterval == 0,
		ShowProgress:     ctx.Bool(flags.ShowProgress.Name),
		ProgressInterval: ctx.Duration(flags.ProgressInterval.Name),
		Service: service.Config{
			HealthzAddr: ctx.String(flags.HealthzAddr.Name),
			Metrics:     opmetrics.ReadCLIConfig(ctx),
		},
		Log: log,
	}
	if cfg.LogDir == "" {
		cfg.LogDir = "logs"
	}

	// Resolve the absolute paths
	for _, p := range []*string{&cfg.TestCase, &cfg.TestSuite, &cfg.LogDir, &cfg.ScreenshotDir, &cfg.ResultsFile} {
		if *p == "" {
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for '%s': %w", *p, err)
		}
		*p = abs
	}

	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadCapabilitiesFile reads a YAML list of browser configurations.
func LoadCapabilitiesFile(path string) ([]types.Capabilities, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read capabilities file: %w", err)
	}
	var caps []types.Capabilities
	if err := yaml.Unmarshal(data, &caps); err != nil {
		return nil, fmt.Errorf("failed to parse capabilities file %s: %w", path, err)
	}
	for i := range caps {
		caps[i].Platform = strings.ToUpper(caps[i].Platform)
		if err := caps[i].Check(); err != nil {
			return nil, fmt.Errorf("capabilities file %s, entry %d: %w", path, i, err)
		}
	}
	return caps, nil
}
