package main

import (
	"fmt"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"github.com/tebeka/atexit"

	"prga/internal/diag"
)

// Setting keys, also read from PRGA_<KEY> and prga.yaml.
const (
	keyOutput     = "output"
	keyBatchSize  = "batch_size"
	keyDiagFormat = "diag_format"
	keyVerbose    = "verbose"
	keySkip       = "skip"
)

type settings struct {
	Output     string
	BatchSize  int
	DiagFormat string
	Verbose    bool
	Skip       []string
}

func (c *cli) load() error {
	v := c.v
	v.SetConfigName("prga")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := homedir.Dir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "prga"))
	}
	if c.cfgFile != "" {
		v.SetConfigFile(c.cfgFile)
	}
	v.SetEnvPrefix("PRGA")
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return errors.Wrap(err, "read config")
		}
	}

	c.settings = settings{
		Output:     v.GetString(keyOutput),
		BatchSize:  v.GetInt(keyBatchSize),
		DiagFormat: v.GetString(keyDiagFormat),
		Verbose:    v.GetBool(keyVerbose),
		Skip:       v.GetStringSlice(keySkip),
	}
	switch c.settings.DiagFormat {
	case "text", "json":
	default:
		return errors.Errorf("unknown diagnostic format %q", c.settings.DiagFormat)
	}
	if c.settings.BatchSize < 0 {
		return errors.Errorf("negative batch size %d", c.settings.BatchSize)
	}

	c.reporter = diag.NewReporter(c.stderr, c.settings.DiagFormat)
	c.reporter.SetVerbose(c.settings.Verbose)
	if used := v.ConfigFileUsed(); used != "" {
		c.reporter.Debugf("using config %s", used)
	}
	reporter := c.reporter
	atexit.Register(func() {
		if warnings, errs := reporter.Counts(); warnings+errs > 0 {
			fmt.Fprintf(c.stderr, "%d warning(s), %d error(s)\n", warnings, errs)
		}
	})
	return nil
}
