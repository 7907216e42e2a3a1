// Package config resolves the process configuration once at startup.
//
// Sources, lowest precedence first: built-in defaults, a YAML file, a
// .env file, then SURVEYOPS_* environment variables. Components receive
// the resolved values through their constructors and never read the
// environment themselves.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SURVEYOPS_"

// Config is the resolved process configuration.
type Config struct {
	Database      string        `yaml:"database"`
	Listen        string        `yaml:"listen"`
	SurveyBaseURL string        `yaml:"surveyBaseUrl"`
	StartZone     string        `yaml:"startZone"`
	EndZone       string        `yaml:"endZone"`
	PollInterval  time.Duration `yaml:"pollInterval"`
	Email         EmailConfig   `yaml:"email"`
	Partner       PartnerConfig `yaml:"partner"`
}

// EmailConfig configures the transactional-email provider.
type EmailConfig struct {
	BaseURL                     string `yaml:"baseUrl"`
	APIKey                      string `yaml:"apiKey"`
	TreatProviderErrorAsFailure bool   `yaml:"treatProviderErrorAsFailure"`
}

// PartnerConfig configures the partner export. The integration is enabled
// when BaseURL is set.
type PartnerConfig struct {
	BaseURL               string        `yaml:"baseUrl"`
	Token                 string        `yaml:"token"`
	BrandID               string        `yaml:"brandId"`
	ExportWindow          time.Duration `yaml:"exportWindow"`
	ExportSchedule        string        `yaml:"exportSchedule"`
	MarkExportedOnFailure bool          `yaml:"markExportedOnFailure"`
}

// Enabled reports whether partner export is configured.
func (p PartnerConfig) Enabled() bool {
	return p.BaseURL != ""
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database:      "surveyops.db",
		Listen:        ":8080",
		SurveyBaseURL: "https://survey.example.com",
		StartZone:     "America/New_York",
		EndZone:       "America/Los_Angeles",
		PollInterval:  time.Second,
		Email: EmailConfig{
			BaseURL: "https://api.sparkpost.com/api/v1",
		},
		Partner: PartnerConfig{
			ExportWindow:          7 * 24 * time.Hour,
			ExportSchedule:        "0 6 * * *",
			MarkExportedOnFailure: true,
		},
	}
}

// Load resolves the configuration. path and envFile may be empty; a
// missing envFile is not an error.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	dotenv := map[string]string{}
	if envFile != "" {
		m, err := godotenv.Read(envFile)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read env file %s: %w", envFile, err)
		default:
			dotenv = m
		}
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"DATABASE":         &c.Database,
		"LISTEN":           &c.Listen,
		"SURVEY_BASE_URL":  &c.SurveyBaseURL,
		"START_ZONE":       &c.StartZone,
		"END_ZONE":         &c.EndZone,
		"EMAIL_BASE_URL":   &c.Email.BaseURL,
		"EMAIL_API_KEY":    &c.Email.APIKey,
		"PARTNER_BASE_URL": &c.Partner.BaseURL,
		"PARTNER_TOKEN":    &c.Partner.Token,
		"PARTNER_BRAND_ID": &c.Partner.BrandID,
		"EXPORT_SCHEDULE":  &c.Partner.ExportSchedule,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"EMAIL_STRICT":           &c.Email.TreatProviderErrorAsFailure,
		"EXPORT_MARK_ON_FAILURE": &c.Partner.MarkExportedOnFailure,
	}
	for key, dst := range bools {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = b
	}

	durations := map[string]*time.Duration{
		"POLL_INTERVAL": &c.PollInterval,
		"EXPORT_WINDOW": &c.Partner.ExportWindow,
	}
	for key, dst := range durations {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = d
	}
	return nil
}

// Validate checks the resolved configuration.
func (c Config) Validate() error {
	var errs []error

	if c.Database == "" {
		errs = append(errs, errors.New("database path is required"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("pollInterval must be positive, got %s", c.PollInterval))
	}
	if _, _, err := c.Locations(); err != nil {
		errs = append(errs, err)
	}
	if c.Email.APIKey != "" && c.Email.BaseURL == "" {
		errs = append(errs, errors.New("email.baseUrl is required when an API key is set"))
	}

	if c.Partner.Enabled() {
		if c.Partner.Token == "" {
			errs = append(errs, errors.New("partner.token is required when partner export is enabled"))
		}
		if c.Partner.BrandID == "" {
			errs = append(errs, errors.New("partner.brandId is required when partner export is enabled"))
		}
		if c.Partner.ExportWindow <= 0 {
			errs = append(errs, fmt.Errorf("partner.exportWindow must be positive, got %s", c.Partner.ExportWindow))
		}
		if _, err := cron.ParseStandard(c.Partner.ExportSchedule); err != nil {
			errs = append(errs, fmt.Errorf("partner.exportSchedule %q: %w", c.Partner.ExportSchedule, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Locations loads the fallback start and end zones.
func (c Config) Locations() (start, end *time.Location, err error) {
	start, err = time.LoadLocation(c.StartZone)
	if err != nil {
		return nil, nil, fmt.Errorf("startZone %q: %w", c.StartZone, err)
	}
	end, err = time.LoadLocation(c.EndZone)
	if err != nil {
		return nil, nil, fmt.Errorf("endZone %q: %w", c.EndZone, err)
	}
	return start, end, nil
}
