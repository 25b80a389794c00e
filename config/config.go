// Package config loads clubsync settings from YAML with environment
// overrides for secrets.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/syc/clubsync/google"
	"github.com/syc/clubsync/report"
)

// Collection kinds. Each maps to one spreadsheet (per year when the title
// template contains {year}).
const (
	CollectionWaterfront   = "waterfront"
	CollectionInstruction  = "instruction"
	CollectionOrders       = "orders"
	CollectionTransactions = "transactions"
	CollectionMembers      = "members"
)

// Config holds all configuration for the application
type Config struct {
	Organization string `yaml:"organization"`
	Schedule     string `yaml:"schedule"`

	Catalog          report.Catalog         `yaml:"catalog"`
	CatalogRevisions map[int]report.Catalog `yaml:"catalog_revisions"`

	Collections map[string]CollectionConfig `yaml:"collections"`
	NonRenewed  NonRenewedConfig            `yaml:"non_renewed"`

	Squarespace SquarespaceConfig `yaml:"squarespace"`
	Stripe      StripeConfig      `yaml:"stripe"`
	Acuity      AcuityConfig      `yaml:"acuity"`
	Redis       RedisConfig       `yaml:"redis"`
	Database    DatabaseConfig    `yaml:"database"`
}

// CollectionConfig names a spreadsheet and who it is shared with on creation.
type CollectionConfig struct {
	Title  string         `yaml:"title"`
	Grants []google.Grant `yaml:"grants"`
}

type NonRenewedConfig struct {
	PriorYears int `yaml:"prior_years"`
}

type SquarespaceConfig struct {
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	UserAgent string `yaml:"user_agent"`
}

type StripeConfig struct {
	APIKey string `yaml:"api_key"`
}

type AcuityConfig struct {
	BaseURL       string `yaml:"base_url"`
	UserID        string `yaml:"user_id"`
	APIKey        string `yaml:"api_key"`
	WebhookSecret string `yaml:"webhook_secret"`
}

type RedisConfig struct {
	URL            string `yaml:"url"`
	LockTTLSeconds int    `yaml:"lock_ttl_seconds"`
}

type DatabaseConfig struct {
	URL         string `yaml:"url"`
	OrdersTable string `yaml:"orders_table"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Organization: "SYC",
		Schedule:     "0 6 * * *",
		Catalog: report.Catalog{
			Memberships: []string{
				"Family Membership",
				"Partner Membership",
				"Individual Membership",
				"Emeritus Membership",
				"Junior Membership",
			},
			Moorings: []string{
				"Shoreline",
				"Water-Row A", "Water-Row B", "Water-Row C", "Water-Row D",
				"Water-Row E", "Water-Row F", "Water-Row H", "Water-Row I",
			},
			MooringServices: []string{"Mooring Services"},
			PhotoConsent:    "SYC Photography",
			PhotoApproved:   "SYC may publish my child's photo.",
		},
		Collections: map[string]CollectionConfig{
			CollectionWaterfront:   {Title: "{org} Waterfront - Year {year}"},
			CollectionInstruction:  {Title: "{org} Instruction - Year {year}"},
			CollectionOrders:       {Title: "{org} Orders"},
			CollectionTransactions: {Title: "{org} Transactions"},
			CollectionMembers:      {Title: "{org} Members"},
		},
		NonRenewed: NonRenewedConfig{PriorYears: 2},
		Squarespace: SquarespaceConfig{
			BaseURL:   "https://api.squarespace.com",
			UserAgent: "clubsync",
		},
		Acuity: AcuityConfig{
			BaseURL: "https://acuityscheduling.com/api/v1",
		},
		Redis:    RedisConfig{LockTTLSeconds: 120},
		Database: DatabaseConfig{OrdersTable: "order_line_items"},
	}
}

// Load reads the YAML file over the defaults and applies environment
// overrides. A .env file is loaded first if present. A missing config file
// is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	overrides := []struct {
		env string
		dst *string
	}{
		{"SQUARESPACE_API_KEY", &c.Squarespace.APIKey},
		{"SQUARESPACE_BASE_URL", &c.Squarespace.BaseURL},
		{"STRIPE_API_KEY", &c.Stripe.APIKey},
		{"ACUITY_USER_ID", &c.Acuity.UserID},
		{"ACUITY_API_KEY", &c.Acuity.APIKey},
		{"ACUITY_WEBHOOK_SECRET", &c.Acuity.WebhookSecret},
		{"REDIS_URL", &c.Redis.URL},
		{"DATABASE_URL", &c.Database.URL},
		{"SYNC_SCHEDULE", &c.Schedule},
		{"CLUBSYNC_ORGANIZATION", &c.Organization},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(os.Getenv(o.env)); v != "" {
			*o.dst = v
		}
	}
	if v := os.Getenv("NON_RENEWED_PRIOR_YEARS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.NonRenewed.PriorYears = n
		}
	}
}

// Validate checks that every collection kind has a title.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Organization) == "" {
		return fmt.Errorf("organization must be set")
	}
	for _, kind := range []string{CollectionWaterfront, CollectionInstruction, CollectionOrders, CollectionTransactions, CollectionMembers} {
		if strings.TrimSpace(c.Collections[kind].Title) == "" {
			return fmt.Errorf("collection %q has no title", kind)
		}
	}
	return nil
}

// CatalogFor returns the catalog in effect for a season. A revision for the
// year replaces the default lists it sets; lists it leaves empty fall back.
func (c *Config) CatalogFor(year int) report.Catalog {
	cat := c.Catalog
	rev, ok := c.CatalogRevisions[year]
	if !ok {
		return cat
	}
	if len(rev.Memberships) > 0 {
		cat.Memberships = rev.Memberships
	}
	if len(rev.Moorings) > 0 {
		cat.Moorings = rev.Moorings
	}
	if len(rev.MooringServices) > 0 {
		cat.MooringServices = rev.MooringServices
	}
	if rev.PhotoConsent != "" {
		cat.PhotoConsent = rev.PhotoConsent
		cat.PhotoApproved = rev.PhotoApproved
	}
	return cat
}

// Collection returns the settings for a collection kind.
func (c *Config) Collection(kind string) CollectionConfig {
	return c.Collections[kind]
}

// CollectionTitle expands the title template of a collection kind.
func (c *Config) CollectionTitle(kind string, year int) string {
	return google.FormatCollectionTitle(c.Collections[kind].Title, c.Organization, year)
}
