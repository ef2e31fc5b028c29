// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// PlanTier identifies a J-Quants subscription plan.
// The tier bounds upstream request throughput and the sync worker pool.
type PlanTier string

const (
	TierFree     PlanTier = "free"
	TierLight    PlanTier = "light"
	TierStandard PlanTier = "standard"
	TierPremium  PlanTier = "premium"
)

// TierLimits holds the request quotas and worker bound for one plan tier.
type TierLimits struct {
	RequestsPerMinute int
	RequestsPerDay    int
	MaxFetchWorkers   int
}

// tierLimits maps each plan tier to its fixed limits.
// Per-minute quotas follow the upstream plan definitions; per-day quotas and
// worker counts are scaled so a full disclosure day fits within the plan.
var tierLimits = map[PlanTier]TierLimits{
	TierFree:     {RequestsPerMinute: 5, RequestsPerDay: 2000, MaxFetchWorkers: 1},
	TierLight:    {RequestsPerMinute: 60, RequestsPerDay: 20000, MaxFetchWorkers: 2},
	TierStandard: {RequestsPerMinute: 120, RequestsPerDay: 50000, MaxFetchWorkers: 4},
	TierPremium:  {RequestsPerMinute: 500, RequestsPerDay: 200000, MaxFetchWorkers: 8},
}

// LimitsForTier returns the limits for a tier, falling back to the free tier
// for unrecognized values so a misconfigured plan can never exceed quota.
func LimitsForTier(tier PlanTier) TierLimits {
	if limits, ok := tierLimits[tier]; ok {
		return limits
	}
	return tierLimits[TierFree]
}

// ScoringWeights holds the tunable constants of the scoring rule set.
// The two-component shape (magnitude + signal) is fixed; the coefficients are
// a product decision and therefore configuration.
type ScoringWeights struct {
	// Magnitude component (points awarded per metric, capped per metric).
	RevenueWeight         float64 // points per percent of |delta|
	OperatingProfitWeight float64
	NetIncomeWeight       float64
	RevenueCap            float64 // max points a single revenue delta contributes
	OperatingProfitCap    float64
	NetIncomeCap          float64
	MagnitudeCap          float64 // total magnitude ceiling

	// Signal component.
	TurningPointBonus float64 // per metric crossing zero on either horizon
	AgreementBonus    float64 // per metric with QoQ and YoY moving the same way
	DisagreementCut   float64 // subtracted per metric with opposing horizons
	SignalCap         float64
}

// DefaultScoringWeights returns the tuned default rule set.
// Operating profit and net income outweigh revenue: revenue is noisier and
// less decisive for triage.
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		RevenueWeight:         0.10,
		OperatingProfitWeight: 0.25,
		NetIncomeWeight:       0.20,
		RevenueCap:            10,
		OperatingProfitCap:    30,
		NetIncomeCap:          30,
		MagnitudeCap:          70,
		TurningPointBonus:     8,
		AgreementBonus:        3,
		DisagreementCut:       2,
		SignalCap:             30,
	}
}

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	Port     int
	DevMode  bool
	LogLevel string

	// Upstream API
	JQuantsAPIKey  string
	JQuantsBaseURL string
	JQuantsPlan    PlanTier

	// Sync behaviour
	MaxPageRetries  int           // attempts per page before the run fails
	RetryBaseWait   time.Duration // exponential backoff base
	BudgetWaitLimit time.Duration // bounded wait ceiling on an exhausted budget

	// Scoring
	Weights ScoringWeights

	// Backups (optional, disabled when bucket is empty)
	BackupBucket    string
	BackupEndpoint  string
	BackupAccessKey string
	BackupSecretKey string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("KESSAN_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("KESSAN_PORT", 8001),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		JQuantsAPIKey:  getEnv("JQUANTS_API_KEY", ""),
		JQuantsBaseURL: getEnv("JQUANTS_BASE_URL", "https://api.jquants.com/v2"),
		JQuantsPlan:    PlanTier(strings.ToLower(getEnv("JQUANTS_PLAN", "free"))),

		MaxPageRetries:  getEnvAsInt("SYNC_MAX_PAGE_RETRIES", 3),
		RetryBaseWait:   getEnvAsDuration("SYNC_RETRY_BASE_WAIT", 2*time.Second),
		BudgetWaitLimit: getEnvAsDuration("SYNC_BUDGET_WAIT_LIMIT", 90*time.Second),

		Weights: loadScoringWeights(),

		BackupBucket:    getEnv("BACKUP_BUCKET", ""),
		BackupEndpoint:  getEnv("BACKUP_ENDPOINT", ""),
		BackupAccessKey: getEnv("BACKUP_ACCESS_KEY", ""),
		BackupSecretKey: getEnv("BACKUP_SECRET_KEY", ""),
	}

	if _, ok := tierLimits[cfg.JQuantsPlan]; !ok {
		return nil, fmt.Errorf("unknown J-Quants plan tier: %q", cfg.JQuantsPlan)
	}

	return cfg, nil
}

// TierLimits returns the limits for the configured plan tier.
func (c *Config) TierLimits() TierLimits {
	return LimitsForTier(c.JQuantsPlan)
}

// loadScoringWeights reads scoring overrides from the environment on top of
// the defaults. Only the headline weights are exposed; caps stay internal.
func loadScoringWeights() ScoringWeights {
	w := DefaultScoringWeights()
	w.RevenueWeight = getEnvAsFloat("SCORE_WEIGHT_REVENUE", w.RevenueWeight)
	w.OperatingProfitWeight = getEnvAsFloat("SCORE_WEIGHT_OPERATING_PROFIT", w.OperatingProfitWeight)
	w.NetIncomeWeight = getEnvAsFloat("SCORE_WEIGHT_NET_INCOME", w.NetIncomeWeight)
	w.TurningPointBonus = getEnvAsFloat("SCORE_TURNING_POINT_BONUS", w.TurningPointBonus)
	w.AgreementBonus = getEnvAsFloat("SCORE_AGREEMENT_BONUS", w.AgreementBonus)
	return w
}

// getEnv retrieves an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvAsInt retrieves an environment variable as an integer with a fallback value
func getEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return fallback
}

// getEnvAsFloat retrieves an environment variable as a float with a fallback value
func getEnvAsFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return fallback
}

// getEnvAsBool retrieves an environment variable as a boolean with a fallback value
func getEnvAsBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return fallback
}

// getEnvAsDuration retrieves an environment variable as a duration with a fallback value
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
