package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/copyleftdev/ipmdriver/internal/ipm"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Optimization struct {
		// WorkerCount bounds the number of solves running at once.
		WorkerCount int `env:"OPT_WORKER_COUNT" envDefault:"10"`
	}
	Solver Solver
}

// Solver holds the solver defaults applied to every submitted problem.
type Solver struct {
	GradTolerance        float64 `env:"IPM_GRAD_TOLERANCE" envDefault:"1e-9"`
	EqualTolerance       float64 `env:"IPM_EQUAL_TOLERANCE" envDefault:"1e-9"`
	DesiredDualityGap    float64 `env:"IPM_DESIRED_GAP" envDefault:"1e-9"`
	AlphaMin             float64 `env:"IPM_ALPHA_MIN" envDefault:"1e-7"`
	AlphaMax             float64 `env:"IPM_ALPHA_MAX" envDefault:"1"`
	MuFactorAggressive   float64 `env:"IPM_MU_FACTOR_AGGRESSIVE" envDefault:"0.3333333333333333"`
	MuFactorConservative float64 `env:"IPM_MU_FACTOR_CONSERVATIVE" envDefault:"0.75"`
	Delta                int     `env:"IPM_DELTA" envDefault:"3"`
	SkipAffine           bool    `env:"IPM_SKIP_AFFINE" envDefault:"false"`
	VerboseLevel         int     `env:"IPM_VERBOSE_LEVEL" envDefault:"2"`
	Mu0                  float64 `env:"IPM_MU0" envDefault:"1"`
	MaxIter              int     `env:"IPM_MAX_ITER" envDefault:"200"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
		if cfg.Environment == "development" {
			cfg.Logging.Level = "debug"
		}
	}
	if cfg.Optimization.WorkerCount < 1 {
		return nil, fmt.Errorf("OPT_WORKER_COUNT must be at least 1, got %d", cfg.Optimization.WorkerCount)
	}
	if cfg.Solver.MaxIter < 1 {
		return nil, fmt.Errorf("IPM_MAX_ITER must be at least 1, got %d", cfg.Solver.MaxIter)
	}
	if !(cfg.Solver.Mu0 > 0) {
		return nil, fmt.Errorf("IPM_MU0 must be positive, got %v", cfg.Solver.Mu0)
	}
	if err := cfg.SolverConfig(1, 0, 1).Validate(); err != nil {
		return nil, fmt.Errorf("invalid solver defaults: %w", err)
	}

	return cfg, nil
}

// SolverConfig returns the solver defaults for a problem of the given shape.
func (c *Config) SolverConfig(nZ, nG, nF int) ipm.SolverConfig {
	s := ipm.DefaultSolverConfig(nZ, nG, nF)
	s.GradTolerance = c.Solver.GradTolerance
	s.EqualTolerance = c.Solver.EqualTolerance
	s.DesiredDualityGap = c.Solver.DesiredDualityGap
	s.AlphaMin = c.Solver.AlphaMin
	s.AlphaMax = c.Solver.AlphaMax
	s.MuFactorAggressive = c.Solver.MuFactorAggressive
	s.MuFactorConservative = c.Solver.MuFactorConservative
	s.Delta = c.Solver.Delta
	s.SkipAffine = c.Solver.SkipAffine
	s.VerboseLevel = c.Solver.VerboseLevel
	return s
}

// GetEnv returns the value of the environment variable or the default value
func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
