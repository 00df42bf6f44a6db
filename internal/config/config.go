package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Dump    DumpConfig    `yaml:"dump" mapstructure:"dump"`
	Filter  FilterConfig  `yaml:"filter" mapstructure:"filter"`
	Shape   ShapeConfig   `yaml:"shape" mapstructure:"shape"`
	Feature FeatureConfig `yaml:"feature" mapstructure:"feature"`
	Fit     FitConfig     `yaml:"fit" mapstructure:"fit"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Output  OutputConfig  `yaml:"output" mapstructure:"output"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// DumpConfig locates the Stack Exchange dump tables on disk.
type DumpConfig struct {
	Dir       string `yaml:"dir" mapstructure:"dir"`
	UsersFile string `yaml:"users_file" mapstructure:"users_file"`
	PostsFile string `yaml:"posts_file" mapstructure:"posts_file"`
	TagsFile  string `yaml:"tags_file" mapstructure:"tags_file"`
}

// FilterConfig controls which tags and users enter the study.
type FilterConfig struct {
	TopNTags      int `yaml:"top_n_tags" mapstructure:"top_n_tags"`
	MinReputation int `yaml:"min_reputation" mapstructure:"min_reputation"`
}

// ShapeConfig holds the expertise-shape classification cutoffs. Shares are
// fractions of a user's total activity within the retained tag universe.
type ShapeConfig struct {
	ActivityFloor   int     `yaml:"activity_floor" mapstructure:"activity_floor"`     // min posts for a tag to count toward breadth
	SpecialistShare float64 `yaml:"specialist_share" mapstructure:"specialist_share"` // top-tag share for I
	DominantShare   float64 `yaml:"dominant_share" mapstructure:"dominant_share"`     // top-tag share for T
	StrongShare     float64 `yaml:"strong_share" mapstructure:"strong_share"`         // per-peak share for Pi
	CombinedShare   float64 `yaml:"combined_share" mapstructure:"combined_share"`     // top-two combined share for Pi
	MinBreadth      int     `yaml:"min_breadth" mapstructure:"min_breadth"`           // breadth required for T
}

// FeatureConfig holds the answer feature extraction thresholds.
type FeatureConfig struct {
	MinCodeLines  int `yaml:"min_code_lines" mapstructure:"min_code_lines"`
	ShortMaxWords int `yaml:"short_max_words" mapstructure:"short_max_words"`
	LongMinWords  int `yaml:"long_min_words" mapstructure:"long_min_words"`
}

// FitConfig controls the per-shape logistic regression.
type FitConfig struct {
	MinObservations int     `yaml:"min_observations" mapstructure:"min_observations"`
	MaxIterations   int     `yaml:"max_iterations" mapstructure:"max_iterations"`
	Tolerance       float64 `yaml:"tolerance" mapstructure:"tolerance"`
}

// StoreConfig configures the run-history database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// OutputConfig configures where result artifacts are written.
type OutputConfig struct {
	Dir  string `yaml:"dir" mapstructure:"dir"`
	XLSX bool   `yaml:"xlsx" mapstructure:"xlsx"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("EXPERTISE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("dump.dir", "stackexchange")
	v.SetDefault("dump.users_file", "Users.xml")
	v.SetDefault("dump.posts_file", "Posts.xml")
	v.SetDefault("dump.tags_file", "Tags.xml")
	v.SetDefault("filter.top_n_tags", 100)
	v.SetDefault("filter.min_reputation", 100)
	v.SetDefault("shape.activity_floor", 3)
	v.SetDefault("shape.specialist_share", 0.90)
	v.SetDefault("shape.dominant_share", 0.70)
	v.SetDefault("shape.strong_share", 0.30)
	v.SetDefault("shape.combined_share", 0.70)
	v.SetDefault("shape.min_breadth", 2)
	v.SetDefault("feature.min_code_lines", 5)
	v.SetDefault("feature.short_max_words", 150)
	v.SetDefault("feature.long_min_words", 400)
	v.SetDefault("fit.min_observations", 100)
	v.SetDefault("fit.max_iterations", 25)
	v.SetDefault("fit.tolerance", 1e-8)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "expertise.db")
	v.SetDefault("output.dir", ".")
	v.SetDefault("output.xlsx", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Filter.TopNTags <= 0 {
		return eris.Errorf("config: filter.top_n_tags must be positive (got %d)", c.Filter.TopNTags)
	}
	if c.Shape.SpecialistShare < c.Shape.DominantShare {
		return eris.New("config: shape.specialist_share must be >= shape.dominant_share")
	}
	if c.Feature.LongMinWords <= c.Feature.ShortMaxWords {
		return eris.New("config: feature.long_min_words must exceed feature.short_max_words")
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unsupported store driver %q", c.Store.Driver)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
