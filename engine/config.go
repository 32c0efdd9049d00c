package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v2"
)

const (
	defaultTrackerListURL = "https://raw.githubusercontent.com/ngosang/trackerslist/master/trackers_best.txt"
	defaultConfigName     = "torrentdesk"
)

type Config struct {
	DownloadDirectory    string        `yaml:"DownloadDirectory"`
	TorrentDirectory     string        `yaml:"TorrentDirectory"`
	PosterDirectory      string        `yaml:"PosterDirectory"`
	IncomingPort         int           `yaml:"IncomingPort"`
	EnableUpload         bool          `yaml:"EnableUpload"`
	EnableSeeding        bool          `yaml:"EnableSeeding"`
	ObfsPreferred        bool          `yaml:"ObfsPreferred"`
	ObfsRequirePreferred bool          `yaml:"ObfsRequirePreferred"`
	DisableTrackers      bool          `yaml:"DisableTrackers"`
	DisableIPv6          bool          `yaml:"DisableIPv6"`
	EngineDebug          bool          `yaml:"EngineDebug"`
	MuteEngineLog        bool          `yaml:"MuteEngineLog"`
	UploadRate           string        `yaml:"UploadRate"`
	DownloadRate         string        `yaml:"DownloadRate"`
	TrackerListURL       string        `yaml:"TrackerListURL"`
	StreamHost           string        `yaml:"StreamHost"`
	ProgressInterval     time.Duration `yaml:"ProgressInterval"`
	MetadataWarnAfter    time.Duration `yaml:"MetadataWarnAfter"`
	AudioCacheTTL        time.Duration `yaml:"AudioCacheTTL"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DownloadDirectory", "./downloads")
	v.SetDefault("TorrentDirectory", "./torrents")
	v.SetDefault("PosterDirectory", "./posters")
	v.SetDefault("IncomingPort", 50007)
	v.SetDefault("EnableUpload", true)
	v.SetDefault("EnableSeeding", true)
	v.SetDefault("ObfsPreferred", true)
	v.SetDefault("ObfsRequirePreferred", false)
	v.SetDefault("TrackerListURL", defaultTrackerListURL)
	v.SetDefault("ProgressInterval", "1s")
	v.SetDefault("MetadataWarnAfter", "2m")
	v.SetDefault("AudioCacheTTL", "30m")
}

// InitConf reads the worker config from specPath, or from the usual search
// paths when specPath does not exist. A missing file is written out with
// defaults so users have something to edit.
func InitConf(specPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(defaultConfigName)
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/torrentdesk/")
	v.AddConfigPath("$HOME/.torrentdesk")
	v.AddConfigPath(".")
	setDefaults(v)

	if stat, err := os.Stat(specPath); err == nil && !stat.IsDir() {
		v.SetConfigFile(specPath)
	}

	configExists := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		configExists = false
		if specPath == "" {
			specPath = "./" + defaultConfigName + ".yaml"
		}
		v.SetConfigFile(specPath)
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}
	dirChanged, err := c.NormlizeConfigDir()
	if err != nil {
		return nil, err
	}

	cf := v.ConfigFileUsed()
	log.Println("[config] selected config file:", cf)
	if !configExists || dirChanged {
		if err := c.WriteYaml(cf); err != nil {
			return nil, err
		}
		log.Println("[config] config file written:", cf, "exists:", configExists, "dirchanged:", dirChanged)
	}
	return c, nil
}

// NormlizeConfigDir makes every directory absolute and reports whether any
// value changed.
func (c *Config) NormlizeConfigDir() (bool, error) {
	var changed bool
	for _, d := range []*string{&c.DownloadDirectory, &c.TorrentDirectory, &c.PosterDirectory} {
		if *d == "" {
			continue
		}
		abs, err := filepath.Abs(*d)
		if err != nil {
			return false, fmt.Errorf("invalid path %s: %w", *d, err)
		}
		if abs != *d {
			changed = true
			*d = abs
		}
	}
	return changed, nil
}

func (c *Config) WriteYaml(path string) error {
	d, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, d, 0666)
}

func (c *Config) UploadLimiter() *rate.Limiter {
	l, err := rateLimiter(c.UploadRate)
	if err != nil {
		log.Printf("RateLimit [%s] unrecognized, set as unlimited", c.UploadRate)
		c.UploadRate = ""
		return rate.NewLimiter(rate.Inf, 0)
	}
	return l
}

func (c *Config) DownloadLimiter() *rate.Limiter {
	l, err := rateLimiter(c.DownloadRate)
	if err != nil {
		log.Printf("RateLimit [%s] unrecognized, set as unlimited", c.DownloadRate)
		c.DownloadRate = ""
		return rate.NewLimiter(rate.Inf, 0)
	}
	return l
}

func (c *Config) progressInterval() time.Duration {
	if c.ProgressInterval <= 0 {
		return time.Second
	}
	return c.ProgressInterval
}
