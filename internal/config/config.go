package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/beamtop/beamtop/internal/errors"
	"github.com/beamtop/beamtop/internal/history"
)

const (
	// GlobalConfigDir is the directory for global config, under $HOME.
	GlobalConfigDir = ".config/beamtop"
	// GlobalConfigFile is the global config file name.
	GlobalConfigFile = "config.yaml"
	// DefaultCookieFile is the standard Erlang cookie location, under $HOME.
	DefaultCookieFile = ".erlang.cookie"
)

// Config holds the resolved settings for one monitoring session.
type Config struct {
	// Node is the target in name@host form.
	Node string `mapstructure:"node"`
	// NodeName and NodeHost are the parsed halves of Node.
	NodeName string `mapstructure:"-"`
	NodeHost string `mapstructure:"-"`

	// Cookie is the distribution cookie. CookieFile, when set, is read
	// instead; the bare ~/.erlang.cookie is the final fallback.
	Cookie     string `mapstructure:"cookie"`
	CookieFile string `mapstructure:"cookie_file"`

	// Port overrides the EPMD lookup when non-zero.
	Port int `mapstructure:"port"`

	// Interval is the sampling period.
	Interval time.Duration `mapstructure:"interval"`

	// History is the ring capacity per series. Zero means size to the
	// terminal.
	History int `mapstructure:"history"`

	// MSAcc enables microstate accounting collection.
	MSAcc bool `mapstructure:"msacc"`

	// Record, when set, appends every sample as a YAML document to this
	// file.
	Record string `mapstructure:"record"`
}

// DefaultConfig returns a config with standard defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Interval: time.Second,
	}
}

// Load reads the global config file if present and merges defaults. A
// missing file is not an error; flags layer on top of the result.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, nil
	}
	path := filepath.Join(home, GlobalConfigDir, GlobalConfigFile)
	if _, err := os.Stat(path); err != nil {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to read config file",
			"Check that "+path+" is valid YAML")
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid config format",
			"Check the YAML syntax in "+path)
	}
	return cfg, nil
}

// Finalize parses the node argument and fills derived fields. It must run
// after flags have been applied.
func (c *Config) Finalize(node string) error {
	if node != "" {
		c.Node = node
	}
	name, host, err := SplitNode(c.Node)
	if err != nil {
		return err
	}
	c.NodeName = name
	c.NodeHost = host

	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.History <= 0 {
		c.History = defaultHistory()
	}
	return nil
}

// SplitNode parses a name@host node identifier. A bare name gets localhost
// as its host, matching short-name conventions.
func SplitNode(node string) (name, host string, err error) {
	if node == "" {
		return "", "", errors.New(errors.ErrConfig,
			"No node specified",
			"Pass the target as name@host, e.g. beamtop mynode@myhost")
	}
	name, host, found := strings.Cut(node, "@")
	if !found {
		host = "localhost"
	}
	if name == "" || host == "" {
		return "", "", errors.New(errors.ErrConfig,
			"Invalid node "+node,
			"Use the name@host form, e.g. mynode@myhost")
	}
	return name, host, nil
}

// ResolveCookie returns the cookie to authenticate with, in precedence
// order: the cookie flag, the cookie file flag, then ~/.erlang.cookie.
// An empty return with nil error means nothing was found and the caller
// should prompt.
func (c *Config) ResolveCookie() (string, error) {
	if c.Cookie != "" {
		return c.Cookie, nil
	}
	if c.CookieFile != "" {
		cookie, err := readCookieFile(c.CookieFile)
		if err != nil {
			return "", errors.WrapWithCode(err, errors.ErrConfig,
				"Cannot read cookie file "+c.CookieFile,
				"Check the path and file permissions")
		}
		return cookie, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", nil
	}
	cookie, err := readCookieFile(filepath.Join(home, DefaultCookieFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot read ~/.erlang.cookie",
			"Check the file permissions or pass --cookie")
	}
	return cookie, nil
}

func readCookieFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// defaultHistory sizes the ring to the terminal so a full graph row fits,
// falling back to the standard capacity when not a terminal.
func defaultHistory() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return history.DefaultCapacity
	}
	capacity := width - 34
	if capacity < 30 {
		capacity = 30
	}
	if capacity > 300 {
		capacity = 300
	}
	return capacity
}
