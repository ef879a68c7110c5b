package nlargest

import (
	"encoding"
	"errors"
	"flag"
	"fmt"
	"io"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/ShoshinNikita/nlargest/pkg/rlog"
)

type Command string

const (
	CommandGet         Command = "get"
	CommandSetCacheDir Command = "set-cache-dir"
	CommandClearCache  Command = "clear-cache"
	CommandVersion     Command = "version"
)

type Config struct {
	BuildInfo BuildInfo
	Env       Env

	Command     Command
	Get         GetConfig
	SetCacheDir SetCacheDirConfig
	ClearCache  ClearCacheConfig

	LogLevel    rlog.Level
	MetricsFile string
}

// Env contains options that can be set only with environment variables.
type Env struct {
	SettingsFile string        `env:"NLARGEST_CONFIG_FILE"`
	LogLevel     rlog.Level    `env:"NLARGEST_LOG_LEVEL" envDefault:"warn"`
	HTTPTimeout  time.Duration `env:"NLARGEST_HTTP_TIMEOUT" envDefault:"2m"`
	UserAgent    string        `env:"NLARGEST_USER_AGENT" envDefault:"nlargest"`
}

type GetConfig struct {
	URL          string
	N            int
	NoCache      bool
	RefreshCache bool
	ChunkSize    int64
}

type SetCacheDirConfig struct {
	Path string
}

type ClearCacheConfig struct {
	MaxAge  time.Duration
	MaxSize MiB
}

type BuildInfo struct {
	ShortGitHash string
	CommitTime   string
}

type MiB int

func (mb MiB) Bytes() int64 {
	return int64(mb) << 20
}

func (mb MiB) String() string {
	text, _ := mb.MarshalText()
	return string(text)
}

func (mb MiB) MarshalText() (text []byte, err error) {
	if mb >= 1024 && mb%1024 == 0 {
		return []byte(strconv.Itoa(int(mb/1024)) + "Gi"), nil
	}
	return []byte(strconv.Itoa(int(mb)) + "Mi"), nil
}

func (mb *MiB) UnmarshalText(data []byte) error {
	text := string(data)

	mul := 1
	switch {
	case strings.HasSuffix(text, "Mi"):
	case strings.HasSuffix(text, "Gi"):
		mul = 1024
	default:
		return fmt.Errorf("valid suffixes: Mi, Gi")
	}
	n, err := strconv.Atoi(text[:len(text)-2])
	if err != nil {
		return fmt.Errorf("invalid size: %w", err)
	}
	if n < 0 {
		return fmt.Errorf("size can't be negative")
	}

	*mb = MiB(n * mul)
	return nil
}

type flagParams struct {
	// p is a pointer to a value.
	p            any
	defaultValue any
	desc         string
}

func (cfg *Config) getGlobalFlagParams() map[string]flagParams {
	return map[string]flagParams{
		"log-level": {
			p: &cfg.LogLevel, defaultValue: cfg.Env.LogLevel, desc: "Set the minimal log level. One of: debug, info, warn, error",
		},
		"metrics-file": {
			p: &cfg.MetricsFile, defaultValue: "", desc: "" +
				"Write Prometheus metrics to this file after the command has finished.\n" +
				"The file can be used by the node_exporter textfile collector",
		},
	}
}

func (cfg *Config) getCommandFlagParams() map[string]flagParams {
	switch cfg.Command {
	case CommandGet:
		return map[string]flagParams{
			"no-cache": {
				p: &cfg.Get.NoCache, defaultValue: false, desc: "" +
					"Prevent the remote file from being cached for later use. If the file already\n" +
					"exists in the cache, it is removed and the remote file is used",
			},
			"refresh-cache": {
				p: &cfg.Get.RefreshCache, defaultValue: false, desc: "" +
					"Force the remote file to be downloaded and re-populate the cache",
			},
			"chunk-size": {
				p: &cfg.Get.ChunkSize, defaultValue: int64(DefaultChunkSize), desc: "" +
					"Size of chunks (in bytes) for each request to the remote file. Larger files\n" +
					"should use larger chunks to improve performance. Minimum is 1024 bytes",
			},
		}
	case CommandClearCache:
		return map[string]flagParams{
			"max-age": {
				p: &cfg.ClearCache.MaxAge, defaultValue: time.Duration(0), desc: "" +
					"Remove only files older than this duration. Zero means no age limit",
			},
			"max-size": {
				p: &cfg.ClearCache.MaxSize, defaultValue: MiB(0), desc: "" +
					"Remove the oldest files until the total cache size is below this value\n" +
					"(for example, 500Mi or 2Gi). Zero means no size limit",
			},
		}
	default:
		return nil
	}
}

var commandUsage = map[Command]string{
	CommandGet:         "get [flags] URL N",
	CommandSetCacheDir: "set-cache-dir ABSOLUTE_PATH",
	CommandClearCache:  "clear-cache [flags]",
	CommandVersion:     "version",
}

// ParseConfig parses environment variables and command line arguments (without the program name).
func ParseConfig(args []string, output io.Writer) (Config, error) {
	cfg := Config{
		BuildInfo: readBuildInfo(),
	}
	if err := env.Parse(&cfg.Env); err != nil {
		return cfg, fmt.Errorf("couldn't parse env: %w", err)
	}

	globalFlags := flag.NewFlagSet("nlargest", flag.ContinueOnError)
	globalFlags.SetOutput(output)
	globalFlags.Usage = func() {
		fmt.Fprint(output, "Print the ids of the N largest numbers of a remote file with \"<id> <number>\" lines.\n\n")
		fmt.Fprint(output, "Usage:\n")
		for _, c := range []Command{CommandGet, CommandSetCacheDir, CommandClearCache, CommandVersion} {
			fmt.Fprintf(output, "  nlargest [global flags] %s\n", commandUsage[c])
		}
		fmt.Fprint(output, "\nGlobal flags:\n")
		globalFlags.PrintDefaults()
	}

	var printVersion bool
	globalFlags.BoolVar(&printVersion, "version", false, "Print version and exit")
	if err := registerFlags(globalFlags, cfg.getGlobalFlagParams()); err != nil {
		return cfg, err
	}
	if err := globalFlags.Parse(args); err != nil {
		return cfg, err
	}
	if printVersion {
		cfg.Command = CommandVersion
		return cfg, nil
	}

	if globalFlags.NArg() == 0 {
		globalFlags.Usage()
		return cfg, errors.New("command is required")
	}
	cfg.Command = Command(globalFlags.Arg(0))
	if _, ok := commandUsage[cfg.Command]; !ok {
		return cfg, fmt.Errorf("unknown command %q", cfg.Command)
	}

	commandFlags := flag.NewFlagSet(string(cfg.Command), flag.ContinueOnError)
	commandFlags.SetOutput(output)
	commandFlags.Usage = func() {
		fmt.Fprintf(output, "Usage: nlargest %s\n", commandUsage[cfg.Command])
		commandFlags.PrintDefaults()
	}
	if err := registerFlags(commandFlags, cfg.getCommandFlagParams()); err != nil {
		return cfg, err
	}
	positional, err := parseInterspersed(commandFlags, globalFlags.Args()[1:])
	if err != nil {
		return cfg, err
	}

	if err := cfg.setPositionalArgs(positional); err != nil {
		commandFlags.Usage()
		return cfg, err
	}
	return cfg, nil
}

func registerFlags(fs *flag.FlagSet, flags map[string]flagParams) error {
	for name, params := range flags {
		switch p := params.p.(type) {
		case *bool:
			fs.BoolVar(p, name, params.defaultValue.(bool), params.desc)
		case *int:
			fs.IntVar(p, name, params.defaultValue.(int), params.desc)
		case *int64:
			fs.Int64Var(p, name, params.defaultValue.(int64), params.desc)
		case *string:
			fs.StringVar(p, name, params.defaultValue.(string), params.desc)
		case *time.Duration:
			fs.DurationVar(p, name, params.defaultValue.(time.Duration), params.desc)
		case encoding.TextUnmarshaler:
			fs.TextVar(p, name, params.defaultValue.(encoding.TextMarshaler), params.desc)
		default:
			return fmt.Errorf("flag %q has unsupported type: %T", name, p)
		}
	}
	return nil
}

// parseInterspersed allows flags after positional arguments: "get URL N --no-cache".
func parseInterspersed(fs *flag.FlagSet, args []string) (positional []string, err error) {
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		if args[0] == "--" {
			return append(positional, args[1:]...), nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

func (cfg *Config) setPositionalArgs(args []string) error {
	checkCount := func(want int) error {
		if len(args) != want {
			return fmt.Errorf("%s: expected %d argument(s), got %d", cfg.Command, want, len(args))
		}
		return nil
	}

	switch cfg.Command {
	case CommandGet:
		if err := checkCount(2); err != nil {
			return err
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("%w: %q is not a number", ErrInvalidN, args[1])
		}
		if n < 1 {
			return fmt.Errorf("%w: got %d", ErrInvalidN, n)
		}
		if cfg.Get.ChunkSize < MinChunkSize {
			return fmt.Errorf("%w: %d < %d", ErrInvalidChunkSize, cfg.Get.ChunkSize, MinChunkSize)
		}
		cfg.Get.URL = args[0]
		cfg.Get.N = n

	case CommandSetCacheDir:
		if err := checkCount(1); err != nil {
			return err
		}
		cfg.SetCacheDir.Path = args[0]

	case CommandClearCache, CommandVersion:
		if err := checkCount(0); err != nil {
			return err
		}
		if cfg.ClearCache.MaxAge < 0 {
			return errors.New("max-age can't be negative")
		}
	}
	return nil
}

func readBuildInfo() BuildInfo {
	res := BuildInfo{
		ShortGitHash: "unknown",
		CommitTime:   "unknown",
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return res
	}

	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			res.ShortGitHash = s.Value
			if len(res.ShortGitHash) > 7 {
				res.ShortGitHash = res.ShortGitHash[:7]
			}

		case "vcs.time":
			t, err := time.Parse(time.RFC3339, s.Value)
			if err == nil {
				res.CommitTime = t.UTC().Format("2006-01-02 15:04:05 UTC")
			}
		}
	}
	return res
}

func (info BuildInfo) Print(w io.Writer) {
	fmt.Fprintf(w, "nlargest\n\n    Commit Hash: %q\n    Commit Time: %q\n", info.ShortGitHash, info.CommitTime)
}
