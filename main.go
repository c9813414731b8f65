package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v3"

	"github.com/utilitywarehouse/release-mirror/auth"
	"github.com/utilitywarehouse/release-mirror/ghcli"
	"github.com/utilitywarehouse/release-mirror/githubapi"
	"github.com/utilitywarehouse/release-mirror/mirror"
)

var (
	loggerLevel = new(slog.LevelVar)
	logger      *slog.Logger

	levelStrings = map[string]slog.Level{
		"trace": slog.Level(-8),
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}

	flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Sources: cli.EnvVars("RELEASE_MIRROR_CONFIG"),
			Usage:   "Absolute path to the config file.",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Destination directory for the release trees.",
		},
		&cli.BoolFlag{
			Name:    "download-source",
			Aliases: []string{"s"},
			Usage:   "Also download the source snapshot for each release.",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Show verbose output, same as --log-level debug.",
		},
		&cli.StringFlag{
			Name:    "log-level",
			Sources: cli.EnvVars("LOG_LEVEL"),
			Value:   "info",
			Usage:   "Log level",
		},
		&cli.StringFlag{
			Name:  "source",
			Usage: "Release source adapter, 'gh' or 'api'.",
		},
		&cli.StringFlag{
			Name:  "on-error",
			Usage: "Per-release failure policy, 'continue' or 'abort'.",
		},
		&cli.DurationFlag{
			Name:  "sync-timeout",
			Usage: "Total time allowed for one repository's sync.",
		},
	}
)

// splitHandler routes informational records to stdout and warnings and
// above to stderr so downstream tooling can separate progress from
// problems.
type splitHandler struct {
	out slog.Handler
	err slog.Handler
}

func (h *splitHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.out.Enabled(ctx, level)
}

func (h *splitHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn {
		return h.err.Handle(ctx, r)
	}
	return h.out.Handle(ctx, r)
}

func (h *splitHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &splitHandler{out: h.out.WithAttrs(attrs), err: h.err.WithAttrs(attrs)}
}

func (h *splitHandler) WithGroup(name string) slog.Handler {
	return &splitHandler{out: h.out.WithGroup(name), err: h.err.WithGroup(name)}
}

func init() {
	loggerLevel.Set(slog.LevelInfo)
	opts := &slog.HandlerOptions{Level: loggerLevel}
	logger = slog.New(&splitHandler{
		out: slog.NewTextHandler(os.Stdout, opts),
		err: slog.NewTextHandler(os.Stderr, opts),
	})
}

func main() {
	cmd := &cli.Command{
		Name:      "release-mirror",
		Usage:     "release-mirror downloads (and keeps in sync) the releases of a set of GitHub repositories.",
		ArgsUsage: "[REPOSITORY ...]",
		Flags:     flags,
		Action:    run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logger.Error("failed to run app", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, c *cli.Command) error {
	// optional .env, mainly to pick up GITHUB_TOKEN
	_ = godotenv.Load()

	// set log level according to argument
	if v, ok := levelStrings[strings.ToLower(c.String("log-level"))]; ok {
		loggerLevel.Set(v)
	}
	if c.Bool("verbose") {
		loggerLevel.Set(slog.LevelDebug)
	}

	conf := &Config{}
	if c.String("config") != "" {
		var err error
		conf, err = parseConfigFile(c.String("config"))
		if err != nil {
			return fmt.Errorf("unable to parse config file err:%w", err)
		}
	}

	applyCLIOverrides(c, conf)

	for _, repo := range c.Args().Slice() {
		conf.Repositories = append(conf.Repositories, mirror.RepositoryConfig{Remote: repo})
	}

	if len(conf.Repositories) == 0 {
		return fmt.Errorf("no repositories given, provide them as arguments or in the config file")
	}

	if err := conf.validateAndApplyDefaults(); err != nil {
		return err
	}

	mirror.EnableMetrics("releasemirror", prometheus.DefaultRegisterer)

	pool, err := setupPool(ctx, conf)
	if err != nil {
		return err
	}

	return pool.SyncAll(ctx, conf.Defaults.SyncTimeout)
}

func applyCLIOverrides(c *cli.Command, conf *Config) {
	if output := c.String("output"); output != "" {
		if abs, err := filepath.Abs(output); err == nil {
			conf.Defaults.Root = abs
		}
	}
	if c.Bool("download-source") {
		conf.Defaults.DownloadSource = true
	}
	if onError := c.String("on-error"); onError != "" {
		conf.Defaults.OnError = onError
	}
	if source := c.String("source"); source != "" {
		conf.Defaults.Source = source
	}
	if timeout := c.Duration("sync-timeout"); timeout != 0 {
		conf.Defaults.SyncTimeout = timeout
	}
}

func setupPool(ctx context.Context, conf *Config) (*mirror.Pool, error) {
	pool := mirror.NewPool(logger.With("logger", "release-mirror"))

	// envs passed to the git/gh child processes
	commonENVs := []string{
		fmt.Sprintf("PATH=%s", os.Getenv("PATH")),
		fmt.Sprintf("HOME=%s", os.Getenv("HOME")),
	}

	for _, repoConf := range conf.Repositories {
		ref, err := mirror.ParseRemote(repoConf.Remote)
		if err != nil {
			return nil, err
		}

		token, err := resolveToken(ctx, repoConf.Auth, ref)
		if err != nil {
			return nil, fmt.Errorf("unable to resolve token for repo:%s err:%w", repoConf.Remote, err)
		}

		envs := commonENVs
		if token != "" {
			envs = append(envs, fmt.Sprintf("GH_TOKEN=%s", token))
		}

		source, err := buildSource(repoConf, ref, token, envs)
		if err != nil {
			return nil, err
		}

		repo, err := mirror.New(repoConf, source, afero.NewOsFs(), envs, logger)
		if err != nil {
			return nil, fmt.Errorf("unable to create repository mirror for repo:%s err:%w", repoConf.Remote, err)
		}

		if err := pool.Add(repo); err != nil {
			return nil, fmt.Errorf("unable to add repository repo:%s err:%w", repoConf.Remote, err)
		}
	}

	return pool, nil
}

func buildSource(repoConf mirror.RepositoryConfig, ref mirror.RepoRef, token string, envs []string) (mirror.ReleaseSource, error) {
	switch repoConf.Source {
	case mirror.SourceAPI:
		if ref.Owner == "" {
			return nil, fmt.Errorf("the api source needs an OWNER/REPO remote, got '%s'", repoConf.Remote)
		}
		return githubapi.New(ref.Owner, ref.Name, token, logger), nil
	default:
		return ghcli.New("gh", envs, logger), nil
	}
}

// resolveToken picks the token for a repository: the configured static
// token, the GITHUB_TOKEN env var, or a minted GitHub App installation
// token when app credentials are configured.
func resolveToken(ctx context.Context, a mirror.Auth, ref mirror.RepoRef) (string, error) {
	if a.Token != "" {
		return a.Token, nil
	}
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		return token, nil
	}

	if a.GithubAppID == "" {
		return "", nil
	}

	permissions := auth.GithubAppTokenReqPermissions{
		Repositories: []string{ref.Name},
		Permissions:  map[string]string{"contents": "read"},
	}

	token, err := auth.GithubAppInstallationToken(ctx,
		a.GithubAppID, a.GithubAppInstallationID, a.GithubAppPrivateKeyPath, permissions)
	if err != nil {
		return "", err
	}

	logger.Debug("new github app access token created", "repo", ref.Slug())

	return token.Token, nil
}
