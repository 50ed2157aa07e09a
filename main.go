// pkuhole/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"pkuhole/api"
	"pkuhole/config"
	"pkuhole/database"
	"pkuhole/media"
	"pkuhole/models"
	"pkuhole/utils"
)

type Application struct {
	cfg    config.Config
	client *api.Client
	db     *database.DatabaseService
	logger *slog.Logger
	out    io.Writer
}

type command struct {
	usage   string
	minArgs int
	run     func(ctx context.Context, app *Application, args []string) error
}

var commands = map[string]command{
	"list":       {"list [page]", 0, cmdList},
	"topic":      {"topic <pid>", 1, cmdTopic},
	"comments":   {"comments <pid>", 1, cmdComments},
	"search":     {"search <keywords> [count]", 1, cmdSearch},
	"login":      {"login <uid>   (password from PKUHOLE_PASSWORD)", 1, cmdLogin},
	"logout":     {"logout", 0, cmdLogout},
	"followed":   {"followed", 0, cmdFollowed},
	"sync":       {"sync", 0, cmdSync},
	"post":       {"post <text>", 1, cmdPost},
	"post-image": {"post-image <file> [text]", 1, cmdPostImage},
	"comment":    {"comment <pid> <text>", 2, cmdComment},
	"follow":     {"follow <pid> on|off", 2, cmdFollow},
	"report":     {"report <pid> <reason>", 2, cmdReport},
	"local":      {"local [keyword]", 0, cmdLocal},
	"archive":    {"archive <pid>", 1, cmdArchive},
	"unarchive":  {"unarchive <location>...", 1, cmdUnarchive},
	"backup":     {"backup [dir]", 0, cmdBackup},
	"version":    {"version", 0, cmdVersion},
}

func main() {
	os.Exit(start())
}

// start runs one command and returns the process exit code.
func start() int {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	cfg := config.Load(logger)
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		return 2
	}

	app, err := newApplication(cfg, logger, os.Stdout)
	if err != nil {
		logger.Error("Failed to initialize", "error", err)
		return 1
	}
	defer func() {
		if err := app.db.Close(); err != nil {
			logger.Error("Failed to close database", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, app, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		var usage usageError
		if errors.As(err, &usage) {
			printUsage(os.Stderr)
			return 2
		}
		return 1
	}
	return 0
}

func newApplication(cfg config.Config, logger *slog.Logger, out io.Writer) (*Application, error) {
	client, err := api.NewClient(api.Options{
		BaseURL:     cfg.BaseURL,
		Host:        cfg.Host,
		Timeout:     cfg.Timeout,
		RateLimiter: models.NewRateLimiter(cfg.RateEvery, cfg.RateBurst),
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	db, err := database.InitDB(cfg.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open local database: %w", err)
	}
	return &Application{cfg: cfg, client: client, db: db, logger: logger, out: out}, nil
}

type usageError string

func (e usageError) Error() string { return string(e) }

func run(ctx context.Context, app *Application, args []string) error {
	if len(args) == 0 {
		return usageError("no command given")
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return usageError("unknown command " + args[0])
	}
	if len(args)-1 < cmd.minArgs {
		return usageError("usage: pkuhole " + cmd.usage)
	}
	return cmd.run(ctx, app, args[1:])
}

func printUsage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(w, "usage: pkuhole <command> [args]")
	for _, name := range names {
		fmt.Fprintln(w, "  "+commands[name].usage)
	}
}

func (app *Application) print(v any) error {
	enc := json.NewEncoder(app.out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// token returns the session token saved by the login command.
func (app *Application) token() (string, error) {
	if app.cfg.SessionKey == "" {
		return "", errors.New("PKUHOLE_SESSION_KEY is not set")
	}
	s, err := app.db.LoadSession(app.cfg.SessionKey)
	if errors.Is(err, database.ErrNoSession) {
		return "", errors.New("not logged in, run: pkuhole login <uid>")
	}
	if err != nil {
		return "", err
	}
	return s.Token, nil
}

// joinText joins the words of a message and refuses one that is blank.
func joinText(what string, words []string) (string, error) {
	text := strings.TrimSpace(strings.Join(words, " "))
	if text == "" {
		return "", usageError(what + " must not be empty")
	}
	return text, nil
}

// followLocally stores pid in the local follow list, with the server's copy
// of the topic when it can be fetched.
func (app *Application) followLocally(ctx context.Context, pid int64) error {
	topic, found, err := app.client.GetTopic(ctx, pid)
	if err != nil {
		app.logger.Warn("Could not fetch followed topic, storing pid only", "pid", pid, "error", err)
	}
	if !found {
		topic = models.Topic{PID: pid}
	}
	return app.db.AddFollow(topic)
}

func parsePID(s string) (int64, error) {
	pid, err := strconv.ParseInt(s, 10, 64)
	if err != nil || pid <= 0 {
		return 0, usageError("invalid pid " + s)
	}
	return pid, nil
}

// --- Commands ---

func cmdList(ctx context.Context, app *Application, args []string) error {
	page := 1
	if len(args) > 0 {
		p, err := strconv.Atoi(args[0])
		if err != nil || p < 0 {
			return usageError("invalid page " + args[0])
		}
		page = p
	}
	topics, err := app.client.ListTopics(ctx, page)
	if err != nil {
		return err
	}
	return app.print(topics)
}

type topicView struct {
	models.Topic
	Followed bool   `json:"followed"`
	ImageURL string `json:"image_url,omitempty"`
}

func cmdTopic(ctx context.Context, app *Application, args []string) error {
	pid, err := parsePID(args[0])
	if err != nil {
		return err
	}
	topic, found, err := app.client.GetTopic(ctx, pid)
	if err != nil {
		return err
	}
	if !found {
		return app.print(map[string]any{"pid": pid, "deleted": true, "followed": app.db.IsFollowed(pid)})
	}
	followed, err := app.db.RefreshTopic(topic)
	if err != nil {
		app.logger.Warn("Could not refresh followed topic", "pid", pid, "error", err)
	}
	return app.print(topicView{Topic: topic, Followed: followed, ImageURL: app.client.ImageURL(topic)})
}

func cmdComments(ctx context.Context, app *Application, args []string) error {
	pid, err := parsePID(args[0])
	if err != nil {
		return err
	}
	comments, err := app.client.ListComments(ctx, pid)
	if err != nil {
		return err
	}
	return app.print(comments)
}

func cmdSearch(ctx context.Context, app *Application, args []string) error {
	count := 50
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			return usageError("invalid count " + args[1])
		}
		count = n
	}
	topics, err := app.client.SearchTopics(ctx, args[0], count)
	if err != nil {
		return err
	}
	return app.print(topics)
}

func cmdLogin(ctx context.Context, app *Application, args []string) error {
	if app.cfg.SessionKey == "" {
		return errors.New("PKUHOLE_SESSION_KEY is not set; it is needed to store the session")
	}
	password := app.cfg.Password
	if password == "" {
		var err error
		if password, err = utils.RequireEnv("PKUHOLE_PASSWORD"); err != nil {
			return err
		}
	}
	user, err := app.client.Login(ctx, args[0], password)
	if err != nil {
		return err
	}
	if err := app.db.SaveSession(user, app.cfg.SessionKey); err != nil {
		return err
	}
	app.logger.Info("Logged in", "uid", user.UID, "token", utils.TokenFingerprint(user.Token))
	return app.print(map[string]any{"uid": user.UID, "saved": true})
}

func cmdLogout(_ context.Context, app *Application, _ []string) error {
	return app.db.ClearSession()
}

func cmdFollowed(ctx context.Context, app *Application, _ []string) error {
	token, err := app.token()
	if err != nil {
		return err
	}
	topics, err := app.client.ListFollowed(ctx, token)
	if err != nil {
		return err
	}
	return app.print(topics)
}

func cmdSync(ctx context.Context, app *Application, _ []string) error {
	token, err := app.token()
	if err != nil {
		return err
	}
	topics, err := app.client.ListFollowed(ctx, token)
	if err != nil {
		return err
	}
	if err := app.db.SyncFollowed(topics); err != nil {
		return err
	}
	return app.print(map[string]any{"synced": len(topics)})
}

func cmdPost(ctx context.Context, app *Application, args []string) error {
	token, err := app.token()
	if err != nil {
		return err
	}
	pid, err := app.client.PostText(ctx, token, strings.Join(args, " "))
	if err != nil {
		return err
	}
	return app.print(map[string]any{"pid": pid})
}

func cmdPostImage(ctx context.Context, app *Application, args []string) error {
	token, err := app.token()
	if err != nil {
		return err
	}
	raw, err := utils.ReadLimitedFile(args[0], config.MaxUploadSize)
	if err != nil {
		return err
	}
	payload, err := media.PrepareUpload(raw)
	if err != nil {
		return err
	}
	if err := app.client.PostImage(ctx, token, strings.Join(args[1:], " "), payload); err != nil {
		return err
	}
	return app.print(map[string]any{"posted": true, "bytes": len(payload)})
}

func cmdComment(ctx context.Context, app *Application, args []string) error {
	pid, err := parsePID(args[0])
	if err != nil {
		return err
	}
	text, err := joinText("comment", args[1:])
	if err != nil {
		return err
	}
	token, err := app.token()
	if err != nil {
		return err
	}
	cid, err := app.client.PostComment(ctx, token, pid, text)
	if err != nil {
		return err
	}
	// Commenting on a topic follows it locally.
	if err := app.followLocally(ctx, pid); err != nil {
		app.logger.Warn("Could not follow commented topic", "pid", pid, "error", err)
	}
	return app.print(map[string]any{"pid": pid, "cid": cid})
}

func cmdFollow(ctx context.Context, app *Application, args []string) error {
	pid, err := parsePID(args[0])
	if err != nil {
		return err
	}
	var on bool
	switch args[1] {
	case "on":
		on = true
	case "off":
	default:
		return usageError("follow state must be on or off")
	}
	token, err := app.token()
	if err != nil {
		return err
	}

	err = app.client.SetFollow(ctx, token, pid, on)
	switch {
	case on && errors.Is(err, api.ErrAlreadyFollowed):
		app.logger.Info("Topic was already followed on the server", "pid", pid)
	case err != nil:
		return err
	}

	if !on {
		if err := app.db.RemoveFollow(pid); err != nil {
			return err
		}
		return app.print(map[string]any{"pid": pid, "followed": false})
	}

	if err := app.followLocally(ctx, pid); err != nil {
		return err
	}
	return app.print(map[string]any{"pid": pid, "followed": true})
}

func cmdReport(ctx context.Context, app *Application, args []string) error {
	pid, err := parsePID(args[0])
	if err != nil {
		return err
	}
	reason, err := joinText("report reason", args[1:])
	if err != nil {
		return err
	}
	token, err := app.token()
	if err != nil {
		return err
	}
	ok, err := app.client.Report(ctx, token, pid, reason)
	if err != nil {
		return err
	}
	return app.print(map[string]any{"pid": pid, "reported": ok})
}

func cmdLocal(_ context.Context, app *Application, args []string) error {
	var topics []models.FollowedTopic
	var err error
	if len(args) > 0 {
		topics, err = app.db.SearchFollowed(strings.Join(args, " "))
	} else {
		topics, err = app.db.ListFollowed()
	}
	if err != nil {
		return err
	}
	return app.print(topics)
}

func cmdArchive(ctx context.Context, app *Application, args []string) error {
	pid, err := parsePID(args[0])
	if err != nil {
		return err
	}
	topic, found, err := app.client.GetTopic(ctx, pid)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("topic %d has been deleted", pid)
	}
	storage, err := app.storage(ctx)
	if err != nil {
		return err
	}
	archived, err := media.NewArchiver(app.client, storage, app.logger).Archive(ctx, topic)
	if err != nil {
		return err
	}
	return app.print(archived)
}

func cmdUnarchive(ctx context.Context, app *Application, args []string) error {
	storage, err := app.storage(ctx)
	if err != nil {
		return err
	}
	if err := media.NewArchiver(app.client, storage, app.logger).Remove(ctx, args...); err != nil {
		return err
	}
	return app.print(map[string]any{"removed": len(args)})
}

// storage picks the archive target: S3 when enabled, the media directory otherwise.
func (app *Application) storage(ctx context.Context) (models.StorageService, error) {
	c := app.cfg
	if !c.S3Enabled {
		return &utils.LocalStorage{Dir: c.MediaDir}, nil
	}
	s3, err := utils.NewS3Storage(ctx, utils.S3Options{
		Endpoint:  c.S3Endpoint,
		AccessKey: c.S3AccessKey,
		SecretKey: c.S3SecretKey,
		Bucket:    c.S3Bucket,
		Region:    c.S3Region,
		PublicURL: c.S3PublicURL,
		UseSSL:    c.S3UseSSL,
		Prefix:    c.S3Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize S3 storage: %w", err)
	}
	app.logger.Info("S3 Storage initialized", "endpoint", c.S3Endpoint, "bucket", c.S3Bucket)
	return s3, nil
}

func cmdBackup(_ context.Context, app *Application, args []string) error {
	dir := utils.GetEnv("PKUHOLE_BACKUP_DIR", "./backups")
	if len(args) > 0 {
		dir = args[0]
	}
	path, err := app.db.BackupDatabase(dir)
	if err != nil {
		return err
	}
	return app.print(map[string]any{"backup": path})
}

func cmdVersion(_ context.Context, app *Application, _ []string) error {
	return app.print(map[string]any{"version": config.AppVersion, "user_agent": config.UserAgent})
}
