package main

import (
	"fmt"
	"net/http"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Metaculus/metaculus-sub005/internal/feed"
	"github.com/Metaculus/metaculus-sub005/internal/keyfactor"
	"github.com/Metaculus/metaculus-sub005/internal/logbook"
	"github.com/Metaculus/metaculus-sub005/internal/platform"
	"github.com/Metaculus/metaculus-sub005/internal/preview"
	"github.com/Metaculus/metaculus-sub005/internal/tui"
	"github.com/Metaculus/metaculus-sub005/internal/workbench"
)

var workbenchFlags struct {
	post     int64
	comment  int64
	layout   string
	apiURL   string
	user     int64
	private  bool
	remember bool
}

var workbenchCmd = &cobra.Command{
	Use:   "workbench",
	Short: "Open the key factor drafting TUI for a post",
	Long: `Opens the terminal workbench for one post. Without --comment the first
submission also creates your comment; with it, key factors are appended to
that comment and its suggestions are loaded.`,
	Args: cobra.NoArgs,
	RunE: runWorkbench,
}

func init() {
	f := workbenchCmd.Flags()
	f.Int64Var(&workbenchFlags.post, "post", 0, "post id (defaults to workbench.post in config)")
	f.Int64Var(&workbenchFlags.comment, "comment", 0, "existing comment id to add key factors to")
	f.StringVar(&workbenchFlags.layout, "layout", "", "layout: compact, detailed or consumer")
	f.StringVar(&workbenchFlags.apiURL, "api-url", "", "platform API base URL (overrides api.base_url)")
	f.Int64Var(&workbenchFlags.user, "user", 0, "acting user id (overrides user.id)")
	f.BoolVar(&workbenchFlags.private, "private", false, "create the comment as private")
	f.BoolVar(&workbenchFlags.remember, "remember", false, "save --post as the default post")
}

func runWorkbench(cmd *cobra.Command, _ []string) error {
	cfg, logs, err := loadProject()
	if err != nil {
		return err
	}
	defer logs.Close()
	logger := logs.Named("cli")

	postID := workbenchFlags.post
	if postID == 0 {
		postID = cfg.Project.Workbench.Post
	}
	if postID <= 0 {
		return fmt.Errorf("no post selected: pass --post or set workbench.post in %s", cfg.ProjectConfigPath())
	}
	baseURL := cfg.Project.API.BaseURL
	if workbenchFlags.apiURL != "" {
		baseURL = workbenchFlags.apiURL
	}
	userID := cfg.Project.User.ID
	if workbenchFlags.user != 0 {
		userID = workbenchFlags.user
	}
	layoutName := cfg.Project.Workbench.Layout
	if workbenchFlags.layout != "" {
		layoutName = workbenchFlags.layout
	}

	client, err := platform.NewHTTPClient(baseURL,
		platform.WithHTTPClient(&http.Client{Timeout: cfg.APITimeout()}),
		platform.WithRateLimit(rate.Limit(cfg.Project.API.RateLimit), cfg.Project.API.Burst),
		platform.WithUser(userID),
		platform.WithClientLogger(logs.Named("platform")),
	)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	post, err := client.GetPost(ctx, postID)
	if err != nil {
		return fmt.Errorf("load post %d: %w", postID, err)
	}
	if workbenchFlags.remember && workbenchFlags.post != 0 {
		if err := cfg.SetDefaultPost(postID); err != nil {
			logger.Warn("saving default post failed", zap.Error(err))
		}
	}

	journal, err := logbook.New(filepath.Join(cfg.LogsDir(), "activity.log"))
	if err != nil {
		return err
	}
	opts := []tui.AppOption{
		tui.WithLogbook(journal),
		tui.WithLogger(logs.Zap()),
		tui.WithLayout(tui.SelectLayout(layoutName)),
		tui.WithCallTimeout(cfg.APITimeout()),
		tui.WithFeed(feed.NewRouter(feed.WithLogger(logs.Named("feed")))),
	}
	if cfg.PreviewEnabled() {
		opts = append(opts, tui.WithPreview(preview.FetcherFunc(client.FetchNewsPreview), cfg.PreviewDebounce()))
	}
	app := tui.NewApp(ctx, workbench.Config{
		Post:      post,
		UserID:    userID,
		CommentID: workbenchFlags.comment,
		IsPrivate: workbenchFlags.private,
	}, client, opts...)
	defer app.Close()

	logger.Info("workbench opened",
		zap.Int64("post", post.ID),
		zap.Int64("comment", workbenchFlags.comment),
		zap.String("layout", tui.SelectLayout(layoutName).Name()),
		zap.Strings("kinds", kindNames()),
	)
	program := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("run workbench: %w", err)
	}
	return nil
}

func kindNames() []string {
	names := make([]string, len(keyfactor.Kinds))
	for i, k := range keyfactor.Kinds {
		names[i] = string(k)
	}
	return names
}
