package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/latoulicious/Ongaku/internal/config"
	"github.com/latoulicious/Ongaku/internal/logging"
	"github.com/latoulicious/Ongaku/pkg/database"
	"github.com/latoulicious/Ongaku/pkg/queue"
	"github.com/latoulicious/Ongaku/pkg/resolver"
	"github.com/latoulicious/Ongaku/pkg/track"
)

const usage = `usage: ongaku <command> [args]

commands:
  queue <chat_id>     show the chat's queued tracks
  clear <chat_id>     clear the chat's queue
  audit [chat_id]     show recent repair audit entries
  resolve <target>    resolve a URL or search phrase to a playable track
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := run(ctx, cfg, logger, os.Args[1], os.Args[2:]); err != nil {
		logger.Error("command failed", zap.String("command", os.Args[1]), zap.Error(err))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, command string, args []string) error {
	switch command {
	case "queue":
		chatID, err := chatIDArg(args)
		if err != nil {
			return err
		}
		return showQueue(ctx, cfg, logger, chatID)
	case "clear":
		chatID, err := chatIDArg(args)
		if err != nil {
			return err
		}
		return clearQueue(ctx, cfg, logger, chatID)
	case "audit":
		var chatID int64
		if len(args) > 0 {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid chat id %q", args[0])
			}
			chatID = id
		}
		return showAudit(ctx, cfg, chatID)
	case "resolve":
		if len(args) == 0 {
			return fmt.Errorf("target required")
		}
		return resolveTarget(ctx, cfg, logger, args[0])
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func chatIDArg(args []string) (int64, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("chat id required")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat id %q", args[0])
	}
	return id, nil
}

func openQueue(cfg *config.Config, logger *zap.Logger) *queue.Store {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return queue.NewStore(queue.NewRedisBacking(client), cfg.MaxQueueSize, logger)
}

func showQueue(ctx context.Context, cfg *config.Config, logger *zap.Logger, chatID int64) error {
	store := openQueue(cfg, logger)
	tracks, err := store.Peek(ctx, chatID, cfg.MaxQueueSize)
	if err != nil {
		return err
	}
	if len(tracks) == 0 {
		fmt.Printf("queue for chat %d is empty\n", chatID)
		return nil
	}
	fmt.Printf("queue for chat %d (%d tracks):\n", chatID, len(tracks))
	for i, trk := range tracks {
		dur := "live"
		if !trk.IsLive() {
			dur = trk.Duration.String()
		}
		fmt.Printf("%3d. %s - %s [%s] (%s)\n", i+1, trk.Artist, trk.Title, dur, trk.Source)
	}
	return nil
}

func clearQueue(ctx context.Context, cfg *config.Config, logger *zap.Logger, chatID int64) error {
	store := openQueue(cfg, logger)
	removed, err := store.Clear(ctx, chatID)
	if err != nil {
		return err
	}
	logger.Info("queue cleared", zap.Int64("chat_id", chatID), zap.Int("removed", removed))
	fmt.Printf("removed %d track(s) from chat %d\n", removed, chatID)
	return nil
}

func resolveTarget(ctx context.Context, cfg *config.Config, logger *zap.Logger, target string) error {
	r := resolver.New(resolver.NewYtDlpExtractor(cfg.YtDlpPath, logger), logger)
	r.SetMaxPlaylist(cfg.MaxPlaylistSize)

	tracks, err := r.Resolve(ctx, target, track.KindAudio, 0)
	if err != nil {
		return err
	}
	for _, trk := range tracks {
		dur := "live"
		if !trk.IsLive() {
			dur = trk.Duration.String()
		}
		fmt.Printf("title:  %s\nartist: %s\nsource: %s\nlength: %s\nstream: %s\n",
			trk.Title, trk.Artist, trk.Source, dur, trk.StreamURL)
	}
	return nil
}

func showAudit(ctx context.Context, cfg *config.Config, chatID int64) error {
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	entries, err := database.NewAuditRepository(db).Recent(ctx, chatID, 20)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no audit entries")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s  chat=%d  %-22s %-6s %s\n",
			e.CreatedAt.Format(time.RFC3339), e.ChatID, e.Action, e.Status, e.Details)
	}
	return nil
}
