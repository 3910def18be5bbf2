package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/yungbote/podreach-backend/internal/app"
)

type idList []string

func (l *idList) String() string { return strings.Join(*l, ",") }
func (l *idList) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*l = append(*l, part)
		}
	}
	return nil
}

func main() {
	_ = godotenv.Load()

	var ids idList
	flag.Var(&ids, "episode", "episode_id to transcribe (repeatable or comma separated)")
	flag.Parse()

	episodeIDs := make([]uuid.UUID, 0, len(ids))
	for _, s := range ids {
		id, err := uuid.Parse(s)
		if err != nil || id == uuid.Nil {
			fmt.Printf("skipping invalid episode id %q\n", s)
			continue
		}
		episodeIDs = append(episodeIDs, id)
	}
	if len(episodeIDs) == 0 {
		fmt.Println("no valid episode ids provided")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx)
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	svc := application.Services.Transcription
	if svc == nil {
		fmt.Println("transcription unavailable (TRANSCRIPTION_ENABLED=false or speech client missing)")
		os.Exit(1)
	}
	batchID, err := svc.CreateBatch(ctx, episodeIDs)
	if err != nil {
		fmt.Printf("create batch: %v\n", err)
		os.Exit(1)
	}
	res, err := svc.ProcessBatch(ctx, batchID)
	if err != nil {
		fmt.Printf("process batch %s: %v\n", batchID, err)
		os.Exit(1)
	}
	for _, ep := range res.Episodes {
		fmt.Printf("episode_id=%s outcome=%s %s\n", ep.EpisodeID, ep.Outcome, ep.Reason)
	}
	fmt.Printf("done; batch=%s completed=%d failed=%d skipped=%d\n", batchID, res.Completed, res.Failed, res.Skipped)
}
