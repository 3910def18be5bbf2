package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/yungbote/podreach-backend/internal/app"
	types "github.com/yungbote/podreach-backend/internal/domain"
	"github.com/yungbote/podreach-backend/internal/pkg/dbctx"
)

type idList []string

func (l *idList) String() string { return strings.Join(*l, ",") }
func (l *idList) Set(v string) error {
	v = strings.TrimSpace(v)
	if v != "" {
		*l = append(*l, v)
	}
	return nil
}

func main() {
	_ = godotenv.Load()

	var ids idList
	var dryRun bool
	var limit int
	flag.Var(&ids, "media", "media_id to verify (repeatable); default is every row due for verification")
	flag.BoolVar(&dryRun, "dry-run", false, "print candidates without verifying")
	flag.IntVar(&limit, "limit", 100, "maximum rows to verify")
	flag.Parse()

	// Host verification needs no audio tooling.
	_ = os.Setenv("TRANSCRIPTION_ENABLED", "false")

	ctx := context.Background()
	application, err := app.New(ctx)
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	dbc := dbctx.New(ctx)
	var rows []*types.Media
	if len(ids) > 0 {
		parsed := make([]uuid.UUID, 0, len(ids))
		for _, s := range ids {
			id, err := uuid.Parse(s)
			if err == nil && id != uuid.Nil {
				parsed = append(parsed, id)
			}
		}
		if len(parsed) == 0 {
			fmt.Println("no valid media_id values provided")
			return
		}
		rows, err = application.Repos.Lookup.GetByIDs(dbc, parsed)
	} else {
		cutoff := time.Now().UTC().Add(-application.Cfg.Hosts.ReverifyAfter)
		rows, err = application.Repos.Lookup.ListNeedingHostVerification(dbc, cutoff, limit)
	}
	if err != nil {
		fmt.Printf("load media: %v\n", err)
		os.Exit(1)
	}

	verified, review := 0, 0
	for _, m := range rows {
		if m == nil || m.ID == uuid.Nil {
			continue
		}
		if dryRun {
			fmt.Printf("[dry-run] verify hosts media_id=%s name=%q\n", m.ID, m.Name)
			continue
		}
		res, err := application.Services.Hosts.Verify(ctx, m.ID)
		if err != nil {
			fmt.Printf("verify failed for media %s: %v\n", m.ID, err)
			continue
		}
		if res == nil {
			continue
		}
		verified++
		if res.NeedsReview() {
			review++
		}
		fmt.Printf("media_id=%s verified=%d low_confidence=%d overall=%.2f\n", m.ID, len(res.Verified), len(res.LowConfidence), res.Overall)
	}
	fmt.Printf("done; verified=%d needs_review=%d\n", verified, review)
}
