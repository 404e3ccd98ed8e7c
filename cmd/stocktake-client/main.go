package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stocktake-backend/pkg/apiclient"
	"github.com/angelmondragon/stocktake-backend/pkg/calendar"
	"github.com/angelmondragon/stocktake-backend/pkg/config"
	"github.com/angelmondragon/stocktake-backend/pkg/enums"
	"github.com/angelmondragon/stocktake-backend/pkg/logger"
)

const usage = `usage: stocktake-client [flags] <command> [args]

commands:
  me                         show the signed-in account
  worklist                   list today's items with record status
  grid                       show the status grid (-start/-end)
  records                    list records (-status, -start, -end)
  count <item-id> <qty>      create or overwrite a draft count
  submit <record-id>...      submit one or more drafts
  upload <file.xlsx>         publish a catalog day (-day)
  template <out.xlsx>        download the blank catalog workbook
  purge <YYYY-MM-DD>         delete a catalog day
  summary                    admin totals (-start/-end)
  progress                   admin per-user progress (-start/-end)
  passwd <old> <new>         change the signed-in account's password
  deactivate <user-id>       admin: disable an account
  delete-user <user-id>      admin: remove an account and its records
`

func main() {
	logg := logger.New(logger.Options{ServiceName: "stocktake-client"})
	_ = godotenv.Load()

	start := flag.String("start", "", "range start (YYYY-MM-DD)")
	end := flag.String("end", "", "range end (YYYY-MM-DD)")
	day := flag.String("day", "", "catalog day for upload (YYYY-MM-DD)")
	status := flag.String("status", "", "record status filter: draft|submitted")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadClient()
	if err != nil {
		logg.Error(context.Background(), "failed to load client config", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logg.WithField(ctx, "command", flag.Arg(0))

	client := apiclient.New(*cfg)
	client.Gate().OnUnauthenticated(func(error) {
		logg.Warn(ctx, "session ended, sign in again")
	})

	if _, err := client.Login(ctx, cfg.Name, cfg.Password); err != nil {
		logg.Error(ctx, "login failed", err)
		os.Exit(1)
	}

	opts := options{start: *start, end: *end, day: *day, status: *status}
	out, err := dispatch(ctx, client, flag.Arg(0), flag.Args()[1:], opts)
	if err != nil {
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) {
			ctx = logg.WithFields(ctx, map[string]any{"code": apiErr.Code, "status": apiErr.Status})
		}
		logg.Error(ctx, "command failed", err)
		os.Exit(1)
	}
	if out != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			logg.Error(ctx, "failed to write output", err)
			os.Exit(1)
		}
	}
}

type options struct {
	start  string
	end    string
	day    string
	status string
}

var days = calendar.New(time.UTC)

func dispatch(ctx context.Context, c *apiclient.Client, cmd string, args []string, opts options) (any, error) {
	startDay, err := optionalDay(opts.start)
	if err != nil {
		return nil, err
	}
	endDay, err := optionalDay(opts.end)
	if err != nil {
		return nil, err
	}

	switch cmd {
	case "me":
		return c.Me(ctx)
	case "worklist":
		return c.Worklist(ctx)
	case "grid":
		return c.StatusGrid(ctx, apiclient.StatusGridQuery{Start: startDay, End: endDay})
	case "records":
		q := apiclient.RecordQuery{Start: startDay, End: endDay}
		if opts.status != "" {
			st, err := enums.ParseRecordStatus(opts.status)
			if err != nil {
				return nil, err
			}
			q.Status = &st
		}
		return c.ListRecords(ctx, q)
	case "count":
		if len(args) != 2 {
			return nil, fmt.Errorf("count needs <item-id> <qty>")
		}
		itemID, err := uuid.Parse(args[0])
		if err != nil {
			return nil, fmt.Errorf("invalid item id: %w", err)
		}
		qty, err := decimal.NewFromString(args[1])
		if err != nil {
			return nil, fmt.Errorf("invalid quantity: %w", err)
		}
		return c.CreateRecord(ctx, itemID, qty)
	case "submit":
		ids, err := parseIDs(args)
		if err != nil {
			return nil, err
		}
		if len(ids) == 1 {
			return c.SubmitRecord(ctx, ids[0])
		}
		return c.SubmitBatch(ctx, ids)
	case "upload":
		if len(args) != 1 {
			return nil, fmt.Errorf("upload needs <file.xlsx>")
		}
		content, err := os.ReadFile(args[0])
		if err != nil {
			return nil, err
		}
		uploadDay, err := optionalDay(opts.day)
		if err != nil {
			return nil, err
		}
		return c.UploadSpreadsheet(ctx, filepath.Base(args[0]), content, uploadDay, "")
	case "template":
		if len(args) != 1 {
			return nil, fmt.Errorf("template needs <out.xlsx>")
		}
		content, err := c.DownloadTemplate(ctx)
		if err != nil {
			return nil, err
		}
		return nil, os.WriteFile(args[0], content, 0o644)
	case "purge":
		if len(args) != 1 {
			return nil, fmt.Errorf("purge needs <YYYY-MM-DD>")
		}
		d, err := days.ParseDay(args[0])
		if err != nil {
			return nil, err
		}
		return c.PurgeDay(ctx, d)
	case "summary":
		return c.Summary(ctx, startDay, endDay)
	case "progress":
		return c.Progress(ctx, startDay, endDay)
	case "passwd":
		if len(args) != 2 {
			return nil, fmt.Errorf("passwd needs <old> <new>")
		}
		return nil, c.ChangePassword(ctx, args[0], args[1])
	case "deactivate":
		ids, err := parseIDs(args)
		if err != nil || len(ids) != 1 {
			return nil, fmt.Errorf("deactivate needs one <user-id>")
		}
		inactive := false
		return c.UpdateUser(ctx, ids[0], apiclient.UserChanges{IsActive: &inactive})
	case "delete-user":
		ids, err := parseIDs(args)
		if err != nil || len(ids) != 1 {
			return nil, fmt.Errorf("delete-user needs one <user-id>")
		}
		return nil, c.DeleteUser(ctx, ids[0])
	default:
		return nil, fmt.Errorf("unknown command %q", cmd)
	}
}

func optionalDay(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := days.ParseDay(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func parseIDs(args []string) ([]uuid.UUID, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("submit needs at least one record id")
	}
	ids := make([]uuid.UUID, 0, len(args))
	for _, raw := range args {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid record id %q: %w", raw, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
