// Package main is socialctl, the operator CLI for the publisher: run slots
// on demand, review drafts and inspect the run log.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/siyinging/social-publisher/internal/app"
	"github.com/siyinging/social-publisher/internal/domain"
	"github.com/siyinging/social-publisher/internal/pipeline"
)

// Exit codes distinguish failure classes for scripting.
const (
	exitOK           = 0
	exitOther        = 1
	exitNotFound     = 2
	exitInvalidState = 3
	exitTransient    = 4
	exitPermanent    = 5
)

var version = "dev"

func usage() {
	fmt.Fprintf(os.Stderr, `socialctl %s - operator CLI for the social publisher

Usage:
  socialctl [-config config.yml] <command> [args]

Commands:
  run <job>               Fire one scheduled job now (e.g. morning-headline)
  publish <kind>          Run the publish pipeline for a kind now
  drafts [kind]           List pending drafts
  approve <id> [note]     Approve a draft
  autoapprove [kind]      Approve all drafts passing the content checks
  reject <id> <reason>    Reject a draft
  runs [YYYY-MM-DD]       Show run records for a day (default today)
  clear-slot <kind> [day] Drop a slot's published marker to force a re-run
  jobs                    List registered jobs

Exit codes: 0 ok, 2 not found, 3 invalid state, 4 transient failure,
5 permanent failure, 1 other error.
`, version)
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yml", "Path to configuration file")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(exitOther)
	}

	application, err := app.New(app.Options{ConfigPath: configPath, Version: version})
	if err != nil {
		fmt.Fprintf(os.Stderr, "initialize: %v\n", err)
		os.Exit(exitOther)
	}
	defer application.Close()

	ctx := context.Background()
	code := dispatch(ctx, application, args[0], args[1:])
	os.Exit(code)
}

func dispatch(ctx context.Context, a *app.App, command string, args []string) int {
	switch command {
	case "run":
		return cmdRun(ctx, a, args)
	case "publish":
		return cmdPublish(ctx, a, args)
	case "drafts":
		return cmdDrafts(ctx, a, args)
	case "approve":
		return cmdApprove(ctx, a, args)
	case "autoapprove":
		return cmdAutoApprove(ctx, a, args)
	case "reject":
		return cmdReject(ctx, a, args)
	case "runs":
		return cmdRuns(ctx, a, args)
	case "clear-slot":
		return cmdClearSlot(ctx, a, args)
	case "jobs":
		fmt.Println(strings.Join(jobNames(), "\n"))
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		usage()
		return exitOther
	}
}

func jobNames() []string {
	return []string{
		"draft-generation",
		"morning-headline",
		"midday-thread",
		"daily-feature",
		"afternoon-repost",
		"weekly-review",
		"expire-sweep",
	}
}

func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, domain.ErrNotFound):
		return exitNotFound
	case errors.Is(err, domain.ErrInvalidState):
		return exitInvalidState
	case pipeline.IsTransient(err):
		return exitTransient
	case errors.Is(err, domain.ErrInvalidKind), errors.Is(err, domain.ErrInvalidContent):
		return exitOther
	default:
		return exitPermanent
	}
}

func fail(err error) int {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return exitCodeFor(err)
}

func cmdRun(ctx context.Context, a *app.App, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: socialctl run <job>")
		return exitOther
	}
	if err := a.RunJob(ctx, args[0]); err != nil {
		return fail(err)
	}
	fmt.Printf("job %s finished\n", args[0])
	return exitOK
}

func cmdPublish(ctx context.Context, a *app.App, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: socialctl publish <kind>")
		return exitOther
	}
	kind, err := domain.ParseKind(args[0])
	if err != nil {
		return fail(err)
	}

	record, runErr := a.RunSlotNow(ctx, kind)
	printJSON(record)
	if runErr != nil {
		return fail(runErr)
	}
	if record.Outcome == domain.OutcomeFailure {
		return exitPermanent
	}
	return exitOK
}

func cmdDrafts(ctx context.Context, a *app.App, args []string) int {
	var kind domain.Kind
	if len(args) > 0 {
		parsed, err := domain.ParseKind(args[0])
		if err != nil {
			return fail(err)
		}
		kind = parsed
	}

	drafts, err := a.Content().ListDrafts(ctx, kind)
	if err != nil {
		return fail(err)
	}
	if len(drafts) == 0 {
		fmt.Println("no pending drafts")
		return exitOK
	}
	for _, d := range drafts {
		preview := d.Segments[0]
		if len(preview) > 60 {
			preview = preview[:57] + "..."
		}
		fmt.Printf("%s  %-13s %s  %q\n", d.ID, d.Kind, d.SlotDay, preview)
	}
	return exitOK
}

func cmdApprove(ctx context.Context, a *app.App, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: socialctl approve <id> [note]")
		return exitOther
	}
	note := strings.Join(args[1:], " ")
	if err := a.Gate().Approve(ctx, args[0], note); err != nil {
		return fail(err)
	}
	fmt.Printf("approved %s\n", args[0])
	return exitOK
}

func cmdAutoApprove(ctx context.Context, a *app.App, args []string) int {
	var kind domain.Kind
	if len(args) > 0 {
		parsed, err := domain.ParseKind(args[0])
		if err != nil {
			return fail(err)
		}
		kind = parsed
	}

	result, err := a.Gate().AutoApprove(ctx, kind)
	if err != nil {
		return fail(err)
	}
	fmt.Printf("approved %d draft(s)\n", result.Approved)
	for _, held := range result.Held {
		fmt.Printf("held %s: %s\n", held.ItemID, held.Reason)
	}
	return exitOK
}

func cmdReject(ctx context.Context, a *app.App, args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: socialctl reject <id> <reason>")
		return exitOther
	}
	if err := a.Gate().Reject(ctx, args[0], strings.Join(args[1:], " ")); err != nil {
		return fail(err)
	}
	fmt.Printf("rejected %s\n", args[0])
	return exitOK
}

func cmdRuns(ctx context.Context, a *app.App, args []string) int {
	day := time.Now().UTC().Format(domain.SlotDayFormat)
	if len(args) > 0 {
		if _, err := time.Parse(domain.SlotDayFormat, args[0]); err != nil {
			fmt.Fprintln(os.Stderr, "day must be YYYY-MM-DD")
			return exitOther
		}
		day = args[0]
	}

	records, err := a.RunLog().ListByDay(ctx, day)
	if err != nil {
		return fail(err)
	}
	if len(records) == 0 {
		fmt.Printf("no runs recorded for %s\n", day)
		return exitOK
	}
	for _, r := range records {
		line := fmt.Sprintf("%s  %-17s %s", r.Timestamp.Format(time.TimeOnly), r.JobName, r.Outcome)
		if r.ErrorKind != nil {
			line += fmt.Sprintf("  [%s] %s", *r.ErrorKind, deref(r.ErrorDetail))
		}
		fmt.Println(line)
	}
	return exitOK
}

func cmdClearSlot(ctx context.Context, a *app.App, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: socialctl clear-slot <kind> [YYYY-MM-DD]")
		return exitOther
	}
	kind, err := domain.ParseKind(args[0])
	if err != nil {
		return fail(err)
	}

	day := time.Now().UTC().Format(domain.SlotDayFormat)
	if len(args) > 1 {
		if _, err := time.Parse(domain.SlotDayFormat, args[1]); err != nil {
			fmt.Fprintln(os.Stderr, "day must be YYYY-MM-DD")
			return exitOther
		}
		day = args[1]
	}

	if err := a.ClearSlot(ctx, kind, day); err != nil {
		return fail(err)
	}
	fmt.Printf("cleared slot marker for %s on %s\n", kind, day)
	return exitOK
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return
	}
	fmt.Println(string(data))
}
