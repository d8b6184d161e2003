package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/bootstrap"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/domain/model"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/domain/pipeline"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/service"
	"github.com/google/uuid"
)

// parseKind accepts "link" or "message" as well as the pipeline kind names.
func parseKind(value string) (pipeline.Kind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "link", string(pipeline.KindLink):
		return pipeline.KindLink, nil
	case "message", "email", "sms", string(pipeline.KindMessage):
		return pipeline.KindMessage, nil
	default:
		return "", fmt.Errorf("--kind must be link or message, got %q", value)
	}
}

func parseIDList(value string) ([]int64, error) {
	var ids []int64
	seen := make(map[int64]bool)
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid panel id %q", part)
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, errors.New("at least one panel id is required")
	}
	return ids, nil
}

// parseTimeFlag accepts RFC 3339 or a bare date, read as midnight UTC.
func parseTimeFlag(name, value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", time.DateOnly} {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("--%s must be RFC 3339 or YYYY-MM-DD, got %q", name, value)
}

func requireID(name string, id int64) error {
	if id <= 0 {
		return fmt.Errorf("--%s is required", name)
	}
	return nil
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

type createLinkOptions struct {
	Description string
	SurveyID    string
	Panels      []int64
	Expires     *time.Time
	Output      outputOptions
}

func parseCreateLinkFlags(args []string) (createLinkOptions, error) {
	fs := newFlagSet("create-link")
	var opts createLinkOptions
	var panels, expires string
	fs.StringVar(&opts.Description, "description", "", "Operator-facing label")
	fs.StringVar(&opts.SurveyID, "survey", "", "Remote survey id (SV_...)")
	fs.StringVar(&panels, "panels", "", "Comma-separated panel ids")
	fs.StringVar(&expires, "expires", "", "Link expiration date")
	addOutputFlags(fs, &opts.Output)
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	var err error
	if opts.Panels, err = parseIDList(panels); err != nil {
		return opts, err
	}
	if opts.Expires, err = parseTimeFlag("expires", expires); err != nil {
		return opts, err
	}
	return opts, opts.Output.validate()
}

func runCreateLink(cmdCtx *commandContext, args []string) error {
	opts, err := parseCreateLinkFlags(args)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, defaultCommandTimeout, func(ctx context.Context, svc bootstrap.ServiceContainer) error {
		d, err := svc.Distributions.CreateLinkDistribution(ctx, &model.CreateLinkDistributionRequest{
			Description:    opts.Description,
			SurveyID:       opts.SurveyID,
			PanelIDs:       opts.Panels,
			ExpirationDate: opts.Expires,
		})
		if err != nil {
			return err
		}
		return emit(cmdCtx.out(), opts.Output, d, func(tw *tabwriter.Writer) error {
			return writef(tw, "created link distribution %d\t%s\n", d.ID, d.String())
		})
	})
}

type createMessageOptions struct {
	Description string
	LinkID      int64
	Mode        model.ContactMode
	Target      model.Target
	MessageID   string
	SubjectID   string
	Output      outputOptions
}

func parseCreateMessageFlags(args []string) (createMessageOptions, error) {
	fs := newFlagSet("create-message")
	var opts createMessageOptions
	var mode, target string
	fs.StringVar(&opts.Description, "description", "", "Operator-facing label")
	fs.Int64Var(&opts.LinkID, "link", 0, "Link distribution id")
	fs.StringVar(&mode, "mode", string(model.ContactModeEmail), "Contact mode: email or sms")
	fs.StringVar(&target, "target", string(model.TargetAll), "Recipients: all, not_finished or finished")
	fs.StringVar(&opts.MessageID, "message", "", "Library message id (MS_...)")
	fs.StringVar(&opts.SubjectID, "subject", "", "Library message id of the email subject")
	addOutputFlags(fs, &opts.Output)
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	if err := requireID("link", opts.LinkID); err != nil {
		return opts, err
	}
	var ok bool
	if opts.Mode, ok = model.ParseContactMode(mode); !ok {
		return opts, fmt.Errorf("--mode must be email or sms, got %q", mode)
	}
	if opts.Target, ok = model.ParseTarget(target); !ok {
		return opts, fmt.Errorf("--target must be all, not_finished or finished, got %q", target)
	}
	return opts, opts.Output.validate()
}

func runCreateMessage(cmdCtx *commandContext, args []string) error {
	opts, err := parseCreateMessageFlags(args)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, defaultCommandTimeout, func(ctx context.Context, svc bootstrap.ServiceContainer) error {
		d, err := svc.Distributions.CreateMessageDistribution(ctx, &model.CreateMessageDistributionRequest{
			Description:        opts.Description,
			LinkDistributionID: opts.LinkID,
			ContactMode:        opts.Mode,
			Target:             opts.Target,
			MessageID:          opts.MessageID,
			SubjectID:          opts.SubjectID,
		})
		if err != nil {
			return err
		}
		return emit(cmdCtx.out(), opts.Output, d, func(tw *tabwriter.Writer) error {
			return writef(tw, "created %s distribution %d\t%s\n", d.ContactMode, d.ID, d.String())
		})
	})
}

type addFallbackOptions struct {
	PrimaryID int64
	MessageID string
	SubjectID string
	Output    outputOptions
}

func runAddFallback(cmdCtx *commandContext, args []string) error {
	fs := newFlagSet("add-fallback")
	var opts addFallbackOptions
	fs.Int64Var(&opts.PrimaryID, "id", 0, "Primary message distribution id")
	fs.StringVar(&opts.MessageID, "message", "", "Library message id of the fallback")
	fs.StringVar(&opts.SubjectID, "subject", "", "Subject message id when the fallback is an email")
	addOutputFlags(fs, &opts.Output)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireID("id", opts.PrimaryID); err != nil {
		return err
	}
	if err := opts.Output.validate(); err != nil {
		return err
	}

	return withServices(cmdCtx, defaultCommandTimeout, func(ctx context.Context, svc bootstrap.ServiceContainer) error {
		d, err := svc.Distributions.AddFallback(ctx, opts.PrimaryID, opts.MessageID, opts.SubjectID)
		if err != nil {
			return err
		}
		return emit(cmdCtx.out(), opts.Output, d, func(tw *tabwriter.Writer) error {
			return writef(tw, "added %s fallback %d to distribution %d\n", d.ContactMode, d.ID, opts.PrimaryID)
		})
	})
}

// kindIDOptions are the flags of commands addressing one distribution.
type kindIDOptions struct {
	Kind      pipeline.Kind
	ID        int64
	SkipCache bool
	Output    outputOptions
}

func parseKindIDFlags(name string, args []string, extra func(*flag.FlagSet)) (kindIDOptions, error) {
	fs := newFlagSet(name)
	var opts kindIDOptions
	var kind string
	fs.StringVar(&kind, "kind", "link", "Distribution kind: link or message")
	fs.Int64Var(&opts.ID, "id", 0, "Distribution id")
	fs.BoolVar(&opts.SkipCache, "skip-cache", false, "Bypass the lookup cache")
	addOutputFlags(fs, &opts.Output)
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	var err error
	if opts.Kind, err = parseKind(kind); err != nil {
		return opts, err
	}
	if err := requireID("id", opts.ID); err != nil {
		return opts, err
	}
	return opts, opts.Output.validate()
}

func runRename(cmdCtx *commandContext, args []string) error {
	var description string
	opts, err := parseKindIDFlags("rename", args, func(fs *flag.FlagSet) {
		fs.StringVar(&description, "description", "", "New description")
	})
	if err != nil {
		return err
	}
	return withServices(cmdCtx, defaultCommandTimeout, func(ctx context.Context, svc bootstrap.ServiceContainer) error {
		if opts.Kind == pipeline.KindLink {
			err = svc.Distributions.UpdateLinkDescription(ctx, opts.ID, description)
		} else {
			err = svc.Distributions.UpdateMessageDescription(ctx, opts.ID, description)
		}
		if err != nil {
			return err
		}
		return writef(cmdCtx.out(), "renamed %s %d\n", opts.Kind, opts.ID)
	})
}

func runFreeze(cmdCtx *commandContext, args []string) error {
	opts, err := parseKindIDFlags("freeze", args, nil)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, defaultCommandTimeout, func(ctx context.Context, svc bootstrap.ServiceContainer) error {
		var n int
		if opts.Kind == pipeline.KindLink {
			n, err = svc.Distributions.FreezeLinkRecipients(ctx, opts.ID)
		} else {
			n, err = svc.Distributions.FreezeMessageRecipients(ctx, opts.ID)
		}
		if err != nil {
			return err
		}
		result := map[string]any{"kind": opts.Kind, "id": opts.ID, "recipients": n}
		return emit(cmdCtx.out(), opts.Output, result, func(tw *tabwriter.Writer) error {
			return writef(tw, "froze %d recipients of %s %d\n", n, opts.Kind, opts.ID)
		})
	})
}

// runStart starts a pipeline from its first step, or resumes it from the
// step matching its persisted state when it stopped part way.
func runStart(cmdCtx *commandContext, args []string) error {
	var resume bool
	opts, err := parseKindIDFlags("start", args, func(fs *flag.FlagSet) {
		fs.BoolVar(&resume, "resume", false, "Resume a pipeline that stopped after a permanent failure")
	})
	if err != nil {
		return err
	}
	return withServices(cmdCtx, defaultCommandTimeout, func(ctx context.Context, svc bootstrap.ServiceContainer) error {
		var job *model.Job
		switch {
		case resume:
			job, err = svc.Distributions.Resume(ctx, opts.Kind, opts.ID)
		case opts.Kind == pipeline.KindLink:
			job, err = svc.Distributions.StartLinkDistribution(ctx, opts.ID)
		default:
			job, err = svc.Distributions.StartMessageDistribution(ctx, opts.ID)
		}
		if err != nil {
			return err
		}
		return emit(cmdCtx.out(), opts.Output, job, func(tw *tabwriter.Writer) error {
			return writef(tw, "enqueued step job %s for %s %d\n", job.ID, opts.Kind, opts.ID)
		})
	})
}

func runPrepareSend(cmdCtx *commandContext, args []string) error {
	var sendAt string
	opts, err := parseKindIDFlags("prepare-send", args, func(fs *flag.FlagSet) {
		fs.StringVar(&sendAt, "send-date", "", "When the platform sends the message; defaults to now")
	})
	if err != nil {
		return err
	}
	if opts.Kind != pipeline.KindMessage {
		return errors.New("prepare-send applies to message distributions; pass --kind message")
	}
	when, err := parseTimeFlag("send-date", sendAt)
	if err != nil {
		return err
	}
	sendDate := time.Now().UTC()
	if when != nil {
		sendDate = *when
	}

	return withServices(cmdCtx, defaultCommandTimeout, func(ctx context.Context, svc bootstrap.ServiceContainer) error {
		res, err := svc.Distributions.PrepareSend(ctx, opts.ID, sendDate)
		if err != nil {
			return err
		}
		return emit(cmdCtx.out(), opts.Output, res, func(tw *tabwriter.Writer) error {
			if err := writef(tw, "scheduled distribution %d for %s\n", opts.ID, sendDate.Format(time.RFC3339)); err != nil {
				return err
			}
			return writef(tw, "recipients:\t%d\nfallback recipients:\t%d\n", res.Recipients, res.FallbackRecipients)
		})
	})
}

// inspection is the inspect view of one distribution.
type inspection struct {
	Kind         pipeline.Kind                `json:"kind"`
	State        pipeline.State               `json:"state"`
	Link         *model.LinkDistribution      `json:"link,omitempty"`
	Message      *model.MessageDistribution   `json:"message,omitempty"`
	Messages     []*model.MessageDistribution `json:"messages,omitempty"`
	PendingSteps []*model.Job                 `json:"pending_steps,omitempty"`
}

func runInspect(cmdCtx *commandContext, args []string) error {
	opts, err := parseKindIDFlags("inspect", args, nil)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, defaultCommandTimeout, func(ctx context.Context, svc bootstrap.ServiceContainer) error {
		view, err := inspect(ctx, svc, opts)
		if err != nil {
			return err
		}
		return emit(cmdCtx.out(), opts.Output, view, func(tw *tabwriter.Writer) error {
			return renderInspection(tw, view)
		})
	})
}

func inspect(ctx context.Context, svc bootstrap.ServiceContainer, opts kindIDOptions) (*inspection, error) {
	state, err := svc.Orchestrator.State(ctx, opts.Kind, opts.ID)
	if err != nil {
		return nil, err
	}
	view := &inspection{Kind: opts.Kind, State: state}
	if opts.Kind == pipeline.KindLink {
		if view.Link, err = svc.Repos.Links.GetByID(ctx, opts.ID); err != nil {
			return nil, err
		}
		if view.Messages, err = svc.Repos.Messages.ListByLinkDistribution(ctx, opts.ID); err != nil {
			return nil, fmt.Errorf("list message distributions: %w", err)
		}
	} else if view.Message, err = svc.Repos.Messages.GetByID(ctx, opts.ID); err != nil {
		return nil, err
	}

	jobType := opts.Kind.JobType()
	jobs, err := svc.Jobs.List(ctx, model.JobListOptions{Type: &jobType, DistributionID: &opts.ID, Limit: 50})
	if err != nil {
		return nil, fmt.Errorf("list step jobs: %w", err)
	}
	for _, j := range jobs {
		if j.Status != model.JobStatusCompleted {
			view.PendingSteps = append(view.PendingSteps, j)
		}
	}
	return view, nil
}

func renderInspection(tw *tabwriter.Writer, v *inspection) error {
	if v.Link != nil {
		expires := "-"
		if v.Link.ExpirationDate != nil {
			expires = v.Link.ExpirationDate.Format(time.RFC3339)
		}
		if err := writef(tw, "link distribution %d\t%s\nsurvey:\t%s\npanels:\t%v\nexpires:\t%s\n",
			v.Link.ID, v.Link.String(), v.Link.SurveyID, v.Link.PanelIDs, expires); err != nil {
			return err
		}
	}
	if v.Message != nil {
		if err := writef(tw, "%s distribution %d\t%s\nlink distribution:\t%d\ntarget:\t%s\n",
			v.Message.ContactMode, v.Message.ID, v.Message.String(), v.Message.LinkDistributionID, v.Message.Target); err != nil {
			return err
		}
		if v.Message.FallbackID != nil {
			if err := writef(tw, "fallback:\t%d\n", *v.Message.FallbackID); err != nil {
				return err
			}
		}
	}
	if err := writef(tw, "state:\t%s\n", v.State); err != nil {
		return err
	}
	for _, m := range v.Messages {
		if err := writef(tw, "  %s %d\t%s\t%s\n", m.ContactMode, m.ID, m.Target, m.Description); err != nil {
			return err
		}
	}
	for _, j := range v.PendingSteps {
		p, _ := pipeline.DecodePayload(j.Payload)
		line := fmt.Sprintf("  step %s\t%s\tattempt %d\t%s", p.Step, j.Status, j.RetryCount+1, j.ID)
		if j.LastError != nil && *j.LastError != "" {
			line += "\t" + *j.LastError
		}
		if err := writeln(tw, line); err != nil {
			return err
		}
	}
	return nil
}

func runCandidates(cmdCtx *commandContext, args []string) error {
	opts, err := parseKindIDFlags("candidates", args, nil)
	if err != nil {
		return err
	}
	if opts.Kind != pipeline.KindMessage {
		return errors.New("candidates applies to message distributions; pass --kind message")
	}
	return withServices(cmdCtx, defaultCommandTimeout, func(ctx context.Context, svc bootstrap.ServiceContainer) error {
		stats, err := svc.Distributions.CandidateStats(ctx, opts.ID)
		if err != nil {
			return err
		}
		return emit(cmdCtx.out(), opts.Output, stats, func(tw *tabwriter.Writer) error {
			return writef(tw, "contact mode:\t%d\nfallback mode:\t%d\nunreachable:\t%d\ntotal:\t%d\n",
				stats.ContactMode, stats.FallbackMode, stats.Unreachable, stats.Total)
		})
	})
}

func runStats(cmdCtx *commandContext, args []string) error {
	opts, err := parseKindIDFlags("stats", args, nil)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, defaultCommandTimeout, func(ctx context.Context, svc bootstrap.ServiceContainer) error {
		if opts.Kind == pipeline.KindLink {
			report, err := svc.Distributions.LinkReport(ctx, opts.ID, opts.SkipCache)
			if err != nil {
				return err
			}
			return emit(cmdCtx.out(), opts.Output, report, func(tw *tabwriter.Writer) error {
				return renderReport(tw, report.Counters, &report.Stats)
			})
		}
		report, err := svc.Distributions.MessageReport(ctx, opts.ID, opts.SkipCache)
		if err != nil {
			return err
		}
		return emit(cmdCtx.out(), opts.Output, report, func(tw *tabwriter.Writer) error {
			return renderReport(tw, report.Counters, report.Stats)
		})
	})
}

func renderReport(tw *tabwriter.Writer, counters map[string]float64, stats *service.Stats) error {
	if err := writeln(tw, "COUNTER\tVALUE"); err != nil {
		return err
	}
	for _, name := range sortedKeys(counters) {
		if err := writef(tw, "%s\t%g\n", name, counters[name]); err != nil {
			return err
		}
	}
	if stats == nil {
		return nil
	}

	rows := stats.Rows()
	statuses := make(map[string]float64)
	for _, row := range rows {
		for status := range row.Counts {
			statuses[status] = 0
		}
	}
	columns := sortedKeys(statuses)
	if err := writef(tw, "\nPANEL\t%s\tTOTAL\tPANELISTS\n", strings.ToUpper(strings.Join(columns, "\t"))); err != nil {
		return err
	}
	for _, name := range sortedKeys(rows) {
		row := rows[name]
		cells := make([]string, len(columns))
		for i, c := range columns {
			cells[i] = strconv.Itoa(row.Counts[c])
		}
		if err := writef(tw, "%s\t%s\t%d\t%d\n", name, strings.Join(cells, "\t"), row.Total, row.TotalPanelists); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func runDelete(cmdCtx *commandContext, args []string) error {
	var yes bool
	opts, err := parseKindIDFlags("delete", args, func(fs *flag.FlagSet) {
		fs.BoolVar(&yes, "yes", false, "Skip the confirmation prompt")
	})
	if err != nil {
		return err
	}
	target := fmt.Sprintf("%s %d", opts.Kind, opts.ID)
	if err := confirmAction(cmdCtx.out(), deleteConfirmOptions{yes: yes, target: target}, "delete"); err != nil {
		return err
	}
	return withServices(cmdCtx, defaultCommandTimeout, func(ctx context.Context, svc bootstrap.ServiceContainer) error {
		if opts.Kind == pipeline.KindLink {
			err = svc.Distributions.DeleteLinkDistribution(ctx, opts.ID)
		} else {
			err = svc.Distributions.DeleteMessageDistribution(ctx, opts.ID)
		}
		if err != nil {
			return err
		}
		return writef(cmdCtx.out(), "deleted %s\n", target)
	})
}

type sendSMSOptions struct {
	Name    string
	Profile uuid.UUID
	Message string
	Output  outputOptions
}

func parseSendSMSFlags(args []string) (sendSMSOptions, error) {
	fs := newFlagSet("send-sms")
	var opts sendSMSOptions
	var profile string
	fs.StringVar(&opts.Name, "name", "", "Name of the remote SMS distribution")
	fs.StringVar(&profile, "profile", "", "Panelist profile UID")
	fs.StringVar(&opts.Message, "message", "", "Free text of the SMS")
	addOutputFlags(fs, &opts.Output)
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	uid, err := uuid.Parse(strings.TrimSpace(profile))
	if err != nil {
		return opts, fmt.Errorf("--profile must be a UUID: %w", err)
	}
	opts.Profile = uid
	return opts, opts.Output.validate()
}

func runSendSMS(cmdCtx *commandContext, args []string) error {
	opts, err := parseSendSMSFlags(args)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, defaultCommandTimeout, func(ctx context.Context, svc bootstrap.ServiceContainer) error {
		remoteID, err := svc.Distributions.SendSingleSMS(ctx, opts.Name, opts.Profile, opts.Message)
		if err != nil {
			return err
		}
		return emit(cmdCtx.out(), opts.Output, map[string]string{"distribution_id": remoteID},
			func(tw *tabwriter.Writer) error {
				return writef(tw, "sent SMS distribution %s\n", remoteID)
			})
	})
}
