package main

import (
	"context"
	"errors"
	"strings"
	"text/tabwriter"

	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/bootstrap"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/qualtrics"
)

// stringList is a repeatable flag that also splits comma-separated values.
type stringList []string

func (l *stringList) String() string {
	if l == nil {
		return ""
	}
	return strings.Join(*l, ",")
}

func (l *stringList) Set(value string) error {
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*l = append(*l, part)
		}
	}
	return nil
}

type catalogOptions struct {
	SkipCache  bool
	Categories stringList
	Output     outputOptions
}

func parseCatalogFlags(name string, args []string, withCategories bool) (catalogOptions, error) {
	fs := newFlagSet(name)
	var opts catalogOptions
	fs.BoolVar(&opts.SkipCache, "skip-cache", false, "Bypass the lookup cache")
	if withCategories {
		fs.Var(&opts.Categories, "category", "Message category (repeatable, or comma-separated)")
	}
	addOutputFlags(fs, &opts.Output)
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	return opts, opts.Output.validate()
}

func runSurveys(cmdCtx *commandContext, args []string) error {
	opts, err := parseCatalogFlags("surveys", args, false)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, defaultCommandTimeout, func(ctx context.Context, svc bootstrap.ServiceContainer) error {
		surveys, err := svc.Lookup.Surveys(ctx, opts.SkipCache)
		if err != nil {
			return err
		}
		return emit(cmdCtx.out(), opts.Output, surveys, func(tw *tabwriter.Writer) error {
			if err := writeln(tw, "ID\tNAME\tACTIVE\tMODIFIED"); err != nil {
				return err
			}
			for _, s := range surveys {
				if err := writef(tw, "%s\t%s\t%t\t%s\n", s.ID, s.Name, s.IsActive, s.LastModified); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

func runMessages(cmdCtx *commandContext, args []string) error {
	opts, err := parseCatalogFlags("messages", args, true)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, defaultCommandTimeout, func(ctx context.Context, svc bootstrap.ServiceContainer) error {
		var messages []qualtrics.Message
		if len(opts.Categories) == 0 {
			messages, err = svc.Lookup.Messages(ctx, opts.SkipCache)
		} else {
			messages, err = svc.Lookup.MessagesIn(ctx, opts.Categories, opts.SkipCache)
		}
		if err != nil {
			return err
		}
		return emit(cmdCtx.out(), opts.Output, messages, func(tw *tabwriter.Writer) error {
			if err := writeln(tw, "ID\tCATEGORY\tDESCRIPTION"); err != nil {
				return err
			}
			for _, m := range messages {
				if err := writef(tw, "%s\t%s\t%s\n", m.ID, m.Category, m.Description); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

func runContactHistory(cmdCtx *commandContext, args []string) error {
	fs := newFlagSet("contact-history")
	var contactID string
	var output outputOptions
	fs.StringVar(&contactID, "contact", "", "Directory contact id (CID_...)")
	addOutputFlags(fs, &output)
	if err := fs.Parse(args); err != nil {
		return err
	}
	contactID = strings.TrimSpace(contactID)
	if contactID == "" {
		return errors.New("--contact is required")
	}
	if err := output.validate(); err != nil {
		return err
	}

	return withServices(cmdCtx, defaultCommandTimeout, func(ctx context.Context, svc bootstrap.ServiceContainer) error {
		records, err := svc.Lookup.ContactHistory(ctx, contactID)
		if err != nil {
			return err
		}
		return emit(cmdCtx.out(), output, records, func(tw *tabwriter.Writer) error {
			if err := writeln(tw, "STATUS\tSENT\tOPENED\tSTARTED\tCOMPLETED"); err != nil {
				return err
			}
			for _, r := range records {
				if err := writef(tw, "%s\t%s\t%s\t%s\t%s\n",
					r.Status, dash(r.SentAt), dash(r.OpenedAt), dash(r.ResponseStartedAt), dash(r.ResponseCompletedAt)); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
