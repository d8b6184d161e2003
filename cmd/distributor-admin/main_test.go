package main

import (
	"bytes"
	"flag"
	"strings"
	"testing"
	"text/tabwriter"
	"time"

	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/domain/model"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/domain/pipeline"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintUsageListsEveryCommand(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printUsage(&buf))

	out := buf.String()
	for name := range commands() {
		assert.Contains(t, out, name)
	}
	assert.Less(t, strings.Index(out, "add-fallback"), strings.Index(out, "stats"), "commands are sorted")
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    pipeline.Kind
		wantErr bool
	}{
		{in: "link", want: pipeline.KindLink},
		{in: " Message ", want: pipeline.KindMessage},
		{in: "sms", want: pipeline.KindMessage},
		{in: string(pipeline.KindLink), want: pipeline.KindLink},
		{in: "survey", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseKind(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseIDList(t *testing.T) {
	ids, err := parseIDList("3, 1,3,,2")
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1, 2}, ids)

	_, err = parseIDList("")
	require.Error(t, err)

	_, err = parseIDList("1,x")
	require.ErrorContains(t, err, `"x"`)

	_, err = parseIDList("-4")
	require.Error(t, err)
}

func TestParseTimeFlag(t *testing.T) {
	got, err := parseTimeFlag("expires", "")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = parseTimeFlag("expires", "2026-11-30")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2026, 11, 30, 0, 0, 0, 0, time.UTC), *got)

	got, err = parseTimeFlag("expires", "2026-11-30T09:15:00+01:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 11, 30, 8, 15, 0, 0, time.UTC), *got)

	_, err = parseTimeFlag("expires", "next week")
	require.ErrorContains(t, err, "--expires")
}

func TestParseCreateLinkFlags(t *testing.T) {
	opts, err := parseCreateLinkFlags([]string{
		"-description", "Wave 12", "-survey", "SV_abc", "-panels", "1,2", "-expires", "2027-01-15",
	})
	require.NoError(t, err)
	assert.Equal(t, "Wave 12", opts.Description)
	assert.Equal(t, "SV_abc", opts.SurveyID)
	assert.Equal(t, []int64{1, 2}, opts.Panels)
	require.NotNil(t, opts.Expires)

	_, err = parseCreateLinkFlags([]string{"-survey", "SV_abc"})
	require.Error(t, err, "panels are required")
}

func TestParseCreateMessageFlags(t *testing.T) {
	opts, err := parseCreateMessageFlags([]string{"-link", "7", "-mode", "SMS", "-target", "not_finished", "-message", "MS_1"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), opts.LinkID)
	assert.Equal(t, model.ContactModeSMS, opts.Mode)
	assert.Equal(t, model.TargetNotFinished, opts.Target)

	_, err = parseCreateMessageFlags([]string{"-link", "7", "-mode", "fax"})
	require.ErrorContains(t, err, "--mode")

	_, err = parseCreateMessageFlags([]string{"-mode", "email"})
	require.ErrorContains(t, err, "--link")
}

func TestParseKindIDFlags(t *testing.T) {
	var resume bool
	opts, err := parseKindIDFlags("start", []string{"-kind", "message", "-id", "12", "-resume", "-json"},
		func(fs *flag.FlagSet) { fs.BoolVar(&resume, "resume", false, "") })
	require.NoError(t, err)
	assert.Equal(t, pipeline.KindMessage, opts.Kind)
	assert.Equal(t, int64(12), opts.ID)
	assert.True(t, opts.Output.JSON)
	assert.True(t, resume)

	_, err = parseKindIDFlags("inspect", []string{"-kind", "link"}, nil)
	require.ErrorContains(t, err, "--id")

	_, err = parseKindIDFlags("inspect", []string{"-id", "1", "-query", "[?"}, nil)
	require.ErrorContains(t, err, "-query")
}

func TestParseSendSMSFlags(t *testing.T) {
	opts, err := parseSendSMSFlags([]string{
		"-name", "reminder", "-profile", "0d3c6a3e-4a4f-4c6b-9d0e-3a7e4f3b2a10", "-message", "Hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "0d3c6a3e-4a4f-4c6b-9d0e-3a7e4f3b2a10", opts.Profile.String())

	_, err = parseSendSMSFlags([]string{"-profile", "not-a-uuid"})
	require.ErrorContains(t, err, "--profile")
}

func TestCategoryFlagAccumulates(t *testing.T) {
	opts, err := parseCatalogFlags("messages", []string{"-category", "invite,reminder", "-category", "smsInvite"}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"invite", "reminder", "smsInvite"}, []string(opts.Categories))
}

func TestEmitTableByDefault(t *testing.T) {
	var buf bytes.Buffer
	err := emit(&buf, outputOptions{}, map[string]int{"n": 1}, func(tw *tabwriter.Writer) error {
		return writef(tw, "n:\t%d\n", 1)
	})
	require.NoError(t, err)
	assert.Equal(t, "n:  1\n", buf.String())
}

func TestEmitProjectsWithQuery(t *testing.T) {
	report := service.PrepareResult{Recipients: 40, FallbackRecipients: 3}

	var buf bytes.Buffer
	require.NoError(t, emit(&buf, outputOptions{Query: "fallback_recipients"}, report, nil))
	assert.Equal(t, "3\n", buf.String())

	buf.Reset()
	require.NoError(t, emit(&buf, outputOptions{JSON: true}, report, nil))
	assert.JSONEq(t, `{"recipients":40,"fallback_recipients":3}`, buf.String())
}

func TestOutputOptionsValidate(t *testing.T) {
	require.NoError(t, outputOptions{}.validate())
	require.NoError(t, outputOptions{Query: "panels.*.total"}.validate())
	require.Error(t, outputOptions{Query: "panels[?"}.validate())
}

func TestRenderReport(t *testing.T) {
	stats := &service.Stats{
		Panels: map[string]*service.PanelStats{
			"FR": {Counts: map[string]int{"finished": 2, "sent": 5}, Total: 7, TotalPanelists: 9},
		},
	}
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 4, 1, ' ', 0)
	require.NoError(t, renderReport(tw, map[string]float64{"sent": 7}, stats))
	require.NoError(t, tw.Flush())

	out := buf.String()
	assert.Contains(t, out, "PANEL")
	assert.Contains(t, out, "FINISHED")
	assert.Regexp(t, `FR\s+2\s+5\s+7\s+9`, out)
}

func TestIsLikelyRemoteHost(t *testing.T) {
	assert.False(t, isLikelyRemoteHost(""))
	assert.False(t, isLikelyRemoteHost("localhost"))
	assert.False(t, isLikelyRemoteHost("127.0.0.1"))
	assert.False(t, isLikelyRemoteHost("db.local"))
	assert.True(t, isLikelyRemoteHost("10.0.4.2"))
	assert.True(t, isLikelyRemoteHost("pg.example.org"))
}

func TestConfirmAction(t *testing.T) {
	old := stdin
	t.Cleanup(func() { stdin = old })

	var out bytes.Buffer
	require.NoError(t, confirmAction(&out, deleteConfirmOptions{yes: true, target: "x"}, "delete"))
	assert.Empty(t, out.String())

	stdin = strings.NewReader("y\n")
	require.NoError(t, confirmAction(&out, deleteConfirmOptions{target: "link_distribution 4"}, "delete"))
	assert.Contains(t, out.String(), "About to delete for link_distribution 4.")

	stdin = strings.NewReader("\n")
	require.ErrorContains(t, confirmAction(&out, deleteConfirmOptions{target: "x"}, "delete"), "aborted")

	// Remote hosts always prompt, even with -yes.
	stdin = strings.NewReader("no\n")
	err := confirmAction(&out, dbResetConfirmOptions{yes: true, target: "db", remoteHost: "pg.example.org"}, "reset")
	require.ErrorContains(t, err, "aborted")
}
