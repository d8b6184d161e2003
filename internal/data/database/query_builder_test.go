package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildListQuery(t *testing.T) {
	tests := []struct {
		name      string
		opts      *ListQueryOptions
		wantQuery string
		wantArgs  []any
	}{
		{
			name:      "all columns",
			opts:      NewListQueryOptions("panels"),
			wantQuery: `SELECT * FROM "panels"`,
		},
		{
			name: "by primary key",
			opts: NewListQueryOptions("link_distribution_summaries",
				WithColumns("id", "list_id"),
				WithCondition(WhereCond("id", Equal, int64(4))),
			),
			wantQuery: `SELECT "id", "list_id" FROM "link_distribution_summaries" WHERE "id" = $1`,
			wantArgs:  []any{int64(4)},
		},
		{
			name: "conditions then pagination",
			opts: NewListQueryOptions("link_distribution_summaries",
				WithColumns("id"),
				WithCondition(WhereCond("survey_id", Equal, "SV_1")),
				WithCondition(WhereCond("id", Any, []int64{1, 2})),
				WithCondition(WhereCond("expiration_date", IsNull, nil)),
				WithOrderBy("id", "desc"),
				WithLimit(50),
				WithOffset(0),
			),
			wantQuery: `SELECT "id" FROM "link_distribution_summaries" WHERE "survey_id" = $1 AND "id" = ANY($2) ` +
				`AND "expiration_date" IS NULL ORDER BY "id" DESC LIMIT $3 OFFSET $4`,
			wantArgs: []any{"SV_1", []int64{1, 2}, 50, 0},
		},
		{
			name: "qualified identifiers and unknown direction",
			opts: NewListQueryOptions("public.profiles",
				WithColumns("profiles.uid"),
				WithOrderBy("profiles.id", "sideways"),
				WithLimit(-3),
			),
			wantQuery: `SELECT "profiles"."uid" FROM "public"."profiles" ORDER BY "profiles"."id"`,
		},
		{
			name: "identifier injection is quoted",
			opts: NewListQueryOptions("jobs",
				WithCondition(WhereCond(`status"; DROP TABLE jobs; --`, Equal, "pending")),
			),
			wantQuery: `SELECT * FROM "jobs" WHERE "status""; DROP TABLE jobs; --" = $1`,
			wantArgs:  []any{"pending"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := BuildListQuery(tt.opts)
			assert.Equal(t, tt.wantQuery, query)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestBuildListQueryNil(t *testing.T) {
	query, args := BuildListQuery(nil)
	assert.Empty(t, query)
	assert.Nil(t, args)
}
