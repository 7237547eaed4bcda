package db

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func setup(t testing.TB) (*Queries, MakeTx) {
	sqldb, err := Open(Config{File: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { sqldb.Close() })
	return New(sqldb), NewMakeTx(sqldb)
}

func create(t testing.TB, qry *Queries, email, start, end string, createdAt int64) NotificationRequest {
	req, err := qry.CreateRequest(context.Background(), CreateRequestParams{
		Email:     email,
		MovieName: "Dune",
		Location:  "Chennai",
		StartDate: start,
		EndDate:   end,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	})
	require.NoError(t, err)
	return req
}

func ids(requests []NotificationRequest) []int64 {
	out := []int64{}
	for _, r := range requests {
		out = append(out, r.ID)
	}
	return out
}

func TestWindowQueries(t *testing.T) {
	ctx := context.Background()
	qry, _ := setup(t)

	a := create(t, qry, "a@x.com", "2026-01-01", "2026-01-31", 1)
	b := create(t, qry, "b@x.com", "2026-01-10", "2026-01-10", 2)
	c := create(t, qry, "c@x.com", "2025-12-01", "2025-12-31", 3)
	require.Equal(t, StatusActive, a.Status)

	active, err := qry.FindActiveInDateRange(ctx, "2026-01-10")
	require.NoError(t, err)
	require.Empty(t, cmp.Diff([]int64{a.ID, b.ID}, ids(active)))

	active, err = qry.FindActiveInDateRange(ctx, "2026-01-11")
	require.NoError(t, err)
	require.Empty(t, cmp.Diff([]int64{a.ID}, ids(active)))

	expired, err := qry.FindExpired(ctx, "2026-01-01")
	require.NoError(t, err)
	require.Empty(t, cmp.Diff([]int64{c.ID}, ids(expired)))
}

func TestFindByEmailMostRecentFirst(t *testing.T) {
	qry, _ := setup(t)

	first := create(t, qry, "a@x.com", "2026-01-01", "2026-01-31", 100)
	second := create(t, qry, "a@x.com", "2026-02-01", "2026-02-28", 200)
	create(t, qry, "other@x.com", "2026-02-01", "2026-02-28", 300)

	found, err := qry.FindByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	require.Empty(t, cmp.Diff([]int64{second.ID, first.ID}, ids(found)))
}

func TestTransitionIsConditional(t *testing.T) {
	ctx := context.Background()
	qry, _ := setup(t)
	req := create(t, qry, "a@x.com", "2026-01-01", "2026-01-31", 1)

	n, err := qry.TransitionStatus(ctx, TransitionStatusParams{
		ID: req.ID, FromStatus: StatusActive, ToStatus: StatusNotified, UpdatedAt: 2,
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = qry.TransitionStatus(ctx, TransitionStatusParams{
		ID: req.ID, FromStatus: StatusActive, ToStatus: StatusExpired, UpdatedAt: 3,
	})
	require.NoError(t, err)
	require.EqualValues(t, 0, n)

	got, err := qry.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, StatusNotified, got.Status)
}

func TestDiscardAfterCommit(t *testing.T) {
	ctx := context.Background()
	qry, makeTx := setup(t)

	tx, discard, commit, err := makeTx(ctx)
	require.NoError(t, err)
	_, err = tx.CreateRequest(ctx, CreateRequestParams{
		Email: "a@x.com", MovieName: "Dune", Location: "Chennai",
		StartDate: "2026-01-01", EndDate: "2026-01-02",
	})
	require.NoError(t, err)
	require.NoError(t, commit())
	require.NoError(t, discard())

	found, err := qry.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.Len(t, found, 1)
}

func TestEmailTemplateUpsert(t *testing.T) {
	ctx := context.Background()
	qry, _ := setup(t)

	err := qry.UpsertEmailTemplate(ctx, UpsertEmailTemplateParams{Name: "movie_alert", SubjectTemplate: "a", BodyTemplate: "b"})
	require.NoError(t, err)
	err = qry.UpsertEmailTemplate(ctx, UpsertEmailTemplateParams{Name: "movie_alert", SubjectTemplate: "c", BodyTemplate: "d"})
	require.NoError(t, err)

	tmpl, err := qry.GetEmailTemplate(ctx, "movie_alert")
	require.NoError(t, err)
	require.Equal(t, EmailTemplate{Name: "movie_alert", SubjectTemplate: "c", BodyTemplate: "d"}, tmpl)
}
