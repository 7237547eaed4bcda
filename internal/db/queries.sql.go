// Query methods in the shape sqlc emits for queries.sql, keep the two in sync.

package db

import (
	"context"
)

const createRequest = `-- name: CreateRequest :one
insert into notification_request (
    email, movie_name, location, start_date, end_date, status, created_at, updated_at
) values (?, ?, ?, ?, ?, 'active', ?, ?)
returning id, email, movie_name, location, start_date, end_date, status, created_at, updated_at
`

type CreateRequestParams struct {
	Email     string
	MovieName string
	Location  string
	StartDate string
	EndDate   string
	CreatedAt int64
	UpdatedAt int64
}

func (q *Queries) CreateRequest(ctx context.Context, arg CreateRequestParams) (NotificationRequest, error) {
	row := q.db.QueryRowContext(ctx, createRequest,
		arg.Email,
		arg.MovieName,
		arg.Location,
		arg.StartDate,
		arg.EndDate,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	var i NotificationRequest
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.MovieName,
		&i.Location,
		&i.StartDate,
		&i.EndDate,
		&i.Status,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const findActiveInDateRange = `-- name: FindActiveInDateRange :many
select id, email, movie_name, location, start_date, end_date, status, created_at, updated_at from notification_request
where status = 'active' and start_date <= ?1 and end_date >= ?1
order by id
`

func (q *Queries) FindActiveInDateRange(ctx context.Context, date string) ([]NotificationRequest, error) {
	rows, err := q.db.QueryContext(ctx, findActiveInDateRange, date)
	if err != nil {
		return nil, err
	}
	return scanRequests(rows)
}

const findByEmail = `-- name: FindByEmail :many
select id, email, movie_name, location, start_date, end_date, status, created_at, updated_at from notification_request
where email = ?
order by created_at desc, id desc
`

func (q *Queries) FindByEmail(ctx context.Context, email string) ([]NotificationRequest, error) {
	rows, err := q.db.QueryContext(ctx, findByEmail, email)
	if err != nil {
		return nil, err
	}
	return scanRequests(rows)
}

const findExpired = `-- name: FindExpired :many
select id, email, movie_name, location, start_date, end_date, status, created_at, updated_at from notification_request
where status = 'active' and end_date < ?
order by id
`

func (q *Queries) FindExpired(ctx context.Context, endDate string) ([]NotificationRequest, error) {
	rows, err := q.db.QueryContext(ctx, findExpired, endDate)
	if err != nil {
		return nil, err
	}
	return scanRequests(rows)
}

const getEmailTemplate = `-- name: GetEmailTemplate :one
select name, subject_template, body_template from email_template where name = ?
`

func (q *Queries) GetEmailTemplate(ctx context.Context, name string) (EmailTemplate, error) {
	row := q.db.QueryRowContext(ctx, getEmailTemplate, name)
	var i EmailTemplate
	err := row.Scan(&i.Name, &i.SubjectTemplate, &i.BodyTemplate)
	return i, err
}

const getRequest = `-- name: GetRequest :one
select id, email, movie_name, location, start_date, end_date, status, created_at, updated_at from notification_request where id = ?
`

func (q *Queries) GetRequest(ctx context.Context, id int64) (NotificationRequest, error) {
	row := q.db.QueryRowContext(ctx, getRequest, id)
	var i NotificationRequest
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.MovieName,
		&i.Location,
		&i.StartDate,
		&i.EndDate,
		&i.Status,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const transitionStatus = `-- name: TransitionStatus :execrows
update notification_request
set status = ?1, updated_at = ?2
where id = ?3 and status = ?4
`

type TransitionStatusParams struct {
	ToStatus   Status
	UpdatedAt  int64
	ID         int64
	FromStatus Status
}

func (q *Queries) TransitionStatus(ctx context.Context, arg TransitionStatusParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, transitionStatus,
		arg.ToStatus,
		arg.UpdatedAt,
		arg.ID,
		arg.FromStatus,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const upsertEmailTemplate = `-- name: UpsertEmailTemplate :exec
insert into email_template (name, subject_template, body_template)
values (?, ?, ?)
on conflict (name) do update set
    subject_template = excluded.subject_template,
    body_template = excluded.body_template
`

type UpsertEmailTemplateParams struct {
	Name            string
	SubjectTemplate string
	BodyTemplate    string
}

func (q *Queries) UpsertEmailTemplate(ctx context.Context, arg UpsertEmailTemplateParams) error {
	_, err := q.db.ExecContext(ctx, upsertEmailTemplate, arg.Name, arg.SubjectTemplate, arg.BodyTemplate)
	return err
}
