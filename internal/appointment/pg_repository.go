package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

var dialect = goqu.Dialect("postgres")

// querier is the slice of pgxpool.Pool the repository needs, so tests can
// hand in a pgxmock pool.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Compile-time check that PgRepository satisfies the record-store contract.
var _ Repository = (*PgRepository)(nil)

type PgRepository struct {
	pool querier
}

func NewPgRepository(pool querier) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func selectColumns(kind Kind) []any {
	cols := make([]any, 0, len(columns[kind]))
	for _, c := range columns[kind] {
		cols = append(cols, c)
	}
	return cols
}

func whereExpressions(filters []Filter) []exp.Expression {
	out := make([]exp.Expression, 0, len(filters))
	for _, f := range filters {
		col := goqu.C(f.Field)
		switch f.Op {
		case OpEq:
			out = append(out, col.Eq(sqlValue(f.Value)))
		case OpNeq:
			out = append(out, col.Neq(sqlValue(f.Value)))
		}
	}
	return out
}

// sqlValue converts domain values to what the postgres columns hold.
func sqlValue(v any) any {
	switch x := v.(type) {
	case uuid.UUID:
		return x.String()
	case AppointmentStatus:
		return string(x)
	case TimeOfDay:
		return x.String()
	case time.Time:
		return Naive(x)
	default:
		return v
	}
}

func (r *PgRepository) buildSelect(kind Kind, filters []Filter, order ...exp.OrderedExpression) (string, []any, error) {
	if err := validateFilters(kind, filters); err != nil {
		return "", nil, err
	}
	ds := dialect.From(string(kind)).
		Select(selectColumns(kind)...).
		Where(whereExpressions(filters)...).
		Prepared(true)
	if len(order) > 0 {
		ds = ds.Order(order...)
	}
	query, args, err := ds.ToSQL()
	if err != nil {
		return "", nil, fmt.Errorf("build %s query: %w", kind, err)
	}
	return query, args, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string
	var notes *string

	err := row.Scan(
		&a.ID,
		&a.ProviderID,
		&a.PatientID,
		&a.Type,
		&status,
		&a.StartTime,
		&a.DurationMinutes,
		&notes,
	)
	if err != nil {
		return nil, err
	}

	a.Status = AppointmentStatus(status)
	a.StartTime = Naive(a.StartTime)
	if notes != nil {
		a.Notes = *notes
	}
	return &a, nil
}

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	var specialty, role *string

	if err := row.Scan(&p.ID, &p.FullName, &specialty, &role); err != nil {
		return nil, err
	}
	if specialty != nil {
		p.Specialty = *specialty
	}
	if role != nil {
		p.Role = *role
	}
	return &p, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email, phone *string
	var dob pgtype.Date

	if err := row.Scan(&p.ID, &p.FullName, &email, &phone, &dob); err != nil {
		return nil, err
	}
	if email != nil {
		p.Email = *email
	}
	if phone != nil {
		p.Phone = *phone
	}
	if dob.Valid {
		p.DateOfBirth = FormatDate(dob.Time)
	}
	return &p, nil
}

func scanAvailability(row pgx.Row) (*WeeklyAvailability, error) {
	var w WeeklyAvailability
	var start, end pgtype.Time

	if err := row.Scan(&w.ID, &w.ProviderID, &w.Weekday, &start, &end); err != nil {
		return nil, err
	}
	w.StartTime = TimeOfDay(time.Duration(start.Microseconds) * time.Microsecond)
	w.EndTime = TimeOfDay(time.Duration(end.Microseconds) * time.Microsecond)
	return &w, nil
}

func scanVisitType(row pgx.Row) (*VisitType, error) {
	var v VisitType
	if err := row.Scan(&v.ID, &v.Name, &v.MaxPatientsPerSlot, &v.DefaultDurationMinutes); err != nil {
		return nil, err
	}
	return &v, nil
}

func collect[T any](ctx context.Context, q querier, query string, args []any, scan func(pgx.Row) (*T, error)) ([]T, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Interface methods

func (r *PgRepository) FindAppointments(ctx context.Context, filters ...Filter) ([]Appointment, error) {
	query, args, err := r.buildSelect(KindAppointments, filters, goqu.C("appointment_time").Asc(), goqu.C("id").Asc())
	if err != nil {
		return nil, err
	}
	found, err := collect(ctx, r.pool, query, args, scanAppointment)
	if err != nil {
		return nil, fmt.Errorf("find appointments: %w", err)
	}
	return found, nil
}

func (r *PgRepository) FindProviders(ctx context.Context, filters ...Filter) ([]Provider, error) {
	query, args, err := r.buildSelect(KindProviders, filters)
	if err != nil {
		return nil, err
	}
	found, err := collect(ctx, r.pool, query, args, scanProvider)
	if err != nil {
		return nil, fmt.Errorf("find providers: %w", err)
	}
	return found, nil
}

func (r *PgRepository) FindPatients(ctx context.Context, filters ...Filter) ([]Patient, error) {
	query, args, err := r.buildSelect(KindPatients, filters)
	if err != nil {
		return nil, err
	}
	found, err := collect(ctx, r.pool, query, args, scanPatient)
	if err != nil {
		return nil, fmt.Errorf("find patients: %w", err)
	}
	return found, nil
}

func (r *PgRepository) FindAvailability(ctx context.Context, filters ...Filter) ([]WeeklyAvailability, error) {
	query, args, err := r.buildSelect(KindAvailability, filters, goqu.C("weekday").Asc(), goqu.C("start_time").Asc())
	if err != nil {
		return nil, err
	}
	found, err := collect(ctx, r.pool, query, args, scanAvailability)
	if err != nil {
		return nil, fmt.Errorf("find availability: %w", err)
	}
	return found, nil
}

func (r *PgRepository) FindVisitTypes(ctx context.Context, filters ...Filter) ([]VisitType, error) {
	query, args, err := r.buildSelect(KindVisitTypes, filters)
	if err != nil {
		return nil, err
	}
	found, err := collect(ctx, r.pool, query, args, scanVisitType)
	if err != nil {
		return nil, fmt.Errorf("find visit types: %w", err)
	}
	return found, nil
}

func (r *PgRepository) UpdateAppointments(ctx context.Context, patch AppointmentPatch, filters ...Filter) ([]Appointment, error) {
	if patch.empty() {
		return nil, ErrEmptyPatch
	}
	if err := validateFilters(KindAppointments, filters); err != nil {
		return nil, err
	}

	set := goqu.Record{}
	if patch.StartTime != nil {
		set["appointment_time"] = Naive(*patch.StartTime)
	}
	if patch.Notes != nil {
		set["notes"] = *patch.Notes
	}

	query, args, err := dialect.Update(string(KindAppointments)).
		Set(set).
		Where(whereExpressions(filters)...).
		Returning(selectColumns(KindAppointments)...).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build appointment update: %w", err)
	}

	updated, err := collect(ctx, r.pool, query, args, scanAppointment)
	if err != nil {
		return nil, fmt.Errorf("update appointments: %w", err)
	}
	return updated, nil
}
