package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/pricetracker/internal/account"
	"github.com/JonMunkholm/pricetracker/internal/config"
	"github.com/JonMunkholm/pricetracker/internal/core"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schemaSQL string

// SQLSTATE codes mapped to typed errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

type kindTable struct {
	table     string
	parentCol string // Empty for root kinds
	metric    bool   // Table has an is_metric column
}

var kindTables = map[core.Kind]kindTable{
	core.KindCountry:  {table: "countries"},
	core.KindLanguage: {table: "languages"},
	core.KindState:    {table: "states", parentCol: "country_id"},
	core.KindCity:     {table: "cities", parentCol: "state_id"},
	core.KindUnitType: {table: "unit_types"},
	core.KindUnit:     {table: "units", parentCol: "unit_type_id", metric: true},
}

// Postgres is the gateway backed by a pgx connection pool.
type Postgres struct {
	pool        *pgxpool.Pool
	auditor     core.Auditor
	lockTimeout time.Duration
}

var (
	_ core.Gateway  = (*Postgres)(nil)
	_ account.Store = (*Postgres)(nil)
)

// NewPostgres returns a gateway on pool. lockTimeout bounds how long conversion
// writes and snapshots wait for table locks; zero waits indefinitely.
func NewPostgres(pool *pgxpool.Pool, auditor core.Auditor, lockTimeout time.Duration) *Postgres {
	return &Postgres{pool: pool, auditor: auditor, lockTimeout: lockTimeout}
}

// Connect parses cfg, opens a pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	slog.Info("connected to database", "database", poolConfig.ConnConfig.Database)
	return pool, nil
}

// Migrate creates missing tables and indexes. It is idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// FindByNaturalKey implements core.ReferenceStore.
func (p *Postgres) FindByNaturalKey(ctx context.Context, kind core.Kind, isoCode string) (uuid.UUID, error) {
	t, ok := kindTables[kind]
	if !ok {
		return uuid.Nil, &core.UnknownKindError{Name: string(kind), Supported: core.Kinds()}
	}

	rows, err := p.pool.Query(ctx, "SELECT id FROM "+t.table+" WHERE iso_code = $1 LIMIT 2", isoCode)
	if err != nil {
		return uuid.Nil, fmt.Errorf("find %s %q: %w", kind, isoCode, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[pgtype.UUID])
	if err != nil {
		return uuid.Nil, fmt.Errorf("find %s %q: %w", kind, isoCode, err)
	}

	switch len(ids) {
	case 0:
		return uuid.Nil, core.ErrNotFound
	case 1:
		return uuid.UUID(ids[0].Bytes), nil
	default:
		return uuid.Nil, core.ErrAmbiguousKey
	}
}

// Create implements core.ReferenceStore.
func (p *Postgres) Create(ctx context.Context, rec core.ResolvedRecord) (uuid.UUID, error) {
	t, ok := kindTables[rec.Kind]
	if !ok {
		return uuid.Nil, &core.UnknownKindError{Name: string(rec.Kind), Supported: core.Kinds()}
	}

	id := uuid.New()
	a := p.auditor.Created(ctx)

	cols := []string{"id"}
	args := []any{pgUUID(id)}
	if t.parentCol != "" {
		cols = append(cols, t.parentCol)
		args = append(args, pgUUID(rec.ParentID))
	}
	cols = append(cols, "iso_code", "name")
	args = append(args, rec.ISOCode, rec.Name)
	if t.metric {
		cols = append(cols, "is_metric")
		args = append(args, rec.Metric)
	}
	cols = append(cols, "created_by", "updated_by", "created_at", "updated_at")
	args = append(args, a.CreatedBy, a.UpdatedBy, a.CreatedAt, a.UpdatedAt)

	params := make([]string, len(args))
	for i := range params {
		params[i] = "$" + strconv.Itoa(i+1)
	}
	_, err := p.pool.Exec(ctx,
		"INSERT INTO "+t.table+" ("+strings.Join(cols, ", ")+") VALUES ("+strings.Join(params, ", ")+")",
		args...)
	if err != nil {
		return uuid.Nil, mapWriteError(rec.Kind.String(), scopeLabel(rec), err)
	}
	return id, nil
}

// FindConversion implements core.ConversionStore.
func (p *Postgres) FindConversion(ctx context.Context, unit, toUnit string) (decimal.Decimal, error) {
	var factor pgtype.Numeric
	err := p.pool.QueryRow(ctx,
		"SELECT factor FROM unit_conversions WHERE unit = $1 AND to_unit = $2", unit, toUnit,
	).Scan(&factor)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Decimal{}, core.ErrNotFound
	}
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("find conversion %s->%s: %w", unit, toUnit, err)
	}
	return fromNumeric(factor), nil
}

const rateColumns = `id, currency, to_currency, date_from, date_to, rate, created_by, updated_by, created_at, updated_at`

// FindRates implements core.ConversionStore.
func (p *Postgres) FindRates(ctx context.Context, from, to string, date time.Time) ([]core.CurrencyConversion, error) {
	rows, err := p.pool.Query(ctx,
		"SELECT "+rateColumns+` FROM currency_conversions
		 WHERE currency = $1 AND to_currency = $2 AND date_from <= $3 AND date_to >= $3
		 ORDER BY date_from`,
		from, to, pgDate(date))
	if err != nil {
		return nil, fmt.Errorf("find rates %s->%s: %w", from, to, err)
	}
	rates, err := pgx.CollectRows(rows, scanRate)
	if err != nil {
		return nil, fmt.Errorf("find rates %s->%s: %w", from, to, err)
	}
	return rates, nil
}

// AddUnitConversion implements core.ConversionStore.
func (p *Postgres) AddUnitConversion(ctx context.Context, c core.UnitConversion) (uuid.UUID, error) {
	if err := core.ValidateUnitConversion(c); err != nil {
		return uuid.Nil, err
	}
	id := uuid.New()
	a := p.auditor.Created(ctx)

	err := p.withConversionLock(ctx, "SHARE ROW EXCLUSIVE", pgx.TxOptions{}, func(tx pgx.Tx) error {
		types, err := unitTypes(ctx, tx, c.Unit, c.ToUnit)
		if err != nil {
			return err
		}
		if err := core.ValidateUnitTypes(c, types); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `INSERT INTO unit_conversions
			(id, unit, to_unit, factor, created_by, updated_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			pgUUID(id), c.Unit, c.ToUnit, toNumeric(c.Factor), a.CreatedBy, a.UpdatedBy, a.CreatedAt, a.UpdatedAt)
		return err
	})
	var invariant *core.InvariantError
	if errors.As(err, &invariant) {
		return uuid.Nil, err
	}
	if err != nil {
		return uuid.Nil, mapWriteError("UnitConversion", c.Unit+"->"+c.ToUnit, err)
	}
	return id, nil
}

// unitTypes maps each registered unit among codes to its unit type code.
func unitTypes(ctx context.Context, tx pgx.Tx, codes ...string) (map[string]string, error) {
	rows, err := tx.Query(ctx, `SELECT u.iso_code, t.iso_code
		FROM units u JOIN unit_types t ON t.id = u.unit_type_id
		WHERE u.iso_code = ANY($1)`, codes)
	if err != nil {
		return nil, fmt.Errorf("look up units: %w", err)
	}
	out := make(map[string]string, len(codes))
	var code, unitType string
	if _, err := pgx.ForEachRow(rows, []any{&code, &unitType}, func() error {
		out[code] = unitType
		return nil
	}); err != nil {
		return nil, fmt.Errorf("look up units: %w", err)
	}
	return out, nil
}

// AddCurrencyConversion implements core.ConversionStore.
func (p *Postgres) AddCurrencyConversion(ctx context.Context, c core.CurrencyConversion) (uuid.UUID, error) {
	if err := core.ValidateCurrencyConversion(c); err != nil {
		return uuid.Nil, err
	}
	id := uuid.New()
	a := p.auditor.Created(ctx)

	err := p.withConversionLock(ctx, "SHARE ROW EXCLUSIVE", pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, "INSERT INTO currency_conversions ("+rateColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			pgUUID(id), c.From, c.To, pgDate(c.DateFrom), pgDate(c.DateTo), toNumeric(c.Rate),
			a.CreatedBy, a.UpdatedBy, a.CreatedAt, a.UpdatedAt)
		return err
	})
	if err != nil {
		return uuid.Nil, mapWriteError("CurrencyConversion", c.From+"->"+c.To, err)
	}
	return id, nil
}

// LoadConversions implements core.ConversionStore. Both tables are read in
// one REPEATABLE READ transaction holding SHARE locks, which conflict with
// the SHARE ROW EXCLUSIVE locks taken by conversion writes.
func (p *Postgres) LoadConversions(ctx context.Context) (*core.ConversionSet, error) {
	var (
		units []core.UnitConversion
		rates []core.CurrencyConversion
	)
	err := p.withConversionLock(ctx, "SHARE", pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT id, unit, to_unit, factor, created_by, updated_by, created_at, updated_at
			FROM unit_conversions`)
		if err != nil {
			return err
		}
		if units, err = pgx.CollectRows(rows, scanUnit); err != nil {
			return err
		}

		rows, err = tx.Query(ctx, "SELECT "+rateColumns+" FROM currency_conversions")
		if err != nil {
			return err
		}
		rates, err = pgx.CollectRows(rows, scanRate)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load conversions: %w", err)
	}
	return core.NewConversionSet(units, rates), nil
}

func (p *Postgres) withConversionLock(ctx context.Context, mode string, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	tx, err := p.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if p.lockTimeout > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", p.lockTimeout.Milliseconds())); err != nil {
			return fmt.Errorf("set lock timeout: %w", err)
		}
	}
	if _, err := tx.Exec(ctx, "LOCK TABLE unit_conversions, currency_conversions IN "+mode+" MODE"); err != nil {
		return fmt.Errorf("lock conversion tables: %w", err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// AddPriceObservation implements core.PriceStore.
func (p *Postgres) AddPriceObservation(ctx context.Context, obs core.PriceObservation) (uuid.UUID, error) {
	id := uuid.New()
	a := p.auditor.Created(ctx)
	_, err := p.pool.Exec(ctx, `INSERT INTO price_observations
		(id, kind, date, country, state, city, price, currency, quantity, unit,
		 created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		pgUUID(id), string(obs.Kind), pgDate(obs.Date), obs.Country, obs.State, obs.City,
		toNumeric(obs.Price), obs.Currency, toNumeric(obs.Quantity), obs.Unit,
		a.CreatedBy, a.UpdatedBy, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return uuid.Nil, mapWriteError("PriceObservation", obs.Country+"/"+string(obs.Kind), err)
	}
	return id, nil
}

// ListPriceObservations implements core.PriceStore, oldest first.
func (p *Postgres) ListPriceObservations(ctx context.Context) ([]core.PriceObservation, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, kind, date, country, state, city, price, currency, quantity, unit,
		canonical_price, canonical_currency, canonical_quantity, canonical_unit,
		created_by, updated_by, created_at, updated_at
		FROM price_observations ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	obs, err := pgx.CollectRows(rows, scanObservation)
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	return obs, nil
}

// SaveCanonical implements core.PriceStore.
func (p *Postgres) SaveCanonical(ctx context.Context, id uuid.UUID, c core.Canonical) error {
	a := p.auditor.Updated(ctx, core.Audit{})
	tag, err := p.pool.Exec(ctx, `UPDATE price_observations SET
		canonical_price = $2, canonical_currency = $3, canonical_quantity = $4, canonical_unit = $5,
		updated_by = $6, updated_at = $7
		WHERE id = $1`,
		pgUUID(id), toNumeric(c.Price), c.Currency, toNumeric(c.Quantity), c.Unit, a.UpdatedBy, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save canonical %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("price observation %s: %w", id, core.ErrNotFound)
	}
	return nil
}

// CreateUser implements account.Store.
func (p *Postgres) CreateUser(ctx context.Context, u *account.User) error {
	id := uuid.New()
	a := p.auditor.Created(ctx)
	_, err := p.pool.Exec(ctx, `INSERT INTO users
		(id, email, username, password_hash, is_active, is_staff, is_superuser,
		 created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		pgUUID(id), u.Email, u.Username, u.PasswordHash, u.IsActive, u.IsStaff, u.IsSuperuser,
		a.CreatedBy, a.UpdatedBy, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		key := u.Username
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "users_email_key" {
			key = u.Email
		}
		return mapWriteError("User", key, err)
	}
	u.ID = id
	u.Audit = a
	return nil
}

// mapWriteError turns unique violations into *core.DuplicateKeyError and
// wraps everything else.
func mapWriteError(entity, key string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return &core.DuplicateKeyError{Entity: entity, Key: key}
		case pgForeignKeyViolation:
			return fmt.Errorf("insert %s %q: violates foreign key constraint %s: %w", entity, key, pgErr.ConstraintName, err)
		}
	}
	return fmt.Errorf("insert %s %q: %w", entity, key, err)
}

func scanUnit(row pgx.CollectableRow) (core.UnitConversion, error) {
	var (
		id     pgtype.UUID
		factor pgtype.Numeric
		c      core.UnitConversion
	)
	err := row.Scan(&id, &c.Unit, &c.ToUnit, &factor,
		&c.Audit.CreatedBy, &c.Audit.UpdatedBy, &c.Audit.CreatedAt, &c.Audit.UpdatedAt)
	c.ID = uuid.UUID(id.Bytes)
	c.Factor = fromNumeric(factor)
	return c, err
}

func scanRate(row pgx.CollectableRow) (core.CurrencyConversion, error) {
	var (
		id       pgtype.UUID
		from, to pgtype.Date
		rate     pgtype.Numeric
		c        core.CurrencyConversion
	)
	err := row.Scan(&id, &c.From, &c.To, &from, &to, &rate,
		&c.Audit.CreatedBy, &c.Audit.UpdatedBy, &c.Audit.CreatedAt, &c.Audit.UpdatedAt)
	c.ID = uuid.UUID(id.Bytes)
	c.DateFrom = core.DateOnly(from.Time)
	c.DateTo = core.DateOnly(to.Time)
	c.Rate = fromNumeric(rate)
	return c, err
}

func scanObservation(row pgx.CollectableRow) (core.PriceObservation, error) {
	var (
		id                pgtype.UUID
		kind              string
		date              pgtype.Date
		price, quantity   pgtype.Numeric
		cPrice, cQuantity pgtype.Numeric
		cCurrency, cUnit  pgtype.Text
		o                 core.PriceObservation
	)
	err := row.Scan(&id, &kind, &date, &o.Country, &o.State, &o.City, &price, &o.Currency, &quantity, &o.Unit,
		&cPrice, &cCurrency, &cQuantity, &cUnit,
		&o.Audit.CreatedBy, &o.Audit.UpdatedBy, &o.Audit.CreatedAt, &o.Audit.UpdatedAt)
	if err != nil {
		return o, err
	}
	o.ID = uuid.UUID(id.Bytes)
	o.Kind = core.PriceKind(kind)
	o.Date = core.DateOnly(date.Time)
	o.Price = fromNumeric(price)
	o.Quantity = fromNumeric(quantity)
	if cPrice.Valid {
		o.Canonical = &core.Canonical{
			Price:    fromNumeric(cPrice),
			Currency: cCurrency.String,
			Quantity: fromNumeric(cQuantity),
			Unit:     cUnit.String,
		}
	}
	return o, nil
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: id != uuid.Nil}
}

func pgDate(t time.Time) pgtype.Date {
	if t.IsZero() {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: core.DateOnly(t), Valid: true}
}

func toNumeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func fromNumeric(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Decimal{}
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}
