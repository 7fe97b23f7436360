package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres persists services and attempts in PostgreSQL. One pool backs
// both tables; it is created at startup and closed at shutdown.
type Postgres struct {
	pool *pgxpool.Pool
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS services (
    id BIGSERIAL PRIMARY KEY,
    name TEXT NOT NULL,
    wallet_address TEXT NOT NULL,
    endpoint_url TEXT NOT NULL,
    price TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS attempts (
    id BIGSERIAL PRIMARY KEY,
    service_id BIGINT NOT NULL REFERENCES services (id),
    tx_hash TEXT NOT NULL,
    status TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS attempts_success_once
    ON attempts (service_id, tx_hash)
    WHERE status = 'success';
`

// NewPostgres connects using the DSN and ensures the schema exists.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, err
	}

	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) CreateService(ctx context.Context, name, walletAddress, endpointURL, price string) (Service, error) {
	row := p.pool.QueryRow(ctx, `
INSERT INTO services (name, wallet_address, endpoint_url, price)
VALUES ($1, $2, $3, $4)
RETURNING id
`, name, walletAddress, endpointURL, price)

	svc := Service{
		Name:          name,
		WalletAddress: walletAddress,
		EndpointURL:   endpointURL,
		Price:         price,
	}
	if err := row.Scan(&svc.ID); err != nil {
		return Service{}, err
	}
	return svc, nil
}

func (p *Postgres) GetService(ctx context.Context, id int64) (Service, error) {
	row := p.pool.QueryRow(ctx, `
SELECT id, name, wallet_address, endpoint_url, price
FROM services
WHERE id = $1
`, id)

	var svc Service
	if err := row.Scan(&svc.ID, &svc.Name, &svc.WalletAddress, &svc.EndpointURL, &svc.Price); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Service{}, ErrNotFound
		}
		return Service{}, err
	}
	return svc, nil
}

func (p *Postgres) ListServices(ctx context.Context) ([]Service, error) {
	rows, err := p.pool.Query(ctx, `
SELECT id, name, wallet_address, endpoint_url, price
FROM services
ORDER BY id
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Service
	for rows.Next() {
		var svc Service
		if err := rows.Scan(&svc.ID, &svc.Name, &svc.WalletAddress, &svc.EndpointURL, &svc.Price); err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

func (p *Postgres) AppendAttempt(ctx context.Context, serviceID int64, txHash, status string) (Attempt, error) {
	row := p.pool.QueryRow(ctx, `
INSERT INTO attempts (service_id, tx_hash, status)
VALUES ($1, $2, $3)
RETURNING id, created_at
`, serviceID, txHash, status)

	att := Attempt{
		ServiceID: serviceID,
		TxHash:    txHash,
		Status:    status,
	}
	if err := row.Scan(&att.ID, &att.CreatedAt); err != nil {
		return Attempt{}, err
	}
	return att, nil
}

func (p *Postgres) RecentAttempts(ctx context.Context, limit int) ([]Attempt, error) {
	rows, err := p.pool.Query(ctx, `
SELECT a.id, a.service_id, s.name, a.tx_hash, a.status, a.created_at
FROM attempts a
JOIN services s ON s.id = a.service_id
ORDER BY a.created_at DESC, a.id DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var att Attempt
		if err := rows.Scan(&att.ID, &att.ServiceID, &att.ServiceName, &att.TxHash, &att.Status, &att.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, att)
	}
	return out, rows.Err()
}

func (p *Postgres) HasSuccess(ctx context.Context, serviceID int64, txHash string) (bool, error) {
	row := p.pool.QueryRow(ctx, `
SELECT EXISTS (
    SELECT 1 FROM attempts
    WHERE service_id = $1 AND tx_hash = $2 AND status = 'success'
)
`, serviceID, txHash)

	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
