package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/petward/server/internal/companion"
	"github.com/petward/server/internal/lease"
	"github.com/petward/server/internal/nbt"
)

// LeaseRepo stores lease records in PostgreSQL. It satisfies lease.Store.
type LeaseRepo struct {
	db *DB
}

func NewLeaseRepo(db *DB) *LeaseRepo {
	return &LeaseRepo{db: db}
}

func (r *LeaseRepo) Load(ctx context.Context, owner uuid.UUID) (lease.Records, error) {
	var rec lease.Records

	err := r.db.Pool.QueryRow(ctx,
		`SELECT first_recovery_done FROM pet_owners WHERE owner_id = $1`, owner,
	).Scan(&rec.FirstRecoveryDone)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return rec, fmt.Errorf("load pet owner: %w", err)
	}

	rows, err := r.db.Pool.Query(ctx,
		`SELECT companion_most, companion_least, partition_key, chunk_x, chunk_z
		 FROM pet_leases WHERE owner_id = $1
		 ORDER BY companion_most, companion_least`, owner,
	)
	if err != nil {
		return rec, fmt.Errorf("load pet leases: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			most, least int64
			part        string
			x, z        int32
		)
		if err := rows.Scan(&most, &least, &part, &x, &z); err != nil {
			return rec, fmt.Errorf("scan pet lease: %w", err)
		}
		rec.Leases = append(rec.Leases, lease.Record{
			ID:        nbt.UUIDFromHalves(most, least),
			Partition: part,
			Chunk:     companion.ChunkPos{X: int(x), Z: int(z)},
		})
	}
	return rec, rows.Err()
}

// Save replaces the owner's rows in one transaction.
func (r *LeaseRepo) Save(ctx context.Context, owner uuid.UUID, rec lease.Records) error {
	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM pet_leases WHERE owner_id = $1`, owner); err != nil {
			return fmt.Errorf("clear pet leases: %w", err)
		}

		batch := &pgx.Batch{}
		for _, l := range rec.Leases {
			most, least := nbt.UUIDHalves(l.ID)
			batch.Queue(
				`INSERT INTO pet_leases (owner_id, companion_most, companion_least, partition_key, chunk_x, chunk_z)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				owner, most, least, l.Partition, int32(l.Chunk.X), int32(l.Chunk.Z),
			)
		}
		batch.Queue(
			`INSERT INTO pet_owners (owner_id, first_recovery_done, updated_at)
			 VALUES ($1, $2, now())
			 ON CONFLICT (owner_id) DO UPDATE SET first_recovery_done = EXCLUDED.first_recovery_done, updated_at = now()`,
			owner, rec.FirstRecoveryDone,
		)
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("save pet leases: %w", err)
		}
		return nil
	})
}

func (r *LeaseRepo) Delete(ctx context.Context, owner uuid.UUID) error {
	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM pet_leases WHERE owner_id = $1`, owner); err != nil {
			return fmt.Errorf("delete pet leases: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM pet_owners WHERE owner_id = $1`, owner); err != nil {
			return fmt.Errorf("delete pet owner: %w", err)
		}
		return nil
	})
}

var _ lease.Store = (*LeaseRepo)(nil)
