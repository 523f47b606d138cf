package repo

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/xxxsen/mdedup/internal/model"
	"github.com/xxxsen/mdedup/internal/pkg/dbutil"
)

// SignatureRepo persists MinHash signatures keyed by content hash and signer
// fingerprint, so unchanged documents are not re-signed across restarts.
type SignatureRepo struct {
	db *sql.DB
}

func NewSignatureRepo(db *sql.DB) *SignatureRepo {
	return &SignatureRepo{db: db}
}

func (r *SignatureRepo) Get(ctx context.Context, contentHash, fingerprint string) ([]uint64, bool, error) {
	const query = `SELECT signature FROM minhash_signatures WHERE content_hash = $1 AND fingerprint = $2`
	var arr pq.Int64Array
	if err := r.db.QueryRowContext(ctx, query, contentHash, fingerprint).Scan(&arr); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	return dbutil.FromInt64Array(arr), true, nil
}

func (r *SignatureRepo) Save(ctx context.Context, sig *model.MinHashSignature) error {
	const query = `
		INSERT INTO minhash_signatures (content_hash, fingerprint, signature, ctime)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (content_hash, fingerprint) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query, sig.ContentHash, sig.Fingerprint, dbutil.Uint64Array(sig.Signature), sig.Ctime)
	return err
}

// DeleteOtherFingerprints drops signatures made by a different signer configuration.
func (r *SignatureRepo) DeleteOtherFingerprints(ctx context.Context, fingerprint string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM minhash_signatures WHERE fingerprint <> $1`, fingerprint)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
