package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kailas-cloud/metastore/internal/db"
)

// Write creates or replaces a document.
func (e *Engine) Write(ctx context.Context, op *db.WriteOp) (*db.WriteResult, error) {
	id := op.ID
	if id == "" {
		id = db.NewID()
	}
	if err := db.ValidateSource(op.Source); err != nil {
		return nil, &db.Error{Op: db.OpWrite, Index: op.Index, ID: id, Err: err}
	}

	res := &db.WriteResult{Index: op.Index, ID: id, PrimaryTerm: primaryTerm}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		cur, err := loadDoc(ctx, tx, op.Index, id)
		if err != nil {
			return err
		}
		if cur != nil && op.Action() == db.OpTypeCreate {
			return fmt.Errorf("[%s]: version conflict, document already exists (current version [%d]): %w",
				id, cur.version, db.ErrVersionConflict)
		}
		seq, err := nextSeqNo(ctx, tx, op.Index)
		if err != nil {
			return err
		}
		res.SeqNo = seq

		if cur == nil {
			res.Version, res.Result = 1, db.ResultCreated
			_, err = tx.ExecContext(ctx,
				`INSERT INTO documents (collection, id, source, version, seq_no, primary_term)
				 VALUES (?, ?, json(?), 1, ?, ?)`,
				op.Index, id, string(op.Source), seq, primaryTerm)
			return err
		}
		res.Version, res.Result = cur.version+1, db.ResultUpdated
		_, err = tx.ExecContext(ctx,
			`UPDATE documents SET source = json(?), version = ?, seq_no = ?, primary_term = ?
			 WHERE collection = ? AND id = ?`,
			string(op.Source), res.Version, seq, primaryTerm, op.Index, id)
		return err
	})
	if err != nil {
		return nil, &db.Error{Op: db.OpWrite, Index: op.Index, ID: id, Err: err}
	}
	return res, nil
}

// Update merges op.Doc into the stored document. RetryOnConflict has no
// effect: the read-check-write runs in a single transaction.
func (e *Engine) Update(ctx context.Context, op *db.UpdateOp) (*db.WriteResult, error) {
	if err := db.ValidateSource(op.Doc); err != nil {
		return nil, &db.Error{Op: db.OpUpdate, Index: op.Index, ID: op.ID, Err: err}
	}

	res := &db.WriteResult{Index: op.Index, ID: op.ID}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		cur, err := loadDoc(ctx, tx, op.Index, op.ID)
		if err != nil {
			return err
		}
		if cur == nil {
			return fmt.Errorf("[%s]: document missing: %w", op.ID, db.ErrDocumentNotFound)
		}
		if op.IfSeqNo != nil && op.IfPrimaryTerm != nil &&
			(*op.IfSeqNo != cur.seqNo || *op.IfPrimaryTerm != cur.primaryTerm) {
			return fmt.Errorf(
				"[%s]: version conflict, required seqNo [%d], primary term [%d]. current document has seqNo [%d] and primary term [%d]: %w",
				op.ID, *op.IfSeqNo, *op.IfPrimaryTerm, cur.seqNo, cur.primaryTerm, db.ErrVersionConflict)
		}

		var merged string
		if err := tx.QueryRowContext(ctx, `SELECT json_patch(?, json(?))`, cur.source, string(op.Doc)).
			Scan(&merged); err != nil {
			return err
		}
		if merged == cur.source {
			res.Version, res.SeqNo, res.PrimaryTerm, res.Result = cur.version, cur.seqNo, cur.primaryTerm, db.ResultNoop
			return nil
		}

		seq, err := nextSeqNo(ctx, tx, op.Index)
		if err != nil {
			return err
		}
		res.Version, res.SeqNo, res.PrimaryTerm, res.Result = cur.version+1, seq, primaryTerm, db.ResultUpdated
		_, err = tx.ExecContext(ctx,
			`UPDATE documents SET source = ?, version = ?, seq_no = ?, primary_term = ?
			 WHERE collection = ? AND id = ?`,
			merged, res.Version, seq, primaryTerm, op.Index, op.ID)
		return err
	})
	if err != nil {
		return nil, &db.Error{Op: db.OpUpdate, Index: op.Index, ID: op.ID, Err: err}
	}
	return res, nil
}

// Delete removes a document. Missing documents report ResultNotFound.
func (e *Engine) Delete(ctx context.Context, op *db.DeleteOp) (*db.WriteResult, error) {
	res := &db.WriteResult{Index: op.Index, ID: op.ID, PrimaryTerm: primaryTerm}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		cur, err := loadDoc(ctx, tx, op.Index, op.ID)
		if err != nil {
			return err
		}
		seq, err := nextSeqNo(ctx, tx, op.Index)
		if err != nil {
			return err
		}
		res.SeqNo = seq
		if cur == nil {
			res.Version, res.Result = 1, db.ResultNotFound
			return nil
		}
		res.Version, res.Result = cur.version+1, db.ResultDeleted
		_, err = tx.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, op.Index, op.ID)
		return err
	})
	if err != nil {
		return nil, &db.Error{Op: db.OpDelete, Index: op.Index, ID: op.ID, Err: err}
	}
	return res, nil
}

// Get fetches a document.
func (e *Engine) Get(ctx context.Context, op *db.GetOp) (*db.GetResult, error) {
	var d storedDoc
	err := e.db.QueryRowContext(ctx,
		`SELECT source, version, seq_no, primary_term FROM documents WHERE collection = ? AND id = ?`,
		op.Index, op.ID,
	).Scan(&d.source, &d.version, &d.seqNo, &d.primaryTerm)
	if err == sql.ErrNoRows {
		return &db.GetResult{Index: op.Index, ID: op.ID}, nil
	}
	if err != nil {
		return nil, &db.Error{Op: db.OpGet, Index: op.Index, ID: op.ID, Err: err}
	}

	src, err := db.FilterSource([]byte(d.source), op.Source)
	if err != nil {
		return nil, &db.Error{Op: db.OpGet, Index: op.Index, ID: op.ID, Err: err}
	}
	return &db.GetResult{
		Index:       op.Index,
		ID:          op.ID,
		Version:     d.version,
		SeqNo:       d.seqNo,
		PrimaryTerm: d.primaryTerm,
		Found:       true,
		Source:      src,
	}, nil
}
