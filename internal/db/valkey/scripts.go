package valkey

import (
	"fmt"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/metastore/internal/db"
)

// Server-side error prefixes raised by the scripts below.
const (
	errVersionConflict = "VERSION_CONFLICT"
	errDocumentMissing = "DOCUMENT_MISSING"
)

// KEYS: doc, meta, seq. ARGV: source, create flag, primary term.
const writeScript = `
local exists = redis.call('EXISTS', KEYS[1]) == 1
local version = tonumber(redis.call('HGET', KEYS[2], 'version') or '0')
if exists and ARGV[2] == '1' then
  return redis.error_reply('VERSION_CONFLICT document already exists (current version [' .. version .. '])')
end
local seq = redis.call('INCR', KEYS[3]) - 1
local result = 'created'
if exists then
  version = version + 1
  result = 'updated'
else
  version = 1
end
redis.call('JSON.SET', KEYS[1], '$', ARGV[1])
redis.call('HSET', KEYS[2], 'version', version, 'seq_no', seq, 'primary_term', ARGV[3])
return {result, version, seq}
`

// KEYS: doc, meta, seq.
const deleteScript = `
local seq = redis.call('INCR', KEYS[3]) - 1
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {'not_found', 1, seq}
end
local version = tonumber(redis.call('HGET', KEYS[2], 'version') or '0') + 1
redis.call('DEL', KEYS[1], KEYS[2])
return {'deleted', version, seq}
`

// KEYS: doc, meta, seq. ARGV: expected seq_no, merged source, primary term.
const updateScript = `
if redis.call('EXISTS', KEYS[1]) == 0 then
  return redis.error_reply('DOCUMENT_MISSING document missing')
end
local cur = redis.call('HGET', KEYS[2], 'seq_no')
if cur ~= ARGV[1] then
  return redis.error_reply('VERSION_CONFLICT current seqNo [' .. tostring(cur) .. ']')
end
local seq = redis.call('INCR', KEYS[3]) - 1
local version = tonumber(redis.call('HGET', KEYS[2], 'version') or '0') + 1
redis.call('JSON.SET', KEYS[1], '$', ARGV[2])
redis.call('HSET', KEYS[2], 'version', version, 'seq_no', seq, 'primary_term', ARGV[3])
return {'updated', version, seq}
`

func (s *Store) eval(script, collection, id string, args ...string) rueidis.Completed {
	return s.b().Arbitrary("EVAL", script, "3").
		Keys(s.docKey(collection, id), s.metaKey(collection, id), s.seqKey(collection)).
		Args(args...).
		Build()
}

func (s *Store) writeCmd(op *db.WriteOp, id string) rueidis.Completed {
	create := "0"
	if op.Action() == db.OpTypeCreate {
		create = "1"
	}
	return s.eval(writeScript, op.Index, id, string(op.Source), create, strconv.Itoa(primaryTerm))
}

func (s *Store) deleteCmd(op *db.DeleteOp) rueidis.Completed {
	return s.eval(deleteScript, op.Index, op.ID)
}

func (s *Store) updateCmd(op *db.UpdateOp, expectedSeqNo int64, merged []byte) rueidis.Completed {
	return s.eval(updateScript, op.Index, op.ID,
		strconv.FormatInt(expectedSeqNo, 10), string(merged), strconv.Itoa(primaryTerm))
}

// parseScriptResult decodes a {result, version, seq_no} script reply.
func parseScriptResult(resp rueidis.RedisResult, index, id string) (*db.WriteResult, error) {
	arr, err := resp.ToArray()
	if err != nil {
		return nil, scriptErr(err)
	}
	if len(arr) != 3 {
		return nil, fmt.Errorf("unexpected script reply length %d", len(arr))
	}
	result, err := arr[0].ToString()
	if err != nil {
		return nil, fmt.Errorf("parse result: %w", err)
	}
	version, err := arr[1].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse version: %w", err)
	}
	seq, err := arr[2].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse seq_no: %w", err)
	}
	return &db.WriteResult{
		Index:       index,
		ID:          id,
		Version:     version,
		Result:      db.Result(result),
		SeqNo:       seq,
		PrimaryTerm: primaryTerm,
	}, nil
}

// scriptErr maps script error replies onto engine sentinels.
func scriptErr(err error) error {
	switch {
	case isRedisErr(err, errVersionConflict):
		return fmt.Errorf("%s: %w", err.Error(), db.ErrVersionConflict)
	case isRedisErr(err, errDocumentMissing):
		return fmt.Errorf("%s: %w", err.Error(), db.ErrDocumentNotFound)
	default:
		return err
	}
}
