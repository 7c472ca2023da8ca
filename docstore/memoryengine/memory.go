// Package memoryengine provides an in-memory implementation of the
// docstore.StorageEngine contract. It is intended for tests and prototyping:
// evaluation is sequential under one lock and payloads are decoded per query.
package memoryengine

import (
	"context"
	"errors"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/pagedstore/docstore-go/docstore"
)

const defaultMaxBatchWriteSize = 500

// ErrInvalidPayloadJSON is returned when a stored payload is not valid JSON.
var ErrInvalidPayloadJSON = errors.New("document payload is not valid json")

type document struct {
	ref     string
	id      string
	payload []byte
}

// Engine is an in-memory document store keyed by fully-qualified refs.
type Engine struct {
	mu            sync.RWMutex
	docs          map[string]document
	queryCount    int
	maxBatchWrite int
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithMaxBatchWriteSize overrides the atomic batch-write ceiling (default 500).
func WithMaxBatchWriteSize(size int) Option {
	return func(e *Engine) {
		e.maxBatchWrite = size
	}
}

// NewEngine creates an empty in-memory engine.
func NewEngine(options ...Option) *Engine {
	e := &Engine{
		docs:          make(map[string]document),
		maxBatchWrite: defaultMaxBatchWriteSize,
	}

	for _, option := range options {
		option(e)
	}

	return e
}

// QueryCount reports how many queries have been executed. Tests use it to
// assert the round counts of pagination and batched deletion.
func (e *Engine) QueryCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.queryCount
}

// GetDocument returns the document at path; a missing document is reported
// through a snapshot with Exists() == false and a nil error.
func (e *Engine) GetDocument(ctx context.Context, path string) (docstore.Snapshot, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	doc, found := e.docs[path]
	if !found {
		return snapshot{ref: path, id: docstore.DocumentIDFromRef(path)}, nil
	}

	return snapshotOf(doc), nil
}

// SetDocument stores payload under path, overwriting any existing document.
func (e *Engine) SetDocument(ctx context.Context, path string, payload []byte) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	if !jsoniter.ConfigFastest.Valid(payload) {
		return ErrInvalidPayloadJSON
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.docs[path] = document{
		ref:     path,
		id:      docstore.DocumentIDFromRef(path),
		payload: append([]byte(nil), payload...),
	}

	return nil
}

// DeleteDocument removes the document at path; deleting a missing document is
// not an error.
func (e *Engine) DeleteDocument(ctx context.Context, path string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.docs, path)

	return nil
}

// Query starts a chainable query against one collection.
func (e *Engine) Query(collectionPath string) docstore.QueryHandle {
	return query{engine: e, collection: collectionPath}
}

// BatchWrite starts collecting deletes for one atomic commit.
func (e *Engine) BatchWrite() docstore.BatchWriter {
	return &batch{engine: e}
}

// MaxBatchWriteSize is the engine's atomic batch-write ceiling.
func (e *Engine) MaxBatchWriteSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.maxBatchWrite
}

// BeginTx starts a transaction with snapshot semantics: it operates on a copy
// of the store and Commit publishes the copy atomically.
func (e *Engine) BeginTx(ctx context.Context) (*Tx, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	staged := NewEngine(WithMaxBatchWriteSize(e.maxBatchWrite))
	for ref, doc := range e.docs {
		staged.docs[ref] = doc
	}

	return &Tx{origin: e, staged: staged}, nil
}

/***** batch *****/

type batch struct {
	engine *Engine
	refs   []string
}

func (b *batch) Delete(ref string) {
	b.refs = append(b.refs, ref)
}

func (b *batch) Commit(ctx context.Context) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	b.engine.mu.Lock()
	defer b.engine.mu.Unlock()

	if len(b.refs) > b.engine.maxBatchWrite {
		return docstore.ErrBatchTooLarge
	}

	for _, ref := range b.refs {
		delete(b.engine.docs, ref)
	}

	return nil
}

/***** Tx *****/

// Tx is a transaction-scoped engine. All operations run against a staged copy
// until Commit replaces the origin's contents; Rollback discards the copy.
// Concurrent transactions are last-write-wins.
type Tx struct {
	origin *Engine
	staged *Engine
	done   bool
}

func (t *Tx) GetDocument(ctx context.Context, path string) (docstore.Snapshot, error) {
	return t.staged.GetDocument(ctx, path)
}

func (t *Tx) SetDocument(ctx context.Context, path string, payload []byte) error {
	return t.staged.SetDocument(ctx, path, payload)
}

func (t *Tx) DeleteDocument(ctx context.Context, path string) error {
	return t.staged.DeleteDocument(ctx, path)
}

func (t *Tx) Query(collectionPath string) docstore.QueryHandle {
	return t.staged.Query(collectionPath)
}

func (t *Tx) BatchWrite() docstore.BatchWriter {
	return t.staged.BatchWrite()
}

func (t *Tx) MaxBatchWriteSize() int {
	return t.staged.MaxBatchWriteSize()
}

// Commit publishes the staged state to the origin engine.
func (t *Tx) Commit(ctx context.Context) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	if t.done {
		return errors.New("transaction already finished")
	}
	t.done = true

	t.origin.mu.Lock()
	defer t.origin.mu.Unlock()

	t.origin.docs = t.staged.docs

	return nil
}

// Rollback discards the staged state.
func (t *Tx) Rollback(_ context.Context) error {
	t.done = true
	t.staged = nil

	return nil
}

/***** snapshot *****/

type snapshot struct {
	id     string
	ref    string
	exists bool
	data   []byte
}

func snapshotOf(doc document) snapshot {
	return snapshot{
		id:     doc.id,
		ref:    doc.ref,
		exists: true,
		data:   append([]byte(nil), doc.payload...),
	}
}

func (s snapshot) ID() string {
	return s.id
}

func (s snapshot) Ref() string {
	return s.ref
}

func (s snapshot) Exists() bool {
	return s.exists
}

func (s snapshot) Data() []byte {
	return s.data
}

// collectionOf returns the parent collection path of a ref.
func collectionOf(ref string) string {
	if idx := strings.LastIndexByte(ref, '/'); idx >= 0 {
		return ref[:idx]
	}

	return ""
}

var (
	_ docstore.StorageEngine = (*Engine)(nil)
	_ docstore.TxEngine      = (*Tx)(nil)
)
