// Package facade fronts the three upstream JSON-RPC services (chunk
// persistence, segmentation, embedding) behind a single abstraction so
// the rest of the core never depends on transport details, per
// SPEC_FULL.md's cycle-breaking design: the Facade is the sole sink for
// every upstream call.
package facade

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/maverikod/docanalyzer/internal/config"
	"github.com/maverikod/docanalyzer/internal/errors"
	"github.com/maverikod/docanalyzer/internal/model"
)

// Facade is the single abstraction over the three upstream services.
// It also exposes Segment/Embed so a chunking.Manager can be driven by
// a Facade value directly, without a Worker needing a second interface
// for Phase 1.
type Facade interface {
	ListFiles(ctx context.Context, dir string) ([]model.IndexedFileRecord, error)
	CommitChunks(ctx context.Context, chunks []model.Chunk) (created int, ids []string, err error)
	DeleteBySource(ctx context.Context, sourceID string) (deleted int, err error)
	Health(ctx context.Context) map[string]string
	Segment(ctx context.Context, chunks []model.Chunk) ([]model.Chunk, error)
	Embed(ctx context.Context, chunks []model.Chunk) ([]model.Chunk, error)
}

// service names a single upstream endpoint this facade dispatches to.
type service struct {
	name    string
	url     string
	client  *http.Client
	retry   errors.RetryConfig
	breaker *errors.CircuitBreaker
}

// HTTPFacade implements Facade over three HTTP JSON-RPC 2.0 endpoints.
type HTTPFacade struct {
	vectorStore  service
	segmentation service
	embedding    service

	requestID atomic.Uint64

	listFilesCache map[string][]model.IndexedFileRecord
}

// New builds an HTTPFacade wired to the three upstream services named
// in cfg.
func New(cfg config.UpstreamConfig, retry config.RetryConfig) *HTTPFacade {
	retryCfg := errors.RetryConfig{
		MaxRetries:   retry.MaxAttempts,
		InitialDelay: retry.BaseDelay,
		MaxDelay:     retry.MaxDelay,
		Multiplier:   2.0,
		Jitter:       true,
	}
	return &HTTPFacade{
		vectorStore:    newService("vector_store", cfg.VectorStore, retryCfg),
		segmentation:   newService("segmentation", cfg.Segmentation, retryCfg),
		embedding:      newService("embedding", cfg.Embedding, retryCfg),
		listFilesCache: map[string][]model.IndexedFileRecord{},
	}
}

func newService(name string, sc config.ServiceConfig, retry errors.RetryConfig) service {
	return service{
		name:    name,
		url:     sc.URL,
		client:  &http.Client{Timeout: sc.Timeout},
		retry:   retry,
		breaker: errors.NewCircuitBreaker(name, 5, 30*time.Second),
	}
}

func (f *HTTPFacade) nextID() string {
	return fmt.Sprintf("docanalyzer-%d", f.requestID.Add(1))
}

// call performs one JSON-RPC 2.0 round trip against svc, retried per
// svc.retry and gated by svc.breaker. Cancellation propagates to the
// in-flight HTTP request via ctx.
func (f *HTTPFacade) call(ctx context.Context, svc service, method string, params, result any) error {
	return errors.Retry(ctx, svc.retry, func(attempt int) error {
		return svc.breaker.Execute(func() error {
			return f.doCall(ctx, svc, method, params, result, attempt)
		})
	})
}

func (f *HTTPFacade) doCall(ctx context.Context, svc service, method string, params, result any, attempt int) error {
	req := request{JSONRPC: "2.0", Method: method, Params: params, ID: f.nextID()}
	body, err := json.Marshal(req)
	if err != nil {
		return errors.New(errors.KindUpstreamProtocolError, "facade."+method, "", "", attempt, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, svc.url, bytes.NewReader(body))
	if err != nil {
		return errors.New(errors.KindUpstreamUnavailable, "facade."+method, "", "", attempt, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := svc.client.Do(httpReq)
	if err != nil {
		return errors.New(errors.KindUpstreamUnavailable, "facade."+method, "", "", attempt, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return errors.New(errors.KindUpstreamUnavailable, "facade."+method, "", "", attempt, err)
	}
	if httpResp.StatusCode >= 500 {
		return errors.New(errors.KindUpstreamUnavailable, "facade."+method, "", "", attempt,
			fmt.Errorf("upstream %s returned status %d", svc.name, httpResp.StatusCode))
	}
	if httpResp.StatusCode >= 400 {
		return errors.New(errors.KindUpstreamProtocolError, "facade."+method, "", "", attempt,
			fmt.Errorf("upstream %s returned status %d", svc.name, httpResp.StatusCode))
	}

	var resp response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return errors.New(errors.KindUpstreamProtocolError, "facade."+method, "", "", attempt, err)
	}
	if resp.Error != nil {
		if resp.Error.Code == errCodeNotFound {
			return notFoundError{msg: resp.Error.Message}
		}
		return errors.New(errors.KindUpstreamProtocolError, "facade."+method, "", "", attempt,
			fmt.Errorf("%s: %s (code %d)", svc.name, resp.Error.Message, resp.Error.Code))
	}

	if result == nil {
		return nil
	}
	resultBytes, err := json.Marshal(resp.Result)
	if err != nil {
		return errors.New(errors.KindUpstreamProtocolError, "facade."+method, "", "", attempt, err)
	}
	if err := json.Unmarshal(resultBytes, result); err != nil {
		return errors.New(errors.KindUpstreamProtocolError, "facade."+method, "", "", attempt, err)
	}
	return nil
}

// notFoundError marks a JSON-RPC error as NotFound so DeleteBySource
// can treat an unknown source_id as a no-op success rather than a
// failure, per spec.md §4.4's idempotence contract.
type notFoundError struct{ msg string }

func (e notFoundError) Error() string { return e.msg }

// ListFiles returns everything the vector store knows about dir. The
// result is cached for the lifetime of this Facade instance, per
// spec.md §4.4's "may cache for the duration of a single scan round" —
// callers construct one Facade per scan round to bound the cache's
// life.
func (f *HTTPFacade) ListFiles(ctx context.Context, dir string) ([]model.IndexedFileRecord, error) {
	if cached, ok := f.listFilesCache[dir]; ok {
		return cached, nil
	}

	var wire []wireIndexedFile
	err := f.call(ctx, f.vectorStore, MethodListFiles, listFilesParams{Directory: dir}, &wire)
	if err != nil {
		return nil, err
	}

	records := make([]model.IndexedFileRecord, 0, len(wire))
	for _, w := range wire {
		rec := model.IndexedFileRecord{
			Path:        w.Path,
			SourceID:    w.SourceID,
			ChunkCount:  w.ChunkCount,
			Status:      w.Status,
			ContentHash: w.ContentHash,
		}
		if t, err := time.Parse(time.RFC3339, w.IndexedAt); err == nil {
			rec.IndexedAt = t
		}
		if t, err := time.Parse(time.RFC3339, w.LastModified); err == nil {
			rec.LastModified = t
		}
		records = append(records, rec)
	}

	f.listFilesCache[dir] = records
	return records, nil
}

// CommitChunks persists chunks and returns how many were created and
// their assigned ids, in the order the upstream returned them.
func (f *HTTPFacade) CommitChunks(ctx context.Context, chunks []model.Chunk) (int, []string, error) {
	wire := make([]wireChunk, len(chunks))
	for i, c := range chunks {
		wire[i] = wireChunk{
			SourcePath: c.SourcePath,
			SourceID:   c.SourceID,
			Body:       c.Body,
			Status:     string(c.Status),
			Ordinal:    c.Ordinal,
			Metadata:   c.Metadata,
		}
	}

	var result commitChunksResult
	err := f.call(ctx, f.vectorStore, MethodCommitChunks, commitChunksParams{Chunks: wire}, &result)
	if err != nil {
		return 0, nil, err
	}
	return result.Created, result.IDs, nil
}

// DeleteBySource removes every chunk sharing sourceID. Deleting an
// unknown source_id is treated as success (deleted=0) after the single
// upstream round trip reports NotFound, per spec.md §4.4.
func (f *HTTPFacade) DeleteBySource(ctx context.Context, sourceID string) (int, error) {
	var result deleteBySourceResult
	notFound := false
	svc := f.vectorStore
	err := errors.Retry(ctx, svc.retry, func(attempt int) error {
		return svc.breaker.Execute(func() error {
			err := f.doCall(ctx, svc, MethodDeleteBySource, deleteBySourceParams{SourceID: sourceID}, &result, attempt)
			var nf notFoundError
			if asNotFound(err, &nf) {
				// Settled: not retried and not a breaker failure.
				notFound = true
				return nil
			}
			return err
		})
	})
	if err != nil {
		return 0, err
	}
	if notFound {
		return 0, nil
	}
	return result.Deleted, nil
}

func asNotFound(err error, target *notFoundError) bool {
	if nf, ok := err.(notFoundError); ok {
		*target = nf
		return true
	}
	return false
}

// Health reports the reachability of each upstream service. It never
// fails; a service that errors is reported inline with the error text
// as its status.
func (f *HTTPFacade) Health(ctx context.Context) map[string]string {
	status := map[string]string{}
	for _, svc := range []service{f.vectorStore, f.segmentation, f.embedding} {
		var result map[string]any
		err := f.doCall(ctx, svc, MethodHealth, nil, &result, 0)
		if err != nil {
			status[svc.name] = "error: " + err.Error()
			continue
		}
		status[svc.name] = "ok"
	}
	return status
}

// Segment sends provisional chunk bodies to the segmentation service
// and returns whatever chunk list it derives, preserving order.
func (f *HTTPFacade) Segment(ctx context.Context, chunks []model.Chunk) ([]model.Chunk, error) {
	return f.roundTripChunks(ctx, f.segmentation, MethodSegment, chunks)
}

// Embed sends finalized chunk bodies to the embedding service and
// returns the (possibly re-derived) chunk list, preserving order.
func (f *HTTPFacade) Embed(ctx context.Context, chunks []model.Chunk) ([]model.Chunk, error) {
	return f.roundTripChunks(ctx, f.embedding, MethodEmbed, chunks)
}

func (f *HTTPFacade) roundTripChunks(ctx context.Context, svc service, method string, chunks []model.Chunk) ([]model.Chunk, error) {
	wire := make([]wireChunk, len(chunks))
	for i, c := range chunks {
		wire[i] = wireChunk{
			SourcePath: c.SourcePath,
			SourceID:   c.SourceID,
			Body:       c.Body,
			Status:     string(c.Status),
			Ordinal:    c.Ordinal,
			Metadata:   c.Metadata,
		}
	}

	var outWire []wireChunk
	if err := f.call(ctx, svc, method, commitChunksParams{Chunks: wire}, &outWire); err != nil {
		return nil, err
	}

	out := make([]model.Chunk, len(outWire))
	for i, w := range outWire {
		out[i] = model.Chunk{
			SourcePath: w.SourcePath,
			SourceID:   w.SourceID,
			Body:       w.Body,
			Status:     model.ChunkStatus(w.Status),
			Ordinal:    w.Ordinal,
			Metadata:   w.Metadata,
		}
	}
	return out, nil
}
