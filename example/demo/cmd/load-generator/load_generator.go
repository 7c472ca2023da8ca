package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pagedstore/docstore-go/docstore"
)

const (
	tasksCollection   = "tasks"
	scratchCollection = "scratch"
	operationTimeout  = 5 * time.Second
	pageSize          = 20
	statsInterval     = 10 * time.Second
)

type task struct {
	Title    string   `json:"title"`
	Priority int      `json:"priority"`
	Done     bool     `json:"done"`
	Tags     []string `json:"tags,omitempty"`
}

// LoadGenerator produces a steady mix of reads, writes and deletes
// against a document store, for exercising the observability stack
// and the Postgres engine under sustained load.
type LoadGenerator struct {
	client *docstore.Client
	config Config

	stopChan chan struct{}
	wg       sync.WaitGroup

	requestCount atomic.Int64
	errorCount   atomic.Int64

	mu       sync.Mutex
	knownIDs []string
	cursor   docstore.Cursor
}

func NewLoadGenerator(client *docstore.Client, cfg Config) *LoadGenerator {
	return &LoadGenerator{
		client:   client,
		config:   cfg,
		stopChan: make(chan struct{}),
	}
}

// Seed stores the initial documents so read scenarios have data to hit.
func (lg *LoadGenerator) Seed(ctx context.Context) error {
	log.Printf("Seeding %d initial documents...", lg.config.InitialDocs)

	for i := 0; i < lg.config.InitialDocs; i++ {
		opCtx, cancel := context.WithTimeout(ctx, operationTimeout)
		ref, err := docstore.AddDoc(opCtx, lg.client, tasksCollection, randomTask(i))
		cancel()

		if err != nil {
			return fmt.Errorf("seeding document %d: %w", i, err)
		}

		lg.rememberRef(ref)
	}

	log.Printf("Seeding complete")

	return nil
}

// Start runs the load loop until the context is cancelled or Stop is called.
func (lg *LoadGenerator) Start(ctx context.Context) error {
	interval := time.Second / time.Duration(lg.config.Rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lg.wg.Add(1)
	go lg.statsReporter(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-lg.stopChan:
			return nil
		case <-ticker.C:
			lg.wg.Add(1)
			go func() {
				defer lg.wg.Done()
				lg.executeScenario(ctx)
			}()
		}
	}
}

// Stop signals the load loop to finish and waits for in-flight operations.
func (lg *LoadGenerator) Stop(ctx context.Context) error {
	close(lg.stopChan)

	done := make(chan struct{})
	go func() {
		lg.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		lg.logStats()
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out with operations still in flight")
	}
}

func (lg *LoadGenerator) executeScenario(ctx context.Context) {
	opCtx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	var err error

	roll := rand.Intn(100)
	switch {
	case roll < lg.config.ScenarioWeights[0]:
		err = lg.runReadScenario(opCtx)
	case roll < lg.config.ScenarioWeights[0]+lg.config.ScenarioWeights[1]:
		err = lg.runWriteScenario(opCtx)
	default:
		err = lg.runDeleteScenario(opCtx)
	}

	lg.requestCount.Add(1)
	if err != nil && ctx.Err() == nil {
		lg.errorCount.Add(1)
		log.Printf("Scenario failed: %v", err)
	}
}

// runReadScenario alternates between single-document lookups, filtered
// collection queries and walking the collection page by page.
func (lg *LoadGenerator) runReadScenario(ctx context.Context) error {
	switch rand.Intn(3) {
	case 0:
		ref := lg.randomRef()
		if ref == "" {
			return nil
		}
		_, err := docstore.DocQuery[task](ctx, lg.client, ref)
		return err

	case 1:
		priority := rand.Intn(5) + 1
		_, err := docstore.CollectionQuery[task](ctx, lg.client, tasksCollection,
			docstore.Where("priority", docstore.OpGreaterThanOrEqual, priority),
			docstore.OrderBy("priority", docstore.Desc),
		)
		return err

	default:
		return lg.readNextPage(ctx)
	}
}

func (lg *LoadGenerator) readNextPage(ctx context.Context) error {
	lg.mu.Lock()
	cursor := lg.cursor
	lg.mu.Unlock()

	if cursor.PageSize() == 0 {
		cursor = docstore.NewCursor(pageSize)
	}

	_, next, err := docstore.CursorQuery[task](ctx, lg.client, tasksCollection, cursor)
	if err != nil {
		return err
	}

	// Restart from the beginning once the collection is exhausted
	if !next.HasNext() {
		next = docstore.NewCursor(pageSize)
	}

	lg.mu.Lock()
	lg.cursor = next
	lg.mu.Unlock()

	return nil
}

func (lg *LoadGenerator) runWriteScenario(ctx context.Context) error {
	// Mostly append new documents, occasionally overwrite a known one
	if rand.Intn(10) < 8 {
		ref, err := docstore.AddDoc(ctx, lg.client, tasksCollection, randomTask(rand.Int()))
		if err != nil {
			return err
		}
		lg.rememberRef(ref)
		return nil
	}

	ref := lg.randomRef()
	if ref == "" {
		return nil
	}

	updated := randomTask(rand.Int())
	updated.Done = true

	return docstore.SetDoc(ctx, lg.client, ref, updated)
}

// runDeleteScenario removes single documents most of the time and
// occasionally exercises recursive deletion on a scratch collection
// that it fills first.
func (lg *LoadGenerator) runDeleteScenario(ctx context.Context) error {
	if rand.Intn(20) == 0 {
		return lg.deleteScratchCollection(ctx)
	}

	ref := lg.forgetRandomRef()
	if ref == "" {
		return nil
	}

	return lg.client.DeleteDoc(ctx, ref)
}

func (lg *LoadGenerator) deleteScratchCollection(ctx context.Context) error {
	for i := 0; i < pageSize; i++ {
		if _, err := docstore.AddDoc(ctx, lg.client, scratchCollection, randomTask(i)); err != nil {
			return err
		}
	}

	return lg.client.DeleteCollection(ctx, scratchCollection, docstore.WithBatchSize(10))
}

func (lg *LoadGenerator) statsReporter(ctx context.Context) {
	defer lg.wg.Done()

	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-lg.stopChan:
			return
		case <-ticker.C:
			lg.logStats()
		}
	}
}

func (lg *LoadGenerator) logStats() {
	requests := lg.requestCount.Load()
	errors := lg.errorCount.Load()

	lg.mu.Lock()
	known := len(lg.knownIDs)
	lg.mu.Unlock()

	log.Printf("Stats: requests=%d, errors=%d, known_docs=%d", requests, errors, known)
}

func (lg *LoadGenerator) rememberRef(ref string) {
	lg.mu.Lock()
	defer lg.mu.Unlock()

	lg.knownIDs = append(lg.knownIDs, ref)
}

func (lg *LoadGenerator) randomRef() string {
	lg.mu.Lock()
	defer lg.mu.Unlock()

	if len(lg.knownIDs) == 0 {
		return ""
	}

	return lg.knownIDs[rand.Intn(len(lg.knownIDs))]
}

func (lg *LoadGenerator) forgetRandomRef() string {
	lg.mu.Lock()
	defer lg.mu.Unlock()

	if len(lg.knownIDs) == 0 {
		return ""
	}

	idx := rand.Intn(len(lg.knownIDs))
	ref := lg.knownIDs[idx]
	lg.knownIDs[idx] = lg.knownIDs[len(lg.knownIDs)-1]
	lg.knownIDs = lg.knownIDs[:len(lg.knownIDs)-1]

	return ref
}

var taskTitles = []string{
	"write report", "review pull request", "update dependencies",
	"fix flaky test", "rotate credentials", "archive old data",
}

var taskTags = []string{"urgent", "backend", "infra", "cleanup"}

func randomTask(seed int) task {
	return task{
		Title:    fmt.Sprintf("%s #%d", taskTitles[rand.Intn(len(taskTitles))], seed),
		Priority: rand.Intn(5) + 1,
		Tags:     []string{taskTags[rand.Intn(len(taskTags))]},
	}
}
