// Command demo walks through the docstore API against a local Postgres:
// it stores a batch of task documents, pages through them with a cursor,
// runs a filtered query, uses a transaction, and finally empties the
// collection in bounded batches.
package main

import (
	"context"
	"fmt"
	"log"

	"go.opentelemetry.io/otel"

	"github.com/pagedstore/docstore-go/docstore"
	"github.com/pagedstore/docstore-go/docstore/oteladapters"
	"github.com/pagedstore/docstore-go/docstore/postgresengine"
	"github.com/pagedstore/docstore-go/example/demo/config"
)

const tasksCollection = "tasks"

type task struct {
	Title    string `json:"title"`
	Priority int    `json:"priority"`
	Done     bool   `json:"done"`
}

func main() {
	ctx := context.Background()

	providers, obsErr := config.NewObservabilityConfig()
	if obsErr != nil {
		log.Printf("observability stack unavailable, continuing without exporters: %v", obsErr)
	} else {
		defer func() { _ = providers.Shutdown() }()
	}

	pool := config.PostgresPGXPool(ctx, config.PostgresDemoDSN())
	defer pool.Close()

	engine, engineErr := postgresengine.NewEngineFromPGXPool(
		pool,
		postgresengine.WithTableName("documents"),
		postgresengine.WithContextualLogger(oteladapters.NewSlogBridgeLogger("docstore-demo")),
		postgresengine.WithMetrics(oteladapters.NewMetricsCollector(otel.Meter("docstore-demo"))),
		postgresengine.WithTracing(oteladapters.NewTracingCollector(otel.Tracer("docstore-demo"))),
	)
	if engineErr != nil {
		log.Fatal("Failed to create storage engine: ", engineErr)
	}

	if _, ddlErr := pool.Exec(ctx, postgresengine.Schema("documents")); ddlErr != nil {
		log.Fatal("Failed to create documents table: ", ddlErr)
	}

	client, clientErr := docstore.NewClient(engine)
	if clientErr != nil {
		log.Fatal("Failed to create client: ", clientErr)
	}

	seedTasks(ctx, client)
	paginateTasks(ctx, client)
	queryUrgentTasks(ctx, client)
	completeTaskTransactionally(ctx, client, engine)
	cleanUp(ctx, client)
}

func seedTasks(ctx context.Context, client *docstore.Client) {
	for i := 1; i <= 25; i++ {
		ref := fmt.Sprintf("%s/task-%02d", tasksCollection, i)
		payload := task{Title: fmt.Sprintf("task number %d", i), Priority: i % 5}

		if err := docstore.SetDoc(ctx, client, ref, payload); err != nil {
			log.Fatal("Failed to store task: ", err)
		}
	}

	ref, err := docstore.AddDoc(ctx, client, tasksCollection, task{Title: "generated id task", Priority: 1})
	if err != nil {
		log.Fatal("Failed to add task: ", err)
	}

	fmt.Println("seeded 26 tasks, last one at", ref)
}

func paginateTasks(ctx context.Context, client *docstore.Client) {
	// Replica reads are fine for pure pagination traffic.
	readCtx := docstore.WithEventualConsistency(ctx)

	cursor := docstore.NewCursor(10)
	pageNo := 0

	for cursor.HasNext() {
		var page []docstore.Record[task]
		var err error

		page, cursor, err = docstore.CursorQuery[task](readCtx, client, tasksCollection, cursor)
		if err != nil {
			log.Fatal("Failed to fetch page: ", err)
		}

		pageNo++
		fmt.Printf("page %d: %d tasks (more: %t)\n", pageNo, len(page), cursor.HasNext())
	}
}

func queryUrgentTasks(ctx context.Context, client *docstore.Client) {
	urgent, err := docstore.CollectionQuery[task](
		ctx,
		client,
		tasksCollection,
		docstore.Where("priority", docstore.OpGreaterThanOrEqual, 3),
		docstore.Where("done", docstore.OpEqual, false),
		docstore.OrderBy("priority", docstore.Desc),
	)
	if err != nil {
		log.Fatal("Failed to query urgent tasks: ", err)
	}

	fmt.Printf("%d urgent open tasks\n", len(urgent))
}

func completeTaskTransactionally(ctx context.Context, client *docstore.Client, engine *postgresengine.Engine) {
	tx, beginErr := engine.BeginTx(ctx)
	if beginErr != nil {
		log.Fatal("Failed to begin transaction: ", beginErr)
	}

	txClient := client.WithExecution(docstore.Transactional(tx))

	ref := tasksCollection + "/task-01"
	record, getErr := docstore.DocQuery[task](ctx, txClient, ref)
	if getErr != nil || record == nil {
		_ = tx.Rollback(ctx)
		log.Fatal("Failed to load task inside transaction: ", getErr)
	}

	updated := record.Data
	updated.Done = true

	if setErr := docstore.SetDoc(ctx, txClient, ref, updated); setErr != nil {
		_ = tx.Rollback(ctx)
		log.Fatal("Failed to update task inside transaction: ", setErr)
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		log.Fatal("Failed to commit transaction: ", commitErr)
	}

	fmt.Println("completed", ref, "transactionally")
}

func cleanUp(ctx context.Context, client *docstore.Client) {
	if err := client.DeleteCollection(ctx, tasksCollection, docstore.WithBatchSize(10)); err != nil {
		log.Fatal("Failed to delete collection: ", err)
	}

	fmt.Println("collection emptied")
}
