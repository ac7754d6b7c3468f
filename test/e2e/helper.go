package e2e

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/asakaida/kizuna/internal/adapters/cached"
	"github.com/asakaida/kizuna/internal/adapters/grpcfetch"
	"github.com/asakaida/kizuna/internal/adapters/memory"
	pgadapter "github.com/asakaida/kizuna/internal/adapters/postgres"
	"github.com/asakaida/kizuna/internal/entities"
	"github.com/asakaida/kizuna/internal/handlers"
	"github.com/asakaida/kizuna/internal/infrastructure/config"
	"github.com/asakaida/kizuna/internal/infrastructure/database"
	"github.com/asakaida/kizuna/internal/infrastructure/metrics"
	pgrepo "github.com/asakaida/kizuna/internal/repositories/postgres"
	"github.com/asakaida/kizuna/internal/services"
	"github.com/asakaida/kizuna/internal/services/parser"
	"github.com/asakaida/kizuna/internal/store"
	"github.com/asakaida/kizuna/pkg/cache/memorycache"
)

const (
	bufSize  = 1024 * 1024
	tenantID = "e2e"
)

// BlogSchema is the model every scenario runs against
const BlogSchema = `
entity person {
  relation address @address
  relation posts @post[] (async, inverse: author)
  attribute name: string
}

entity address {
  relation person @person
  attribute street: string
}

entity post {
  relation author @person (async)
  relation comments @comment[] (async)
  attribute title: string
  attribute views: int
}

entity comment {
  relation post @post
  attribute body: string
}
`

// E2ETestServer is a full fetch/data/schema server on an in-memory listener.
// It runs on PostgreSQL when the test database is reachable and on the
// memory adapter otherwise.
type E2ETestServer struct {
	Server   *grpc.Server
	Conn     *grpc.ClientConn
	Listener *bufconn.Listener
	DB       *sql.DB
	Schema   *entities.Schema
	Metrics  *metrics.Recorder
	Backend  string
}

type backend interface {
	store.Adapter
	handlers.RecordWriter
}

// SetupE2ETest starts a server and connects a client to it
func SetupE2ETest(t *testing.T) *E2ETestServer {
	t.Helper()

	e := &E2ETestServer{Metrics: metrics.NewRecorder(nil, nil)}
	var (
		adapter       backend
		schemaService *services.SchemaService
	)

	if pg := connectPostgres(t); pg != nil {
		e.DB = pg.DB
		e.Backend = "postgres"
		cleanupDatabase(t, pg.DB)

		schemaService = services.NewSchemaService(pgrepo.NewPostgresSchemaRepository(pg.DB))
		version, err := schemaService.WriteSchema(context.Background(), tenantID, BlogSchema)
		if err != nil {
			t.Fatalf("failed to write schema: %v", err)
		}
		if e.Schema, err = schemaService.GetSchemaEntity(context.Background(), tenantID, version); err != nil {
			t.Fatalf("failed to read schema: %v", err)
		}
		adapter = pgadapter.New(
			pgrepo.NewPostgresRecordRepository(pg.DB),
			pgrepo.NewPostgresRelationRepository(pg.DB),
			e.Schema,
			tenantID,
		)
	} else {
		e.Backend = "memory"
		schema, err := parser.ParseSchema(tenantID, BlogSchema)
		if err != nil {
			t.Fatalf("failed to parse schema: %v", err)
		}
		e.Schema = schema
		adapter = memory.New()
	}

	c, err := memorycache.New(&memorycache.Config{MaxSizeBytes: 16 << 20, DefaultTTL: time.Minute})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	adapter = cached.New(adapter, c, 0, cached.WithMetrics(e.Metrics))

	e.Listener = bufconn.Listen(bufSize)
	e.Server = grpc.NewServer(grpc.UnaryInterceptor(metrics.UnaryServerInterceptor(e.Metrics)))
	handlers.RegisterFetchServer(e.Server, handlers.NewFetchHandler(adapter, e.Schema))
	handlers.RegisterDataServer(e.Server, handlers.NewDataHandler(adapter, e.Schema))
	if schemaService != nil {
		handlers.RegisterSchemaServer(e.Server, handlers.NewSchemaHandler(schemaService, tenantID))
	}

	go func() {
		if err := e.Server.Serve(e.Listener); err != nil {
			t.Logf("server error: %v", err)
		}
	}()

	e.Conn, err = grpc.NewClient(
		"passthrough://bufconn",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return e.Listener.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		e.Server.Stop()
		t.Fatalf("failed to create client connection: %v", err)
	}

	t.Cleanup(func() { e.Teardown(t) })
	return e
}

// RequirePostgres skips the test unless the server runs on PostgreSQL
func (e *E2ETestServer) RequirePostgres(t *testing.T) {
	t.Helper()
	if e.DB == nil {
		t.Skip("PostgreSQL not reachable; scenario needs the schema service")
	}
}

// NewStore returns a fresh client-side store fetching from the server
func (e *E2ETestServer) NewStore() *store.Store {
	return store.New(e.Schema, grpcfetch.New(e.Conn), store.WithFetchTimeout(5*time.Second))
}

// Call invokes a unary method with a JSON-shaped request
func (e *E2ETestServer) Call(ctx context.Context, method string, req interface{}) (*structpb.Struct, error) {
	in, err := handlers.EncodeStruct(req)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := e.Conn.Invoke(ctx, method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Write stores payloads through the data service
func (e *E2ETestServer) Write(t *testing.T, ctx context.Context, payloads ...*store.Payload) {
	t.Helper()
	if _, err := e.Call(ctx, handlers.DataWriteMethod, &store.Document{Data: payloads, Many: true}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
}

// Teardown stops the server and cleans the database
func (e *E2ETestServer) Teardown(t *testing.T) {
	t.Helper()

	if e.Conn != nil {
		e.Conn.Close()
		e.Conn = nil
	}
	if e.Server != nil {
		e.Server.Stop()
		e.Server = nil
	}
	if e.Listener != nil {
		e.Listener.Close()
		e.Listener = nil
	}
	if e.DB != nil {
		cleanupDatabase(t, e.DB)
		e.DB.Close()
		e.DB = nil
	}
}

func connectPostgres(t *testing.T) *database.Postgres {
	t.Helper()

	if err := config.InitConfig("test"); err != nil {
		return nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil
	}
	pg, err := database.NewPostgres(&cfg.Database)
	if err != nil {
		t.Logf("PostgreSQL not reachable, using the memory adapter: %v", err)
		return nil
	}

	projectRoot, err := config.ProjectRoot()
	if err != nil {
		t.Fatalf("failed to find project root: %v", err)
	}
	if err := pg.RunMigrations(filepath.Join(projectRoot, database.MigrationsPath)); err != nil {
		pg.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	return pg
}

// cleanupDatabase removes all data of the e2e tenant
func cleanupDatabase(t *testing.T, db *sql.DB) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, table := range []string{"relations", "records", "schemas"} {
		query := fmt.Sprintf("DELETE FROM %s WHERE tenant_id = $1", table)
		if _, err := db.ExecContext(ctx, query, tenantID); err != nil {
			t.Logf("warning: failed to clean up table %s: %v", table, err)
		}
	}
}
