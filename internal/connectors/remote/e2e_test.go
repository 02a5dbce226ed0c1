package remote_test

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/asakaida/remotemodel/internal/connectors/memory"
	"github.com/asakaida/remotemodel/internal/connectors/remote"
	"github.com/asakaida/remotemodel/internal/entities"
	"github.com/asakaida/remotemodel/internal/handlers"
	"github.com/asakaida/remotemodel/internal/infrastructure/logger"
	"github.com/asakaida/remotemodel/internal/model"
	"github.com/asakaida/remotemodel/internal/remoting"
	"github.com/asakaida/remotemodel/internal/services"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

const testSchema = `model TestModel {
  property first: string
  property last: string
  property age: number
  property relatedModelId: number
}

model RelatedModel {
  property name: string
  relation related: hasMany TestModel (foreignKey = "relatedModelId")
}`

const relationsSchema = `model Author {
  property name: string
}

model Book {
  property title: string
  property authorId: number
  relation author: belongsTo Author
  relation tags: hasAndBelongsToMany Tag (through = "BookTag")
  relation notes: embedsMany Note (property = "noteList")
}

model Tag {
  property label: string
}

model BookTag {
  property bookId: number
  property tagId: number
}

model Note {
  property text: string
}`

// testEnv is a server backed by the memory connector and a client whose
// models are bound to it through the remote connector
type testEnv struct {
	store  *memory.Connector
	server *services.ModelService
	client *services.ModelService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newSchemaEnv(t, testSchema)
}

func newSchemaEnv(t *testing.T, schema string) *testEnv {
	t.Helper()
	log := zaptest.NewLogger(t)

	store, err := memory.New()
	if err != nil {
		t.Fatalf("failed to create memory connector: %v", err)
	}
	server, err := services.NewModelService(services.WithLogger(log))
	if err != nil {
		t.Fatalf("failed to create server models: %v", err)
	}
	if _, err := server.DefineSchema(schema, model.NewDataSource("db", store)); err != nil {
		t.Fatalf("failed to define server models: %v", err)
	}

	lis := bufconn.Listen(1024 * 1024)
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(logger.UnaryServerInterceptor(log)))
	remoting.RegisterModelServiceServer(grpcServer, handlers.NewModelHandler(server))
	go func() {
		_ = grpcServer.Serve(lis)
	}()
	t.Cleanup(grpcServer.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("failed to dial bufnet: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	connector := remote.New(remoting.NewModelServiceClient(conn), remote.WithLogger(log))
	client, err := services.NewModelService(services.WithLogger(log))
	if err != nil {
		t.Fatalf("failed to create client models: %v", err)
	}
	if _, err := client.DefineSchema(schema, model.NewDataSource("remote", connector)); err != nil {
		t.Fatalf("failed to define client models: %v", err)
	}

	return &testEnv{store: store, server: server, client: client}
}

func (e *testEnv) clientModel(t *testing.T, name string) *model.Model {
	t.Helper()
	m, ok := e.client.Model(name)
	if !ok {
		t.Fatalf("client model %s not defined", name)
	}
	return m
}

func (e *testEnv) serverModel(t *testing.T, name string) *model.Model {
	t.Helper()
	m, ok := e.server.Model(name)
	if !ok {
		t.Fatalf("server model %s not defined", name)
	}
	return m
}

func TestRemote_ClientMethodsAreRemote(t *testing.T) {
	env := newTestEnv(t)

	for _, name := range []string{"TestModel", "RelatedModel"} {
		for _, method := range env.clientModel(t, name).Methods() {
			if !method.Remote {
				t.Errorf("%s.%s: expected remote dispatch", name, method.Name)
			}
		}
		for _, method := range env.serverModel(t, name).Methods() {
			if method.Remote {
				t.Errorf("server %s.%s: expected local dispatch", name, method.Name)
			}
		}
	}
}

func TestRemote_Create(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inst, err := env.clientModel(t, "TestModel").Create(ctx, entities.Record{"first": "Joe", "last": "Bob"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inst.ID() == nil {
		t.Error("expected the server to assign an id")
	}

	records := env.store.Records("TestModel")
	if len(records) != 1 {
		t.Fatalf("expected 1 stored record, got %d", len(records))
	}
	if records[0]["first"] != "Joe" || records[0]["last"] != "Bob" {
		t.Errorf("unexpected stored record: %v", records[0])
	}
	if records[0]["id"] != inst.ID() {
		t.Errorf("expected stored id %v, got %v", inst.ID(), records[0]["id"])
	}
}

func TestRemote_Upsert(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	testModel := env.clientModel(t, "TestModel")

	if _, err := testModel.Upsert(ctx, entities.Record{"first": "joe", "id": 7}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	inst, err := testModel.Upsert(ctx, entities.Record{"first": "bob", "id": 7})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if inst.ID() != int64(7) || inst.Get("first") != "bob" {
		t.Errorf("unexpected instance: %v", inst.Data())
	}

	records := env.store.Records("TestModel")
	if len(records) != 1 {
		t.Fatalf("expected a single record, got %d", len(records))
	}
	if records[0]["id"] != int64(7) || records[0]["first"] != "bob" {
		t.Errorf("unexpected stored record: %v", records[0])
	}
}

func TestRemote_HasManyInclude(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	relatedModel := env.clientModel(t, "RelatedModel")

	parent, err := relatedModel.Create(ctx, entities.Record{"name": "parent"})
	if err != nil {
		t.Fatalf("failed to create parent: %v", err)
	}
	accessor, err := parent.Relation("related")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	child, err := accessor.Create(ctx, entities.Record{"first": "Joe", "last": "Bob"})
	if err != nil {
		t.Fatalf("failed to create related: %v", err)
	}
	if entities.NormalizeID(child.Get("relatedModelId")) != parent.ID() {
		t.Errorf("expected foreign key %v, got %v", parent.ID(), child.Get("relatedModelId"))
	}

	found, err := relatedModel.FindByID(ctx, parent.ID(), &entities.Filter{Include: []string{"related"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found == nil {
		t.Fatal("expected the parent to be found")
	}

	related := found.RelatedList("related")
	if len(related) != 1 {
		t.Fatalf("expected 1 related instance, got %d", len(related))
	}
	if related[0].ID() != child.ID() {
		t.Errorf("expected related id %v, got %v", child.ID(), related[0].ID())
	}
	if related[0].Get("first") != "Joe" || related[0].Get("last") != "Bob" {
		t.Errorf("unexpected related instance: %v", related[0].Data())
	}
	if related[0].Model() != env.clientModel(t, "TestModel") {
		t.Error("expected related instances of the client TestModel")
	}

	count, err := accessor.Count(ctx, nil)
	if err != nil || count != 1 {
		t.Errorf("expected related count 1, got %d (%v)", count, err)
	}
}

func TestRemote_DeleteByID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	testModel := env.clientModel(t, "TestModel")

	inst, err := testModel.Create(ctx, entities.Record{"first": "Joe"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	n, err := testModel.DeleteByID(ctx, inst.ID())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 deleted record, got %d", n)
	}

	found, err := testModel.FindByID(ctx, inst.ID(), nil)
	if err != nil {
		t.Fatalf("expected no error for a missing record, got %v", err)
	}
	if found != nil {
		t.Errorf("expected nil instance, got %v", found.Data())
	}
}

func TestRemote_Count(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	clientModel := env.clientModel(t, "TestModel")
	serverModel := env.serverModel(t, "TestModel")

	for _, age := range []int{100, 50} {
		if _, err := clientModel.Create(ctx, entities.Record{"first": "client", "age": age}); err != nil {
			t.Fatalf("client create: %v", err)
		}
	}
	for _, age := range []int{200, 99} {
		if _, err := serverModel.Create(ctx, entities.Record{"first": "server", "age": age}); err != nil {
			t.Fatalf("server create: %v", err)
		}
	}

	where := map[string]interface{}{"age": map[string]interface{}{"gt": 99}}
	for name, m := range map[string]*model.Model{"client": clientModel, "server": serverModel} {
		count, err := m.Count(ctx, where)
		if err != nil {
			t.Fatalf("%s count: %v", name, err)
		}
		if count != 2 {
			t.Errorf("%s: expected count 2, got %d", name, count)
		}
	}
}

func TestRemote_InstanceLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	testModel := env.clientModel(t, "TestModel")

	inst := testModel.NewInstance(entities.Record{"first": "Joe", "age": 30})
	if err := inst.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}
	if inst.ID() == nil {
		t.Fatal("expected save to assign an id")
	}

	if err := inst.UpdateAttributes(ctx, entities.Record{"age": 31}); err != nil {
		t.Fatalf("updateAttributes: %v", err)
	}
	stored, err := env.serverModel(t, "TestModel").FindByID(ctx, inst.ID(), nil)
	if err != nil || stored == nil {
		t.Fatalf("server lookup: %v %v", stored, err)
	}
	if stored.Get("age") != float64(31) {
		t.Errorf("expected stored age 31, got %v (%T)", stored.Get("age"), stored.Get("age"))
	}

	inst.Set("last", "Bob")
	if err := inst.Save(ctx); err != nil {
		t.Fatalf("second save: %v", err)
	}
	if n := len(env.store.Records("TestModel")); n != 1 {
		t.Errorf("expected save of a persisted instance to update in place, got %d records", n)
	}

	n, err := inst.Delete(ctx)
	if err != nil || n != 1 {
		t.Fatalf("delete: %d %v", n, err)
	}
	if err := inst.UpdateAttributes(ctx, entities.Record{"age": 32}); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestRemote_FindWithFilter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	testModel := env.clientModel(t, "TestModel")

	for _, name := range []string{"carol", "alice", "bob"} {
		if _, err := testModel.Create(ctx, entities.Record{"first": name}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	found, err := testModel.Find(ctx, &entities.Filter{Order: []string{"first ASC"}, Limit: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(found) != 2 || found[0].Get("first") != "alice" || found[1].Get("first") != "bob" {
		t.Errorf("unexpected result order")
	}

	one, err := testModel.FindOne(ctx, &entities.Filter{Where: map[string]interface{}{"first": "carol"}})
	if err != nil || one == nil || one.Get("first") != "carol" {
		t.Errorf("findOne: %v %v", one, err)
	}

	exists, err := testModel.Exists(ctx, one.ID())
	if err != nil || !exists {
		t.Errorf("expected exists, got %v %v", exists, err)
	}
}

func TestRemote_InvalidDataIsRejected(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.clientModel(t, "TestModel").Create(context.Background(), entities.Record{"age": "old"})
	if !errors.Is(err, model.ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

func TestRemote_BelongsToGet(t *testing.T) {
	env := newSchemaEnv(t, relationsSchema)
	ctx := context.Background()

	author, err := env.clientModel(t, "Author").Create(ctx, entities.Record{"name": "Ann"})
	if err != nil {
		t.Fatalf("failed to create author: %v", err)
	}
	book, err := env.clientModel(t, "Book").Create(ctx, entities.Record{"title": "Go", "authorId": author.ID()})
	if err != nil {
		t.Fatalf("failed to create book: %v", err)
	}

	accessor, err := book.Relation("author")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := accessor.GetOne(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.ID() != author.ID() || got.Get("name") != "Ann" {
		t.Fatalf("expected author Ann, got %v", got)
	}
	if got.Model() != env.clientModel(t, "Author") {
		t.Error("expected an instance of the client Author")
	}

	orphan, err := env.clientModel(t, "Book").Create(ctx, entities.Record{"title": "Anon"})
	if err != nil {
		t.Fatalf("failed to create book: %v", err)
	}
	accessor, err = orphan.Relation("author")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	none, err := accessor.GetOne(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if none != nil {
		t.Errorf("expected no author, got %v", none.Data())
	}
}

func TestRemote_HasAndBelongsToMany(t *testing.T) {
	env := newSchemaEnv(t, relationsSchema)
	ctx := context.Background()
	tagModel := env.clientModel(t, "Tag")

	book, err := env.clientModel(t, "Book").Create(ctx, entities.Record{"title": "Go"})
	if err != nil {
		t.Fatalf("failed to create book: %v", err)
	}
	tags, err := book.Relation("tags")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var ids []interface{}
	for _, label := range []string{"lang", "cs"} {
		tag, err := tagModel.Create(ctx, entities.Record{"label": label})
		if err != nil {
			t.Fatalf("failed to create tag: %v", err)
		}
		linked, err := tags.Link(ctx, tag.ID())
		if err != nil {
			t.Fatalf("link %s: %v", label, err)
		}
		if linked.ID() != tag.ID() || linked.Get("label") != label {
			t.Errorf("expected linked tag %s, got %v", label, linked.Data())
		}
		ids = append(ids, tag.ID())
	}
	if n := len(env.store.Records("BookTag")); n != 2 {
		t.Fatalf("expected 2 join rows on the server, got %d", n)
	}

	list, err := tags.Get(ctx, &entities.Filter{Order: []string{"label ASC"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 || list[0].Get("label") != "cs" || list[1].Get("label") != "lang" {
		t.Errorf("unexpected linked tags")
	}

	n, err := tags.Count(ctx, nil)
	if err != nil || n != 2 {
		t.Errorf("expected count 2, got %d (%v)", n, err)
	}
	n, err = tags.Count(ctx, map[string]interface{}{"label": "cs"})
	if err != nil || n != 1 {
		t.Errorf("expected filtered count 1, got %d (%v)", n, err)
	}

	removed, err := tags.Unlink(ctx, ids[0])
	if err != nil {
		t.Fatalf("unlink: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 join row removed, got %d", removed)
	}
	n, err = tags.Count(ctx, nil)
	if err != nil || n != 1 {
		t.Errorf("expected count 1 after unlink, got %d (%v)", n, err)
	}
	if len(env.store.Records("Tag")) != 2 {
		t.Error("unlink must keep the tag itself")
	}

	if _, err := tags.Link(ctx, 99); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound linking a missing tag, got %v", err)
	}
}

func TestRemote_EmbedsMany(t *testing.T) {
	env := newSchemaEnv(t, relationsSchema)
	ctx := context.Background()

	book, err := env.clientModel(t, "Book").Create(ctx, entities.Record{"title": "Go"})
	if err != nil {
		t.Fatalf("failed to create book: %v", err)
	}
	notes, err := book.Relation("notes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, text := range []string{"first", "second"} {
		note, err := notes.Create(ctx, entities.Record{"text": text})
		if err != nil {
			t.Fatalf("create %s: %v", text, err)
		}
		if note.Get("text") != text || entities.IsEmptyID(note.ID()) {
			t.Errorf("unexpected embedded note %v", note.Data())
		}
		if note.Model() != env.clientModel(t, "Note") {
			t.Error("expected an instance of the client Note")
		}
	}

	// Embedded items live on the owner under the configured property
	if n := len(env.store.Records("Note")); n != 0 {
		t.Errorf("expected no standalone notes, got %d", n)
	}
	stored := env.store.Records("Book")
	if len(stored) != 1 {
		t.Fatalf("expected 1 stored book, got %d", len(stored))
	}
	embedded, err := model.ToRecords(stored[0]["noteList"])
	if err != nil || len(embedded) != 2 {
		t.Fatalf("expected 2 embedded notes under noteList, got %v (%v)", stored[0]["noteList"], err)
	}

	list, err := notes.Get(ctx, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 || list[0].Get("text") != "first" || list[1].Get("text") != "second" {
		t.Errorf("unexpected embedded notes")
	}

	second, err := notes.Get(ctx, &entities.Filter{Where: map[string]interface{}{"text": "second"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(second) != 1 || entities.NormalizeID(second[0].ID()) != int64(2) {
		t.Errorf("expected the second note with id 2, got %v", second)
	}
}
