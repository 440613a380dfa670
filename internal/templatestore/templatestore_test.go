package templatestore

import (
	"context"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifyhub/internal/apperr"
	"notifyhub/internal/database"
	"notifyhub/internal/model"
)

func newTestDB(t *testing.T) *database.Config {
	t.Helper()
	return &database.Config{Driver: database.DriverSQLite, DSN: ":memory:", MaxOpenConns: 1}
}

func openStore(t *testing.T) *Store {
	t.Helper()
	cfg := newTestDB(t)
	db, err := database.Open(cfg)
	require.NoError(t, err)
	migrator, err := database.NewMigrator(db, database.DriverSQLite)
	require.NoError(t, err)
	require.NoError(t, migrator.ApplyAll())
	return New(db, nil)
}

func TestStore_CreateAndGetByName(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, model.Template{
		TemplateName:    "order_placed_alert",
		Channel:         model.ChannelEmail,
		Category:        model.CategoryTrading,
		SubjectTemplate: "Order placed",
		ContentTemplate: "Hi {{name}}, your order {{orderId}} was placed.",
		DefaultPriority: model.PriorityMedium,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, created.Version)
	assert.True(t, created.Active)

	got, err := s.GetByName(ctx, "order_placed_alert")
	require.NoError(t, err)
	assert.Equal(t, created.ContentTemplate, got.ContentTemplate)
}

func TestStore_CreateDuplicateRejected(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	tmpl := model.Template{TemplateName: "dup", Channel: model.ChannelSMS, ContentTemplate: "x"}
	_, err := s.Create(ctx, tmpl)
	require.NoError(t, err)

	_, err = s.Create(ctx, tmpl)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindAlreadyExists))
}

func TestStore_GetByNameMissing(t *testing.T) {
	s := openStore(t)
	_, err := s.GetByName(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindTemplateNotFound))
}

func TestStore_CreateNewVersionDeactivatesOld(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, model.Template{TemplateName: "kyc_submitted_alert", Channel: model.ChannelEmail, ContentTemplate: "v1"})
	require.NoError(t, err)

	next, err := s.CreateNewVersion(ctx, "kyc_submitted_alert", func(t *model.Template) {
		t.ContentTemplate = "v2"
	})
	require.NoError(t, err)
	assert.Equal(t, 2, next.Version)

	active, err := s.GetByName(ctx, "kyc_submitted_alert")
	require.NoError(t, err)
	assert.Equal(t, "v2", active.ContentTemplate)
	assert.Equal(t, 2, active.Version)
}

func TestRender_SubstitutesAndHandlesMissing(t *testing.T) {
	out := Render("Hi {{name}}, code {{code}}", map[string]interface{}{"name": "Ana"})
	assert.Equal(t, "Hi Ana, code ", out)
}

func TestRenderHTML_Escapes(t *testing.T) {
	out, err := RenderHTML("t", "<p>Hi {{name}}</p>", map[string]interface{}{"name": "<script>"})
	require.NoError(t, err)
	assert.Contains(t, out, "&lt;script&gt;")
}
