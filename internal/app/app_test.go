package app

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/viant/afs"

	"sales-agent/internal/catalog"
	"sales-agent/internal/config"
	"sales-agent/internal/domain"
	"sales-agent/internal/usecase"
)

const catalogCSV = `stock_id,km,price,make,model,year,version,bluetooth,length,width,height,car_play
1001,45000,250000,Toyota,Corolla,2018,LE,Sí,4.6,1.7,1.4,Sí
1002,30000,380000,Honda,CR-V,2020,EX,Sí,4.6,1.8,1.7,No
`

type scriptedBackend struct {
	decision domain.Decision
}

func (b scriptedBackend) Decide(context.Context, string, *domain.ConversationContext) (domain.Decision, error) {
	return b.decision, nil
}

func (scriptedBackend) Render(_ context.Context, _ string, _ domain.Action, base string, _ []domain.Vehicle) (string, error) {
	return base, nil
}

func (scriptedBackend) FinancingProse(context.Context, string, float64) (string, error) {
	return "", nil
}

func (scriptedBackend) InfoProse(context.Context, string, string, string) (string, error) {
	return "", nil
}

type recordingArchive struct {
	mu   sync.Mutex
	recs []domain.TurnRecord
}

func (a *recordingArchive) ArchiveTurn(_ context.Context, rec domain.TurnRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recs = append(a.recs, rec)
	return nil
}

func (a *recordingArchive) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.recs)
}

func testConfig(t *testing.T, fs afs.Service, csv string) config.Config {
	t.Helper()
	ctx := context.Background()
	base := "mem://localhost/app-test/" + strings.ReplaceAll(t.Name(), "/", "_")
	if csv != "" {
		require.NoError(t, fs.Upload(ctx, base+"/catalog.csv", 0o644, strings.NewReader(csv)))
	}
	require.NoError(t, fs.Upload(ctx, base+"/info.txt", 0o644, strings.NewReader("Kavak vende autos seminuevos.")))
	return config.Config{
		CatalogURL:       base + "/catalog.csv",
		InfoURL:          base + "/info.txt",
		SessionTTL:       time.Minute,
		MaxMessageLength: 100,
		FuzzyCutoff:      0.8,
		MaxSuggestions:   3,
		PersistQueueSize: 4,
	}
}

func TestNew_WiresTurn(t *testing.T) {
	fs := afs.New()
	archive := &recordingArchive{}
	a, err := New(context.Background(), testConfig(t, fs, catalogCSV), Deps{
		FS:      fs,
		Backend: scriptedBackend{decision: domain.Decision{Action: domain.ActionSearchCars, Make: domain.Ptr("toyota")}},
		Archive: archive,
	})
	require.NoError(t, err)

	out, err := a.Turns.Process(context.Background(), usecase.TurnInput{Text: "Busco un Toyota", SessionID: "s-1"})
	require.NoError(t, err)
	require.True(t, out.Reply.Success)
	require.Len(t, out.Reply.Vehicles, 1)
	require.Equal(t, 1001, out.Reply.Vehicles[0].StockID)

	require.NoError(t, a.Close(context.Background()))
	require.Equal(t, 1, archive.count())

	stored, err := a.Sessions.Get(context.Background(), "s-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Len(t, stored.Messages, 2)
}

func TestNew_FailsOnMissingCatalog(t *testing.T) {
	fs := afs.New()
	_, err := New(context.Background(), testConfig(t, fs, ""), Deps{FS: fs, Backend: scriptedBackend{}})
	require.ErrorIs(t, err, catalog.ErrCatalogNotFound)
}

func TestNew_FailsOnMalformedCatalog(t *testing.T) {
	fs := afs.New()
	_, err := New(context.Background(), testConfig(t, fs, "stock_id,make\n1,Toyota\n"), Deps{FS: fs, Backend: scriptedBackend{}})
	require.ErrorIs(t, err, catalog.ErrCatalogLoad)
}

func TestNew_ValidatesDeps(t *testing.T) {
	_, err := New(context.Background(), config.Config{}, Deps{Backend: scriptedBackend{}})
	require.Error(t, err)
	_, err = New(context.Background(), config.Config{}, Deps{FS: afs.New()})
	require.Error(t, err)
}

type fakeTokens struct{}

func (fakeTokens) GetParameter(context.Context, string) (string, error) {
	return `{"token":"sk"}`, nil
}

func TestNewBackend(t *testing.T) {
	_, err := NewBackend(config.Config{}, fakeTokens{}, nil)
	require.Error(t, err)

	b, err := NewBackend(config.Config{ParamPrefix: "/sales-agent", DecisionModel: "d", ResponseModel: "r"}, fakeTokens{}, nil)
	require.NoError(t, err)
	require.NotNil(t, b)
}
