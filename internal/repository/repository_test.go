package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/smartdevs17/qrcode-generator/internal/config"
	"github.com/smartdevs17/qrcode-generator/internal/models"
	"github.com/smartdevs17/qrcode-generator/internal/storage"
	"github.com/smartdevs17/qrcode-generator/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	require.NoError(t, utils.InitLogger("error", "text", "stderr", ""))

	store, err := storage.NewStorage(&config.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "history.db"),
		MaxConnections:   2,
		MaxIdleTime:      time.Minute,
	})
	require.NoError(t, err)
	require.NoError(t, store.Connect())
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate())

	return New(store)
}

func insert(t *testing.T, repo *Repository, content string, generated bool) *models.QRCode {
	t.Helper()
	qr := &models.QRCode{Content: content, Type: models.QRCodeTypeText, IsGenerated: generated}
	_, err := repo.InsertQRCode(context.Background(), qr)
	require.NoError(t, err)
	return qr
}

func TestRepositoryQueries(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	before := time.Now().Add(-time.Second)
	first := insert(t, repo, "generated one", true)
	insert(t, repo, "scanned one", false)
	insert(t, repo, "generated two", true)

	all, err := repo.GetAllQRCodes(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "generated two", all[0].Content)

	generated, err := repo.GetGeneratedQRCodes(ctx)
	require.NoError(t, err)
	assert.Len(t, generated, 2)

	scanned, err := repo.GetScannedQRCodes(ctx)
	require.NoError(t, err)
	require.Len(t, scanned, 1)
	assert.Equal(t, "scanned one", scanned[0].Content)

	found, err := repo.SearchQRCodes(ctx, "TWO")
	require.NoError(t, err)
	require.Len(t, found, 1)

	since, err := repo.GetQRCodesSince(ctx, before)
	require.NoError(t, err)
	assert.Len(t, since, 3)

	future, err := repo.GetQRCodesSince(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, future)

	count, err := repo.GetQRCodeCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(len(all)), count)

	got, err := repo.GetQRCode(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Content, got.Content)

	require.NoError(t, repo.DeleteQRCode(ctx, first))
	_, err = repo.GetQRCode(ctx, first.ID)
	assert.True(t, utils.IsNotFound(err))

	assert.True(t, utils.IsValidation(repo.DeleteQRCode(ctx, nil)))
	assert.True(t, utils.IsNotFound(repo.DeleteQRCodeByID(ctx, first.ID)))

	n, err := repo.DeleteAllQRCodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	stats, err := repo.GetStorageStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalQRCodes)
	assert.True(t, repo.GetHealth().Healthy)
}

func TestSubscribeReceivesEvents(t *testing.T) {
	repo := newTestRepository(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := repo.Subscribe(ctx, 8)

	qr := insert(t, repo, "hello", true)
	require.NoError(t, repo.DeleteQRCodeByID(context.Background(), qr.ID))
	insert(t, repo, "again", false)
	_, err := repo.DeleteAllQRCodes(context.Background())
	require.NoError(t, err)

	expect := []models.HistoryAction{
		models.HistoryActionCreated,
		models.HistoryActionDeleted,
		models.HistoryActionCreated,
		models.HistoryActionCleared,
	}
	for i, action := range expect {
		select {
		case ev := <-events:
			assert.Equal(t, action, ev.Action, "event %d", i)
			assert.False(t, ev.At.IsZero())
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}

	cancel()
	require.Eventually(t, func() bool { return repo.hub.subscriberCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	_, ok := <-events
	assert.False(t, ok)
}

func TestSlowSubscriberNeverBlocksWriters(t *testing.T) {
	repo := newTestRepository(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := repo.Subscribe(ctx, 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			repo.InsertQRCode(context.Background(), &models.QRCode{Content: "burst", IsGenerated: true})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("writers blocked on a full subscriber")
	}

	assert.Len(t, events, 1)
}

func TestObserveEmitsAfterWrites(t *testing.T) {
	repo := newTestRepository(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := repo.Observe(ctx, models.GeneratedFilter(true))

	first := <-results
	require.NoError(t, first.Err)
	assert.Empty(t, first.QRCodes)

	insert(t, repo, "scanned", false)
	insert(t, repo, "generated", true)

	var latest Result
	require.Eventually(t, func() bool {
		select {
		case latest = <-results:
		default:
		}
		return len(latest.QRCodes) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "generated", latest.QRCodes[0].Content)

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-results:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConcurrentWritesReachObservers(t *testing.T) {
	require.NoError(t, utils.InitLogger("error", "text", "stderr", ""))
	store, err := storage.NewStorage(&config.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "history.db"),
		MaxConnections:   4,
		MaxIdleTime:      time.Minute,
	})
	require.NoError(t, err)
	require.NoError(t, store.Connect())
	defer store.Close()
	require.NoError(t, store.Migrate())
	repo := New(store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	results := repo.Observe(ctx, models.QRCodeFilter{})

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			qr := &models.QRCode{Content: fmt.Sprintf("code %d", i), Type: models.QRCodeTypeText, IsGenerated: i%2 == 0}
			_, err := repo.InsertQRCode(ctx, qr)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	var latest Result
	require.Eventually(t, func() bool {
		select {
		case latest = <-results:
		default:
		}
		return latest.Err == nil && len(latest.QRCodes) == writers
	}, 5*time.Second, 10*time.Millisecond)

	count, err := repo.GetQRCodeCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(len(latest.QRCodes)), count)

	replaced := *latest.QRCodes[0]
	replaced.Content = "replaced"
	_, err = repo.InsertQRCode(ctx, &replaced)
	require.NoError(t, err)

	count, err = repo.GetQRCodeCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(writers), count)
}
