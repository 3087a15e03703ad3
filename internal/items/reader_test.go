package items

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/ledgermart/pkg/errors"
	"github.com/angelmondragon/ledgermart/pkg/types"
)

type fakeSource struct {
	mu      sync.Mutex
	records map[ID]*RawRecord
	reads   map[ID]int
	err     error
}

func newFakeSource() *fakeSource {
	return &fakeSource{records: map[ID]*RawRecord{}, reads: map[ID]int{}}
}

func (f *fakeSource) ReadProduct(_ context.Context, id ID) (*RawRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads[id]++
	if f.err != nil {
		return nil, f.err
	}
	raw, ok := f.records[id]
	if !ok {
		return &RawRecord{Owner: types.NullIdentity, Price: big.NewInt(0), SoldCount: big.NewInt(0)}, nil
	}
	copied := *raw
	return &copied, nil
}

func (f *fakeSource) ProductCount(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	var count uint64
	for id := range f.records {
		if uint64(id)+1 > count {
			count = uint64(id) + 1
		}
	}
	return count, nil
}

type mapStore struct {
	mu     sync.Mutex
	values map[string]string
}

func newMapStore() *mapStore { return &mapStore{values: map[string]string{}} }

func (m *mapStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (m *mapStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value.(string)
	return nil
}

func (m *mapStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func (m *mapStore) ItemKey(generation, itemID string) string {
	return "lm:item:" + generation + ":" + itemID
}

func TestReaderItemUsesCache(t *testing.T) {
	source := newFakeSource()
	source.records[2] = rawRecord()
	reader := NewReader(source, NewRedisCache(newMapStore(), time.Minute), nil)

	ctx := context.Background()
	first, err := reader.Item(ctx, 2)
	require.NoError(t, err)
	second, err := reader.Item(ctx, 2)
	require.NoError(t, err)

	assert.Equal(t, first.Name, second.Name)
	assert.Equal(t, 0, first.Price.Cmp(second.Price))
	assert.Equal(t, uint64(7), second.SoldCount)
	assert.Equal(t, 1, source.reads[2], "second read should be served from cache")
}

func TestReaderRevalidateRefreshesCachedRecord(t *testing.T) {
	source := newFakeSource()
	source.records[1] = rawRecord()
	reader := NewReader(source, NewRedisCache(newMapStore(), time.Minute), nil)
	ctx := context.Background()

	_, err := reader.Item(ctx, 1)
	require.NoError(t, err)

	source.mu.Lock()
	source.records[1].SoldCount = big.NewInt(8)
	source.mu.Unlock()

	require.NoError(t, reader.Revalidate(ctx, 1))
	item, err := reader.Item(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), item.SoldCount)
	assert.Equal(t, 2, source.reads[1])
}

func TestReaderInvalidateForcesReload(t *testing.T) {
	source := newFakeSource()
	source.records[0] = rawRecord()
	reader := NewReader(source, NewRedisCache(newMapStore(), time.Minute), nil)
	ctx := context.Background()

	_, err := reader.Item(ctx, 0)
	require.NoError(t, err)
	reader.OnIdentityChange(ctx, ownerAddr)
	_, err = reader.Item(ctx, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, source.reads[0])
}

func TestReaderDeletedItemIsNotFound(t *testing.T) {
	reader := NewReader(newFakeSource(), nil, nil)
	_, err := reader.Item(context.Background(), 3)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestReaderSourceErrorIsDependencyError(t *testing.T) {
	source := newFakeSource()
	source.err = errors.New("rpc down")
	reader := NewReader(source, nil, nil)

	_, err := reader.Item(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeDependency))

	_, err = reader.List(context.Background(), 0, 10)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeDependency))
}

func TestReaderListSkipsDeletedItems(t *testing.T) {
	source := newFakeSource()
	source.records[0] = rawRecord()
	deleted := rawRecord()
	deleted.Owner = types.NullIdentity
	source.records[1] = deleted
	source.records[2] = rawRecord()
	source.records[3] = rawRecord()
	reader := NewReader(source, nil, nil)

	page, err := reader.List(context.Background(), 0, 3)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, ID(0), page.Items[0].ID)
	assert.Equal(t, ID(2), page.Items[1].ID)
	assert.Equal(t, 4, page.Window.Total)
	require.NotNil(t, page.Window.NextOffset())
	assert.Equal(t, 3, *page.Window.NextOffset())
}
