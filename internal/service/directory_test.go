package service

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qamtools/reviewtool/internal/domain"
)

type mockRemote struct {
	getFn func(path string, query url.Values) ([]byte, error)

	gets []string
}

func (m *mockRemote) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	m.gets = append(m.gets, path)
	return m.getFn(path, query)
}

func (m *mockRemote) Post(ctx context.Context, path string, query url.Values, body []byte) ([]byte, error) {
	return nil, nil
}

func (m *mockRemote) Delete(ctx context.Context, path string) ([]byte, error) {
	return nil, nil
}

func TestUserByLoginCachesResult(t *testing.T) {
	rem := &mockRemote{getFn: func(path string, _ url.Values) ([]byte, error) {
		return []byte(`<person><login>alice</login><realname>Alice</realname><email>alice@example.org</email></person>`), nil
	}}
	dir := NewDirectory(rem)
	ctx := context.Background()

	first, err := dir.UserByLogin(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "alice", first.Login)
	require.Equal(t, "Alice", first.RealName)

	second, err := dir.UserByLogin(ctx, "alice")
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, []string{"person/alice"}, rem.gets, "повторный запрос должен идти из кэша")
}

func TestGroupByNameCachesResult(t *testing.T) {
	rem := &mockRemote{getFn: func(path string, _ url.Values) ([]byte, error) {
		return []byte(`<group><title>qam-sle</title></group>`), nil
	}}
	dir := NewDirectory(rem)
	ctx := context.Background()

	group, err := dir.GroupByName(ctx, "qam-sle")
	require.NoError(t, err)
	require.Equal(t, "qam-sle", group.Name)

	_, err = dir.GroupByName(ctx, "qam-sle")
	require.NoError(t, err)
	require.Equal(t, []string{"group/qam-sle"}, rem.gets)
}

func TestGroupsOfUserParsesDirectoryListing(t *testing.T) {
	rem := &mockRemote{getFn: func(path string, query url.Values) ([]byte, error) {
		require.Equal(t, "alice", query.Get("login"))
		return []byte(`<directory><entry name="qam-sle"/><entry name="developers"/></directory>`), nil
	}}
	dir := NewDirectory(rem)

	groups, err := dir.GroupsOfUser(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, groups, 2)
	require.Equal(t, "qam-sle", groups[0].Name)
	require.Equal(t, "developers", groups[1].Name)

	_, err = dir.GroupsOfUser(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, []string{"group"}, rem.gets)
}

func TestUserByLoginEmptyDocumentIsLookupError(t *testing.T) {
	rem := &mockRemote{getFn: func(string, url.Values) ([]byte, error) {
		return []byte(`<directory></directory>`), nil
	}}
	dir := NewDirectory(rem)

	_, err := dir.UserByLogin(context.Background(), "ghost")
	require.ErrorIs(t, err, domain.ErrLookup)
}
