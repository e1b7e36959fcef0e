package service

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/qamtools/reviewtool/internal/domain"
	"github.com/qamtools/reviewtool/internal/models"
	"github.com/qamtools/reviewtool/internal/remote"
	"github.com/qamtools/reviewtool/internal/xmlmap"
)

const directoryCacheSize = 64

// Directory выполняет поиски пользователей и групп в удалённой системе и
// мемоизирует их по семантической идентичности (логин, имя группы) на время
// жизни процесса. Мутирующие вызовы кэш не сбрасывают.
type Directory struct {
	client remote.Client

	mu         sync.RWMutex
	users      map[string]*models.User
	groups     map[string]models.Group
	userGroups map[string][]models.Group
}

// NewDirectory создаёт справочник с пустыми кэшами.
func NewDirectory(client remote.Client) *Directory {
	return &Directory{
		client:     client,
		users:      make(map[string]*models.User, directoryCacheSize),
		groups:     make(map[string]models.Group, directoryCacheSize),
		userGroups: make(map[string][]models.Group, directoryCacheSize),
	}
}

// UserByLogin возвращает пользователя по логину, используя кэш.
func (d *Directory) UserByLogin(ctx context.Context, login string) (*models.User, error) {
	d.mu.RLock()
	user, ok := d.users[login]
	d.mu.RUnlock()
	if ok {
		return user, nil
	}

	payload, err := d.client.Get(ctx, "person/"+login, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch person %s: %w", login, err)
	}
	users, err := xmlmap.Parse(payload, "person", models.UserFactory)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, domain.NewLookupError("person " + login)
	}

	user = users[0]
	user.BindResolver(d)

	d.mu.Lock()
	d.users[user.Login] = user
	d.mu.Unlock()
	return user, nil
}

// GroupByName возвращает группу по имени, используя кэш.
func (d *Directory) GroupByName(ctx context.Context, name string) (models.Group, error) {
	d.mu.RLock()
	group, ok := d.groups[name]
	d.mu.RUnlock()
	if ok {
		return group, nil
	}

	payload, err := d.client.Get(ctx, "group/"+name, nil)
	if err != nil {
		return models.Group{}, fmt.Errorf("fetch group %s: %w", name, err)
	}
	groups, err := xmlmap.Parse(payload, "group", models.GroupFactory)
	if err != nil {
		return models.Group{}, err
	}
	if len(groups) == 0 {
		return models.Group{}, domain.NewLookupError("group " + name)
	}

	d.mu.Lock()
	d.groups[name] = groups[0]
	d.mu.Unlock()
	return groups[0], nil
}

// GroupsOfUser возвращает группы, в которых состоит пользователь, используя
// кэш. Реализует models.GroupResolver.
func (d *Directory) GroupsOfUser(ctx context.Context, login string) ([]models.Group, error) {
	d.mu.RLock()
	cached, ok := d.userGroups[login]
	d.mu.RUnlock()
	if ok {
		return cached, nil
	}

	query := url.Values{"login": []string{login}}
	payload, err := d.client.Get(ctx, "group", query)
	if err != nil {
		return nil, fmt.Errorf("fetch groups of %s: %w", login, err)
	}

	// Ответ — directory-список: <directory><entry name="..."/></directory>.
	entries, err := xmlmap.Parse(payload, "entry", func(f xmlmap.Fields) (models.Group, error) {
		return models.Group{Name: f.String("name")}, nil
	})
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.userGroups[login] = entries
	d.mu.Unlock()
	return entries, nil
}
