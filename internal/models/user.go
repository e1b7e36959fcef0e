package models

import "context"

// GroupResolver получает членства пользователя в группах из удалённой системы.
type GroupResolver interface {
	GroupsOfUser(ctx context.Context, login string) ([]Group, error)
}

// User описывает пользователя; идентичность задаётся логином. Членства в
// группах загружаются лениво при первом обращении и кэшируются на время жизни
// экземпляра.
type User struct {
	Login    string `validate:"required"`
	RealName string
	Email    string

	resolver     GroupResolver
	groups       []Group
	groupsLoaded bool
}

// BindResolver подключает источник членств в группах.
func (u *User) BindResolver(r GroupResolver) {
	u.resolver = r
}

// Groups возвращает группы пользователя, загружая их при первом вызове.
func (u *User) Groups(ctx context.Context) ([]Group, error) {
	if u.groupsLoaded {
		return u.groups, nil
	}
	if u.resolver == nil {
		return nil, nil
	}
	groups, err := u.resolver.GroupsOfUser(ctx, u.Login)
	if err != nil {
		return nil, err
	}
	u.groups = groups
	u.groupsLoaded = true
	return u.groups, nil
}

// QAMGroups возвращает группы пользователя, подпадающие под соглашение QAM.
func (u *User) QAMGroups(ctx context.Context, conv GroupConvention) ([]Group, error) {
	groups, err := u.Groups(ctx)
	if err != nil {
		return nil, err
	}
	var out []Group
	for _, g := range groups {
		if conv.IsQAM(g.Name) {
			out = append(out, g)
		}
	}
	return out, nil
}

// InGroup сообщает, состоит ли пользователь в указанной группе.
func (u *User) InGroup(ctx context.Context, group Group) (bool, error) {
	groups, err := u.Groups(ctx)
	if err != nil {
		return false, err
	}
	for _, g := range groups {
		if g.Name == group.Name {
			return true, nil
		}
	}
	return false, nil
}
