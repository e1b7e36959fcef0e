package models

import "sort"

// Assignment — выведенный, нигде не хранимый факт "пользователь выполняет
// ревью от имени группы" для одной заявки. Равенство задаётся парой
// (логин, имя группы).
type Assignment struct {
	User  User
	Group Group
}

// Key возвращает ключ идентичности назначения.
func (a Assignment) Key() string {
	return a.User.Login + "/" + a.Group.Name
}

// AssignmentSet — множество назначений без дублей.
type AssignmentSet struct {
	items map[string]Assignment
}

// NewAssignmentSet создаёт пустое множество назначений.
func NewAssignmentSet() *AssignmentSet {
	return &AssignmentSet{items: make(map[string]Assignment)}
}

// Add добавляет назначение; повтор той же пары поглощается.
func (s *AssignmentSet) Add(a Assignment) {
	s.items[a.Key()] = a
}

// Remove удаляет назначение, если оно есть; отсутствие пары не ошибка.
func (s *AssignmentSet) Remove(a Assignment) {
	delete(s.items, a.Key())
}

// Contains сообщает о наличии пары (пользователь, группа).
func (s *AssignmentSet) Contains(a Assignment) bool {
	_, ok := s.items[a.Key()]
	return ok
}

// ContainsUser сообщает, есть ли у пользователя хотя бы одно назначение.
func (s *AssignmentSet) ContainsUser(login string) bool {
	for _, a := range s.items {
		if a.User.Login == login {
			return true
		}
	}
	return false
}

// GroupsForUser возвращает группы, на которые назначен пользователь.
func (s *AssignmentSet) GroupsForUser(login string) []Group {
	var out []Group
	for _, a := range s.List() {
		if a.User.Login == login {
			out = append(out, a.Group)
		}
	}
	return out
}

// RemoveUser удаляет все назначения пользователя.
func (s *AssignmentSet) RemoveUser(login string) {
	for key, a := range s.items {
		if a.User.Login == login {
			delete(s.items, key)
		}
	}
}

// Merge добавляет все назначения другого множества.
func (s *AssignmentSet) Merge(other *AssignmentSet) {
	if other == nil {
		return
	}
	for _, a := range other.items {
		s.Add(a)
	}
}

// Len возвращает размер множества.
func (s *AssignmentSet) Len() int {
	return len(s.items)
}

// List возвращает назначения, отсортированные по ключу для детерминизма.
func (s *AssignmentSet) List() []Assignment {
	out := make([]Assignment, 0, len(s.items))
	for _, a := range s.items {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}
