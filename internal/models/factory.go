package models

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/qamtools/reviewtool/internal/domain"
	"github.com/qamtools/reviewtool/internal/xmlmap"
)

// timeLayout — формат временных меток удалённого build-сервиса.
const timeLayout = "2006-01-02T15:04:05"

var modelValidator = validator.New()

// Допустимые дополнительные поля документов: встречаются в ответах удалённой
// системы, но для построения модели не нужны.
var (
	requestKnown     = []string{"id", "creator", "state", "action", "review", "description", "priority", "title"}
	requestTolerated = []string{"history", "accept_at", "superseded_by"}

	personKnown     = []string{"login", "realname", "email"}
	personTolerated = []string{"state", "globalid", "ignore_auth_services", "watchlist", "owner"}

	groupKnown     = []string{"name", "title"}
	groupTolerated = []string{"email", "maintainer", "person"}

	commentKnown     = []string{"id", "who", "when"}
	commentTolerated = []string{"parent"}
)

// RequestFactory строит заявку из карты полей элемента request.
func RequestFactory(f xmlmap.Fields) (*Request, error) {
	if err := f.Check(requestKnown, requestTolerated); err != nil {
		return nil, err
	}

	req := &Request{
		ID:          f.String("id"),
		Creator:     f.String("creator"),
		Description: f.String("description"),
	}
	if state := f.Node("state"); state != nil {
		req.State = RequestState(state.Fields.String("name"))
	}

	for _, node := range f.Nodes("action") {
		action := RequestAction{Type: node.Fields.String("type")}
		if src := node.Fields.Node("source"); src != nil {
			action.SourceProject = src.Fields.String("project")
			action.SourcePackage = src.Fields.String("package")
		}
		if tgt := node.Fields.Node("target"); tgt != nil {
			action.TargetProject = tgt.Fields.String("project")
		}
		req.Actions = append(req.Actions, action)
	}
	// Исходный проект заявки задаётся её первым действием сборки.
	if len(req.Actions) > 0 {
		req.SourceProject = req.Actions[0].SourceProject
	}

	for _, node := range f.Nodes("review") {
		rec, err := reviewRecordFromNode(node)
		if err != nil {
			return nil, err
		}
		req.Records = append(req.Records, rec)
	}

	if err := modelValidator.Struct(req); err != nil {
		return nil, domain.NewParseError(fmt.Sprintf("request document: %v", err))
	}
	return req, nil
}

// reviewRecordFromNode строит сырую запись ревью вместе с историей событий.
func reviewRecordFromNode(node *xmlmap.Node) (*ReviewRecord, error) {
	f := node.Fields
	rec := &ReviewRecord{
		State:   ReviewState(f.String("state")),
		ByGroup: f.String("by_group"),
		ByUser:  f.String("by_user"),
		Who:     f.String("who"),
	}
	if when := f.String("when"); when != "" {
		parsed, err := time.Parse(timeLayout, when)
		if err != nil {
			return nil, domain.NewParseError("review timestamp " + when)
		}
		rec.When = parsed
	}

	for _, hist := range f.Nodes("history") {
		event := ReviewEvent{
			Who:         hist.Fields.String("who"),
			Description: hist.Fields.String("description"),
		}
		if when := hist.Fields.String("when"); when != "" {
			parsed, err := time.Parse(timeLayout, when)
			if err != nil {
				return nil, domain.NewParseError("history timestamp " + when)
			}
			event.When = parsed
		}
		rec.Events = append(rec.Events, event)
	}
	return rec, nil
}

// UserFactory строит пользователя из карты полей элемента person.
func UserFactory(f xmlmap.Fields) (*User, error) {
	if err := f.Check(personKnown, personTolerated); err != nil {
		return nil, err
	}
	user := &User{
		Login:    f.String("login"),
		RealName: f.String("realname"),
		Email:    f.String("email"),
	}
	if err := modelValidator.Struct(user); err != nil {
		return nil, domain.NewParseError(fmt.Sprintf("person document: %v", err))
	}
	return user, nil
}

// GroupFactory строит группу из карты полей элемента group.
func GroupFactory(f xmlmap.Fields) (Group, error) {
	if err := f.Check(groupKnown, groupTolerated); err != nil {
		return Group{}, err
	}
	group := Group{
		Name:  f.String("name"),
		Title: f.String("title"),
	}
	// В некоторых ответах имя группы приходит только в title.
	if group.Name == "" {
		group.Name = group.Title
	}
	if err := modelValidator.Struct(group); err != nil {
		return Group{}, domain.NewParseError(fmt.Sprintf("group document: %v", err))
	}
	return group, nil
}

// CommentFactory строит комментарий из карты полей элемента comment.
func CommentFactory(f xmlmap.Fields) (Comment, error) {
	if err := f.Check(commentKnown, commentTolerated); err != nil {
		return Comment{}, err
	}
	comment := Comment{
		ID:   f.String("id"),
		Who:  f.String("who"),
		Text: f.String(xmlmap.TextKey),
	}
	if when := f.String("when"); when != "" {
		parsed, err := time.Parse(timeLayout, when)
		if err != nil {
			return Comment{}, domain.NewParseError("comment timestamp " + when)
		}
		comment.When = parsed
	}
	return comment, nil
}
