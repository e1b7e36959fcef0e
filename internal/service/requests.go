package service

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/qamtools/reviewtool/internal/domain"
	"github.com/qamtools/reviewtool/internal/models"
	"github.com/qamtools/reviewtool/internal/remote"
	"github.com/qamtools/reviewtool/internal/xmlmap"
)

// CommentPrefix — фиксированная метка, с которой инструмент отправляет
// комментарии в удалённую систему.
const CommentPrefix = "[qamreview]"

// ReviewerRef адресует ревью операции: пользователь либо группа.
type ReviewerRef struct {
	User  string
	Group string
}

// RequestService загружает заявки из удалённого build-сервиса и выполняет
// мутирующие операции над их ревью. Реализует models.RequestReader для
// ленивых дозагрузок заявки.
type RequestService struct {
	client remote.Client
	log    *slog.Logger
}

// NewRequestService связывает сервис заявок с клиентом удалённой системы.
func NewRequestService(client remote.Client, log *slog.Logger) *RequestService {
	if log == nil {
		log = slog.Default()
	}
	return &RequestService{client: client, log: log}
}

// ByID загружает заявку с полной историей ревью.
func (s *RequestService) ByID(ctx context.Context, id string) (*models.Request, error) {
	query := url.Values{"withfullhistory": []string{"1"}}
	payload, err := s.client.Get(ctx, "request/"+id, query)
	if err != nil {
		return nil, fmt.Errorf("fetch request %s: %w", id, err)
	}
	requests, err := xmlmap.Parse(payload, "request", models.RequestFactory)
	if err != nil {
		return nil, err
	}
	if len(requests) == 0 {
		return nil, domain.NewLookupError("request " + id)
	}
	req := requests[0]
	req.BindLoader(s)
	return req, nil
}

// Search возвращает заявки по match-выражению поискового эндпоинта.
func (s *RequestService) Search(ctx context.Context, match string) ([]*models.Request, error) {
	query := url.Values{
		"match":           []string{match},
		"withfullhistory": []string{"1"},
	}
	payload, err := s.client.Get(ctx, "search/request", query)
	if err != nil {
		return nil, fmt.Errorf("search requests: %w", err)
	}
	requests, err := xmlmap.Parse(payload, "request", models.RequestFactory)
	if err != nil {
		return nil, err
	}
	for _, req := range requests {
		req.BindLoader(s)
	}
	return requests, nil
}

// ReviewAssign регистрирует пользователя ревьюером от имени группы.
func (s *RequestService) ReviewAssign(ctx context.Context, req *models.Request, reviewer, group, comment string) error {
	query := url.Values{
		"cmd":      []string{"assignreview"},
		"by_group": []string{group},
		"reviewer": []string{reviewer},
	}
	return s.postReviewCommand(ctx, req, query, comment)
}

// ReviewUnassign снимает назначение пользователя: та же операция с флагом
// revert, групповое ревью при этом переоткрывается.
func (s *RequestService) ReviewUnassign(ctx context.Context, req *models.Request, reviewer, group, comment string) error {
	query := url.Values{
		"cmd":      []string{"assignreview"},
		"by_group": []string{group},
		"reviewer": []string{reviewer},
		"revert":   []string{"1"},
	}
	return s.postReviewCommand(ctx, req, query, comment)
}

// ReviewAccept принимает ревью пользователя либо группы.
func (s *RequestService) ReviewAccept(ctx context.Context, req *models.Request, by ReviewerRef, comment string) error {
	return s.changeReviewState(ctx, req, by, "accepted", comment)
}

// ReviewDecline отклоняет ревью. Если переданы коды причин, они сначала
// сохраняются структурированным атрибутом исходного проекта заявки.
func (s *RequestService) ReviewDecline(ctx context.Context, req *models.Request, by ReviewerRef, comment string, reasons []string) error {
	if len(reasons) > 0 {
		if err := s.SetAttribute(ctx, req.SourceProject, models.RejectReasonAttribute(reasons)); err != nil {
			return err
		}
	}
	return s.changeReviewState(ctx, req, by, "declined", comment)
}

// ReviewReopen возвращает ревью в состояние new.
func (s *RequestService) ReviewReopen(ctx context.Context, req *models.Request, by ReviewerRef, comment string) error {
	return s.changeReviewState(ctx, req, by, "new", comment)
}

// changeReviewState выполняет переход состояния ревью на удалённой стороне.
func (s *RequestService) changeReviewState(ctx context.Context, req *models.Request, by ReviewerRef, state, comment string) error {
	if by.User == "" && by.Group == "" {
		return domain.NewMissingReviewerError("changereviewstate")
	}
	query := url.Values{
		"cmd":      []string{"changereviewstate"},
		"newstate": []string{state},
	}
	if by.User != "" {
		query.Set("by_user", by.User)
	}
	if by.Group != "" {
		query.Set("by_group", by.Group)
	}
	return s.postReviewCommand(ctx, req, query, comment)
}

// postReviewCommand отправляет команду над ревью заявки с комментарием.
func (s *RequestService) postReviewCommand(ctx context.Context, req *models.Request, query url.Values, comment string) error {
	if _, err := s.client.Post(ctx, "request/"+req.ID, query, []byte(FormatComment(comment))); err != nil {
		return err
	}
	s.log.Info("review command sent", "request", req.ID, "cmd", query.Get("cmd"))
	return nil
}

// FormatComment снабжает необязательный комментарий фиксированной меткой.
func FormatComment(comment string) string {
	if comment == "" {
		return CommentPrefix
	}
	return CommentPrefix + " " + comment
}

// attributeXML — представление атрибута для сериализации.
type attributeXML struct {
	XMLName   xml.Name `xml:"attribute"`
	Namespace string   `xml:"namespace,attr"`
	Name      string   `xml:"name,attr"`
	Values    []string `xml:"value"`
}

type attributesXML struct {
	XMLName    xml.Name       `xml:"attributes"`
	Attributes []attributeXML `xml:"attribute"`
}

// SetAttribute сохраняет структурированный атрибут проекта.
func (s *RequestService) SetAttribute(ctx context.Context, project string, attr models.Attribute) error {
	body, err := xml.Marshal(attributesXML{Attributes: []attributeXML{{
		Namespace: attr.Namespace,
		Name:      attr.Name,
		Values:    attr.Values,
	}}})
	if err != nil {
		return fmt.Errorf("marshal attribute %s:%s: %w", attr.Namespace, attr.Name, err)
	}
	path := fmt.Sprintf("source/%s/_attribute", project)
	if _, err := s.client.Post(ctx, path, nil, body); err != nil {
		return err
	}
	return nil
}

// DeleteAttribute удаляет атрибут проекта.
func (s *RequestService) DeleteAttribute(ctx context.Context, project, namespace, name string) error {
	path := fmt.Sprintf("source/%s/_attribute/%s:%s", project, namespace, name)
	_, err := s.client.Delete(ctx, path)
	return err
}

// AddComment добавляет комментарий к заявке и возвращает его идентификатор,
// если удалённая система его сообщила.
func (s *RequestService) AddComment(ctx context.Context, req *models.Request, text string) (string, error) {
	payload, err := s.client.Post(ctx, "comments/request/"+req.ID, nil, []byte(FormatComment(text)))
	if err != nil {
		return "", err
	}
	ids, err := xmlmap.Parse(payload, "comment", func(f xmlmap.Fields) (string, error) {
		return f.String("id"), nil
	})
	if err != nil || len(ids) == 0 {
		// Идентификатор не обязателен: не все развёртывания его возвращают.
		return "", nil
	}
	return ids[0], nil
}

// DeleteComment удаляет комментарий по идентификатору.
func (s *RequestService) DeleteComment(ctx context.Context, commentID string) error {
	_, err := s.client.Delete(ctx, "comment/"+commentID)
	return err
}

// Comments загружает комментарии заявки. Часть models.RequestReader.
func (s *RequestService) Comments(ctx context.Context, requestID string) ([]models.Comment, error) {
	payload, err := s.client.Get(ctx, "comments/request/"+requestID, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch comments of %s: %w", requestID, err)
	}
	return xmlmap.Parse(payload, "comment", models.CommentFactory)
}

// IncidentPriority загружает числовой приоритет инцидента исходного проекта.
// Часть models.RequestReader.
func (s *RequestService) IncidentPriority(ctx context.Context, project string) (int, error) {
	path := fmt.Sprintf("source/%s/_attribute/OBS:IncidentPriority", project)
	payload, err := s.client.Get(ctx, path, nil)
	if err != nil {
		return 0, fmt.Errorf("fetch priority of %s: %w", project, err)
	}
	values, err := xmlmap.Parse(payload, "attribute", func(f xmlmap.Fields) (string, error) {
		return f.String("value"), nil
	})
	if err != nil {
		return 0, err
	}
	if len(values) == 0 || values[0] == "" {
		return 0, nil
	}
	priority, err := strconv.Atoi(strings.TrimSpace(values[0]))
	if err != nil {
		return 0, domain.NewParseError("incident priority " + values[0])
	}
	return priority, nil
}

// Issues загружает ссылки на дефекты из patchinfo исходного проекта.
// Часть models.RequestReader.
func (s *RequestService) Issues(ctx context.Context, project string) ([]string, error) {
	path := fmt.Sprintf("source/%s/_patchinfo", project)
	payload, err := s.client.Get(ctx, path, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch patchinfo of %s: %w", project, err)
	}
	return xmlmap.Parse(payload, "issue", func(f xmlmap.Fields) (string, error) {
		tracker := f.String("tracker")
		id := f.String("id")
		if tracker == "" {
			return id, nil
		}
		return tracker + "#" + id, nil
	})
}
