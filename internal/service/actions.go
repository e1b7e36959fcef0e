package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/qamtools/reviewtool/internal/domain"
	"github.com/qamtools/reviewtool/internal/models"
	"github.com/qamtools/reviewtool/internal/report"
)

// ReviewOps описывает мутирующие операции над заявками, которые нужны
// действиям и откату.
type ReviewOps interface {
	ReviewAssign(ctx context.Context, req *models.Request, reviewer, group, comment string) error
	ReviewUnassign(ctx context.Context, req *models.Request, reviewer, group, comment string) error
	ReviewAccept(ctx context.Context, req *models.Request, by ReviewerRef, comment string) error
	ReviewDecline(ctx context.Context, req *models.Request, by ReviewerRef, comment string, reasons []string) error
	ReviewReopen(ctx context.Context, req *models.Request, by ReviewerRef, comment string) error
	SetAttribute(ctx context.Context, project string, attr models.Attribute) error
	DeleteAttribute(ctx context.Context, project, namespace, name string) error
	AddComment(ctx context.Context, req *models.Request, text string) (string, error)
	DeleteComment(ctx context.Context, commentID string) error
}

// Inferrer описывает вывод назначений, который нужен действиям.
type Inferrer interface {
	Assignments(req *models.Request) (*models.AssignmentSet, error)
	AssignmentsFor(req *models.Request, groups ...models.Group) (*models.AssignmentSet, error)
}

// CompensationKind перечисляет виды компенсирующих операций.
type CompensationKind int

// Возможные значения CompensationKind.
const (
	CompUnassignReview CompensationKind = iota
	CompAssignReview
	CompReopenReview
	CompDeleteAttribute
	CompDeleteComment
)

// Compensation — запись-данные об одном выполненном побочном эффекте и его
// обратной операции. Записи интерпретируются раннером отката, а не замыканиями.
type Compensation struct {
	Kind      CompensationKind
	Request   *models.Request
	Reviewer  string
	Group     string
	Project   string
	Namespace string
	Name      string
	CommentID string
}

// Action — одно действие над заявкой с накопленным списком компенсаций.
type Action interface {
	Run(ctx context.Context) error
	pending() []Compensation
}

// base накапливает компенсации в порядке выполнения побочных эффектов.
type base struct {
	comps []Compensation
}

func (b *base) register(c Compensation) {
	b.comps = append(b.comps, c)
}

func (b *base) pending() []Compensation {
	return b.comps
}

// Executor запускает действия и выполняет откат при транспортных сбоях.
// Ошибки валидации возвращаются вызывающему без изменений и откат не
// запускают; транспортная ошибка перехватывается ровно на границе вызова
// действия: после отката она логируется и не пробрасывается дальше.
type Executor struct {
	ops ReviewOps
	log *slog.Logger
}

// NewExecutor связывает исполнитель действий с операциями отката.
func NewExecutor(ops ReviewOps, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{ops: ops, log: log}
}

// Execute запускает тело действия и разбирает исход его выполнения.
func (e *Executor) Execute(ctx context.Context, a Action) error {
	err := a.Run(ctx)
	if err == nil {
		return nil
	}
	if domain.IsTransport(err) {
		e.log.Error("remote call failed, rolling back action", "error", err)
		e.rollback(ctx, a.pending())
		return nil
	}
	return err
}

// rollback интерпретирует записи компенсаций в строго обратном порядке.
// Сбой компенсации дальше не компенсируется: откат одноуровневый.
func (e *Executor) rollback(ctx context.Context, comps []Compensation) {
	for i := len(comps) - 1; i >= 0; i-- {
		c := comps[i]
		var err error
		switch c.Kind {
		case CompUnassignReview:
			err = e.ops.ReviewUnassign(ctx, c.Request, c.Reviewer, c.Group, "rollback")
		case CompAssignReview:
			err = e.ops.ReviewAssign(ctx, c.Request, c.Reviewer, c.Group, "rollback")
		case CompReopenReview:
			err = e.ops.ReviewReopen(ctx, c.Request, ReviewerRef{User: c.Reviewer, Group: c.Group}, "rollback")
		case CompDeleteAttribute:
			err = e.ops.DeleteAttribute(ctx, c.Project, c.Namespace, c.Name)
		case CompDeleteComment:
			err = e.ops.DeleteComment(ctx, c.CommentID)
		}
		if err != nil {
			e.log.Error("compensation failed", "kind", int(c.Kind), "error", err)
		}
	}
}

// AssignAction регистрирует пользователя ревьюером выбранных групп заявки.
type AssignAction struct {
	base
	ops      ReviewOps
	reports  report.Source
	conv     models.GroupConvention
	req      *models.Request
	user     *models.User
	groups   []models.Group
	comment  string
	skipWait bool
	force    bool
}

// NewAssignAction собирает действие назначения. Пустой список групп включает
// автоматический выбор: он допустим только при ровно одной подходящей группе.
func NewAssignAction(ops ReviewOps, reports report.Source, conv models.GroupConvention, req *models.Request, user *models.User, groups []models.Group, comment string, skipReportCheck, force bool) *AssignAction {
	return &AssignAction{
		ops:      ops,
		reports:  reports,
		conv:     conv,
		req:      req,
		user:     user,
		groups:   groups,
		comment:  comment,
		skipWait: skipReportCheck,
		force:    force,
	}
}

// Run выполняет проверки предусловий и регистрирует назначения.
func (a *AssignAction) Run(ctx context.Context) error {
	// Назначаться можно только на заявку с готовым тестовым отчётом.
	if !a.skipWait {
		if _, err := a.reports.Load(ctx, a.req); err != nil {
			if errors.Is(err, domain.ErrReportNotFound) {
				return domain.NewReportMissingError(a.req.ID)
			}
			return err
		}
	}

	// Отклонённую заявку без force может взять только прежний ревьюер.
	if a.req.State == models.RequestStateDeclined && !a.force {
		if !wasPreviousReviewer(a.req, a.user.Login) {
			return domain.NewNotPreviousReviewerError(a.user.Login, a.req.ID)
		}
	}

	groups := a.groups
	if len(groups) == 0 {
		candidates, err := a.reviewableGroups(ctx)
		if err != nil {
			return err
		}
		if len(candidates) != 1 {
			return domain.NewUninferableGroupError(a.user.Login, len(candidates))
		}
		groups = candidates
	} else {
		for _, g := range groups {
			gr, ok := a.req.GroupReviewFor(g.Name)
			if !ok || !gr.Open() {
				return domain.NewNotUnderReviewError(g.Name, a.req.ID)
			}
		}
	}

	for _, g := range groups {
		if err := a.ops.ReviewAssign(ctx, a.req, a.user.Login, g.Name, a.comment); err != nil {
			return err
		}
		a.register(Compensation{
			Kind:     CompUnassignReview,
			Request:  a.req,
			Reviewer: a.user.Login,
			Group:    g.Name,
		})
	}
	return nil
}

// reviewableGroups возвращает открытые QAM-ревью заявки, доступные
// пользователю по его членствам.
func (a *AssignAction) reviewableGroups(ctx context.Context) ([]models.Group, error) {
	userGroups, err := a.user.QAMGroups(ctx, a.conv)
	if err != nil {
		return nil, err
	}
	member := make(map[string]bool, len(userGroups))
	for _, g := range userGroups {
		member[g.Name] = true
	}

	var out []models.Group
	for _, gr := range a.req.GroupReviews() {
		if gr.Open() && member[gr.Group.Name] {
			out = append(out, gr.Group)
		}
	}
	return out, nil
}

// wasPreviousReviewer проверяет, участвовал ли пользователь в ревью заявки.
func wasPreviousReviewer(req *models.Request, login string) bool {
	for _, rec := range req.Records {
		if rec.ByUser == login || rec.Who == login {
			return true
		}
		for _, event := range rec.Events {
			if event.Who == login {
				return true
			}
		}
	}
	return false
}

// UnassignAction снимает назначение пользователя, переоткрывая групповые ревью.
type UnassignAction struct {
	base
	ops     ReviewOps
	inf     Inferrer
	req     *models.Request
	user    *models.User
	groups  []models.Group
	comment string
}

// NewUnassignAction собирает действие снятия назначения. Без явных групп
// снимаются все назначения пользователя, выведенные движком.
func NewUnassignAction(ops ReviewOps, inf Inferrer, req *models.Request, user *models.User, groups []models.Group, comment string) *UnassignAction {
	return &UnassignAction{
		ops:     ops,
		inf:     inf,
		req:     req,
		user:    user,
		groups:  groups,
		comment: comment,
	}
}

// Run определяет затронутые группы и снимает назначения.
func (a *UnassignAction) Run(ctx context.Context) error {
	var groups []models.Group
	if len(a.groups) == 0 {
		set, err := a.inf.Assignments(a.req)
		if err != nil {
			return err
		}
		groups = set.GroupsForUser(a.user.Login)
	} else {
		// Явные группы сверяются с историей заявки: снимать можно только
		// выведенное из неё назначение.
		set, err := a.inf.AssignmentsFor(a.req, a.groups...)
		if err != nil {
			return err
		}
		for _, g := range a.groups {
			if set.Contains(models.Assignment{User: models.User{Login: a.user.Login}, Group: g}) {
				groups = append(groups, g)
			}
		}
	}
	if len(groups) == 0 {
		return domain.NewNoActiveReviewError(a.user.Login, a.req.ID)
	}

	for _, g := range groups {
		if err := a.ops.ReviewUnassign(ctx, a.req, a.user.Login, g.Name, a.comment); err != nil {
			return err
		}
		a.register(Compensation{
			Kind:     CompAssignReview,
			Request:  a.req,
			Reviewer: a.user.Login,
			Group:    g.Name,
		})
	}
	return nil
}

// ApproveUserAction принимает персональное ревью пользователя.
type ApproveUserAction struct {
	base
	ops     ReviewOps
	inf     Inferrer
	reports report.Source
	conv    models.GroupConvention
	req     *models.Request
	user    *models.User
	comment string

	// AlsoReviewable заполняется после успешного запуска: другие группы
	// заявки, которые пользователь мог бы дополнительно ревьюить.
	AlsoReviewable []models.Group
}

// NewApproveUserAction собирает действие принятия персонального ревью.
func NewApproveUserAction(ops ReviewOps, inf Inferrer, reports report.Source, conv models.GroupConvention, req *models.Request, user *models.User, comment string) *ApproveUserAction {
	return &ApproveUserAction{
		ops:     ops,
		inf:     inf,
		reports: reports,
		conv:    conv,
		req:     req,
		user:    user,
		comment: comment,
	}
}

// Run проверяет назначение и отчёт, затем принимает ревью.
func (a *ApproveUserAction) Run(ctx context.Context) error {
	set, err := a.inf.Assignments(a.req)
	if err != nil {
		return err
	}
	if !set.ContainsUser(a.user.Login) {
		return domain.NewNotAssignedError(a.user.Login, a.req.ID)
	}

	// Если отчёт существует, он обязан подтверждать успех; отсутствие
	// отчёта принятие не блокирует.
	rep, err := a.reports.Load(ctx, a.req)
	switch {
	case errors.Is(err, domain.ErrReportNotFound):
	case err != nil:
		return err
	case rep.Outcome != report.OutcomeSuccess:
		return domain.NewReportNotPassedError(a.req.ID)
	}

	if err := a.ops.ReviewAccept(ctx, a.req, ReviewerRef{User: a.user.Login}, a.comment); err != nil {
		return err
	}
	a.register(Compensation{
		Kind:     CompReopenReview,
		Request:  a.req,
		Reviewer: a.user.Login,
	})

	a.collectAlsoReviewable(ctx, set)
	return nil
}

// collectAlsoReviewable подсказывает другие доступные группы; любые сбои
// здесь не фатальны.
func (a *ApproveUserAction) collectAlsoReviewable(ctx context.Context, set *models.AssignmentSet) {
	userGroups, err := a.user.QAMGroups(ctx, a.conv)
	if err != nil {
		return
	}
	assigned := make(map[string]bool)
	for _, g := range set.GroupsForUser(a.user.Login) {
		assigned[g.Name] = true
	}
	member := make(map[string]bool, len(userGroups))
	for _, g := range userGroups {
		member[g.Name] = true
	}
	for _, gr := range a.req.GroupReviews() {
		if gr.Open() && member[gr.Group.Name] && !assigned[gr.Group.Name] {
			a.AlsoReviewable = append(a.AlsoReviewable, gr.Group)
		}
	}
}

// ApproveGroupAction принимает групповое ревью напрямую.
type ApproveGroupAction struct {
	base
	ops     ReviewOps
	req     *models.Request
	group   models.Group
	comment string
}

// NewApproveGroupAction собирает действие принятия группового ревью.
func NewApproveGroupAction(ops ReviewOps, req *models.Request, group models.Group, comment string) *ApproveGroupAction {
	return &ApproveGroupAction{
		ops:     ops,
		req:     req,
		group:   group,
		comment: comment,
	}
}

// Run проверяет, что группа действительно ревьюит заявку, и принимает ревью.
func (a *ApproveGroupAction) Run(ctx context.Context) error {
	gr, ok := a.req.GroupReviewFor(a.group.Name)
	if !ok || !gr.Open() {
		return domain.NewNotUnderReviewError(a.group.Name, a.req.ID)
	}
	if err := a.ops.ReviewAccept(ctx, a.req, ReviewerRef{Group: a.group.Name}, a.comment); err != nil {
		return err
	}
	a.register(Compensation{
		Kind:    CompReopenReview,
		Request: a.req,
		Group:   a.group.Name,
	})
	return nil
}

// RejectAction отклоняет заявку, закрепляя коды причин атрибутом проекта.
type RejectAction struct {
	base
	ops     ReviewOps
	reports report.Source
	req     *models.Request
	user    *models.User
	reasons []string
	comment string
	force   bool
}

// NewRejectAction собирает действие отклонения заявки.
func NewRejectAction(ops ReviewOps, reports report.Source, req *models.Request, user *models.User, reasons []string, comment string, force bool) *RejectAction {
	return &RejectAction{
		ops:     ops,
		reports: reports,
		req:     req,
		user:    user,
		reasons: reasons,
		comment: comment,
		force:   force,
	}
}

// Run проверяет отчёт, сохраняет причины и отклоняет ревью.
func (a *RejectAction) Run(ctx context.Context) error {
	// Без force отклонение должно быть подкреплено провалом тестов и
	// комментарием тестировщика в отчёте.
	if !a.force {
		rep, err := a.reports.Load(ctx, a.req)
		if errors.Is(err, domain.ErrReportNotFound) {
			return domain.NewReportMissingError(a.req.ID)
		}
		if err != nil {
			return err
		}
		if rep.Outcome != report.OutcomeFailure {
			return domain.NewReportNotFailedError(a.req.ID)
		}
		if rep.ReviewerComment() == "" {
			return domain.NewMissingCommentError(a.req.ID)
		}
	}

	if len(a.reasons) > 0 {
		attr := models.RejectReasonAttribute(a.reasons)
		if err := a.ops.SetAttribute(ctx, a.req.SourceProject, attr); err != nil {
			return err
		}
		a.register(Compensation{
			Kind:      CompDeleteAttribute,
			Project:   a.req.SourceProject,
			Namespace: attr.Namespace,
			Name:      attr.Name,
		})
	}

	if err := a.ops.ReviewDecline(ctx, a.req, ReviewerRef{User: a.user.Login}, a.comment, nil); err != nil {
		return err
	}
	a.register(Compensation{
		Kind:     CompReopenReview,
		Request:  a.req,
		Reviewer: a.user.Login,
	})
	return nil
}

// CommentAction добавляет комментарий к заявке.
type CommentAction struct {
	base
	ops  ReviewOps
	req  *models.Request
	text string

	// CommentID заполняется после успешного запуска, если удалённая
	// система сообщила идентификатор.
	CommentID string
}

// NewCommentAction собирает действие добавления комментария.
func NewCommentAction(ops ReviewOps, req *models.Request, text string) *CommentAction {
	return &CommentAction{ops: ops, req: req, text: text}
}

// Run добавляет комментарий.
func (a *CommentAction) Run(ctx context.Context) error {
	id, err := a.ops.AddComment(ctx, a.req, a.text)
	if err != nil {
		return err
	}
	a.CommentID = id
	if id != "" {
		a.register(Compensation{Kind: CompDeleteComment, CommentID: id})
	}
	return nil
}

// DeleteCommentAction удаляет комментарий по идентификатору.
type DeleteCommentAction struct {
	base
	ops       ReviewOps
	commentID string
}

// NewDeleteCommentAction собирает действие удаления комментария.
func NewDeleteCommentAction(ops ReviewOps, commentID string) *DeleteCommentAction {
	return &DeleteCommentAction{ops: ops, commentID: commentID}
}

// Run удаляет комментарий. Обратной операции у удаления нет.
func (a *DeleteCommentAction) Run(ctx context.Context) error {
	return a.ops.DeleteComment(ctx, a.commentID)
}
