package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qamtools/reviewtool/internal/models"
	"github.com/qamtools/reviewtool/internal/service"
)

var (
	flagUser       string
	flagGroups     []string
	flagMessage    string
	flagReasons    []string
	flagForce      bool
	flagSkipReport bool

	flagListGroup       string
	flagListKind        string
	flagListAssignments bool
)

// newRootCmd собирает дерево команд инструмента.
func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "reviewtool",
		Short:         "Автоматизация QAM-ревью заявок на обслуживание",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&flagUser, "user", "u", "", "логин действующего пользователя (по умолчанию из конфигурации)")

	root.AddCommand(
		newAssignCmd(a),
		newUnassignCmd(a),
		newApproveCmd(a),
		newRejectCmd(a),
		newCommentCmd(a),
		newListCmd(a),
	)
	return root
}

// actingUser возвращает действующего пользователя команды.
func (a *app) actingUser(ctx context.Context) (*models.User, error) {
	login := flagUser
	if login == "" {
		login = a.cfg.RemoteConf.Username
	}
	return a.directory.UserByLogin(ctx, login)
}

// loadGroups превращает имена групп из флагов в модели групп.
func (a *app) loadGroups(ctx context.Context, names []string) ([]models.Group, error) {
	groups := make([]models.Group, 0, len(names))
	for _, name := range names {
		group, err := a.directory.GroupByName(ctx, name)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, nil
}

func newAssignCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assign <request-id>",
		Short: "Назначить себя ревьюером заявки",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			user, err := a.actingUser(ctx)
			if err != nil {
				return err
			}
			req, err := a.requests.ByID(ctx, args[0])
			if err != nil {
				return err
			}
			groups, err := a.loadGroups(ctx, flagGroups)
			if err != nil {
				return err
			}
			action := service.NewAssignAction(a.requests, a.reports, a.cfg.ReviewConf.Convention(), req, user, groups, flagMessage, flagSkipReport, flagForce)
			return a.executor.Execute(ctx, action)
		},
	}
	cmd.Flags().StringSliceVarP(&flagGroups, "group", "g", nil, "группы для назначения; без флага группа выводится автоматически")
	cmd.Flags().StringVarP(&flagMessage, "message", "m", "", "комментарий к назначению")
	cmd.Flags().BoolVar(&flagSkipReport, "skip-report", false, "не требовать готовый тестовый отчёт")
	cmd.Flags().BoolVar(&flagForce, "force", false, "назначиться на отклонённую заявку, не будучи прежним ревьюером")
	return cmd
}

func newUnassignCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unassign <request-id>",
		Short: "Снять своё назначение с заявки",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			user, err := a.actingUser(ctx)
			if err != nil {
				return err
			}
			req, err := a.requests.ByID(ctx, args[0])
			if err != nil {
				return err
			}
			groups, err := a.loadGroups(ctx, flagGroups)
			if err != nil {
				return err
			}
			action := service.NewUnassignAction(a.requests, a.engine, req, user, groups, flagMessage)
			return a.executor.Execute(ctx, action)
		},
	}
	cmd.Flags().StringSliceVarP(&flagGroups, "group", "g", nil, "группы для снятия; без флага берутся выведенные назначения")
	cmd.Flags().StringVarP(&flagMessage, "message", "m", "", "комментарий к снятию")
	return cmd
}

func newApproveCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <request-id>",
		Short: "Принять своё ревью либо ревью группы",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			req, err := a.requests.ByID(ctx, args[0])
			if err != nil {
				return err
			}

			// С флагом группы принимается групповое ревью напрямую.
			if len(flagGroups) == 1 {
				group, err := a.directory.GroupByName(ctx, flagGroups[0])
				if err != nil {
					return err
				}
				action := service.NewApproveGroupAction(a.requests, req, group, flagMessage)
				return a.executor.Execute(ctx, action)
			}
			if len(flagGroups) > 1 {
				return fmt.Errorf("approve accepts at most one group")
			}

			user, err := a.actingUser(ctx)
			if err != nil {
				return err
			}
			action := service.NewApproveUserAction(a.requests, a.engine, a.reports, a.cfg.ReviewConf.Convention(), req, user, flagMessage)
			if err := a.executor.Execute(ctx, action); err != nil {
				return err
			}
			for _, group := range action.AlsoReviewable {
				fmt.Fprintf(cmd.OutOrStdout(), "you could also review for group %s\n", group.Name)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&flagGroups, "group", "g", nil, "принять ревью указанной группы вместо персонального")
	cmd.Flags().StringVarP(&flagMessage, "message", "m", "", "комментарий к принятию")
	return cmd
}

func newRejectCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reject <request-id>",
		Short: "Отклонить заявку с кодами причин",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			user, err := a.actingUser(ctx)
			if err != nil {
				return err
			}
			req, err := a.requests.ByID(ctx, args[0])
			if err != nil {
				return err
			}
			action := service.NewRejectAction(a.requests, a.reports, req, user, flagReasons, flagMessage, flagForce)
			return a.executor.Execute(ctx, action)
		},
	}
	cmd.Flags().StringSliceVarP(&flagReasons, "reason", "r", nil, "коды причин отклонения")
	cmd.Flags().StringVarP(&flagMessage, "message", "m", "", "комментарий к отклонению")
	cmd.Flags().BoolVar(&flagForce, "force", false, "отклонить без подтверждения провала в отчёте")
	return cmd
}

func newCommentCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "comment <request-id> [text]",
		Short: "Добавить или удалить комментарий заявки",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if deleteID, _ := cmd.Flags().GetString("delete"); deleteID != "" {
				action := service.NewDeleteCommentAction(a.requests, deleteID)
				return a.executor.Execute(ctx, action)
			}
			if len(args) < 2 {
				return fmt.Errorf("comment text is required")
			}
			req, err := a.requests.ByID(ctx, args[0])
			if err != nil {
				return err
			}
			action := service.NewCommentAction(a.requests, req, args[1])
			return a.executor.Execute(ctx, action)
		},
	}
	cmd.Flags().String("delete", "", "удалить комментарий с указанным идентификатором")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [request-id]",
		Short: "Показать заявки по выбранной стратегии",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			query, err := a.buildQuery(ctx, args)
			if err != nil {
				return err
			}
			listed, err := a.lister.List(ctx, query)
			if err != nil {
				return err
			}
			for _, item := range listed {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%d\n",
					item.Request.ID,
					item.Request.SourceProject,
					item.Report.Rating(),
					item.Priority,
				)
				for _, assignment := range item.Assignments {
					fmt.Fprintf(cmd.OutOrStdout(), "\t%s reviews for %s\n",
						assignment.User.Login, assignment.Group.Name)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flagListKind, "kind", "open", "стратегия выборки: open | assigned")
	cmd.Flags().StringVarP(&flagListGroup, "group", "g", "", "выборка по группе вместо пользователя")
	cmd.Flags().BoolVar(&flagListAssignments, "assignments", false, "показать выведенные назначения каждой заявки")
	return cmd
}

// buildQuery выбирает стратегию листинга по аргументам и флагам.
func (a *app) buildQuery(ctx context.Context, args []string) (service.Query, error) {
	if len(args) == 1 {
		return service.Query{
			Kind:            service.QueryByID,
			RequestID:       args[0],
			WithAssignments: flagListAssignments,
		}, nil
	}

	assigned := flagListKind == "assigned"
	if flagListGroup != "" {
		kind := service.QueryOpenForGroup
		if assigned {
			kind = service.QueryAssignedToGroup
		}
		return service.Query{Kind: kind, Group: flagListGroup, WithAssignments: flagListAssignments}, nil
	}

	user, err := a.actingUser(ctx)
	if err != nil {
		return service.Query{}, err
	}
	kind := service.QueryOpenForUser
	if assigned {
		kind = service.QueryAssignedToUser
	}
	return service.Query{Kind: kind, User: user.Login, WithAssignments: flagListAssignments}, nil
}
