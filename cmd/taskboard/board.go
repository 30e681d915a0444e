package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/daveduya011/wph-task-manager/board"
	"github.com/daveduya011/wph-task-manager/client"
	"github.com/daveduya011/wph-task-manager/config"
	"github.com/daveduya011/wph-task-manager/domain"
)

var (
	boardURL      string
	boardSession  string
	boardPassword string
	boardName     string
	boardLayout   string

	taskTitle       string
	taskDescription string
	taskDue         string
	taskPriority    string
	taskStatus      string
)

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Work with the task board of a running server",
	Long: `Work with the task board of a running server.

The server URL and session token come from TASKBOARD_URL and
TASKBOARD_SESSION unless given as flags. Progress is reported on stderr.

Examples:
  taskboard board signin ada@example.com --password secret
  taskboard board create --title "Write report" --priority High
  taskboard board move 3f2c... "In Progress"`,
}

var boardSignUpCmd = &cobra.Command{
	Use:   "signup EMAIL",
	Short: "Create an account and print its session token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		if _, err := c.SignUp(cmd.Context(), domain.Credentials{Name: boardName, Email: args[0], Password: boardPassword}); err != nil {
			return resultErr(client.ResultOf(err))
		}
		fmt.Fprintln(cmd.OutOrStdout(), c.Session())
		return nil
	},
}

var boardSignInCmd = &cobra.Command{
	Use:   "signin EMAIL",
	Short: "Sign in and print the session token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		if _, err := c.SignIn(cmd.Context(), args[0], boardPassword); err != nil {
			return resultErr(client.ResultOf(err))
		}
		fmt.Fprintln(cmd.OutOrStdout(), c.Session())
		return nil
	},
}

var boardListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the board in the preferred layout",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c := newClient()
		ctrl, err := loadBoard(cmd.Context(), c, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		layout := domain.Layout(boardLayout)
		if !layout.Valid() {
			if layout, err = c.Layout(cmd.Context()); err != nil {
				return resultErr(client.ResultOf(err))
			}
		}
		return render(cmd.OutOrStdout(), layout, ctrl.Columns())
	},
}

var boardShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show one task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := newClient().GetTask(cmd.Context(), args[0])
		if err != nil {
			return resultErr(client.ResultOf(err))
		}
		printTask(cmd.OutOrStdout(), t)
		return nil
	},
}

var boardCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a task",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctrl, err := loadBoard(cmd.Context(), newClient(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer ctrl.Close()
		return resultErr(ctrl.Create(cmd.Context(), domain.TaskFields{
			Title:       taskTitle,
			Description: taskDescription,
			DueDate:     taskDue,
			Priority:    domain.Priority(taskPriority),
			Status:      domain.Status(taskStatus),
		}))
	},
}

var boardUpdateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Change the given fields of a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := patchFromFlags(cmd)
		if p.Empty() {
			return errors.New("nothing to update")
		}
		ctrl, err := loadBoard(cmd.Context(), newClient(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer ctrl.Close()
		return resultErr(ctrl.Update(cmd.Context(), args[0], p))
	},
}

var boardMoveCmd = &cobra.Command{
	Use:   "move ID STATUS",
	Short: "Drag a task to another column",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := domain.ParseStatus(args[1])
		if err != nil {
			return err
		}
		ctrl, err := loadBoard(cmd.Context(), newClient(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer ctrl.Close()

		dd := board.NewDragDrop(ctrl)
		if err := dd.Start(args[0]); err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		res, sent := dd.Drop(cmd.Context(), status)
		if !sent {
			fmt.Fprintf(cmd.ErrOrStderr(), "task is already in %s\n", status)
		}
		return resultErr(res)
	},
}

var boardDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := loadBoard(cmd.Context(), newClient(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer ctrl.Close()
		return resultErr(ctrl.Delete(cmd.Context(), args[0]))
	},
}

var boardLayoutCmd = &cobra.Command{
	Use:   "layout [kanban|table]",
	Short: "Show or set the preferred layout",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		if len(args) == 0 {
			l, err := c.Layout(cmd.Context())
			if err != nil {
				return resultErr(client.ResultOf(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), l)
			return nil
		}
		l := domain.Layout(args[0])
		if !l.Valid() {
			return fmt.Errorf("unknown layout %q", args[0])
		}
		if err := c.SetLayout(cmd.Context(), l); err != nil {
			return resultErr(client.ResultOf(err))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "export TASKBOARD_LAYOUT=%s\n", l)
		return nil
	},
}

func init() {
	boardCmd.PersistentFlags().StringVar(&boardURL, "url", "", "server URL (default $TASKBOARD_URL)")
	boardCmd.PersistentFlags().StringVar(&boardSession, "session", "", "session token (default $TASKBOARD_SESSION)")

	for _, c := range []*cobra.Command{boardSignUpCmd, boardSignInCmd} {
		c.Flags().StringVar(&boardPassword, "password", "", "account password")
		_ = c.MarkFlagRequired("password")
	}
	boardSignUpCmd.Flags().StringVar(&boardName, "name", "", "display name")
	boardListCmd.Flags().StringVar(&boardLayout, "layout", "", "kanban or table (default: stored preference)")

	boardCreateCmd.Flags().StringVar(&taskTitle, "title", "", "task title")
	boardCreateCmd.Flags().StringVar(&taskDescription, "description", "", "task description")
	boardCreateCmd.Flags().StringVar(&taskDue, "due", "", "due date, YYYY-MM-DD")
	boardCreateCmd.Flags().StringVar(&taskPriority, "priority", string(domain.PriorityMedium), "Low, Medium or High")
	boardCreateCmd.Flags().StringVar(&taskStatus, "status", string(domain.StatusTodo), "To Do, In Progress or Completed")
	_ = boardCreateCmd.MarkFlagRequired("title")

	boardUpdateCmd.Flags().StringVar(&taskTitle, "title", "", "task title")
	boardUpdateCmd.Flags().StringVar(&taskDescription, "description", "", "task description")
	boardUpdateCmd.Flags().StringVar(&taskDue, "due", "", "due date, YYYY-MM-DD; empty clears it")
	boardUpdateCmd.Flags().StringVar(&taskPriority, "priority", "", "Low, Medium or High")
	boardUpdateCmd.Flags().StringVar(&taskStatus, "status", "", "To Do, In Progress or Completed")

	boardCmd.AddCommand(boardSignUpCmd, boardSignInCmd, boardListCmd, boardShowCmd,
		boardCreateCmd, boardUpdateCmd, boardMoveCmd, boardDeleteCmd, boardLayoutCmd)
}

func newClient() *client.Client {
	cfg := config.LoadClient()
	if boardURL != "" {
		cfg.BaseURL = boardURL
	}
	if boardSession != "" {
		cfg.Session = boardSession
	}
	return client.New(strings.TrimRight(cfg.BaseURL, "/"), cfg.Session,
		client.WithLayout(domain.Layout(cfg.Layout)),
		client.WithLogger(log.StandardLogger()),
	)
}

func loadBoard(ctx context.Context, c *client.Client, progress io.Writer) (*board.Controller, error) {
	ctrl := board.NewController(c, stderrNotifier{w: progress}, log.StandardLogger())
	if err := resultErr(ctrl.Load(ctx)); err != nil {
		return nil, err
	}
	return ctrl, nil
}

type stderrNotifier struct {
	w io.Writer
}

func (n stderrNotifier) Notify(ev board.Notification) {
	if ev.Detail != "" {
		fmt.Fprintf(n.w, "%s: %s\n", ev.Message, ev.Detail)
		return
	}
	fmt.Fprintln(n.w, ev.Message)
}

func resultErr(r client.Result) error {
	if r.Success {
		return nil
	}
	return errors.New(r.Error)
}

func patchFromFlags(cmd *cobra.Command) domain.TaskPatch {
	var p domain.TaskPatch
	flags := cmd.Flags()
	if flags.Changed("title") {
		p.Title = &taskTitle
	}
	if flags.Changed("description") {
		p.Description = &taskDescription
	}
	if flags.Changed("due") {
		p.DueDate = &taskDue
	}
	if flags.Changed("priority") {
		pr := domain.Priority(taskPriority)
		p.Priority = &pr
	}
	if flags.Changed("status") {
		st := domain.Status(taskStatus)
		p.Status = &st
	}
	return p
}

func render(w io.Writer, layout domain.Layout, cols []domain.Column) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if layout == domain.LayoutTable {
		fmt.Fprintln(tw, "ID\tTITLE\tPRIORITY\tSTATUS\tDUE")
		for _, col := range cols {
			for _, t := range col.Tasks {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Title, t.Priority, t.Status, orDash(t.DueDate))
			}
		}
		return tw.Flush()
	}
	for i, col := range cols {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		fmt.Fprintf(tw, "%s (%d)\n", col.Status, len(col.Tasks))
		for _, t := range col.Tasks {
			fmt.Fprintf(tw, "  %s\t%s\t[%s]\t%s\n", t.ID, t.Title, t.Priority, orDash(t.DueDate))
		}
	}
	return tw.Flush()
}

func printTask(w io.Writer, t domain.Task) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\t%s\n", t.ID)
	fmt.Fprintf(tw, "Title\t%s\n", t.Title)
	fmt.Fprintf(tw, "Description\t%s\n", orDash(t.Description))
	fmt.Fprintf(tw, "Due\t%s\n", orDash(t.DueDate))
	fmt.Fprintf(tw, "Priority\t%s\n", t.Priority)
	fmt.Fprintf(tw, "Status\t%s\n", t.Status)
	_ = tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
