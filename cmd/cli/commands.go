package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/and161185/cems/internal/api"
)

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("bad id %q", s)
	}
	return id, nil
}

// parseGrant reads "<user_id>:<role>".
func parseGrant(s string) (api.Grant, error) {
	user, role, ok := strings.Cut(s, ":")
	if !ok || role == "" {
		return api.Grant{}, fmt.Errorf("bad grant %q, want <user_id>:<role>", s)
	}
	id, err := parseID(user)
	if err != nil {
		return api.Grant{}, err
	}
	return api.Grant{UserID: id, Role: role}, nil
}

// ---- auth ----

func newRegisterCommand(o *globalOptions) *cobra.Command {
	var username, email, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := connect(cmd, o, false)
			if err != nil {
				return err
			}
			defer s.close()
			resp, err := s.client.Register(s.ctx, &api.RegisterRequest{Username: username, Email: email, Password: password})
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), resp)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newLoginCommand(o *globalOptions) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := connect(cmd, o, false)
			if err != nil {
				return err
			}
			defer s.close()
			resp, err := s.client.Login(s.ctx, &api.LoginRequest{Email: email, Password: password})
			if err != nil {
				return err
			}
			if err := saveToken(tokenFile{AccessToken: resp.AccessToken, ExpiresAt: resp.ExpiresAt, UserID: resp.UserID}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (id %d), token valid until %s\n",
				resp.Username, resp.UserID, resp.ExpiresAt.Local().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newLogoutCommand(o *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the stored access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := connect(cmd, o, true)
			if err != nil {
				return err
			}
			defer s.close()
			if err := s.client.Logout(s.ctx); err != nil {
				return err
			}
			return clearToken()
		},
	}
}

// ---- events ----

// fieldFlags binds the editable event fields to command flags.
type fieldFlags struct {
	title, description, location, recurrence string
	start, end                               string
}

func (f *fieldFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "event title")
	cmd.Flags().StringVar(&f.description, "description", "", "event description")
	cmd.Flags().StringVar(&f.location, "location", "", "event location")
	cmd.Flags().StringVar(&f.recurrence, "recurrence", "", "daily|weekly|monthly|yearly (makes the event recurring)")
	cmd.Flags().StringVar(&f.start, "start", "", "start time, RFC3339")
	cmd.Flags().StringVar(&f.end, "end", "", "end time, RFC3339")
}

// apply overwrites the fields of dst whose flags were set on cmd.
func (f *fieldFlags) apply(cmd *cobra.Command, dst *api.EventFields) error {
	fl := cmd.Flags()
	if fl.Changed("title") {
		dst.Title = f.title
	}
	if fl.Changed("description") {
		dst.Description = f.description
	}
	if fl.Changed("location") {
		if f.location == "" {
			dst.Location = nil
		} else {
			loc := f.location
			dst.Location = &loc
		}
	}
	if fl.Changed("recurrence") {
		if f.recurrence == "" {
			dst.IsRecurring, dst.RecurrencePattern = false, nil
		} else {
			r := f.recurrence
			dst.IsRecurring, dst.RecurrencePattern = true, &r
		}
	}
	if fl.Changed("start") {
		t, err := time.Parse(time.RFC3339, f.start)
		if err != nil {
			return fmt.Errorf("bad --start: %w", err)
		}
		dst.StartTime = t
	}
	if fl.Changed("end") {
		t, err := time.Parse(time.RFC3339, f.end)
		if err != nil {
			return fmt.Errorf("bad --end: %w", err)
		}
		dst.EndTime = t
	}
	return nil
}

func newEventCommand(o *globalOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "event", Short: "Create, read, update and delete events"}
	cmd.AddCommand(
		newEventCreateCommand(o),
		newEventBatchCommand(o),
		newEventGetCommand(o),
		newEventListCommand(o),
		newEventUpdateCommand(o),
		newEventDeleteCommand(o),
		newEventExportCommand(o),
		newEventOccurrencesCommand(o),
	)
	return cmd
}

func newEventCreateCommand(o *globalOptions) *cobra.Command {
	ff := &fieldFlags{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var fields api.EventFields
			if err := ff.apply(cmd, &fields); err != nil {
				return err
			}
			s, err := connect(cmd, o, true)
			if err != nil {
				return err
			}
			defer s.close()
			resp, err := s.client.CreateEvent(s.ctx, &api.CreateEventRequest{Event: fields})
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), resp.Event)
			return nil
		},
	}
	ff.bind(cmd)
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func newEventBatchCommand(o *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "batch <file.json|->",
		Short: "Create events from a JSON array, all or nothing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readAll(args[0])
			if err != nil {
				return err
			}
			var events []api.EventFields
			if err := json.Unmarshal(data, &events); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			s, err := connect(cmd, o, true)
			if err != nil {
				return err
			}
			defer s.close()
			resp, err := s.client.CreateEventsBatch(s.ctx, &api.CreateEventsBatchRequest{Events: events})
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), resp.Events)
			return nil
		},
	}
}

func newEventGetCommand(o *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <event_id>",
		Short: "Show an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			s, err := connect(cmd, o, true)
			if err != nil {
				return err
			}
			defer s.close()
			resp, err := s.client.GetEvent(s.ctx, &api.GetEventRequest{EventID: id})
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), resp.Event)
			return nil
		},
	}
}

func newEventListCommand(o *globalOptions) *cobra.Command {
	req := &api.ListEventsRequest{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List events you own or that are shared with you",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := connect(cmd, o, true)
			if err != nil {
				return err
			}
			defer s.close()
			resp, err := s.client.ListEvents(s.ctx, req)
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), resp.Events)
			return nil
		},
	}
	cmd.Flags().IntVar(&req.Limit, "limit", 0, "page size (server default when 0)")
	cmd.Flags().IntVar(&req.Offset, "offset", 0, "rows to skip")
	cmd.Flags().StringVar(&req.Search, "search", "", "case-insensitive title filter")
	return cmd
}

func newEventUpdateCommand(o *globalOptions) *cobra.Command {
	ff := &fieldFlags{}
	cmd := &cobra.Command{
		Use:   "update <event_id>",
		Short: "Change the given fields of an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			s, err := connect(cmd, o, true)
			if err != nil {
				return err
			}
			defer s.close()
			cur, err := s.client.GetEvent(s.ctx, &api.GetEventRequest{EventID: id})
			if err != nil {
				return err
			}
			fields := cur.Event.EventFields
			if err := ff.apply(cmd, &fields); err != nil {
				return err
			}
			resp, err := s.client.UpdateEvent(s.ctx, &api.UpdateEventRequest{EventID: id, Event: fields})
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), resp.Event)
			return nil
		},
	}
	ff.bind(cmd)
	return cmd
}

func newEventDeleteCommand(o *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <event_id>",
		Short: "Delete an event (owner only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			s, err := connect(cmd, o, true)
			if err != nil {
				return err
			}
			defer s.close()
			resp, err := s.client.DeleteEvent(s.ctx, &api.DeleteEventRequest{EventID: id})
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), resp.Event)
			return nil
		},
	}
}

func newEventExportCommand(o *globalOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export <event_id>",
		Short: "Export an event as iCalendar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			s, err := connect(cmd, o, true)
			if err != nil {
				return err
			}
			defer s.close()
			resp, err := s.client.ExportEvent(s.ctx, &api.ExportEventRequest{EventID: id})
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), resp.ICS)
				return err
			}
			return os.WriteFile(out, []byte(resp.ICS), 0o600)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func newEventOccurrencesCommand(o *globalOptions) *cobra.Command {
	var from, to string
	var limit int
	cmd := &cobra.Command{
		Use:   "occurrences <event_id>",
		Short: "Expand an event into concrete occurrences within a window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			req := &api.OccurrencesRequest{EventID: id, Max: limit}
			if req.From, err = time.Parse(time.RFC3339, from); err != nil {
				return fmt.Errorf("bad --from: %w", err)
			}
			if req.To, err = time.Parse(time.RFC3339, to); err != nil {
				return fmt.Errorf("bad --to: %w", err)
			}
			s, err := connect(cmd, o, true)
			if err != nil {
				return err
			}
			defer s.close()
			resp, err := s.client.Occurrences(s.ctx, req)
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), resp.Occurrences)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "window start, RFC3339")
	cmd.Flags().StringVar(&to, "to", "", "window end, RFC3339")
	cmd.Flags().IntVar(&limit, "max", 0, "maximum occurrences (server default when 0)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

// ---- sharing ----

func newShareCommand(o *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "share <event_id> <user_id>:<role>...",
		Short: "Grant roles on an event; prints only grants that changed",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			grants := make([]api.Grant, 0, len(args)-1)
			for _, a := range args[1:] {
				g, err := parseGrant(a)
				if err != nil {
					return err
				}
				grants = append(grants, g)
			}
			s, err := connect(cmd, o, true)
			if err != nil {
				return err
			}
			defer s.close()
			resp, err := s.client.ShareEvent(s.ctx, &api.ShareEventRequest{EventID: id, Grants: grants})
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), resp.Grants)
			return nil
		},
	}
}

func newPermCommand(o *globalOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "perm", Short: "Inspect and change grants on an event"}

	list := &cobra.Command{
		Use:  "list <event_id>",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			s, err := connect(cmd, o, true)
			if err != nil {
				return err
			}
			defer s.close()
			resp, err := s.client.ListPermissions(s.ctx, &api.ListPermissionsRequest{EventID: id})
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), resp.Grants)
			return nil
		},
	}

	set := &cobra.Command{
		Use:  "set <event_id> <user_id> <role>",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			user, err := parseID(args[1])
			if err != nil {
				return err
			}
			s, err := connect(cmd, o, true)
			if err != nil {
				return err
			}
			defer s.close()
			resp, err := s.client.UpdatePermission(s.ctx, &api.UpdatePermissionRequest{EventID: id, UserID: user, Role: args[2]})
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), resp.Grant)
			return nil
		},
	}

	rm := &cobra.Command{
		Use:  "rm <event_id> <user_id>",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			user, err := parseID(args[1])
			if err != nil {
				return err
			}
			s, err := connect(cmd, o, true)
			if err != nil {
				return err
			}
			defer s.close()
			resp, err := s.client.DeletePermission(s.ctx, &api.DeletePermissionRequest{EventID: id, UserID: user})
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), resp.Grant)
			return nil
		},
	}

	cmd.AddCommand(list, set, rm)
	return cmd
}

// ---- history ----

func newHistoryCommand(o *globalOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "history", Short: "Browse and compare event versions"}

	log := &cobra.Command{
		Use:   "log <event_id>",
		Short: "List versions, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			s, err := connect(cmd, o, true)
			if err != nil {
				return err
			}
			defer s.close()
			resp, err := s.client.GetChangelog(s.ctx, &api.GetChangelogRequest{EventID: id})
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), resp.Versions)
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show <event_id> <version_id>",
		Short: "Show one version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			s, err := connect(cmd, o, true)
			if err != nil {
				return err
			}
			defer s.close()
			resp, err := s.client.GetVersion(s.ctx, &api.GetVersionRequest{EventID: id, VersionID: args[1]})
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), resp.Version)
			return nil
		},
	}

	diff := &cobra.Command{
		Use:   "diff <event_id> <version_id> [other_version_id]",
		Short: "Compare two versions, or a version with the live event",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			s, err := connect(cmd, o, true)
			if err != nil {
				return err
			}
			defer s.close()
			var resp *api.DiffResponse
			if len(args) == 3 {
				resp, err = s.client.DiffVersions(s.ctx, &api.DiffVersionsRequest{EventID: id, VersionID1: args[1], VersionID2: args[2]})
			} else {
				resp, err = s.client.DiffCurrent(s.ctx, &api.DiffCurrentRequest{EventID: id, VersionID: args[1]})
			}
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), resp.Changes)
			return nil
		},
	}

	cmd.AddCommand(log, show, diff)
	return cmd
}

func newRollbackCommand(o *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <event_id> <version_id>",
		Short: "Restore an event to a previous version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			s, err := connect(cmd, o, true)
			if err != nil {
				return err
			}
			defer s.close()
			resp, err := s.client.Rollback(s.ctx, &api.RollbackRequest{EventID: id, VersionID: args[1]})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), resp.Message)
			printJSON(cmd.OutOrStdout(), resp.Event)
			return nil
		},
	}
}
